package jobs

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	types "github.com/eddykim0118/kivo/internal/domain/jobs"
	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/platform/dbctx"
	"github.com/eddykim0118/kivo/internal/platform/logger"
)

type ForecastJobRepo interface {
	Create(dbc dbctx.Context, job *types.ForecastJob) (*types.ForecastJob, error)
	GetByExternalID(dbc dbctx.Context, externalID string) (*types.ForecastJob, error)
	GetForUser(dbc dbctx.Context, userID, externalID string) (*types.ForecastJob, error)
	// UpdateState writes the poll-tracked fields unless the stored row is
	// already terminal. It reports whether a row changed.
	UpdateState(dbc dbctx.Context, job forecast.Job) (bool, error)
	ListNonTerminal(dbc dbctx.Context) ([]*types.ForecastJob, error)
	ExistsNonTerminalForSession(dbc dbctx.Context, sessionKey string) (bool, error)
}

type forecastJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewForecastJobRepo(db *gorm.DB, baseLog *logger.Logger) ForecastJobRepo {
	return &forecastJobRepo{db: db, log: baseLog.With("repo", "ForecastJobRepo")}
}

func terminalStates() []string {
	return []string{
		string(forecast.StateCompleted),
		string(forecast.StateFailed),
		string(forecast.StateTimedOut),
		string(forecast.StateCancelled),
	}
}

func (r *forecastJobRepo) Create(dbc dbctx.Context, job *types.ForecastJob) (*types.ForecastJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil {
		return nil, errors.New("nil forecast job")
	}
	if strings.TrimSpace(job.ExternalID) == "" {
		return nil, errors.New("forecast job external id required")
	}
	if err := transaction.WithContext(dbc.Ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *forecastJobRepo) GetByExternalID(dbc dbctx.Context, externalID string) (*types.ForecastJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if strings.TrimSpace(externalID) == "" {
		return nil, nil
	}
	var job types.ForecastJob
	err := transaction.WithContext(dbc.Ctx).
		Where("external_id = ?", externalID).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ExternalID == "" {
		return nil, nil
	}
	return &job, nil
}

func (r *forecastJobRepo) GetForUser(dbc dbctx.Context, userID, externalID string) (*types.ForecastJob, error) {
	job, err := r.GetByExternalID(dbc, externalID)
	if err != nil || job == nil {
		return job, err
	}
	if job.UserID != userID {
		return nil, nil
	}
	return job, nil
}

func (r *forecastJobRepo) UpdateState(dbc dbctx.Context, job forecast.Job) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if strings.TrimSpace(job.ID) == "" {
		return false, nil
	}
	updates := types.StateFields(job)
	updates["updated_at"] = time.Now().UTC()

	res := transaction.WithContext(dbc.Ctx).
		Model(&types.ForecastJob{}).
		Where("external_id = ?", job.ID).
		Where("state NOT IN ?", terminalStates()).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *forecastJobRepo) ListNonTerminal(dbc dbctx.Context) ([]*types.ForecastJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []*types.ForecastJob{}
	if err := transaction.WithContext(dbc.Ctx).
		Where("state NOT IN ?", terminalStates()).
		Order("submitted_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *forecastJobRepo) ExistsNonTerminalForSession(dbc dbctx.Context, sessionKey string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if strings.TrimSpace(sessionKey) == "" {
		return false, nil
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.ForecastJob{}).
		Where("session_key = ? AND state NOT IN ?", sessionKey, terminalStates()).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

package jobs

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/eddykim0118/kivo/internal/domain/jobs"
	"github.com/eddykim0118/kivo/internal/platform/dbctx"
	"github.com/eddykim0118/kivo/internal/platform/logger"
)

type ForecastResultRepo interface {
	// Save keeps the first stored result for a job; later saves are no-ops.
	Save(dbc dbctx.Context, row *types.ForecastResult) error
	GetByJobID(dbc dbctx.Context, jobID string) (*types.ForecastResult, error)
}

type forecastResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewForecastResultRepo(db *gorm.DB, baseLog *logger.Logger) ForecastResultRepo {
	return &forecastResultRepo{db: db, log: baseLog.With("repo", "ForecastResultRepo")}
}

func (r *forecastResultRepo) Save(dbc dbctx.Context, row *types.ForecastResult) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil || strings.TrimSpace(row.JobID) == "" {
		return errors.New("forecast result job id required")
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "job_id"}}, DoNothing: true}).
		Create(row).Error
}

func (r *forecastResultRepo) GetByJobID(dbc dbctx.Context, jobID string) (*types.ForecastResult, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if strings.TrimSpace(jobID) == "" {
		return nil, nil
	}
	var row types.ForecastResult
	if err := transaction.WithContext(dbc.Ctx).Where("job_id = ?", jobID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

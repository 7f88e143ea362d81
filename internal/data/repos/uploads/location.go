package uploads

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/eddykim0118/kivo/internal/domain/uploads"
	"github.com/eddykim0118/kivo/internal/platform/dbctx"
	"github.com/eddykim0118/kivo/internal/platform/logger"
)

type LocationRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Location, error)
	GetByName(dbc dbctx.Context, name string) (*types.Location, error)
	Ensure(dbc dbctx.Context, name string) (*types.Location, error)
	List(dbc dbctx.Context) ([]*types.Location, error)
}

type locationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLocationRepo(db *gorm.DB, baseLog *logger.Logger) LocationRepo {
	return &locationRepo{db: db, log: baseLog.With("repo", "LocationRepo")}
}

func (r *locationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Location, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var loc types.Location
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&loc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &loc, nil
}

func (r *locationRepo) GetByName(dbc dbctx.Context, name string) (*types.Location, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	var loc types.Location
	if err := transaction.WithContext(dbc.Ctx).Where("name = ?", name).First(&loc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &loc, nil
}

// Ensure inserts the location when missing and returns the stored row.
func (r *locationRepo) Ensure(dbc dbctx.Context, name string) (*types.Location, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("location name required")
	}
	loc := &types.Location{Name: name}
	if err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(loc).Error; err != nil {
		return nil, err
	}
	return r.GetByName(dbc, name)
}

func (r *locationRepo) List(dbc dbctx.Context) ([]*types.Location, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Location
	if err := transaction.WithContext(dbc.Ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

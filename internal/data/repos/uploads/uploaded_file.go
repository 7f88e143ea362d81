package uploads

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/eddykim0118/kivo/internal/domain/uploads"
	"github.com/eddykim0118/kivo/internal/platform/dbctx"
	"github.com/eddykim0118/kivo/internal/platform/logger"
)

type UploadedFileRepo interface {
	Create(dbc dbctx.Context, file *types.UploadedFile) (*types.UploadedFile, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.UploadedFile, error)
	GetForUser(dbc dbctx.Context, userID string, id uuid.UUID) (*types.UploadedFile, error)
	ListByUser(dbc dbctx.Context, userID string, limit, offset int) ([]*types.UploadedFile, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type uploadedFileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUploadedFileRepo(db *gorm.DB, baseLog *logger.Logger) UploadedFileRepo {
	return &uploadedFileRepo{db: db, log: baseLog.With("repo", "UploadedFileRepo")}
}

func (r *uploadedFileRepo) Create(dbc dbctx.Context, file *types.UploadedFile) (*types.UploadedFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if file == nil {
		return nil, errors.New("nil uploaded file")
	}
	if err := transaction.WithContext(dbc.Ctx).Create(file).Error; err != nil {
		return nil, err
	}
	return file, nil
}

func (r *uploadedFileRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.UploadedFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var f types.UploadedFile
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

// GetForUser hides rows owned by someone else behind a nil result.
func (r *uploadedFileRepo) GetForUser(dbc dbctx.Context, userID string, id uuid.UUID) (*types.UploadedFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	var f types.UploadedFile
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

func (r *uploadedFileRepo) ListByUser(dbc dbctx.Context, userID string, limit, offset int) ([]*types.UploadedFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []*types.UploadedFile{}
	if strings.TrimSpace(userID) == "" {
		return out, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("upload_time DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *uploadedFileRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{"status": status})
}

func (r *uploadedFileRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.UploadedFile{}).
		Where("id = ?", id).
		Updates(updates).Error
}

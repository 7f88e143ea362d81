package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/eddykim0118/kivo/internal/data/repos"
	"github.com/eddykim0118/kivo/internal/domain/uploads"
	"github.com/eddykim0118/kivo/internal/ingest/roles"
	"github.com/eddykim0118/kivo/internal/ingest/sampler"
	"github.com/eddykim0118/kivo/internal/ingest/validate"
	"github.com/eddykim0118/kivo/internal/observability"
	"github.com/eddykim0118/kivo/internal/platform/dbctx"
	"github.com/eddykim0118/kivo/internal/platform/logger"
)

// FileInput is an uploaded file already read into memory.
type FileInput struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

type UploadInput struct {
	File       FileInput
	Roles      roles.RoleMap
	LocationID uuid.UUID
}

// PreviewResult is advisory. The user confirms roles before upload.
type PreviewResult struct {
	Format         sampler.Format `json:"format"`
	Columns        []string       `json:"columns"`
	PreviewRows    []sampler.Row  `json:"preview_rows"`
	TotalRows      int            `json:"total_rows"`
	SuggestedRoles roles.RoleMap  `json:"suggested_roles"`
}

type UploadService interface {
	Preview(ctx context.Context, in FileInput) (*PreviewResult, error)
	Upload(ctx context.Context, in UploadInput) (*uploads.UploadedFile, error)
	ListFiles(ctx context.Context, limit, offset int) ([]*uploads.UploadedFile, error)
	GetFile(ctx context.Context, id uuid.UUID) (*uploads.UploadedFile, error)
	ListLocations(ctx context.Context) ([]*uploads.Location, error)
}

type uploadService struct {
	log         *logger.Logger
	validator   *validate.Validator
	patterns    roles.Patterns
	previewRows int
	bucket      ObjectStore
	locations   repos.LocationRepo
	files       repos.UploadedFileRepo
	metrics     *observability.Metrics
	now         func() time.Time
}

type UploadOption func(*uploadService)

func WithUploadMetrics(m *observability.Metrics) UploadOption {
	return func(s *uploadService) { s.metrics = m }
}

func NewUploadService(
	baseLog *logger.Logger,
	validator *validate.Validator,
	patterns roles.Patterns,
	previewRows int,
	bucket ObjectStore,
	locations repos.LocationRepo,
	files repos.UploadedFileRepo,
	opts ...UploadOption,
) UploadService {
	if previewRows <= 0 {
		previewRows = sampler.PreviewRows
	}
	if len(patterns) == 0 {
		patterns = roles.DefaultPatterns()
	}
	s := &uploadService{
		log:         baseLog.With("service", "UploadService"),
		validator:   validator,
		patterns:    patterns,
		previewRows: previewRows,
		bucket:      bucket,
		locations:   locations,
		files:       files,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *uploadService) Preview(ctx context.Context, in FileInput) (*PreviewResult, error) {
	if _, err := s.validator.CheckFile(in.Size, in.Filename, in.ContentType); err != nil {
		return nil, err
	}
	table, err := sampler.Sample(in.Data, in.Filename, in.ContentType, s.previewRows)
	if err != nil {
		return nil, err
	}
	rows := table.Rows
	if rows == nil {
		rows = []sampler.Row{}
	}
	return &PreviewResult{
		Format:         table.Format,
		Columns:        table.Columns,
		PreviewRows:    rows,
		TotalRows:      table.TotalRows,
		SuggestedRoles: roles.Infer(table.Columns, s.patterns),
	}, nil
}

func (s *uploadService) Upload(ctx context.Context, in UploadInput) (*uploads.UploadedFile, error) {
	rd, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}
	format, err := s.validator.CheckFile(in.File.Size, in.File.Filename, in.File.ContentType)
	if err != nil {
		return nil, err
	}
	table, err := sampler.Sample(in.File.Data, in.File.Filename, in.File.ContentType, 0)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateMapping(table, in.Roles); err != nil {
		return nil, err
	}

	dbc := dbctx.Of(ctx)
	loc, err := s.locations.GetByID(dbc, in.LocationID)
	if err != nil {
		return nil, fmt.Errorf("load location: %w", err)
	}
	if loc == nil {
		return nil, uploads.ErrLocationNotFound
	}

	columns, _ := json.Marshal(table.Columns)
	now := s.now().UTC()
	filename := cleanFilename(in.File.Filename)
	row := &uploads.UploadedFile{
		ID:         uuid.New(),
		UserID:     rd.UserID,
		LocationID: loc.ID,
		Filename:   filename,
		FileSize:   in.File.Size,
		FileType:   format.ContentType(),
		Format:     string(format),
		Status:     uploads.StatusUploaded,
		DateCol:    in.Roles.Date,
		GroupCol:   in.Roles.Group,
		TargetCol:  in.Roles.Target,
		TotalRows:  table.TotalRows,
		Columns:    datatypes.JSON(columns),
		UploadTime: now,
	}

	key := RawObjectKey(loc.Name, row.ID, filename, now)
	log := s.log.With("user_id", rd.UserID, "file_id", row.ID, "key", key)
	if upErr := s.bucket.UploadFile(dbc, key, bytes.NewReader(in.File.Data), format.ContentType()); upErr != nil {
		log.Error("Raw file upload failed", "error", upErr)
		row.Status = uploads.StatusUploadFailed
		if _, err := s.files.Create(dbc, row); err != nil {
			log.Error("Failed to record failed upload", "error", err)
		}
		s.metrics.IncUpload(row.Format, row.Status)
		return nil, fmt.Errorf("%w: %w", uploads.ErrStorageFailed, upErr)
	}
	row.StoragePath = key

	if _, err := s.files.Create(dbc, row); err != nil {
		// No tracker row points at the object, so nothing would ever clean it up.
		if delErr := s.bucket.DeleteFile(dbctx.Of(context.WithoutCancel(ctx)), key); delErr != nil {
			log.Warn("Failed to remove orphaned raw file", "error", delErr)
		}
		return nil, fmt.Errorf("record upload: %w", err)
	}
	s.metrics.IncUpload(row.Format, row.Status)
	log.Info("File uploaded", "rows", row.TotalRows, "format", row.Format)
	return row, nil
}

func (s *uploadService) ListFiles(ctx context.Context, limit, offset int) ([]*uploads.UploadedFile, error) {
	rd, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.files.ListByUser(dbctx.Of(ctx), rd.UserID, limit, offset)
}

func (s *uploadService) GetFile(ctx context.Context, id uuid.UUID) (*uploads.UploadedFile, error) {
	rd, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.files.GetForUser(dbctx.Of(ctx), rd.UserID, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, uploads.ErrFileNotFound
	}
	return f, nil
}

func (s *uploadService) ListLocations(ctx context.Context) ([]*uploads.Location, error) {
	return s.locations.List(dbctx.Of(ctx))
}

// RawObjectKey is raw/{location}/{YYYYmmdd_HHMMSS}_{id8}_{filename}, where id8
// is the first eight hex digits of the file row id.
func RawObjectKey(location string, fileID uuid.UUID, filename string, at time.Time) string {
	return fmt.Sprintf("raw/%s/%s_%s_%s",
		strings.TrimSpace(location),
		at.UTC().Format("20060102_150405"),
		fileID.String()[:8],
		cleanFilename(filename),
	)
}

func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}

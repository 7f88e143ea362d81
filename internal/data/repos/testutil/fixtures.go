package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eddykim0118/kivo/internal/domain/jobs"
	"github.com/eddykim0118/kivo/internal/domain/uploads"
	"github.com/eddykim0118/kivo/internal/forecast"
)

func SeedLocation(tb testing.TB, ctx context.Context, tx *gorm.DB, name string) *uploads.Location {
	tb.Helper()
	l := &uploads.Location{ID: uuid.New(), Name: name}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed location: %v", err)
	}
	return l
}

func SeedUploadedFile(tb testing.TB, ctx context.Context, tx *gorm.DB, userID string, locationID uuid.UUID, uploadedAt time.Time) *uploads.UploadedFile {
	tb.Helper()
	f := &uploads.UploadedFile{
		ID:          uuid.New(),
		UserID:      userID,
		LocationID:  locationID,
		Filename:    "sales.csv",
		StoragePath: "raw/gangnam/20250101_000000_sales.csv",
		FileSize:    128,
		FileType:    "text/csv",
		Format:      "csv",
		Status:      uploads.StatusUploaded,
		DateCol:     "date",
		GroupCol:    "menu",
		TargetCol:   "sales",
		TotalRows:   10,
		Columns:     datatypes.JSON([]byte(`["date","menu","sales"]`)),
		UploadTime:  uploadedAt,
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed uploaded file: %v", err)
	}
	return f
}

func SeedForecastJob(tb testing.TB, ctx context.Context, tx *gorm.DB, externalID, userID string, state forecast.State) *jobs.ForecastJob {
	tb.Helper()
	j := &jobs.ForecastJob{
		ID:          uuid.New(),
		ExternalID:  externalID,
		UserID:      userID,
		SessionKey:  userID,
		FileID:      uuid.New(),
		Config:      datatypes.JSON([]byte(`{"model":"prophet","horizon":7}`)),
		State:       string(state),
		SubmittedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed forecast job: %v", err)
	}
	return j
}

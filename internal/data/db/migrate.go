package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/eddykim0118/kivo/internal/domain/jobs"
	"github.com/eddykim0118/kivo/internal/domain/uploads"
)

// Models lists every persisted table in migration order.
func Models() []interface{} {
	return []interface{}{
		// Uploads
		&uploads.Location{},
		&uploads.UploadedFile{},

		// Forecast jobs
		&jobs.ForecastJob{},
		&jobs.ForecastResult{},
	}
}

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// File listing per user, newest first.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_file_upload_tracker_user_time
		ON file_upload_tracker (user_id, upload_time DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_file_upload_tracker_user_time: %w", err)
	}

	// Resume scans only look at jobs that never reached a terminal state.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_forecast_jobs_state_submitted
		ON forecast_jobs (state, submitted_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_forecast_jobs_state_submitted: %w", err)
	}
	return nil
}

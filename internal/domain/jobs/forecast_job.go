package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eddykim0118/kivo/internal/forecast"
)

// ForecastJob persists the local cache of one external job so status survives restarts.
type ForecastJob struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID        string         `gorm:"column:external_id;not null;uniqueIndex" json:"job_id"`
	UserID            string         `gorm:"column:user_id;not null;index" json:"user_id"`
	SessionKey        string         `gorm:"column:session_key;not null;index" json:"-"`
	FileID            uuid.UUID      `gorm:"type:uuid;column:file_id;not null;index" json:"file_id"`
	Config            datatypes.JSON `gorm:"column:config;type:jsonb" json:"config"`
	State             string         `gorm:"column:state;not null;index" json:"state"`
	Progress          *int           `gorm:"column:progress" json:"progress,omitempty"`
	Attempts          int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	ConsecutiveErrors int            `gorm:"column:consecutive_errors;not null;default:0" json:"consecutive_errors"`
	Reason            string         `gorm:"column:reason" json:"reason,omitempty"`
	SubmittedAt       time.Time      `gorm:"column:submitted_at;not null;index" json:"submitted_at"`
	LastPolledAt      *time.Time     `gorm:"column:last_polled_at" json:"last_polled_at,omitempty"`
	FinishedAt        *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
}

func (ForecastJob) TableName() string { return "forecast_jobs" }

func (j *ForecastJob) BeforeCreate(*gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

func (j *ForecastJob) Job() forecast.Job {
	return forecast.Job{
		ID:                j.ExternalID,
		State:             forecast.State(j.State),
		Progress:          j.Progress,
		Attempts:          j.Attempts,
		ConsecutiveErrors: j.ConsecutiveErrors,
		Reason:            j.Reason,
		SubmittedAt:       j.SubmittedAt,
		LastPolledAt:      j.LastPolledAt,
		FinishedAt:        j.FinishedAt,
	}
}

// StateFields is the column set written on every poll transition.
func StateFields(job forecast.Job) map[string]interface{} {
	return map[string]interface{}{
		"state":              string(job.State),
		"progress":           job.Progress,
		"attempts":           job.Attempts,
		"consecutive_errors": job.ConsecutiveErrors,
		"reason":             job.Reason,
		"last_polled_at":     job.LastPolledAt,
		"finished_at":        job.FinishedAt,
	}
}

func (j *ForecastJob) ModelConfig() (forecast.ModelConfig, error) {
	var cfg forecast.ModelConfig
	if len(j.Config) == 0 {
		return cfg, fmt.Errorf("forecast job %s has no config", j.ExternalID)
	}
	if err := json.Unmarshal(j.Config, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config for job %s: %w", j.ExternalID, err)
	}
	return cfg, nil
}

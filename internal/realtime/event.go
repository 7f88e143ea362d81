package realtime

import (
	"time"

	"github.com/eddykim0118/kivo/internal/forecast"
)

const EventJobUpdated = "forecast.job.updated"

// JobEvent is broadcast on every persisted job transition.
type JobEvent struct {
	Type     string         `json:"type"`
	JobID    string         `json:"job_id"`
	UserID   string         `json:"user_id"`
	State    forecast.State `json:"state"`
	Progress *int           `json:"progress,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	At       time.Time      `json:"at"`
}

func NewJobEvent(userID string, job forecast.Job, at time.Time) JobEvent {
	return JobEvent{
		Type:     EventJobUpdated,
		JobID:    job.ID,
		UserID:   userID,
		State:    job.State,
		Progress: job.Progress,
		Reason:   job.Reason,
		At:       at.UTC(),
	}
}

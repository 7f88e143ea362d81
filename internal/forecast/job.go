package forecast

import (
	"strings"
	"time"
)

type State string

const (
	StateSubmitted  State = "SUBMITTED"
	StateProcessing State = "PROCESSING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
	StateTimedOut   State = "TIMED_OUT"
	StateCancelled  State = "CANCELLED"
)

func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut, StateCancelled:
		return true
	default:
		return false
	}
}

func (s State) Valid() bool {
	switch s {
	case StateSubmitted, StateProcessing, StateCompleted, StateFailed, StateTimedOut, StateCancelled:
		return true
	default:
		return false
	}
}

// Reason prefix for jobs that stopped because status polling kept failing.
const ReasonPollingExhausted = "PollingExhausted"

// Job is the local view of one external forecasting job. It is a value type;
// the poller returns an updated copy on every transition.
type Job struct {
	ID       string `json:"job_id"`
	State    State  `json:"state"`
	Progress *int   `json:"progress,omitempty"`
	Attempts int    `json:"attempts"`
	// Polls counts consecutive non-terminal responses that left State unchanged.
	// It drives the poll backoff and is not persisted.
	Polls             int        `json:"-"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	Reason            string     `json:"reason,omitempty"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	LastPolledAt      *time.Time `json:"last_polled_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

// RemoteStatus is what the forecasting service reports for a job.
type RemoteStatus struct {
	Status   string `json:"status"`
	Progress *int   `json:"progress,omitempty"`
	Message  string `json:"error,omitempty"`
}

type RemotePhase int

const (
	PhaseUnknown RemotePhase = iota
	PhaseQueued
	PhaseRunning
	PhaseSucceeded
	PhaseFailed
	PhaseCancelled
)

// Phase folds the service's status vocabulary onto the phases the state machine understands.
func (r RemoteStatus) Phase() RemotePhase {
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case "queued", "pending", "submitted", "accepted":
		return PhaseQueued
	case "processing", "running", "started", "in_progress":
		return PhaseRunning
	case "completed", "succeeded", "success", "done":
		return PhaseSucceeded
	case "failed", "error", "errored":
		return PhaseFailed
	case "cancelled", "canceled":
		return PhaseCancelled
	default:
		return PhaseUnknown
	}
}

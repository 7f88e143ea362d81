// Package poller owns the forecast job lifecycle.
//
// Step is a pure transition function over forecast.Job; Runner feeds it poll
// responses, timer expiries and cancellation and carries out the returned Action.
package poller

import (
	"errors"
	"fmt"
	"time"

	"github.com/eddykim0118/kivo/internal/forecast"
)

type EventKind int

const (
	// EventStatus carries a status the forecasting service reported.
	EventStatus EventKind = iota + 1
	// EventPollError is a transport failure or server error while polling.
	EventPollError
	EventDeadline
	EventCancel
)

type Event struct {
	Kind   EventKind
	At     time.Time
	Status forecast.RemoteStatus
	Err    error
	Reason string
}

type ActionKind int

const (
	ActionPoll ActionKind = iota + 1
	ActionFetchResult
	ActionStop
)

type Action struct {
	Kind  ActionKind
	Delay time.Duration
}

const (
	reasonCompleted       = "forecast completed"
	reasonRemoteFailed    = "forecast job failed"
	reasonRemoteCancelled = "cancelled by forecasting service"
	reasonUserCancelled   = "cancelled by user"
)

// Step applies one event to job and returns the next job value and what to do next.
// Terminal jobs are returned unchanged with ActionStop.
func Step(job forecast.Job, ev Event, p Policy) (forecast.Job, Action) {
	if job.State.Terminal() {
		return job, Action{Kind: ActionStop}
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	switch ev.Kind {
	case EventCancel:
		return finish(job, forecast.StateCancelled, orDefault(ev.Reason, reasonUserCancelled), at), stop()

	case EventDeadline:
		return finish(job, forecast.StateTimedOut, timeoutReason(p), at), stop()

	case EventPollError:
		job.LastPolledAt = &at
		if errors.Is(ev.Err, forecast.ErrStatusRejected) {
			return finish(job, forecast.StateFailed, ev.Err.Error(), at), stop()
		}
		return pollFailed(job, ev.Err, at, p)

	case EventStatus:
		job.LastPolledAt = &at
		phase := ev.Status.Phase()
		if phase == forecast.PhaseUnknown {
			return pollFailed(job, fmt.Errorf("unrecognized job status %q", ev.Status.Status), at, p)
		}
		job.ConsecutiveErrors = 0
		if ev.Status.Progress != nil {
			progress := clampProgress(*ev.Status.Progress)
			job.Progress = &progress
		}

		prev := job.State
		switch phase {
		case forecast.PhaseSucceeded:
			full := 100
			job.Progress = &full
			return finish(job, forecast.StateCompleted, reasonCompleted, at), Action{Kind: ActionFetchResult}
		case forecast.PhaseFailed:
			return finish(job, forecast.StateFailed, orDefault(ev.Status.Message, reasonRemoteFailed), at), stop()
		case forecast.PhaseCancelled:
			return finish(job, forecast.StateCancelled, orDefault(ev.Status.Message, reasonRemoteCancelled), at), stop()
		case forecast.PhaseQueued:
			// The service is the source of truth, even if it moved the job back to its queue.
			job.State = forecast.StateSubmitted
		case forecast.PhaseRunning:
			if job.State == forecast.StateProcessing {
				job.Attempts++
			}
			job.State = forecast.StateProcessing
		}
		if job.State == prev {
			job.Polls++
		} else {
			job.Polls = 0
		}
		if p.expired(job.SubmittedAt, at) {
			return finish(job, forecast.StateTimedOut, timeoutReason(p), at), stop()
		}
		return job, Action{Kind: ActionPoll, Delay: p.Delay(job.Polls)}
	}

	return job, Action{Kind: ActionPoll, Delay: p.Delay(job.Polls)}
}

func pollFailed(job forecast.Job, err error, at time.Time, p Policy) (forecast.Job, Action) {
	job.ConsecutiveErrors++
	if p.MaxTransientFailures > 0 && job.ConsecutiveErrors >= p.MaxTransientFailures {
		reason := fmt.Sprintf("%s: %d consecutive poll failures", forecast.ReasonPollingExhausted, job.ConsecutiveErrors)
		if err != nil {
			reason += ": " + err.Error()
		}
		return finish(job, forecast.StateFailed, reason, at), stop()
	}
	if p.expired(job.SubmittedAt, at) {
		return finish(job, forecast.StateTimedOut, timeoutReason(p), at), stop()
	}
	return job, Action{Kind: ActionPoll, Delay: p.Delay(job.Polls + job.ConsecutiveErrors)}
}

func finish(job forecast.Job, state forecast.State, reason string, at time.Time) forecast.Job {
	job.State = state
	job.Reason = reason
	job.FinishedAt = &at
	return job
}

func stop() Action { return Action{Kind: ActionStop} }

func timeoutReason(p Policy) string {
	return fmt.Sprintf("no terminal status within %s", p.Timeout)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func clampProgress(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

package poller

import (
	"context"
	"sync"
	"time"

	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/platform/logger"
)

type StatusSource interface {
	Status(ctx context.Context, jobID string) (forecast.RemoteStatus, error)
}

type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type systemClock struct{}

func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }
func (systemClock) NewTimer(d time.Duration) Timer {
	return &systemTimer{t: time.NewTimer(d)}
}

type systemTimer struct{ t *time.Timer }

func (s *systemTimer) C() <-chan time.Time { return s.t.C }
func (s *systemTimer) Stop() bool          { return s.t.Stop() }

// Observer sees every job value Step produces, in order.
type Observer func(prev, next forecast.Job)

// CancelToken stops one polling loop. It is safe to trip from any goroutine, more than once.
type CancelToken struct {
	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	reason string
}

func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel reports whether this call tripped the token.
func (t *CancelToken) Cancel(reason string) bool {
	tripped := false
	t.once.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.mu.Unlock()
		close(t.done)
		tripped = true
	})
	return tripped
}

func (t *CancelToken) Done() <-chan struct{} { return t.done }

func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *CancelToken) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

type Runner struct {
	log      *logger.Logger
	source   StatusSource
	clock    Clock
	policy   Policy
	observer Observer
}

type RunnerOption func(*Runner)

func WithClock(c Clock) RunnerOption       { return func(r *Runner) { r.clock = c } }
func WithObserver(o Observer) RunnerOption { return func(r *Runner) { r.observer = o } }

func NewRunner(log *logger.Logger, source StatusSource, policy Policy, opts ...RunnerOption) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{
		log:    log.With("component", "JobPoller"),
		source: source,
		clock:  SystemClock(),
		policy: policy,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Policy() Policy { return r.policy }

// Run polls until job reaches a terminal state, the token is tripped or ctx ends.
// When ctx ends first the job is returned as last observed, still non-terminal, so a
// later process can resume it. No poll is issued once the token is tripped.
func (r *Runner) Run(ctx context.Context, job forecast.Job, token *CancelToken) forecast.Job {
	if job.State.Terminal() {
		return job
	}
	if token == nil {
		token = NewCancelToken()
	}

	pollCtx, abort := context.WithCancel(ctx)
	defer abort()
	go func() {
		select {
		case <-token.Done():
			abort()
		case <-pollCtx.Done():
		}
	}()

	if job.Polls < job.Attempts {
		job.Polls = job.Attempts
	}

	deadline := r.clock.NewTimer(r.untilDeadline(job))
	defer deadline.Stop()
	wait := r.clock.NewTimer(r.policy.Delay(job.Polls))
	defer func() { wait.Stop() }()

	log := r.log.With("job_id", job.ID)
	for {
		if token.Cancelled() {
			return r.apply(job, Event{Kind: EventCancel, At: r.clock.Now(), Reason: token.Reason()})
		}
		select {
		case <-token.Done():
			continue
		case <-ctx.Done():
			log.Info("Polling interrupted", "state", job.State, "attempts", job.Attempts)
			return job
		case <-deadline.C():
			if token.Cancelled() {
				continue
			}
			return r.apply(job, Event{Kind: EventDeadline, At: r.clock.Now()})
		case <-wait.C():
		}
		if token.Cancelled() {
			continue
		}
		if ctx.Err() != nil {
			return job
		}

		status, err := r.source.Status(pollCtx, job.ID)
		if token.Cancelled() {
			continue
		}
		if ctx.Err() != nil {
			return job
		}

		ev := Event{Kind: EventStatus, At: r.clock.Now(), Status: status}
		if err != nil {
			log.Warn("Status poll failed", "error", err, "consecutive_errors", job.ConsecutiveErrors+1)
			ev = Event{Kind: EventPollError, At: ev.At, Err: err}
		}
		next, action := Step(job, ev, r.policy)
		r.notify(job, next)
		job = next

		switch action.Kind {
		case ActionPoll:
			wait.Stop()
			wait = r.clock.NewTimer(action.Delay)
		default:
			log.Info("Polling finished", "state", job.State, "attempts", job.Attempts, "reason", job.Reason)
			return job
		}
	}
}

func (r *Runner) apply(job forecast.Job, ev Event) forecast.Job {
	next, _ := Step(job, ev, r.policy)
	r.notify(job, next)
	r.log.Info("Polling finished", "job_id", next.ID, "state", next.State, "reason", next.Reason)
	return next
}

func (r *Runner) notify(prev, next forecast.Job) {
	if r.observer != nil {
		r.observer(prev, next)
	}
}

func (r *Runner) untilDeadline(job forecast.Job) time.Duration {
	if r.policy.Timeout <= 0 {
		// Effectively never; the timer still needs a channel to select on.
		return 100 * 365 * 24 * time.Hour
	}
	start := job.SubmittedAt
	if start.IsZero() {
		start = r.clock.Now()
	}
	d := start.Add(r.policy.Timeout).Sub(r.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

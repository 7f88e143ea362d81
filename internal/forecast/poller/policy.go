package poller

import "time"

// Policy bounds how a job is polled. The zero value is not usable; start from DefaultPolicy.
type Policy struct {
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	MaxTransientFailures int
	Timeout              time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:            time.Second,
		MaxDelay:             30 * time.Second,
		MaxTransientFailures: 5,
		Timeout:              10 * time.Minute,
	}
}

// Delay is BaseDelay doubled n times, capped at MaxDelay. It never decreases as n grows.
func (p Policy) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := p.BaseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 0; i < n; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p Policy) expired(submittedAt, now time.Time) bool {
	return p.Timeout > 0 && !submittedAt.IsZero() && !now.Before(submittedAt.Add(p.Timeout))
}

package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eddykim0118/kivo/internal/platform/logger"
)

const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"

	ComponentAvailable   = "available"
	ComponentUnavailable = "unavailable"
)

// Pinger is anything the health report can probe: the database, redis, the
// bucket, the forecasting service.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type ComponentHealth struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type ServicesHealth struct {
	Status       string                     `json:"status"`
	MLServiceURL string                     `json:"ml_service_url,omitempty"`
	Components   map[string]ComponentHealth `json:"components"`
	CheckedAt    time.Time                  `json:"checked_at"`
}

type HealthService interface {
	Check(ctx context.Context) *ServicesHealth
}

type healthService struct {
	log     *logger.Logger
	mlURL   string
	timeout time.Duration
	checks  map[string]Pinger
}

// NewHealthService probes each named component concurrently. A nil pinger is
// skipped, so optional components can be passed unconditionally.
func NewHealthService(baseLog *logger.Logger, mlURL string, checks map[string]Pinger) HealthService {
	active := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			active[name] = p
		}
	}
	return &healthService{
		log:     baseLog.With("service", "HealthService"),
		mlURL:   mlURL,
		timeout: 3 * time.Second,
		checks:  active,
	}
}

func (s *healthService) Check(ctx context.Context) *ServicesHealth {
	results := make([]ComponentHealth, 0, len(s.checks))
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
		results = append(results, ComponentHealth{})
	}

	var g errgroup.Group
	for i, name := range names {
		p := s.checks[name]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			start := time.Now()
			err := p.Ping(cctx)
			ch := ComponentHealth{Status: ComponentAvailable, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				ch.Status = ComponentUnavailable
				ch.Error = err.Error()
				s.log.Warn("Health check failed", "component", name, "error", err)
			}
			results[i] = ch
			return nil
		})
	}
	_ = g.Wait()

	out := &ServicesHealth{
		Status:       HealthHealthy,
		MLServiceURL: s.mlURL,
		Components:   make(map[string]ComponentHealth, len(names)),
		CheckedAt:    time.Now().UTC(),
	}
	for i, name := range names {
		out.Components[name] = results[i]
		if results[i].Status != ComponentAvailable {
			out.Status = HealthDegraded
		}
	}
	return out
}

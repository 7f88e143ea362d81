package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/eddykim0118/kivo/internal/config"
	"github.com/eddykim0118/kivo/internal/forecast/poller"
	"github.com/eddykim0118/kivo/internal/ingest/roles"
	"github.com/eddykim0118/kivo/internal/ingest/validate"
	"github.com/eddykim0118/kivo/internal/observability"
	"github.com/eddykim0118/kivo/internal/platform/logger"
	"github.com/eddykim0118/kivo/internal/services"
)

type Services struct {
	Auth     services.AuthService
	Upload   services.UploadService
	Forecast services.ForecastService
	Health   services.HealthService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg *config.Config, reposet Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	patterns, err := loadRolePatterns(log, cfg.Upload.PatternsFile)
	if err != nil {
		return Services{}, err
	}
	validator := validate.New(validate.Constraints{MaxBytes: cfg.Upload.MaxBytes})
	policy := poller.Policy{
		BaseDelay:            cfg.Polling.BaseDelay,
		MaxDelay:             cfg.Polling.MaxDelay,
		MaxTransientFailures: cfg.Polling.MaxTransientFailures,
		Timeout:              cfg.Polling.Timeout,
	}

	authService := services.NewAuthService(log, cfg.Auth)
	uploadService := services.NewUploadService(
		log,
		validator,
		patterns,
		cfg.Upload.PreviewRows,
		clients.Bucket,
		reposet.Location,
		reposet.UploadedFile,
		services.WithUploadMetrics(metrics),
	)
	forecastService := services.NewForecastService(
		log,
		validator,
		clients.ML,
		clients.Bucket,
		clients.Guard,
		policy,
		reposet.UploadedFile,
		reposet.ForecastJob,
		reposet.ForecastResult,
		clients.Bus,
		services.WithForecastMetrics(metrics),
	)

	checks := map[string]services.Pinger{
		"database": services.PingFunc(func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
		"object_storage": clients.Bucket,
		"ml_service":     services.PingFunc(clients.ML.Health),
	}
	if clients.Redis != nil {
		rdb := clients.Redis
		checks["redis"] = services.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	healthService := services.NewHealthService(log, clients.ML.BaseURL(), checks)

	return Services{
		Auth:     authService,
		Upload:   uploadService,
		Forecast: forecastService,
		Health:   healthService,
	}, nil
}

// loadRolePatterns reads the column-name patterns file when one is configured.
func loadRolePatterns(log *logger.Logger, path string) (roles.Patterns, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return roles.DefaultPatterns(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open role patterns %s: %w", path, err)
	}
	defer f.Close()
	patterns, err := roles.LoadPatterns(f)
	if err != nil {
		return nil, fmt.Errorf("load role patterns %s: %w", path, err)
	}
	log.Info("Loaded role patterns", "path", path, "rules", len(patterns))
	return patterns, nil
}

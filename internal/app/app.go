package app

import (
	"context"
	"fmt"
	"time"

	"github.com/eddykim0118/kivo/internal/config"
	"github.com/eddykim0118/kivo/internal/data/db"
	"github.com/eddykim0118/kivo/internal/data/repos"
	khttp "github.com/eddykim0118/kivo/internal/http"
	"github.com/eddykim0118/kivo/internal/observability"
	"github.com/eddykim0118/kivo/internal/platform/logger"
	"github.com/eddykim0118/kivo/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	Cfg      *config.Config
	DB       *db.Service
	Server   *khttp.Server
	Repos    Repos
	Clients  Clients
	Services Services
	Hub      *realtime.Hub
	Metrics  *observability.Metrics

	shutdownOTel func(context.Context) error
}

// NewLogger builds the process logger from the log section of cfg.
func NewLogger(cfg config.LogConfig) (*logger.Logger, error) {
	return logger.NewWithOptions(logger.Options{
		Mode:     cfg.Mode,
		Level:    cfg.Level,
		Redact:   cfg.Redact,
		HashSalt: cfg.HashSalt,
	})
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger, version string) (*App, error) {
	shutdownOTel := observability.InitOTel(ctx, log, cfg.OTel, version)

	dbs, err := db.NewService(cfg.Database, log)
	if err != nil {
		_ = shutdownOTel(ctx)
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		_ = dbs.Close()
		_ = shutdownOTel(ctx)
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	var metrics *observability.Metrics
	if cfg.HTTP.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbs.Close()
		_ = shutdownOTel(ctx)
		return nil, err
	}

	reposet := wireRepos(dbs.DB(), log)
	if err := seedLocations(ctx, reposet.Location, cfg.Upload.Locations, log); err != nil {
		clients.close()
		_ = dbs.Close()
		_ = shutdownOTel(ctx)
		return nil, err
	}
	serviceset, err := wireServices(dbs.DB(), log, cfg, reposet, clients, metrics)
	if err != nil {
		clients.close()
		_ = dbs.Close()
		_ = shutdownOTel(ctx)
		return nil, err
	}

	hub := realtime.NewHub(log)
	middleware := wireMiddleware(log, serviceset)
	handlerset := wireHandlers(log, serviceset, hub, cfg.Upload.MaxBytes)

	serviceName := ""
	if cfg.OTel.Enabled {
		serviceName = cfg.OTel.ServiceName
	}
	server := khttp.NewServer(cfg.HTTP, khttp.RouterConfig{
		Log:             log,
		ServiceName:     serviceName,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		MaxUploadBytes:  cfg.Upload.MaxBytes,
		Metrics:         metrics,
		AuthMiddleware:  middleware.Auth,
		HealthHandler:   handlerset.Health,
		UploadHandler:   handlerset.Upload,
		JobHandler:      handlerset.Job,
		RealtimeHandler: handlerset.Realtime,
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           dbs,
		Server:       server,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Hub:          hub,
		Metrics:      metrics,
		shutdownOTel: shutdownOTel,
	}, nil
}

// Run forwards job events to SSE clients, resumes in-flight jobs and serves
// HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}

	if err := a.Clients.Bus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
		return fmt.Errorf("start event forwarder: %w", err)
	}

	resumed, err := a.Services.Forecast.ResumeInFlight(ctx)
	if err != nil {
		a.Log.Error("Resume in-flight forecast jobs failed", "error", err)
	} else if resumed > 0 {
		a.Log.Info("Resumed in-flight forecast jobs", "count", resumed)
	}

	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTP.Addr)
	return a.Server.Run(ctx, a.Cfg.HTTP.ShutdownTimeout)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.Forecast != nil {
		a.Services.Forecast.Close()
	}
	a.Clients.close()
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	if a.shutdownOTel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownOTel(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}

// Migrate creates or updates the schema, seeds configured locations and exits.
func Migrate(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	dbs, err := db.NewService(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer dbs.Close()
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		return err
	}
	log.Info("Schema migrated", "driver", dbs.Driver())
	return seedLocations(ctx, repos.NewLocationRepo(dbs.DB(), log), cfg.Upload.Locations, log)
}

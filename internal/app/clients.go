package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/eddykim0118/kivo/internal/config"
	"github.com/eddykim0118/kivo/internal/forecast/mlclient"
	"github.com/eddykim0118/kivo/internal/forecast/poller"
	"github.com/eddykim0118/kivo/internal/platform/gcp"
	"github.com/eddykim0118/kivo/internal/platform/logger"
	"github.com/eddykim0118/kivo/internal/platform/redisx"
	"github.com/eddykim0118/kivo/internal/realtime/bus"
)

type Clients struct {
	Redis  *goredis.Client
	Bus    bus.Bus
	Guard  poller.Guard
	Bucket gcp.BucketService
	ML     *mlclient.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg *config.Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis: shared guard and event fan-out across replicas. Without it both stay in process.
	if cfg.Redis.Enabled {
		rdb, err := redisx.NewClient(ctx, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		b, err := bus.NewRedisBus(log, rdb, cfg.Redis.Channel)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
		out.Redis = rdb
		out.Bus = b
		out.Guard = poller.NewRedisGuard(rdb, "", cfg.Polling.Timeout+cfg.Polling.MaxDelay)
	} else {
		log.Warn("Redis disabled; single-flight guard and job events are process-local")
		out.Bus = bus.NewMemoryBus()
		out.Guard = poller.NewMemoryGuard()
	}

	// Gcs
	bucket, err := resolveBucketService(log, cfg.Storage)
	if err != nil {
		out.close()
		return Clients{}, err
	}
	out.Bucket = bucket

	// Forecasting service
	ml, err := mlclient.New(mlclient.Options{
		BaseURL:       cfg.ML.BaseURL,
		APIKey:        cfg.ML.APIKey,
		Timeout:       cfg.ML.Timeout,
		SubmitTimeout: cfg.ML.SubmitTimeout,
	})
	if err != nil {
		out.close()
		return Clients{}, fmt.Errorf("init ml client: %w", err)
	}
	out.ML = ml
	return out, nil
}

func (c Clients) close() {
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}

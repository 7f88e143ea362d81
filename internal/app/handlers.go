package app

import (
	httpH "github.com/eddykim0118/kivo/internal/http/handlers"
	httpMW "github.com/eddykim0118/kivo/internal/http/middleware"
	"github.com/eddykim0118/kivo/internal/platform/logger"
	"github.com/eddykim0118/kivo/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Upload   *httpH.UploadHandler
	Job      *httpH.JobHandler
	Realtime *httpH.RealtimeHandler
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireHandlers(log *logger.Logger, services Services, hub *realtime.Hub, maxUploadBytes int64) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(services.Health),
		Upload:   httpH.NewUploadHandler(log, services.Upload, maxUploadBytes),
		Job:      httpH.NewJobHandler(services.Forecast),
		Realtime: httpH.NewRealtimeHandler(log, hub),
	}
}

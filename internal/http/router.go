package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/eddykim0118/kivo/internal/http/handlers"
	httpMW "github.com/eddykim0118/kivo/internal/http/middleware"
	"github.com/eddykim0118/kivo/internal/observability"
	"github.com/eddykim0118/kivo/internal/platform/logger"
)

// multipartSlack is the room left above the file limit for form framing
// and the mapping fields.
const multipartSlack = 1 << 20

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	MaxUploadBytes int64
	Metrics        *observability.Metrics

	AuthMiddleware  *httpMW.AuthMiddleware
	HealthHandler   *httpH.HealthHandler
	UploadHandler   *httpH.UploadHandler
	JobHandler      *httpH.JobHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))
	if cfg.MaxUploadBytes > 0 {
		r.Use(httpMW.LimitBody(cfg.MaxUploadBytes + multipartSlack))
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	if cfg.HealthHandler != nil {
		api.GET("/health", cfg.HealthHandler.APIHealth)
		api.GET("/services/health", cfg.HealthHandler.ServicesHealth)
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/events", cfg.RealtimeHandler.Stream)
		}

		// Uploads
		if cfg.UploadHandler != nil {
			protected.POST("/preview", cfg.UploadHandler.Preview)
			protected.POST("/upload", cfg.UploadHandler.Upload)
			protected.GET("/files", cfg.UploadHandler.ListFiles)
			protected.GET("/files/:id", cfg.UploadHandler.GetFile)
			protected.GET("/locations", cfg.UploadHandler.ListLocations)
		}

		// Forecast jobs
		if cfg.JobHandler != nil {
			protected.POST("/jobs", cfg.JobHandler.SubmitJob)
			protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
			protected.GET("/jobs/:id/result", cfg.JobHandler.GetResult)
			protected.POST("/jobs/:id/cancel", cfg.JobHandler.CancelJob)
			protected.GET("/results/:id", cfg.JobHandler.GetResult)
		}
	}

	return r
}

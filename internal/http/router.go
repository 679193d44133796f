package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/pointgen-backend/internal/http/handlers"
	httpMW "github.com/yungbote/pointgen-backend/internal/http/middleware"
	"github.com/yungbote/pointgen-backend/internal/observability"
	"github.com/yungbote/pointgen-backend/internal/platform/ctxutil"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware *httpMW.AuthMiddleware

	GenerateHandler *httpH.GenerateHandler
	ModelsHandler   *httpH.ModelsHandler
	DownloadHandler *httpH.DownloadHandler
	HealthHandler   *httpH.HealthHandler

	Metrics     *observability.Metrics
	MetricsPath string

	// TracingService names the otelgin server spans; empty disables HTTP tracing.
	TracingService string

	CORSOrigins     []string
	MaxRequestBytes int64

	// RateLimitPerAddr of zero disables rate limiting on generation routes.
	RateLimitPerAddr int
	RateLimitWindow  time.Duration
	// Background bounds goroutines started by middleware.
	Background context.Context
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingService != "" {
		r.Use(otelgin.Middleware(cfg.TracingService))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.LimitBody(cfg.MaxRequestBytes))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/", cfg.HealthHandler.Info)
		r.GET("/health", cfg.HealthHandler.Health)
		r.GET("/ready", cfg.HealthHandler.Ready)
	}

	// Metrics
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.Metrics.Handler()))
	}

	// Generation (protected)
	if cfg.GenerateHandler != nil {
		gen := r.Group("/generate")
		if cfg.AuthMiddleware != nil {
			gen.Use(cfg.AuthMiddleware.RequireAuth())
		}
		if cfg.RateLimitPerAddr > 0 {
			gen.Use(httpMW.RateLimit(ctxutil.Default(cfg.Background), cfg.RateLimitPerAddr, cfg.RateLimitWindow))
		}
		gen.POST("/text", cfg.GenerateHandler.GenerateText)
		gen.POST("/image", cfg.GenerateHandler.GenerateImage)
	}

	// Catalog
	if cfg.ModelsHandler != nil {
		r.GET("/user/:id/models", cfg.ModelsHandler.ListUserModels)
	}

	// Local downloads
	if cfg.DownloadHandler != nil {
		r.GET("/download/:name", cfg.DownloadHandler.DownloadFlat)
		r.HEAD("/download/:name", cfg.DownloadHandler.DownloadFlat)
		r.GET("/download/:name/:filename", cfg.DownloadHandler.DownloadOwned)
		r.HEAD("/download/:name/:filename", cfg.DownloadHandler.DownloadOwned)
	}

	return r
}

package app

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/pointgen-backend/internal/auth"
	"github.com/yungbote/pointgen-backend/internal/config"
	"github.com/yungbote/pointgen-backend/internal/http"
	httpH "github.com/yungbote/pointgen-backend/internal/http/handlers"
	httpMW "github.com/yungbote/pointgen-backend/internal/http/middleware"
	"github.com/yungbote/pointgen-backend/internal/observability"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
	"github.com/yungbote/pointgen-backend/internal/readiness"
	"github.com/yungbote/pointgen-backend/internal/storage"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Generate *httpH.GenerateHandler
	Models   *httpH.ModelsHandler
	Download *httpH.DownloadHandler
}

func wireHandlers(
	log *logger.Logger,
	cfg *config.Config,
	svc Services,
	gate *readiness.Gate,
	gateway *storage.Gateway,
	guard *auth.Guard,
) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(gate, gateway, guard, cfg.IsProduction(), Version),
		Generate: httpH.NewGenerateHandler(log, svc.Generation, cfg.Generation.MaxImageBytes),
		Models:   httpH.NewModelsHandler(svc.Catalog),
		Download: httpH.NewDownloadHandler(log, gateway.Local()),
	}
}

func wireMiddleware(log *logger.Logger, guard *auth.Guard) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, guard),
	}
}

func wireRouter(
	ctx context.Context,
	log *logger.Logger,
	cfg *config.Config,
	handlers Handlers,
	middleware Middleware,
	metrics *observability.Metrics,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	rc := http.RouterConfig{
		Log:             log,
		AuthMiddleware:  middleware.Auth,
		GenerateHandler: handlers.Generate,
		ModelsHandler:   handlers.Models,
		DownloadHandler: handlers.Download,
		HealthHandler:   handlers.Health,
		CORSOrigins:     cfg.HTTP.CORSAllowedOrigins,
		MaxRequestBytes: cfg.HTTP.MaxRequestBytes,
		Background:      ctx,
	}
	if cfg.Observability.MetricsEnabled {
		rc.Metrics = metrics
		rc.MetricsPath = cfg.Observability.MetricsPath
	}
	if cfg.Observability.OTelEnabled {
		rc.TracingService = cfg.Observability.ServiceName
	}
	if cfg.RateLimit.Enabled {
		rc.RateLimitPerAddr = cfg.RateLimit.PerIP
		rc.RateLimitWindow = cfg.RateLimit.Window.Duration
	}
	return http.NewRouter(rc)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/pointgen-backend/internal/auth"
	"github.com/yungbote/pointgen-backend/internal/config"
	"github.com/yungbote/pointgen-backend/internal/http"
	"github.com/yungbote/pointgen-backend/internal/observability"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
	"github.com/yungbote/pointgen-backend/internal/readiness"
	"github.com/yungbote/pointgen-backend/internal/storage"
)

// Version is stamped at build time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

type App struct {
	Log      *logger.Logger
	Cfg      *config.Config
	Metrics  *observability.Metrics
	Gate     *readiness.Gate
	Storage  *storage.Gateway
	Services Services
	Loader   *ModelLoader
	Server   *http.Server

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

// New wires the whole process. Nothing here blocks on model loading; Run starts that in the
// background so the HTTP surface answers health checks immediately.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log.Info("Configuration loaded", "env", cfg.Env, "addr", cfg.HTTP.Addr, "engine", cfg.Engine.Type, "remote_storage", cfg.Storage.RemoteEnabled)

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Observability.OTelEnabled,
		ServiceName: cfg.Observability.ServiceName,
		Environment: cfg.Env,
		Version:     Version,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Headers:     cfg.Observability.OTLPHeaders,
		Insecure:    cfg.Observability.OTLPInsecure,
		SampleRatio: cfg.Observability.SampleRatio,
	})

	metrics := observability.NewMetrics("pointgen")
	gate := readiness.NewGate(requiredCapabilities()...)
	metrics.SetReadiness(string(gate.State()), readinessStates...)

	eng, err := buildEngine(log, cfg.Engine)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	gateway, err := buildStorageGateway(ctx, log, cfg, metrics)
	if err != nil {
		log.Sync()
		return nil, err
	}

	svc, err := wireServices(log, cfg, gate, eng, gateway, metrics)
	if err != nil {
		_ = gateway.Close()
		log.Sync()
		return nil, err
	}

	guard := auth.NewGuard(cfg.Auth.SecretKey)
	bgCtx, cancel := context.WithCancel(context.Background())

	handlers := wireHandlers(log, cfg, svc, gate, gateway, guard)
	middleware := wireMiddleware(log, guard)
	router := wireRouter(bgCtx, log, cfg, handlers, middleware, metrics)

	server := http.NewServer(http.ServerConfig{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.Duration,
		IdleTimeout:       cfg.HTTP.IdleTimeout.Duration,
	}, router)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Metrics:      metrics,
		Gate:         gate,
		Storage:      gateway,
		Services:     svc,
		Loader:       NewModelLoader(log, eng, gate, metrics, cfg.Engine),
		Server:       server,
		cancel:       cancel,
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves HTTP and loads models concurrently until ctx is cancelled, then drains in-flight
// requests for at most the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return errors.New("app not initialized")
	}
	ln, err := net.Listen("tcp", a.Cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Cfg.HTTP.Addr, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", ln.Addr().String())
		return a.Server.Serve(ln)
	})

	g.Go(func() error {
		a.Loader.Load(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Log.Info("Shutting down HTTP server", "timeout", a.Cfg.HTTP.ShutdownTimeout.Duration)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	a.Close()
	return err
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.Cfg.HTTP.ShutdownTimeout.Duration; d > 0 {
		return d
	}
	return 30 * time.Second
}

// Close releases background workers, the storage tiers and the tracer. Safe to call twice.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Log.Warn("Storage close failed", "error", err)
		}
		a.Storage = nil
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("Tracer shutdown failed", "error", err)
		}
		cancel()
		a.otelShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

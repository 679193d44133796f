package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/pointgen-backend/internal/config"
	"github.com/yungbote/pointgen-backend/internal/engine"
	"github.com/yungbote/pointgen-backend/internal/engine/mock"
	"github.com/yungbote/pointgen-backend/internal/engine/workerhttp"
	"github.com/yungbote/pointgen-backend/internal/observability"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
	"github.com/yungbote/pointgen-backend/internal/readiness"
)

const (
	EngineTypeMock       = "mock"
	EngineTypeWorkerHTTP = "worker_http"
)

var readinessStates = []string{
	string(readiness.StateUnloaded),
	string(readiness.StateLoading),
	string(readiness.StateReady),
	string(readiness.StateFailed),
}

func buildEngine(log *logger.Logger, cfg config.EngineConfig) (engine.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", EngineTypeMock:
		log.Warn("Using mock inference engine; generated geometry is synthetic", "points", cfg.MockPoints)
		return mock.New(cfg.MockPoints), nil
	case EngineTypeWorkerHTTP:
		eng, err := workerhttp.New(cfg)
		if err != nil {
			return nil, err
		}
		log.Info("Using model worker", "base_url", cfg.BaseURL)
		return eng, nil
	default:
		return nil, fmt.Errorf("unknown engine type %q", cfg.Type)
	}
}

// requiredCapabilities are the capabilities without which the service never becomes Ready.
func requiredCapabilities() []engine.Capability {
	return []engine.Capability{engine.CapabilityText, engine.CapabilityMesh}
}

// ModelLoader drives the readiness gate through one loading phase.
type ModelLoader struct {
	log         *logger.Logger
	engine      engine.Engine
	gate        *readiness.Gate
	metrics     *observability.Metrics
	enableImage bool
	timeout     time.Duration
}

func NewModelLoader(log *logger.Logger, eng engine.Engine, gate *readiness.Gate, metrics *observability.Metrics, cfg config.EngineConfig) *ModelLoader {
	return &ModelLoader{
		log:         log.With("component", "ModelLoader"),
		engine:      eng,
		gate:        gate,
		metrics:     metrics,
		enableImage: cfg.EnableImage,
		timeout:     cfg.LoadTimeout.Duration,
	}
}

// Load loads every capability concurrently and closes the loading phase. It returns the final
// gate state; a failed required capability is reported through the gate, not as an error.
func (l *ModelLoader) Load(ctx context.Context) readiness.State {
	l.gate.BeginLoading()
	l.metrics.SetReadiness(string(readiness.StateLoading), readinessStates...)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	caps := requiredCapabilities()
	if l.enableImage {
		caps = append(caps, engine.CapabilityImage)
	}

	start := time.Now()
	var g errgroup.Group
	for _, c := range caps {
		g.Go(func() error {
			capStart := time.Now()
			if err := l.engine.Load(ctx, c); err != nil {
				l.gate.CapabilityFailed(c, err)
				if c == engine.CapabilityImage {
					l.log.Warn("Optional capability failed to load; continuing without it", "capability", c, "error", err)
				} else {
					l.log.Error("Required capability failed to load", "capability", c, "error", err)
				}
				return nil
			}
			l.gate.CapabilityLoaded(c)
			l.log.Info("Capability loaded", "capability", c, "duration", time.Since(capStart))
			return nil
		})
	}
	_ = g.Wait()

	state := l.gate.Finish()
	l.metrics.SetReadiness(string(state), readinessStates...)
	if state == readiness.StateReady {
		l.log.Info("Models ready", "duration", time.Since(start))
	} else {
		l.log.Error("Model loading failed", "state", state, "error", l.gate.Cause())
	}
	return state
}

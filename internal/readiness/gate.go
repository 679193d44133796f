// Package readiness tracks whether the inference engine has finished loading, per capability.
package readiness

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/yungbote/pointgen-backend/internal/engine"
	"github.com/yungbote/pointgen-backend/internal/platform/apierr"
)

type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

var ErrNotReady = errors.New("models are not loaded yet")

// Gate is the process-wide readiness value. Required capabilities must all load for the gate to
// become Ready; an optional capability that fails to load is simply absent.
type Gate struct {
	mu       sync.RWMutex
	state    State
	required map[engine.Capability]bool
	loaded   map[engine.Capability]bool
	failures map[engine.Capability]error
	cause    error
}

func NewGate(required ...engine.Capability) *Gate {
	g := &Gate{
		state:    StateUnloaded,
		required: make(map[engine.Capability]bool, len(required)),
		loaded:   map[engine.Capability]bool{},
		failures: map[engine.Capability]error{},
	}
	for _, c := range required {
		g.required[c] = true
	}
	return g
}

// BeginLoading moves Unloaded to Loading. Any other state is left alone.
func (g *Gate) BeginLoading() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateUnloaded {
		g.state = StateLoading
	}
}

func (g *Gate) CapabilityLoaded(c engine.Capability) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateFailed {
		return
	}
	g.loaded[c] = true
	delete(g.failures, c)
}

// CapabilityFailed records a load error. A required capability failing makes the gate Failed
// and retains err as the cause.
func (g *Gate) CapabilityFailed(c engine.Capability, err error) {
	if err == nil {
		err = fmt.Errorf("capability %s failed to load", c)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[c] = err
	delete(g.loaded, c)
	if g.required[c] && g.state != StateFailed {
		g.state = StateFailed
		g.cause = fmt.Errorf("load %s: %w", c, err)
	}
}

// Finish closes the loading phase: Ready when every required capability loaded, Failed otherwise.
func (g *Gate) Finish() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateFailed || g.state == StateReady {
		return g.state
	}
	var missing []string
	for c := range g.required {
		if !g.loaded[c] {
			missing = append(missing, string(c))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		g.state = StateFailed
		g.cause = fmt.Errorf("required capabilities not loaded: %v", missing)
		return g.state
	}
	g.state = StateReady
	return g.state
}

func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Cause is the error that moved the gate to Failed, or nil.
func (g *Gate) Cause() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cause
}

// IsReady is true only in state Ready and only for capabilities that loaded.
func (g *Gate) IsReady(c engine.Capability) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == StateReady && g.loaded[c]
}

// Check maps the gate to the error a caller of capability c should see: ServiceUnavailable
// while the gate is not Ready, CapabilityUnavailable when c itself never loaded.
func (g *Gate) Check(c engine.Capability) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state != StateReady {
		return apierr.ServiceUnavailable("models_not_ready", fmt.Errorf("%w (state=%s)", ErrNotReady, g.state))
	}
	if !g.loaded[c] {
		return apierr.CapabilityUnavailable(string(c)+"_unavailable", fmt.Errorf("%s capability is not available", c))
	}
	return nil
}

type Snapshot struct {
	State        State
	Capabilities map[engine.Capability]bool
	Cause        error
}

func (g *Gate) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	caps := make(map[engine.Capability]bool, len(engine.AllCapabilities))
	for _, c := range engine.AllCapabilities {
		caps[c] = g.state == StateReady && g.loaded[c]
	}
	return Snapshot{State: g.state, Capabilities: caps, Cause: g.cause}
}

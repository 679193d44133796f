package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/pointgen-backend/internal/auth"
	"github.com/yungbote/pointgen-backend/internal/engine"
	"github.com/yungbote/pointgen-backend/internal/readiness"
)

const serviceName = "Point Cloud Generation Server"

// StorageStatus is what health reporting needs from the storage gateway.
type StorageStatus interface {
	RemoteEnabled() bool
	Describe() string
}

type HealthHandler struct {
	gate       *readiness.Gate
	storage    StorageStatus
	guard      *auth.Guard
	production bool
	version    string
}

func NewHealthHandler(gate *readiness.Gate, storage StorageStatus, guard *auth.Guard, production bool, version string) *HealthHandler {
	return &HealthHandler{gate: gate, storage: storage, guard: guard, production: production, version: version}
}

// GET /
func (h *HealthHandler) Info(c *gin.Context) {
	features := []string{"text-to-3d"}
	if h.gate.IsReady(engine.CapabilityImage) {
		features = append(features, "image-to-3d")
	}
	features = append(features, "user-storage")

	authStatus := "Not configured"
	if h.guard.Configured() {
		authStatus = "Bearer token required"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         serviceName,
		"version":        h.version,
		"models_ready":   h.gate.State() == readiness.StateReady,
		"storage":        h.storage.Describe(),
		"features":       features,
		"authentication": authStatus,
	})
}

// GET /health always answers 200; status carries the readiness state.
func (h *HealthHandler) Health(c *gin.Context) {
	snap := h.gate.Snapshot()
	status := "loading"
	switch snap.State {
	case readiness.StateReady:
		status = "healthy"
	case readiness.StateFailed:
		status = "failed"
	}
	caps := make(map[string]bool, len(snap.Capabilities))
	for k, v := range snap.Capabilities {
		caps[string(k)] = v
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        status,
		"models_ready":  snap.State == readiness.StateReady,
		"storage_ready": h.storage.RemoteEnabled(),
		"capabilities":  caps,
		"production":    h.production,
	})
}

// GET /ready is the readiness probe: 200 only once every required model has loaded.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.gate.State() != readiness.StateReady {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "state": h.gate.State()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

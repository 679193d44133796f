// Package engine is the boundary to the point-cloud inference models. Implementations are
// treated as single shared stateful resources; callers serialize access per capability.
package engine

import (
	"context"

	"github.com/yungbote/pointgen-backend/internal/domain/geometry"
)

// Capability names one independently loaded sub-model.
type Capability string

const (
	CapabilityText  Capability = "text"
	CapabilityImage Capability = "image"
	CapabilityMesh  Capability = "mesh"
)

var AllCapabilities = []Capability{CapabilityText, CapabilityImage, CapabilityMesh}

type SampleOptions struct {
	// NumSamples is the batch size; only 1 is supported today.
	NumSamples int
	// Seed of 0 lets the engine choose.
	Seed int64
}

type Engine interface {
	// Load blocks until c is ready to serve, or returns why it cannot be.
	Load(ctx context.Context, c Capability) error
	SampleText(ctx context.Context, prompt string, opts SampleOptions) (*geometry.PointCloud, error)
	SampleImage(ctx context.Context, image []byte, contentType string, opts SampleOptions) (*geometry.PointCloud, error)
	ReconstructMesh(ctx context.Context, pc *geometry.PointCloud, gridSize int) (*geometry.Mesh, error)
}

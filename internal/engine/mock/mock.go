package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"

	"github.com/yungbote/pointgen-backend/internal/domain/geometry"
	"github.com/yungbote/pointgen-backend/internal/engine"
)

// Engine is a deterministic in-process engine. The same input always yields the same cloud.
type Engine struct {
	Points int
	// Unavailable lists capabilities whose Load fails.
	Unavailable map[engine.Capability]bool
}

func New(points int) *Engine {
	if points <= 0 {
		points = 1024
	}
	return &Engine{Points: points}
}

func (e *Engine) Load(ctx context.Context, c engine.Capability) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Unavailable[c] {
		return fmt.Errorf("mock: capability %s disabled", c)
	}
	return nil
}

func (e *Engine) SampleText(ctx context.Context, prompt string, opts engine.SampleOptions) (*geometry.PointCloud, error) {
	if prompt == "" {
		return nil, errors.New("mock: empty prompt")
	}
	return e.sample(ctx, []byte("text\n"+prompt), opts.Seed)
}

func (e *Engine) SampleImage(ctx context.Context, image []byte, contentType string, opts engine.SampleOptions) (*geometry.PointCloud, error) {
	if len(image) == 0 {
		return nil, errors.New("mock: empty image")
	}
	return e.sample(ctx, append([]byte("image\n"+contentType+"\n"), image...), opts.Seed)
}

func (e *Engine) sample(ctx context.Context, seedInput []byte, seed int64) (*geometry.PointCloud, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := sha256.Sum256(seedInput)
	s := int64(binary.LittleEndian.Uint64(h[:8])) ^ seed
	rng := rand.New(rand.NewSource(s))

	n := e.Points
	pc := &geometry.PointCloud{
		Coords:   make([]geometry.Vec3, n),
		Channels: geometry.Channels{"R": make([]float32, n), "G": make([]float32, n), "B": make([]float32, n)},
	}
	base := [3]float32{float32(h[8]) / 255, float32(h[9]) / 255, float32(h[10]) / 255}
	for i := 0; i < n; i++ {
		pc.Coords[i] = geometry.Vec3{
			rng.Float32() - 0.5,
			rng.Float32() - 0.5,
			rng.Float32() - 0.5,
		}
		for k, name := range geometry.RGB {
			v := base[k] + (rng.Float32()-0.5)*0.1
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			pc.Channels[name][i] = v
		}
	}
	return pc, nil
}

// ReconstructMesh returns the axis-aligned bounding box of pc as 12 triangles, colored with the
// cloud's mean color.
func (e *Engine) ReconstructMesh(ctx context.Context, pc *geometry.PointCloud, gridSize int) (*geometry.Mesh, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pc.Len() == 0 {
		return nil, errors.New("mock: empty point cloud")
	}
	if gridSize <= 0 {
		return nil, fmt.Errorf("mock: invalid grid size %d", gridSize)
	}

	lo, hi := pc.Coords[0], pc.Coords[0]
	for _, p := range pc.Coords[1:] {
		for a := 0; a < 3; a++ {
			if p[a] < lo[a] {
				lo[a] = p[a]
			}
			if p[a] > hi[a] {
				hi[a] = p[a]
			}
		}
	}

	verts := make([]geometry.Vec3, 0, 8)
	for i := 0; i < 8; i++ {
		var v geometry.Vec3
		for a := 0; a < 3; a++ {
			if i&(1<<a) != 0 {
				v[a] = hi[a]
			} else {
				v[a] = lo[a]
			}
		}
		verts = append(verts, v)
	}
	faces := []geometry.Face{
		{0, 2, 1}, {1, 2, 3}, // z-
		{4, 5, 6}, {5, 7, 6}, // z+
		{0, 1, 4}, {1, 5, 4}, // y-
		{2, 6, 3}, {3, 6, 7}, // y+
		{0, 4, 2}, {2, 4, 6}, // x-
		{1, 3, 5}, {3, 7, 5}, // x+
	}

	m := &geometry.Mesh{Verts: verts, Faces: faces}
	if pc.Channels.HasRGB() {
		m.VertexChannels = geometry.Channels{}
		for _, name := range geometry.RGB {
			var sum float32
			for _, v := range pc.Channels[name] {
				sum += v
			}
			mean := sum / float32(pc.Len())
			col := make([]float32, len(verts))
			for i := range col {
				col[i] = mean
			}
			m.VertexChannels[name] = col
		}
	}
	return m, nil
}

package geometry

import (
	"fmt"
	"sort"
)

// Vec3 is a single 3-D coordinate.
type Vec3 [3]float32

// Face is a triangle given as indices into a vertex sequence.
type Face [3]int

// Channels maps a channel name ("R", "G", "B", ...) to one intensity in [0,1] per point.
type Channels map[string][]float32

// RGB channel names, in write order.
var RGB = [3]string{"R", "G", "B"}

// HasRGB reports whether all three color channels are present.
func (c Channels) HasRGB() bool {
	if c == nil {
		return false
	}
	for _, k := range RGB {
		if _, ok := c[k]; !ok {
			return false
		}
	}
	return true
}

// Names returns the channel names sorted for deterministic iteration.
func (c Channels) Names() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c Channels) validate(n int, what string) error {
	for _, name := range c.Names() {
		if got := len(c[name]); got != n {
			return fmt.Errorf("%s channel %q has %d entries, want %d", what, name, got, n)
		}
	}
	return nil
}

type PointCloud struct {
	Coords   []Vec3
	Channels Channels
}

func (pc *PointCloud) Len() int {
	if pc == nil {
		return 0
	}
	return len(pc.Coords)
}

// Validate enforces that every channel carries exactly one value per coordinate.
func (pc *PointCloud) Validate() error {
	if pc == nil {
		return fmt.Errorf("point cloud is nil")
	}
	return pc.Channels.validate(len(pc.Coords), "point cloud")
}

type Mesh struct {
	Verts          []Vec3
	Faces          []Face
	VertexChannels Channels
}

// Validate enforces face indices within vertex bounds and per-vertex channel lengths.
func (m *Mesh) Validate() error {
	if m == nil {
		return fmt.Errorf("mesh is nil")
	}
	n := len(m.Verts)
	for i, f := range m.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return fmt.Errorf("mesh face %d references vertex %d (have %d vertices)", i, idx, n)
			}
		}
	}
	return m.VertexChannels.validate(n, "mesh vertex")
}

package workerhttp

import "github.com/yungbote/pointgen-backend/internal/domain/geometry"

type capabilityStatus struct {
	Capability string `json:"capability"`
	// State is "loading", "ready" or "failed".
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type sampleTextRequest struct {
	Prompt     string `json:"prompt"`
	NumSamples int    `json:"num_samples"`
	Seed       int64  `json:"seed,omitempty"`
}

type sampleImageRequest struct {
	ImageB64    string `json:"image_b64"`
	ContentType string `json:"content_type,omitempty"`
	NumSamples  int    `json:"num_samples"`
	Seed        int64  `json:"seed,omitempty"`
}

type pointCloudPayload struct {
	Coords   [][3]float32         `json:"coords"`
	Channels map[string][]float32 `json:"channels,omitempty"`
}

type meshRequest struct {
	PointCloud pointCloudPayload `json:"point_cloud"`
	GridSize   int               `json:"grid_size"`
}

type meshResponse struct {
	Verts          [][3]float32         `json:"verts"`
	Faces          [][3]int             `json:"faces"`
	VertexChannels map[string][]float32 `json:"vertex_channels,omitempty"`
}

func toPayload(pc *geometry.PointCloud) pointCloudPayload {
	out := pointCloudPayload{Coords: make([][3]float32, len(pc.Coords))}
	for i, c := range pc.Coords {
		out.Coords[i] = c
	}
	if len(pc.Channels) > 0 {
		out.Channels = pc.Channels
	}
	return out
}

func (p pointCloudPayload) toPointCloud() *geometry.PointCloud {
	pc := &geometry.PointCloud{Coords: make([]geometry.Vec3, len(p.Coords))}
	for i, c := range p.Coords {
		pc.Coords[i] = c
	}
	if len(p.Channels) > 0 {
		pc.Channels = p.Channels
	}
	return pc
}

func (r meshResponse) toMesh() *geometry.Mesh {
	m := &geometry.Mesh{
		Verts: make([]geometry.Vec3, len(r.Verts)),
		Faces: make([]geometry.Face, len(r.Faces)),
	}
	for i, v := range r.Verts {
		m.Verts[i] = v
	}
	for i, f := range r.Faces {
		m.Faces[i] = f
	}
	if len(r.VertexChannels) > 0 {
		m.VertexChannels = r.VertexChannels
	}
	return m
}

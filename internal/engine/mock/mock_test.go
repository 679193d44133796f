package mock

import (
	"context"
	"testing"

	"github.com/yungbote/pointgen-backend/internal/engine"
)

func TestSampleTextDeterministic(t *testing.T) {
	e := New(64)
	a, err := e.SampleText(context.Background(), "a blue cube", engine.SampleOptions{NumSamples: 1})
	if err != nil {
		t.Fatalf("SampleText: %v", err)
	}
	b, err := e.SampleText(context.Background(), "a blue cube", engine.SampleOptions{NumSamples: 1})
	if err != nil {
		t.Fatalf("SampleText: %v", err)
	}
	if a.Len() != 64 || b.Len() != 64 {
		t.Fatalf("len a=%d b=%d", a.Len(), b.Len())
	}
	for i := range a.Coords {
		if a.Coords[i] != b.Coords[i] {
			t.Fatalf("coord %d differs: %v vs %v", i, a.Coords[i], b.Coords[i])
		}
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestReconstructMeshIsBoundingBox(t *testing.T) {
	e := New(32)
	pc, err := e.SampleText(context.Background(), "chair", engine.SampleOptions{})
	if err != nil {
		t.Fatalf("SampleText: %v", err)
	}
	m, err := e.ReconstructMesh(context.Background(), pc, 32)
	if err != nil {
		t.Fatalf("ReconstructMesh: %v", err)
	}
	if len(m.Verts) != 8 || len(m.Faces) != 12 {
		t.Fatalf("verts=%d faces=%d", len(m.Verts), len(m.Faces))
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !m.VertexChannels.HasRGB() {
		t.Fatalf("expected vertex colors")
	}
}

func TestLoadUnavailable(t *testing.T) {
	e := New(8)
	e.Unavailable = map[engine.Capability]bool{engine.CapabilityImage: true}
	if err := e.Load(context.Background(), engine.CapabilityImage); err == nil {
		t.Fatalf("Load(image): expected error")
	}
	if err := e.Load(context.Background(), engine.CapabilityText); err != nil {
		t.Fatalf("Load(text): %v", err)
	}
}

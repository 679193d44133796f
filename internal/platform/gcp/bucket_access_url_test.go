package gcp

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func TestAccessURLEmulatorUsesMediaEndpoint(t *testing.T) {
	bs := &bucketService{
		storageMode:  ObjectStorageModeGCSEmulator,
		emulatorHost: "http://fake-gcs:4443/",
		bucket:       "models",
		now:          time.Now,
	}

	got, exp, err := bs.AccessURL("/owner/user_1/2024/03/09/mesh_cube.ply", time.Hour)
	if err != nil {
		t.Fatalf("AccessURL: %v", err)
	}
	want := "http://fake-gcs:4443/storage/v1/b/models/o/owner%2Fuser_1%2F2024%2F03%2F09%2Fmesh_cube.ply?alt=media"
	if got != want {
		t.Fatalf("AccessURL: want=%q got=%q", want, got)
	}
	if !exp.IsZero() {
		t.Fatalf("emulator urls do not expire; got expiry %s", exp)
	}
}

func TestAccessURLRejectsNonPositiveTTL(t *testing.T) {
	bs := &bucketService{storageMode: ObjectStorageModeGCS, bucket: "models", now: time.Now}
	if _, _, err := bs.AccessURL("k", 0); err == nil {
		t.Fatalf("AccessURL: expected ttl error")
	}
}

func TestBucketServiceWithoutBucketName(t *testing.T) {
	_, err := NewBucketServiceWithConfig(t.Context(), nil, BucketConfig{
		Storage: ObjectStorageConfig{Mode: ObjectStorageModeGCS},
	})
	if err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestReadCloserWithCancelKeepsContextUntilClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc := &readCloserWithCancel{ReadCloser: io.NopCloser(strings.NewReader("ply\n")), cancel: cancel}

	if ctx.Err() != nil {
		t.Fatalf("context cancelled before the body was read")
	}
	if b, err := io.ReadAll(rc); err != nil || string(b) != "ply\n" {
		t.Fatalf("read: %q %v", b, err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ctx.Err() == nil {
		t.Fatalf("Close must cancel the download context")
	}
}

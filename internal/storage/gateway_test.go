package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/pointgen-backend/internal/domain/generation"
	"github.com/yungbote/pointgen-backend/internal/platform/apierr"
	"github.com/yungbote/pointgen-backend/internal/platform/gcp"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
)

type fakeBucket struct {
	mu        sync.Mutex
	objects   map[string][]byte
	created   map[string]time.Time
	uploadErr error
	signErr   error
	deleted   []string
	uploads   int
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, created: map[string]time.Time{}}
}

func (f *fakeBucket) UploadObject(_ context.Context, key string, data io.Reader, _ string) (*gcp.ObjectAttrs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}
	f.objects[key] = b
	if _, ok := f.created[key]; !ok {
		f.created[key] = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	}
	return &gcp.ObjectAttrs{Name: key, Size: int64(len(b)), Created: f.created[key]}, nil
}

func (f *fakeBucket) DeleteObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeBucket) DownloadObject(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeBucket) ListObjects(_ context.Context, prefix string) ([]gcp.ObjectAttrs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []gcp.ObjectAttrs
	for k, b := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, gcp.ObjectAttrs{Name: k, Size: int64(len(b)), Created: f.created[k]})
		}
	}
	return out, nil
}

func (f *fakeBucket) AccessURL(key string, ttl time.Duration) (string, time.Time, error) {
	if f.signErr != nil {
		return "", time.Time{}, f.signErr
	}
	return "https://signed.example/" + key, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(ttl), nil
}

func (f *fakeBucket) EnsureBucket(context.Context) error { return nil }
func (f *fakeBucket) BucketName() string                 { return "fake-bucket" }
func (f *fakeBucket) Close() error                       { return nil }

var fixedNow = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func newTestGateway(t *testing.T, bucket gcp.BucketService, layout Layout) *Gateway {
	t.Helper()
	local, err := NewLocalStore(t.TempDir(), layout)
	require.NoError(t, err)
	g, err := NewGateway(logger.NewNop(), Options{
		Bucket:        bucket,
		Local:         local,
		SignedURLTTL:  7 * 24 * time.Hour,
		CatalogURLTTL: time.Hour,
		Now:           fixedNow,
	})
	require.NoError(t, err)
	return g
}

func meshPut(owner, name string) PutRequest {
	return PutRequest{
		OwnerID:     owner,
		Filename:    name,
		Kind:        generation.KindMesh,
		ContentType: "application/octet-stream",
		Data:        []byte("ply\nformat ascii 1.0\nend_header\n"),
	}
}

func TestRemoteKeyTemplate(t *testing.T) {
	at := time.Date(2026, 2, 3, 23, 0, 0, 0, time.FixedZone("x", -5*3600))
	// 23:00 at -05:00 is the next day in UTC.
	assert.Equal(t, "owner/user_abc/2026/02/04/mesh_a.ply", RemoteKey("user_abc", "mesh_a.ply", at))
	assert.Equal(t, "owner/user_abc/", OwnerPrefix("user_abc"))
}

func TestValidateSegment(t *testing.T) {
	for _, bad := range []string{"", ".", "..", ".hidden", "a/b", `a\b`, "a\x00b", strings.Repeat("x", 256)} {
		assert.Error(t, ValidateSegment(bad), "segment %q", bad)
	}
	assert.NoError(t, ValidateSegment("mesh_cube_20260101_000000_abcd1234.ply"))
}

func TestPutRemoteSuccess(t *testing.T) {
	bucket := newFakeBucket()
	g := newTestGateway(t, bucket, LayoutFlat)

	art, err := g.Put(context.Background(), meshPut("user_1", "mesh_a.ply"))
	require.NoError(t, err)
	assert.Equal(t, generation.TierRemote, art.Tier)
	assert.Equal(t, "owner/user_1/2026/01/01/mesh_a.ply", art.StoragePath)
	assert.Equal(t, "https://signed.example/owner/user_1/2026/01/01/mesh_a.ply", art.AccessURL)
	assert.False(t, art.ExpiresAt.IsZero())
	assert.False(t, art.FallbackUsed)
	assert.Empty(t, art.DownloadPath)

	listed, err := g.List(context.Background(), "user_1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "mesh_a.ply", listed[0].Filename)
	assert.Equal(t, generation.KindMesh, listed[0].Kind)
}

func TestPutFallsBackToLocalOnRemoteFailure(t *testing.T) {
	bucket := newFakeBucket()
	bucket.uploadErr = errors.New("network unreachable")
	g := newTestGateway(t, bucket, LayoutFlat)

	req := meshPut("user_1", "mesh_b.ply")
	art, err := g.Put(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, generation.TierLocal, art.Tier)
	assert.True(t, art.FallbackUsed)
	assert.Equal(t, "/download/mesh_b.ply", art.DownloadPath)
	assert.True(t, art.ExpiresAt.IsZero())
	assert.Equal(t, 1, bucket.uploads, "remote must not be retried")

	rc, err := g.Open(context.Background(), *art)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, req.Data, got)
}

func TestPutSigningFailureRemovesObject(t *testing.T) {
	bucket := newFakeBucket()
	bucket.signErr = errors.New("no signing credentials")
	g := newTestGateway(t, bucket, LayoutFlat)

	art, err := g.Put(context.Background(), meshPut("user_1", "mesh_c.ply"))
	require.NoError(t, err)
	assert.True(t, art.FallbackUsed)
	assert.Equal(t, []string{"owner/user_1/2026/01/01/mesh_c.ply"}, bucket.deleted)

	listed, err := g.List(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestRemoteDisabledAtInit(t *testing.T) {
	local, err := NewLocalStore(t.TempDir(), LayoutPerOwner)
	require.NoError(t, err)
	g, err := NewGateway(logger.NewNop(), Options{
		Local:         local,
		RemoteInitErr: errors.New("missing credentials"),
		PublicBaseURL: "https://pg.example/",
		Now:           fixedNow,
	})
	require.NoError(t, err)
	assert.False(t, g.RemoteEnabled())
	assert.Equal(t, "Local storage", g.Describe())

	art, err := g.Put(context.Background(), meshPut("user_2", "mesh_d.ply"))
	require.NoError(t, err)
	assert.False(t, art.FallbackUsed, "a disabled remote tier is not a per-call fallback")
	assert.Equal(t, "user_2/mesh_d.ply", art.StoragePath)
	assert.Equal(t, "/download/user_2/mesh_d.ply", art.DownloadPath)
	assert.Equal(t, "https://pg.example/download/user_2/mesh_d.ply", art.AccessURL)

	listed, err := g.List(context.Background(), "user_2")
	require.NoError(t, err)
	assert.NotNil(t, listed)
	assert.Empty(t, listed)
}

func TestPutLocalFailureIsStorageFailure(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocalStore(dir, LayoutFlat)
	require.NoError(t, err)
	g, err := NewGateway(logger.NewNop(), Options{Local: local, Now: fixedNow})
	require.NoError(t, err)

	// A directory occupying the target name makes the rename fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "mesh_e.ply"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mesh_e.ply", "keep"), []byte("x"), 0o644))

	_, err = g.Put(context.Background(), meshPut("user_3", "mesh_e.ply"))
	require.Error(t, err)
	assert.Equal(t, apierr.KindStorageFailure, apierr.KindOf(err))
}

func TestPutRejectsUnsafeSegments(t *testing.T) {
	g := newTestGateway(t, newFakeBucket(), LayoutPerOwner)
	_, err := g.Put(context.Background(), meshPut("../etc", "mesh.ply"))
	assert.Equal(t, apierr.KindInvalidRequest, apierr.KindOf(err))
	_, err = g.Put(context.Background(), meshPut("user", "../mesh.ply"))
	assert.Equal(t, apierr.KindInvalidRequest, apierr.KindOf(err))
}

func TestLocalPutIsAtomic(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, LayoutFlat)
	require.NoError(t, err)

	rel, err := s.Put("ignored", "pointcloud_x.ply", []byte("first"))
	require.NoError(t, err)
	_, err = s.Put("ignored", "pointcloud_x.ply", []byte("second"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files may remain")
	got, err := os.ReadFile(filepath.Join(dir, rel))
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestLocalOpenMissing(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), LayoutFlat)
	require.NoError(t, err)
	_, _, err = s.Open("", "missing.ply")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, _, err = s.Open("..", "x.ply")
	assert.Error(t, err)
}

func TestListSkipsForeignObjects(t *testing.T) {
	bucket := newFakeBucket()
	bucket.objects["owner/u/2026/01/01/notes.txt"] = []byte("x")
	bucket.objects["owner/u/2026/01/01/pointcloud_a.ply"] = []byte("ply")
	bucket.objects["owner/other/2026/01/01/mesh_a.ply"] = []byte("ply")
	g := newTestGateway(t, bucket, LayoutFlat)

	listed, err := g.List(context.Background(), "u")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, generation.KindPointCloud, listed[0].Kind)
	assert.Equal(t, "https://signed.example/owner/u/2026/01/01/pointcloud_a.ply", listed[0].AccessURL)
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/pointgen-backend/internal/auth"
	"github.com/yungbote/pointgen-backend/internal/domain/geometry"
	"github.com/yungbote/pointgen-backend/internal/engine"
	httpH "github.com/yungbote/pointgen-backend/internal/http/handlers"
	httpMW "github.com/yungbote/pointgen-backend/internal/http/middleware"
	"github.com/yungbote/pointgen-backend/internal/platform/gcp"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
	"github.com/yungbote/pointgen-backend/internal/readiness"
	"github.com/yungbote/pointgen-backend/internal/services"
	"github.com/yungbote/pointgen-backend/internal/storage"
)

const testSecret = "test-secret"

type quadEngine struct{ calls atomic.Int32 }

func (e *quadEngine) Load(context.Context, engine.Capability) error { return nil }

func (e *quadEngine) SampleText(context.Context, string, engine.SampleOptions) (*geometry.PointCloud, error) {
	e.calls.Add(1)
	return &geometry.PointCloud{Coords: []geometry.Vec3{{0, 0, 0}, {1, 1, 1}}}, nil
}

func (e *quadEngine) SampleImage(context.Context, []byte, string, engine.SampleOptions) (*geometry.PointCloud, error) {
	e.calls.Add(1)
	return &geometry.PointCloud{Coords: []geometry.Vec3{{0, 0, 0}, {1, 1, 1}}}, nil
}

func (e *quadEngine) ReconstructMesh(context.Context, *geometry.PointCloud, int) (*geometry.Mesh, error) {
	e.calls.Add(1)
	return &geometry.Mesh{
		Verts: []geometry.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		Faces: []geometry.Face{{0, 1, 2}, {0, 2, 3}},
	}, nil
}

type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *memBucket) UploadObject(_ context.Context, key string, r io.Reader, _ string) (*gcp.ObjectAttrs, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return &gcp.ObjectAttrs{Name: key, Size: int64(len(data))}, nil
}

func (b *memBucket) DeleteObject(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memBucket) DownloadObject(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not used")
}

func (b *memBucket) ListObjects(_ context.Context, prefix string) ([]gcp.ObjectAttrs, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []gcp.ObjectAttrs
	for k, v := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, gcp.ObjectAttrs{Name: k, Size: int64(len(v)), Created: time.Now()})
		}
	}
	return out, nil
}

func (b *memBucket) AccessURL(key string, ttl time.Duration) (string, time.Time, error) {
	return "https://storage.example/" + key + "?sig=1", time.Now().Add(ttl), nil
}

func (b *memBucket) EnsureBucket(context.Context) error { return nil }
func (b *memBucket) BucketName() string                 { return "mem" }
func (b *memBucket) Close() error                       { return nil }

type testStack struct {
	router *gin.Engine
	engine *quadEngine
	gate   *readiness.Gate
}

type stackOptions struct {
	remote bool
	layout storage.Layout
	caps   []engine.Capability

	// loading leaves the gate in Loading.
	loading bool
}

func newStack(t *testing.T, opts stackOptions) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()

	gate := readiness.NewGate(engine.CapabilityText, engine.CapabilityMesh)
	gate.BeginLoading()
	if !opts.loading {
		for _, c := range opts.caps {
			gate.CapabilityLoaded(c)
		}
		gate.Finish()
	}

	local, err := storage.NewLocalStore(t.TempDir(), opts.layout)
	require.NoError(t, err)
	gwOpts := storage.Options{Local: local}
	if opts.remote {
		gwOpts.Bucket = &memBucket{objects: map[string][]byte{}}
	}
	gw, err := storage.NewGateway(log, gwOpts)
	require.NoError(t, err)

	eng := &quadEngine{}
	gen := services.NewGenerationService(log, gate, eng, services.NewCapabilitySlots(services.SlotPolicyWait, nil), gw,
		services.GenerationLimits{MaxPromptLength: 1000, MaxImageBytes: 1 << 20}, nil)
	guard := auth.NewGuard(testSecret)

	router := NewRouter(RouterConfig{
		Log:             log,
		AuthMiddleware:  httpMW.NewAuthMiddleware(log, guard),
		GenerateHandler: httpH.NewGenerateHandler(log, gen, 1<<20),
		ModelsHandler:   httpH.NewModelsHandler(services.NewCatalogService(log, gw, nil)),
		DownloadHandler: httpH.NewDownloadHandler(log, local),
		HealthHandler:   httpH.NewHealthHandler(gate, gw, guard, false, "test"),
	})
	return &testStack{router: router, engine: eng, gate: gate}
}

func (s *testStack) do(t *testing.T, req *nethttp.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func textReq(body string, authed bool) *nethttp.Request {
	req := httptest.NewRequest(nethttp.MethodPost, "/generate/text", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "unit-test")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testSecret)
	}
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var allCaps = []engine.Capability{engine.CapabilityText, engine.CapabilityImage, engine.CapabilityMesh}

func TestGenerateTextEndToEnd(t *testing.T) {
	s := newStack(t, stackOptions{remote: true, caps: allCaps})

	rec := s.do(t, textReq(`{"prompt":"a blue cube","format":"mesh","grid_size":32}`, true))
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	res := decode[httpH.GenerateResponse](t, rec)
	assert.True(t, res.Success)
	require.NotNil(t, res.Vertices)
	require.NotNil(t, res.Faces)
	assert.Equal(t, 4, *res.Vertices)
	assert.Equal(t, 2, *res.Faces)
	assert.NotEmpty(t, res.FileURL)
	assert.True(t, strings.HasPrefix(res.FileURL, "owner/"+res.UserID+"/"))
	assert.True(t, strings.HasPrefix(res.DownloadURL, "https://storage.example/"))
	assert.NotNil(t, res.ExpiresAt)
	assert.True(t, strings.HasPrefix(res.UserID, "user_"))

	rec = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/user/"+res.UserID+"/models", nil))
	require.Equal(t, nethttp.StatusOK, rec.Code)
	list := decode[httpH.ModelsResponse](t, rec)
	require.Equal(t, 1, list.TotalCount)
	assert.Equal(t, res.FileURL, list.Models[0].Path)
	assert.Equal(t, "mesh", list.Models[0].Type)
}

func TestGenerateTextSuppliedIdentityAndPointCloud(t *testing.T) {
	s := newStack(t, stackOptions{remote: true, caps: allCaps})

	rec := s.do(t, textReq(`{"prompt":"dots","format":"pointcloud","user_id":"player-42"}`, true))
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	res := decode[map[string]any](t, rec)
	assert.Equal(t, "player-42", res["user_id"])
	assert.Equal(t, float64(2), res["points"])
	assert.Equal(t, float64(2), res["vertices"])
	assert.Equal(t, float64(0), res["faces"])
}

func TestGenerateRejectsBeforeEngine(t *testing.T) {
	cases := []struct {
		name   string
		opts   stackOptions
		req    *nethttp.Request
		status int
		code   string
	}{
		{"no credential", stackOptions{caps: allCaps}, textReq(`{"prompt":"x"}`, false), nethttp.StatusUnauthorized, "unauthorized"},
		{"loading", stackOptions{loading: true}, textReq(`{"prompt":"x"}`, true), nethttp.StatusServiceUnavailable, "models_not_ready"},
		{"zero grid", stackOptions{caps: allCaps}, textReq(`{"prompt":"x","grid_size":0}`, true), nethttp.StatusBadRequest, "invalid_grid_size"},
		{"negative grid", stackOptions{caps: allCaps}, textReq(`{"prompt":"x","grid_size":-1}`, true), nethttp.StatusBadRequest, "invalid_grid_size"},
		{"long prompt", stackOptions{caps: allCaps}, textReq(`{"prompt":"`+strings.Repeat("a", 1001)+`"}`, true), nethttp.StatusBadRequest, "prompt_too_long"},
		{"bad format", stackOptions{caps: allCaps}, textReq(`{"prompt":"x","format":"obj"}`, true), nethttp.StatusBadRequest, "invalid_format"},
		{"bad json", stackOptions{caps: allCaps}, textReq(`{"prompt":`, true), nethttp.StatusBadRequest, "invalid_json"},
		{"bad user id", stackOptions{caps: allCaps}, textReq(`{"prompt":"x","user_id":"../x"}`, true), nethttp.StatusBadRequest, "invalid_user_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStack(t, tc.opts)
			rec := s.do(t, tc.req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"code":"`+tc.code+`"`)
			assert.Equal(t, int32(0), s.engine.calls.Load())
		})
	}
}

func pngUpload(t *testing.T, name string, extra map[string]string) *nethttp.Request {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var imgBuf bytes.Buffer
	require.NoError(t, png.Encode(&imgBuf, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(imgBuf.Bytes())
	require.NoError(t, err)
	for k, v := range extra {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(nethttp.MethodPost, "/generate/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testSecret)
	return req
}

func TestGenerateImage(t *testing.T) {
	s := newStack(t, stackOptions{remote: true, caps: allCaps})
	rec := s.do(t, pngUpload(t, "chair.png", map[string]string{"format": "mesh", "grid_size": "16", "user_id": "u1"}))
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	res := decode[httpH.GenerateResponse](t, rec)
	assert.Contains(t, res.FileURL, "/mesh_from_chair_")
}

func TestGenerateImagePointCloudOmitsMeshCounts(t *testing.T) {
	s := newStack(t, stackOptions{remote: true, caps: allCaps})
	rec := s.do(t, pngUpload(t, "chair.png", map[string]string{"format": "pointcloud", "user_id": "u1"}))
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	res := decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), res["points"])
	assert.NotContains(t, res, "vertices")
	assert.NotContains(t, res, "faces")
}

func TestGenerateImageWithoutImageCapability(t *testing.T) {
	s := newStack(t, stackOptions{remote: true, caps: []engine.Capability{engine.CapabilityText, engine.CapabilityMesh}})
	rec := s.do(t, pngUpload(t, "chair.png", nil))
	assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "image_unavailable")
	assert.Equal(t, int32(0), s.engine.calls.Load())
}

func TestGenerateImageRejectsNonImage(t *testing.T) {
	s := newStack(t, stackOptions{remote: true, caps: allCaps})
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("definitely not an image"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(nethttp.MethodPost, "/generate/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testSecret)

	rec := s.do(t, req)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_image")
}

func TestLocalOnlyModeDownload(t *testing.T) {
	s := newStack(t, stackOptions{layout: storage.LayoutPerOwner, caps: allCaps})

	rec := s.do(t, textReq(`{"prompt":"a blue cube","user_id":"local"}`, true))
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	res := decode[httpH.GenerateResponse](t, rec)
	assert.False(t, res.FallbackUsed)
	assert.Nil(t, res.ExpiresAt)
	assert.True(t, strings.HasPrefix(res.FileURL, "/download/local/mesh_a_blue_cube_"))
	assert.Equal(t, res.FileURL, res.DownloadURL)

	rec = s.do(t, httptest.NewRequest(nethttp.MethodGet, res.FileURL, nil))
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "ply\nformat ascii 1.0\n"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	rec = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/download/local/missing.ply", nil))
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)

	rec = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/user/local/models", nil))
	require.Equal(t, nethttp.StatusOK, rec.Code)
	list := decode[httpH.ModelsResponse](t, rec)
	assert.Equal(t, 0, list.TotalCount)
	assert.NotNil(t, list.Models)
}

func TestHealthEndpoints(t *testing.T) {
	s := newStack(t, stackOptions{loading: true})

	rec := s.do(t, httptest.NewRequest(nethttp.MethodGet, "/health", nil))
	require.Equal(t, nethttp.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "loading", health["status"])
	assert.Equal(t, false, health["models_ready"])

	rec = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/ready", nil))
	assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)

	s.gate.CapabilityLoaded(engine.CapabilityText)
	s.gate.CapabilityLoaded(engine.CapabilityMesh)
	s.gate.Finish()

	rec = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/ready", nil))
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	rec = s.do(t, httptest.NewRequest(nethttp.MethodGet, "/", nil))
	require.Equal(t, nethttp.StatusOK, rec.Code)
	info := decode[map[string]any](t, rec)
	assert.Equal(t, "Local storage", info["storage"])
	assert.Equal(t, "Bearer token required", info["authentication"])
	assert.Equal(t, []any{"text-to-3d", "user-storage"}, info["features"])
}

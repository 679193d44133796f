package workerhttp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/pointgen-backend/internal/config"
	"github.com/yungbote/pointgen-backend/internal/domain/geometry"
	"github.com/yungbote/pointgen-backend/internal/engine"
	"github.com/yungbote/pointgen-backend/internal/pkg/httpx"
)

// Engine talks JSON over HTTP to an out-of-process model worker.
type Engine struct {
	baseURL string
	apiKey  string

	timeout      time.Duration
	loadTimeout  time.Duration
	pollInterval time.Duration

	httpClient *http.Client
}

func New(cfg config.EngineConfig) (*Engine, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("worker_http: base_url required")
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	loadTimeout := cfg.LoadTimeout.Duration
	if loadTimeout <= 0 {
		loadTimeout = 10 * time.Minute
	}
	poll := cfg.PollInterval.Duration
	if poll <= 0 {
		poll = 2 * time.Second
	}

	return &Engine{
		baseURL:      baseURL,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		timeout:      timeout,
		loadTimeout:  loadTimeout,
		pollInterval: poll,
		httpClient:   &http.Client{Transport: tr},
	}, nil
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(cfg config.EngineConfig, httpClient *http.Client) (*Engine, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		e.httpClient = httpClient
	}
	return e, nil
}

// ---------------- Loading ----------------

// Load polls the worker until c reports ready, reports failed, or the load timeout elapses.
// Transport errors and retryable statuses while polling are treated as "still starting"; any
// other non-2xx answer fails the capability at once.
func (e *Engine) Load(ctx context.Context, c engine.Capability) error {
	ctx, cancel := context.WithTimeout(ctx, e.loadTimeout)
	defer cancel()

	path := "/v1/capabilities/" + url.PathEscape(string(c))
	var lastErr error
	for {
		var st capabilityStatus
		err := e.doJSON(ctx, 0, http.MethodGet, path, nil, &st)
		switch {
		case err == nil && strings.EqualFold(st.State, "ready"):
			return nil
		case err == nil && strings.EqualFold(st.State, "failed"):
			return &LoadError{Capability: string(c), Reason: st.Error}
		case err == nil:
			lastErr = fmt.Errorf("capability %s state=%q", c, st.State)
		default:
			var he *HTTPError
			if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
				return &LoadError{Capability: string(c), Reason: "not served by worker"}
			}
			if he != nil && !httpx.IsRetryableHTTPStatus(he.StatusCode) {
				return &LoadError{Capability: string(c), Reason: he.Error()}
			}
			lastErr = err
		}

		t := time.NewTimer(httpx.JitterSleep(e.pollInterval))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("load %s: %w (last: %v)", c, ctx.Err(), lastErr)
		case <-t.C:
		}
	}
}

// ---------------- Sampling ----------------

func (e *Engine) SampleText(ctx context.Context, prompt string, opts engine.SampleOptions) (*geometry.PointCloud, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("empty prompt")
	}
	req := sampleTextRequest{Prompt: prompt, NumSamples: numSamples(opts), Seed: opts.Seed}
	var resp pointCloudPayload
	if err := e.doJSON(ctx, e.timeout, http.MethodPost, "/v1/sample/text", req, &resp); err != nil {
		return nil, err
	}
	return validCloud(resp.toPointCloud())
}

func (e *Engine) SampleImage(ctx context.Context, image []byte, contentType string, opts engine.SampleOptions) (*geometry.PointCloud, error) {
	if len(image) == 0 {
		return nil, errors.New("empty image")
	}
	req := sampleImageRequest{
		ImageB64:    base64.StdEncoding.EncodeToString(image),
		ContentType: contentType,
		NumSamples:  numSamples(opts),
		Seed:        opts.Seed,
	}
	var resp pointCloudPayload
	if err := e.doJSON(ctx, e.timeout, http.MethodPost, "/v1/sample/image", req, &resp); err != nil {
		return nil, err
	}
	return validCloud(resp.toPointCloud())
}

// ---------------- Mesh reconstruction ----------------

func (e *Engine) ReconstructMesh(ctx context.Context, pc *geometry.PointCloud, gridSize int) (*geometry.Mesh, error) {
	if pc.Len() == 0 {
		return nil, errors.New("empty point cloud")
	}
	req := meshRequest{PointCloud: toPayload(pc), GridSize: gridSize}
	var resp meshResponse
	if err := e.doJSON(ctx, e.timeout, http.MethodPost, "/v1/mesh", req, &resp); err != nil {
		return nil, err
	}
	m := resp.toMesh()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("worker returned invalid mesh: %w", err)
	}
	return m, nil
}

func validCloud(pc *geometry.PointCloud) (*geometry.PointCloud, error) {
	if pc.Len() == 0 {
		return nil, errors.New("worker returned an empty point cloud")
	}
	if err := pc.Validate(); err != nil {
		return nil, fmt.Errorf("worker returned invalid point cloud: %w", err)
	}
	return pc, nil
}

func numSamples(opts engine.SampleOptions) int {
	if opts.NumSamples <= 0 {
		return 1
	}
	return opts.NumSamples
}

// ---------------- HTTP helpers ----------------

func (e *Engine) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
}

func (e *Engine) doJSON(ctx context.Context, timeout time.Duration, method string, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	ctx2 := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx2, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx2, method, e.baseURL+path, &buf)
	if err != nil {
		return err
	}
	e.setHeaders(req)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

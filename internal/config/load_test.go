package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POINTGEN_CONFIG_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Type != "mock" {
		t.Fatalf("engine.type=%q", cfg.Engine.Type)
	}
	if cfg.Generation.SlotPolicy != "wait" {
		t.Fatalf("slot_policy=%q", cfg.Generation.SlotPolicy)
	}
	if cfg.Storage.SignedURLTTL.Duration != 7*24*time.Hour {
		t.Fatalf("signed_url_ttl=%s", cfg.Storage.SignedURLTTL.Duration)
	}
	if cfg.Storage.CatalogURLTTL.Duration != time.Hour {
		t.Fatalf("catalog_url_ttl=%s", cfg.Storage.CatalogURLTTL.Duration)
	}
	if cfg.RateLimit.Enabled {
		t.Fatalf("rate limiting must be off by default")
	}
	if cfg.Auth.SecretKey != "" {
		t.Fatalf("secret must default to empty")
	}
	if len(cfg.HTTP.CORSAllowedOrigins) != 1 || cfg.HTTP.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("cors=%v", cfg.HTTP.CORSAllowedOrigins)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	p := writeConfigFile(t, `
env: production
http:
  addr: ":9090"
engine:
  type: worker_http
  base_url: "http://worker:7000/"
  timeout: 90
  load_timeout: "5m"
storage:
  bucket: from-file
  local_layout: per_owner
generation:
  slot_policy: reject
`)
	t.Setenv("POINTGEN_CONFIG_PATH", p)
	t.Setenv("GCS_BUCKET", "from-env")
	t.Setenv("RATE_LIMIT_WINDOW", "3600")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("env=%q", cfg.Env)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("addr=%q", cfg.HTTP.Addr)
	}
	if cfg.Engine.BaseURL != "http://worker:7000" {
		t.Fatalf("base_url=%q", cfg.Engine.BaseURL)
	}
	if cfg.Engine.Timeout.Duration != 90*time.Second {
		t.Fatalf("timeout=%s", cfg.Engine.Timeout.Duration)
	}
	if cfg.Engine.LoadTimeout.Duration != 5*time.Minute {
		t.Fatalf("load_timeout=%s", cfg.Engine.LoadTimeout.Duration)
	}
	if cfg.Engine.PollInterval.Duration != 2*time.Second {
		t.Fatalf("poll_interval lost its default: %s", cfg.Engine.PollInterval.Duration)
	}
	if cfg.Storage.Bucket != "from-env" {
		t.Fatalf("bucket=%q", cfg.Storage.Bucket)
	}
	if cfg.Storage.LocalLayout != "per_owner" {
		t.Fatalf("local_layout=%q", cfg.Storage.LocalLayout)
	}
	if cfg.Generation.SlotPolicy != "reject" {
		t.Fatalf("slot_policy=%q", cfg.Generation.SlotPolicy)
	}
	if cfg.RateLimit.Window.Duration != time.Hour {
		t.Fatalf("rate window=%s", cfg.RateLimit.Window.Duration)
	}
	if len(cfg.HTTP.CORSAllowedOrigins) != 2 || cfg.HTTP.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("cors=%v", cfg.HTTP.CORSAllowedOrigins)
	}
}

func TestLoadPortFallback(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POINTGEN_CONFIG_PATH", "")
	t.Setenv("POINTGEN_HTTP_ADDR", "")
	t.Setenv("PORT", "7777")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":7777" {
		t.Fatalf("addr=%q", cfg.HTTP.Addr)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"engine type":        {"ENGINE_TYPE": "gpu"},
		"worker without url": {"ENGINE_TYPE": "worker_http", "ENGINE_BASE_URL": ""},
		"slot policy":        {"SLOT_POLICY": "queue"},
		"layout":             {"LOCAL_STORAGE_LAYOUT": "nested"},
		"storage mode":       {"OBJECT_STORAGE_MODE": "s3"},
		"rate limit":         {"RATE_LIMIT_ENABLED": "true", "RATE_LIMIT_PER_IP": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("POINTGEN_CONFIG_PATH", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("Load: expected validation error")
			}
		})
	}
}

func TestDurationJSON(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"1.5s","b":1000}`), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.A.Duration != 1500*time.Millisecond || v.B.Duration != time.Microsecond {
		t.Fatalf("a=%s b=%s", v.A.Duration, v.B.Duration)
	}
}

func TestLoadTracingEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POINTGEN_CONFIG_PATH", "")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "1")
	t.Setenv("OTEL_SAMPLER_RATIO", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	o := cfg.Observability
	if !o.OTelEnabled || o.OTLPEndpoint != "collector:4318" || !o.OTLPInsecure {
		t.Fatalf("observability=%+v", o)
	}
	if o.SampleRatio != 1 {
		t.Fatalf("sample_ratio=%v want clamped to 1", o.SampleRatio)
	}
}

func TestLoadClampsSignedURLTTL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POINTGEN_CONFIG_PATH", "")
	t.Setenv("SIGNED_URL_TTL", "720h")
	t.Setenv("CATALOG_URL_TTL", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Storage.SignedURLTTL.Duration; got != MaxSignedURLTTL {
		t.Fatalf("signed_url_ttl=%s want %s", got, MaxSignedURLTTL)
	}
	if got := cfg.Storage.CatalogURLTTL.Duration; got != 2*time.Hour {
		t.Fatalf("catalog_url_ttl=%s", got)
	}
}

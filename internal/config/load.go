package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/pointgen-backend/internal/platform/envutil"
)

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		u, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		if strings.TrimSpace(u) == "" {
			d.Duration = 0
			return nil
		}
		dd, err := time.ParseDuration(u)
		if err != nil {
			return err
		}
		d.Duration = dd
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("duration must be a JSON string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = time.Duration(n)
	return nil
}

// UnmarshalYAML accepts "90s"-style strings or bare integers as seconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if s == "" || node.Tag == "!!null" {
		d.Duration = 0
		return nil
	}
	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		d.Duration = time.Duration(n) * time.Second
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or an int seconds: %w", err)
	}
	d.Duration = dd
	return nil
}

const (
	DefaultBucket          = "point-e-3d-models"
	DefaultBucketLocation  = "us-central1"
	// MaxSignedURLTTL is the longest lifetime GCS accepts for a V4 signed URL.
	MaxSignedURLTTL        = 7 * 24 * time.Hour
	DefaultSignedURLTTL    = MaxSignedURLTTL
	DefaultCatalogURLTTL   = time.Hour
	DefaultMaxPromptLength = 1000
	DefaultMaxImageBytes   = 10 << 20
)

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8000",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 30 * time.Second},
			MaxRequestBytes:   DefaultMaxImageBytes + 1<<20,
		},
		Engine: EngineConfig{
			Type:         "mock",
			Timeout:      Duration{Duration: 10 * time.Minute},
			LoadTimeout:  Duration{Duration: 10 * time.Minute},
			PollInterval: Duration{Duration: 2 * time.Second},
			EnableImage:  true,
			MockPoints:   1024,
		},
		Storage: StorageConfig{
			RemoteEnabled: true,
			Mode:          "gcs",
			Bucket:        DefaultBucket,
			Location:      DefaultBucketLocation,
			LocalDir:      "generated_models",
			LocalLayout:   "flat",
			SignedURLTTL:  Duration{Duration: DefaultSignedURLTTL},
			CatalogURLTTL: Duration{Duration: DefaultCatalogURLTTL},
		},
		Generation: GenerationConfig{
			SlotPolicy:      "wait",
			MaxPromptLength: DefaultMaxPromptLength,
			MaxImageBytes:   DefaultMaxImageBytes,
		},
		Observability: ObservabilityConfig{
			MetricsPath: "/metrics",
			ServiceName: "pointgen-backend",
			SampleRatio: 0.1,
		},
		RateLimit: RateLimitConfig{
			PerIP:  5,
			Window: Duration{Duration: 24 * time.Hour},
		},
	}
}

// Load builds the config from defaults, an optional YAML file and environment overrides, in that
// order, then normalizes and validates it.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("POINTGEN_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		// Decoding over the defaults keeps unset keys at their default values.
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)
	normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("LOG_MODE", cfg.Env)
	if v := envutil.First("POINTGEN_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	} else if port := envutil.First("PORT"); port != "" {
		cfg.HTTP.Addr = ":" + port
	}
	cfg.HTTP.ShutdownTimeout.Duration = envutil.Duration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout.Duration)
	if v := envutil.First("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.CORSAllowedOrigins = splitList(v)
	}
	cfg.HTTP.PublicBaseURL = envutil.String("PUBLIC_BASE_URL", cfg.HTTP.PublicBaseURL)

	cfg.Auth.SecretKey = envutil.String("POINT_E_SECRET_KEY", cfg.Auth.SecretKey)

	cfg.Engine.Type = envutil.String("ENGINE_TYPE", cfg.Engine.Type)
	cfg.Engine.BaseURL = envutil.String("ENGINE_BASE_URL", cfg.Engine.BaseURL)
	cfg.Engine.APIKey = envutil.String("ENGINE_API_KEY", cfg.Engine.APIKey)
	cfg.Engine.Timeout.Duration = envutil.Duration("ENGINE_TIMEOUT", cfg.Engine.Timeout.Duration)
	cfg.Engine.LoadTimeout.Duration = envutil.Duration("ENGINE_LOAD_TIMEOUT", cfg.Engine.LoadTimeout.Duration)
	cfg.Engine.EnableImage = envutil.Bool("ENABLE_IMAGE_MODEL", cfg.Engine.EnableImage)
	cfg.Engine.MockPoints = envutil.Int("ENGINE_MOCK_POINTS", cfg.Engine.MockPoints)

	cfg.Storage.RemoteEnabled = envutil.Bool("ENABLE_GCS", cfg.Storage.RemoteEnabled)
	cfg.Storage.Mode = envutil.String("OBJECT_STORAGE_MODE", cfg.Storage.Mode)
	cfg.Storage.Bucket = envutil.String("GCS_BUCKET", cfg.Storage.Bucket)
	if v := envutil.First("GOOGLE_CLOUD_PROJECT", "GCP_PROJECT_ID"); v != "" {
		cfg.Storage.ProjectID = v
	}
	cfg.Storage.Location = envutil.String("GCS_BUCKET_LOCATION", cfg.Storage.Location)
	cfg.Storage.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", cfg.Storage.EmulatorHost)
	cfg.Storage.LocalDir = envutil.String("LOCAL_STORAGE_DIR", cfg.Storage.LocalDir)
	cfg.Storage.LocalLayout = envutil.String("LOCAL_STORAGE_LAYOUT", cfg.Storage.LocalLayout)
	cfg.Storage.SignedURLTTL.Duration = envutil.Duration("SIGNED_URL_TTL", cfg.Storage.SignedURLTTL.Duration)
	cfg.Storage.CatalogURLTTL.Duration = envutil.Duration("CATALOG_URL_TTL", cfg.Storage.CatalogURLTTL.Duration)

	cfg.Generation.SlotPolicy = envutil.String("SLOT_POLICY", cfg.Generation.SlotPolicy)
	cfg.Generation.MaxPromptLength = envutil.Int("MAX_PROMPT_LENGTH", cfg.Generation.MaxPromptLength)
	cfg.Generation.MaxImageBytes = int64(envutil.Int("MAX_IMAGE_BYTES", int(cfg.Generation.MaxImageBytes)))

	cfg.Observability.MetricsEnabled = envutil.Bool("METRICS_ENABLED", cfg.Observability.MetricsEnabled)
	cfg.Observability.OTelEnabled = envutil.Bool("OTEL_ENABLED", cfg.Observability.OTelEnabled)
	cfg.Observability.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.Observability.ServiceName)
	cfg.Observability.OTLPEndpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observability.OTLPEndpoint)
	cfg.Observability.OTLPHeaders = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", cfg.Observability.OTLPHeaders)
	cfg.Observability.OTLPInsecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Observability.OTLPInsecure)
	cfg.Observability.SampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", cfg.Observability.SampleRatio)

	cfg.RateLimit.Enabled = envutil.Bool("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.PerIP = envutil.Int("RATE_LIMIT_PER_IP", cfg.RateLimit.PerIP)
	cfg.RateLimit.Window.Duration = envutil.Duration("RATE_LIMIT_WINDOW", cfg.RateLimit.Window.Duration)
}

func normalize(cfg *Config) {
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":8000"
	}
	cfg.HTTP.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.HTTP.PublicBaseURL), "/")
	if len(cfg.HTTP.CORSAllowedOrigins) == 0 {
		cfg.HTTP.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = cfg.Generation.MaxImageBytes + 1<<20
	}

	cfg.Engine.Type = strings.ToLower(strings.TrimSpace(cfg.Engine.Type))
	if cfg.Engine.Type == "workerhttp" {
		cfg.Engine.Type = "worker_http"
	}
	cfg.Engine.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Engine.BaseURL), "/")

	cfg.Storage.Mode = strings.ToLower(strings.TrimSpace(cfg.Storage.Mode))
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = "gcs"
	}
	if cfg.Storage.Location == "" {
		cfg.Storage.Location = DefaultBucketLocation
	}
	cfg.Storage.LocalLayout = strings.ToLower(strings.TrimSpace(cfg.Storage.LocalLayout))
	if cfg.Storage.LocalLayout == "" {
		cfg.Storage.LocalLayout = "flat"
	}
	if cfg.Storage.SignedURLTTL.Duration <= 0 {
		cfg.Storage.SignedURLTTL.Duration = DefaultSignedURLTTL
	}
	if cfg.Storage.CatalogURLTTL.Duration <= 0 {
		cfg.Storage.CatalogURLTTL.Duration = DefaultCatalogURLTTL
	}
	cfg.Storage.SignedURLTTL.Duration = min(cfg.Storage.SignedURLTTL.Duration, MaxSignedURLTTL)
	cfg.Storage.CatalogURLTTL.Duration = min(cfg.Storage.CatalogURLTTL.Duration, MaxSignedURLTTL)

	cfg.Generation.SlotPolicy = strings.ToLower(strings.TrimSpace(cfg.Generation.SlotPolicy))
	if cfg.Generation.SlotPolicy == "" {
		cfg.Generation.SlotPolicy = "wait"
	}
	if cfg.Generation.MaxPromptLength <= 0 {
		cfg.Generation.MaxPromptLength = DefaultMaxPromptLength
	}
	if cfg.Generation.MaxImageBytes <= 0 {
		cfg.Generation.MaxImageBytes = DefaultMaxImageBytes
	}
	if strings.TrimSpace(cfg.Observability.MetricsPath) == "" {
		cfg.Observability.MetricsPath = "/metrics"
	}
	switch {
	case cfg.Observability.SampleRatio < 0:
		cfg.Observability.SampleRatio = 0
	case cfg.Observability.SampleRatio > 1:
		cfg.Observability.SampleRatio = 1
	}
}

func (c *Config) Validate() error {
	switch c.Engine.Type {
	case "mock":
	case "worker_http":
		if c.Engine.BaseURL == "" {
			return errors.New("engine.base_url is required for worker_http engines")
		}
	default:
		return fmt.Errorf("invalid engine.type=%q (allowed: mock, worker_http)", c.Engine.Type)
	}
	if c.Engine.Timeout.Duration < 0 || c.Engine.LoadTimeout.Duration < 0 {
		return errors.New("engine timeouts must not be negative")
	}
	switch c.Storage.Mode {
	case "gcs", "gcs_emulator":
	default:
		return fmt.Errorf("invalid storage.mode=%q (allowed: gcs, gcs_emulator)", c.Storage.Mode)
	}
	if c.Storage.RemoteEnabled && strings.TrimSpace(c.Storage.Bucket) == "" {
		return errors.New("storage.bucket is required when remote storage is enabled")
	}
	if strings.TrimSpace(c.Storage.LocalDir) == "" {
		return errors.New("storage.local_dir is required")
	}
	switch c.Storage.LocalLayout {
	case "flat", "per_owner":
	default:
		return fmt.Errorf("invalid storage.local_layout=%q (allowed: flat, per_owner)", c.Storage.LocalLayout)
	}
	switch c.Generation.SlotPolicy {
	case "wait", "reject":
	default:
		return fmt.Errorf("invalid generation.slot_policy=%q (allowed: wait, reject)", c.Generation.SlotPolicy)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.PerIP <= 0 {
			return errors.New("rate_limit.per_ip must be positive when rate limiting is enabled")
		}
		if c.RateLimit.Window.Duration <= 0 {
			return errors.New("rate_limit.window must be positive when rate limiting is enabled")
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `json:"addr" yaml:"addr"`
	ReadHeaderTimeout Duration `json:"read_header_timeout" yaml:"read_header_timeout"`
	IdleTimeout       Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxRequestBytes   int64    `json:"max_request_bytes" yaml:"max_request_bytes"`

	// CORSAllowedOrigins defaults to "*" when empty.
	CORSAllowedOrigins []string `json:"cors_allowed_origins,omitempty" yaml:"cors_allowed_origins,omitempty"`

	// PublicBaseURL, when set, turns local download paths into absolute URLs.
	PublicBaseURL string `json:"public_base_url,omitempty" yaml:"public_base_url,omitempty"`
}

type AuthConfig struct {
	// SecretKey is the shared bearer secret for /generate/*. Empty means misconfigured (fail closed).
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
}

type EngineConfig struct {
	// Type is "mock" or "worker_http".
	Type string `json:"type" yaml:"type"`

	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Timeout bounds a single sampling or reconstruction call.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// LoadTimeout bounds how long startup waits for each capability to report loaded.
	LoadTimeout  Duration `json:"load_timeout,omitempty" yaml:"load_timeout,omitempty"`
	PollInterval Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`

	EnableImage bool `json:"enable_image" yaml:"enable_image"`

	// MockPoints is the cloud size produced by the mock engine.
	MockPoints int `json:"mock_points,omitempty" yaml:"mock_points,omitempty"`
}

type StorageConfig struct {
	RemoteEnabled bool `json:"remote_enabled" yaml:"remote_enabled"`
	// Mode is "gcs" or "gcs_emulator".
	Mode         string `json:"mode" yaml:"mode"`
	Bucket       string `json:"bucket" yaml:"bucket"`
	ProjectID    string `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Location     string `json:"location,omitempty" yaml:"location,omitempty"`
	EmulatorHost string `json:"emulator_host,omitempty" yaml:"emulator_host,omitempty"`

	LocalDir string `json:"local_dir" yaml:"local_dir"`
	// LocalLayout is "flat" or "per_owner".
	LocalLayout string `json:"local_layout" yaml:"local_layout"`

	SignedURLTTL  Duration `json:"signed_url_ttl" yaml:"signed_url_ttl"`
	CatalogURLTTL Duration `json:"catalog_url_ttl" yaml:"catalog_url_ttl"`
}

type GenerationConfig struct {
	// SlotPolicy is "wait" or "reject".
	SlotPolicy      string `json:"slot_policy" yaml:"slot_policy"`
	MaxPromptLength int    `json:"max_prompt_length" yaml:"max_prompt_length"`
	MaxImageBytes   int64  `json:"max_image_bytes" yaml:"max_image_bytes"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path,omitempty" yaml:"metrics_path,omitempty"`
	OTelEnabled    bool   `json:"otel_enabled" yaml:"otel_enabled"`
	ServiceName    string `json:"service_name,omitempty" yaml:"service_name,omitempty"`

	// OTLPEndpoint empty means spans go to stdout.
	OTLPEndpoint string `json:"otlp_endpoint,omitempty" yaml:"otlp_endpoint,omitempty"`
	// OTLPHeaders is a "k=v,k=v" list sent with every export.
	OTLPHeaders  string  `json:"otlp_headers,omitempty" yaml:"otlp_headers,omitempty"`
	OTLPInsecure bool    `json:"otlp_insecure" yaml:"otlp_insecure"`
	SampleRatio  float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

type RateLimitConfig struct {
	// Enabled is off by default; PerIP and Window are parsed either way.
	Enabled bool     `json:"enabled" yaml:"enabled"`
	PerIP   int      `json:"per_ip" yaml:"per_ip"`
	Window  Duration `json:"window" yaml:"window"`
}

type Config struct {
	Env           string              `json:"env" yaml:"env"`
	HTTP          HTTPConfig          `json:"http" yaml:"http"`
	Auth          AuthConfig          `json:"auth" yaml:"auth"`
	Engine        EngineConfig        `json:"engine" yaml:"engine"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Generation    GenerationConfig    `json:"generation" yaml:"generation"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	RateLimit     RateLimitConfig     `json:"rate_limit" yaml:"rate_limit"`
}

// IsProduction reports whether Env names a production deployment.
func (c *Config) IsProduction() bool {
	switch c.Env {
	case "prod", "production":
		return true
	default:
		return false
	}
}

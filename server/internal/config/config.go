package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition over a run report.
type AlertRule struct {
	// Name is the alert identifier and the deduplication key together with the device.
	Name string `yaml:"name"`

	// Condition is a simple expression: "score < 60", "failed > 0",
	// "complete == false", "state == critical".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration. Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv names the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort      = 8080
	DefaultStoragePath   = "instrumentkit.db"
	DefaultRetention     = 30 * 24 * time.Hour
	DefaultEvictInterval = time.Hour
	DefaultWSInterval    = 5 * time.Second
	DefaultMaxBodyBytes  = 1 << 20
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `host:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort serves report ingestion, the REST API, /metrics and the WebSocket hub.
	HTTPPort int `yaml:"http_port"`

	// LogLevel is debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// MaxBodyBytes caps the size of one posted report.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	WS      WSConfig      `yaml:"ws"`
	Alerts  AlertsConfig  `yaml:"alerts"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv names the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "X-API-Key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "X-API-Key"
}

// StorageConfig controls the run report history database.
type StorageConfig struct {
	// Path is the SQLite database file. ":memory:" keeps history in memory.
	Path string `yaml:"path"`

	// Retention is how long a report is kept after it started. Zero keeps everything.
	Retention time.Duration `yaml:"retention"`

	// EvictInterval is how often expired reports are removed.
	EvictInterval time.Duration `yaml:"evict_interval"`
}

// WSConfig controls the WebSocket stream.
type WSConfig struct {
	// Interval is the period of the full device summary broadcast.
	Interval time.Duration `yaml:"interval"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     DefaultHTTPPort,
			LogLevel:     "info",
			MaxBodyBytes: DefaultMaxBodyBytes,
			Storage: StorageConfig{
				Path:          DefaultStoragePath,
				Retention:     DefaultRetention,
				EvictInterval: DefaultEvictInterval,
			},
			WS: WSConfig{Interval: DefaultWSInterval},
		},
	}
}

func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Auth.Mode == "apikey" && s.Auth.KeyEnv == "" {
		return fmt.Errorf("server.auth.key_env is required when mode is apikey")
	}
	if s.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if s.Storage.Path == "" {
		return fmt.Errorf("server.storage.path is required")
	}
	if s.Storage.Retention < 0 {
		return fmt.Errorf("server.storage.retention must not be negative")
	}
	if s.Storage.EvictInterval <= 0 {
		return fmt.Errorf("server.storage.evict_interval must be positive")
	}
	if s.WS.Interval <= 0 {
		return fmt.Errorf("server.ws.interval must be positive")
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d] %q: condition is required", i, r.Name)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	return nil
}

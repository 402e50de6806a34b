package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultAgentInterval   = 15 * time.Minute
	DefaultBufferSize      = 100
	DefaultSendTimeout     = 10 * time.Second
	DefaultPollInterval    = 250 * time.Millisecond
	DefaultBatteryInterval = time.Minute
	DefaultAPIKeyHeader    = "X-API-Key"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Config is the top-level host configuration.
type Config struct {
	Host HostConfig `yaml:"host"`
}

// HostConfig holds every setting of the test host tools.
type HostConfig struct {
	// Serial selects the device. Empty means the only attached device.
	Serial string `yaml:"serial"`

	// ADBPath overrides the adb binary. Empty means $ANDROID_HOME/platform-tools/adb,
	// falling back to adb on $PATH.
	ADBPath string `yaml:"adb_path"`

	// APKDir holds the test APKs installed by the verification suite.
	APKDir string `yaml:"apk_dir"`

	// TempDir receives pulled device files. Empty means the system temp dir.
	TempDir string `yaml:"temp_dir"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// PollInterval is how often UI waits re-dump the window hierarchy.
	PollInterval time.Duration `yaml:"poll_interval"`

	// AgentInterval controls how often the agent command re-runs the
	// verification suite on every attached device.
	AgentInterval time.Duration `yaml:"agent_interval"`

	// ServerEndpoint is the base URL of the results server. Empty disables
	// shipping.
	ServerEndpoint string `yaml:"server_endpoint"`

	// BufferSize is the maximum number of reports held in memory while the
	// server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// SendTimeout bounds one report upload.
	SendTimeout time.Duration `yaml:"send_timeout"`

	// ServerAuth configures how the host authenticates to the server.
	ServerAuth AuthConfig `yaml:"server_auth"`

	Collectors CollectorsConfig `yaml:"collectors"`
	Maps       MapsConfig       `yaml:"maps"`
	Auto       AutoConfig       `yaml:"auto"`
}

// AuthConfig specifies how requests to the results server are authenticated.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | none.
	Mode string `yaml:"mode"`

	// Header carries the API key when Mode == "apikey".
	Header string `yaml:"header"`
	// KeyEnv names the environment variable holding the API key.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// CollectorsConfig configures the host-side metric collectors of `run`.
type CollectorsConfig struct {
	// PullPatternKeys name metric keys whose values are device files to pull.
	PullPatternKeys []string `yaml:"pull_pattern_keys"`

	// CleanUp removes pulled files from the device.
	CleanUp bool `yaml:"clean_up"`

	// BatteryInterval is the sampling period of the battery level collector.
	// Zero or negative falls back to the collector default.
	BatteryInterval time.Duration `yaml:"battery_interval"`
}

// MapsConfig overrides the Maps helper timeouts. Zero keeps the helper default.
type MapsConfig struct {
	TryAgainTimeout time.Duration `yaml:"try_again_timeout"`
	TermsTimeout    time.Duration `yaml:"terms_timeout"`
	WiFiTimeout     time.Duration `yaml:"wifi_timeout"`
	DialogTimeout   time.Duration `yaml:"dialog_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	LaunchTimeout   time.Duration `yaml:"launch_timeout"`
	TermsAttempts   int           `yaml:"terms_attempts"`
}

// AutoConfig overrides the Auto launcher strategy settings.
type AutoConfig struct {
	AppInitWait   time.Duration `yaml:"app_init_wait"`
	FacetAttempts int           `yaml:"facet_attempts"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values. It is what the
// CLI uses when no config file is given.
func Default() *Config {
	return &Config{
		Host: HostConfig{
			APKDir:        ".",
			LogLevel:      DefaultLogLevel,
			LogFormat:     DefaultLogFormat,
			PollInterval:  DefaultPollInterval,
			AgentInterval: DefaultAgentInterval,
			BufferSize:    DefaultBufferSize,
			SendTimeout:   DefaultSendTimeout,
			ServerAuth: AuthConfig{
				Header: DefaultAPIKeyHeader,
			},
			Collectors: CollectorsConfig{
				CleanUp:         true,
				BatteryInterval: DefaultBatteryInterval,
			},
		},
	}
}

// validate checks structural constraints.
func validate(cfg *Config) error {
	h := cfg.Host
	switch h.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("host.log_level: unknown level %q", h.LogLevel)
	}
	switch h.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("host.log_format: unknown format %q", h.LogFormat)
	}
	if h.PollInterval <= 0 {
		return fmt.Errorf("host.poll_interval must be positive")
	}
	if h.AgentInterval <= 0 {
		return fmt.Errorf("host.agent_interval must be positive")
	}
	if h.BufferSize <= 0 {
		return fmt.Errorf("host.buffer_size must be positive")
	}
	if h.SendTimeout <= 0 {
		return fmt.Errorf("host.send_timeout must be positive")
	}
	switch h.ServerAuth.Mode {
	case "apikey":
		if h.ServerAuth.KeyEnv == "" {
			return fmt.Errorf("host.server_auth: key_env is required for apikey mode")
		}
		if h.ServerAuth.Header == "" {
			return fmt.Errorf("host.server_auth: header is required for apikey mode")
		}
	case "bearer":
		if h.ServerAuth.TokenEnv == "" {
			return fmt.Errorf("host.server_auth: token_env is required for bearer mode")
		}
	case "none", "":
	default:
		return fmt.Errorf("host.server_auth: unknown mode %q", h.ServerAuth.Mode)
	}
	if h.Maps.TermsAttempts < 0 {
		return fmt.Errorf("host.maps.terms_attempts must not be negative")
	}
	if h.Auto.FacetAttempts < 0 {
		return fmt.Errorf("host.auto.facet_attempts must not be negative")
	}
	return nil
}

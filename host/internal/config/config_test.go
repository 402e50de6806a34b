package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
host:
  serial: emulator-5554
  apk_dir: /opt/apks
  log_level: debug
  log_format: json
  server_endpoint: "http://results:8080"
  buffer_size: 50
  server_auth:
    mode: apikey
    key_env: INSTRUMENTKIT_API_KEY
  collectors:
    pull_pattern_keys: ["android.device.collectors.ScreenshotListener_.*"]
    clean_up: false
    battery_interval: 30s
  maps:
    wifi_timeout: 40s
    idle_timeout: 4s
    launch_timeout: 15s
    terms_attempts: 5
  auto:
    facet_attempts: 3
`
	cfg := loadFromString(t, yaml)
	h := cfg.Host

	if h.Serial != "emulator-5554" {
		t.Errorf("serial: got %q", h.Serial)
	}
	if h.LogFormat != "json" {
		t.Errorf("log_format: got %q", h.LogFormat)
	}
	if h.BufferSize != 50 {
		t.Errorf("buffer_size: got %d", h.BufferSize)
	}
	if h.ServerAuth.Header != DefaultAPIKeyHeader {
		t.Errorf("server_auth.header: got %q, want default %q", h.ServerAuth.Header, DefaultAPIKeyHeader)
	}
	if len(h.Collectors.PullPatternKeys) != 1 || h.Collectors.CleanUp {
		t.Errorf("collectors: got %+v", h.Collectors)
	}
	if h.Collectors.BatteryInterval != 30*time.Second {
		t.Errorf("battery_interval: got %v", h.Collectors.BatteryInterval)
	}
	if h.Maps.WiFiTimeout != 40*time.Second || h.Maps.TermsAttempts != 5 {
		t.Errorf("maps: got %+v", h.Maps)
	}
	if h.Maps.IdleTimeout != 4*time.Second || h.Maps.LaunchTimeout != 15*time.Second {
		t.Errorf("maps idle/launch timeouts: got %v/%v", h.Maps.IdleTimeout, h.Maps.LaunchTimeout)
	}
	if h.Auto.FacetAttempts != 3 {
		t.Errorf("auto.facet_attempts: got %d", h.Auto.FacetAttempts)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "host: {}\n")
	h := cfg.Host

	if h.AgentInterval != DefaultAgentInterval {
		t.Errorf("default agent_interval: got %v, want %v", h.AgentInterval, DefaultAgentInterval)
	}
	if h.PollInterval != DefaultPollInterval {
		t.Errorf("default poll_interval: got %v, want %v", h.PollInterval, DefaultPollInterval)
	}
	if h.BufferSize != DefaultBufferSize {
		t.Errorf("default buffer_size: got %d, want %d", h.BufferSize, DefaultBufferSize)
	}
	if !h.Collectors.CleanUp {
		t.Error("default collectors.clean_up: got false")
	}
	if h.ServerEndpoint != "" {
		t.Errorf("default server_endpoint: got %q, want empty", h.ServerEndpoint)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"log level":        "host:\n  log_level: loud\n",
		"log format":       "host:\n  log_format: xml\n",
		"poll interval":    "host:\n  poll_interval: 0s\n",
		"buffer size":      "host:\n  buffer_size: -1\n",
		"auth mode":        "host:\n  server_auth:\n    mode: magictoken\n",
		"apikey no env":    "host:\n  server_auth:\n    mode: apikey\n",
		"bearer no env":    "host:\n  server_auth:\n    mode: bearer\n",
		"negative attempt": "host:\n  maps:\n    terms_attempts: -1\n",
	}
	for name, yaml := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := loadStringErr(t, yaml); err == nil {
				t.Fatal("expected an error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
	if got := (AuthConfig{}).Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestAuthConfig_Token(t *testing.T) {
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	a := AuthConfig{Mode: "bearer", TokenEnv: "TEST_BEARER_TOKEN"}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q, want %q", got, "mytoken")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("host:\n  log_level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { got <- c }) }()

	// Keep rewriting until the watcher has picked the file up.
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-got:
			if c.Host.LogLevel != "debug" {
				t.Errorf("reloaded log_level = %q, want debug", c.Host.LogLevel)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch: %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(path, []byte("host:\n  log_level: debug\n"), 0o600); err != nil {
				t.Fatal(err)
			}
		case <-ctx.Done():
			t.Fatal("no reload observed")
		}
	}
}

func TestWatch_ReloadsOnRenameSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("host:\n  log_level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { got <- c }) }()

	save := func(level string) {
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, []byte("host:\n  log_level: "+level+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(tmp, path); err != nil {
			t.Fatal(err)
		}
	}

	// Each level is saved by rename until a reload carrying it arrives; the
	// second round proves the watch survived the first rename.
	for _, level := range []string{"debug", "warn"} {
		tick := time.NewTicker(50 * time.Millisecond)
	wait:
		for {
			select {
			case c := <-got:
				if c.Host.LogLevel == level {
					break wait
				}
			case <-tick.C:
				save(level)
			case <-ctx.Done():
				t.Fatalf("no reload to %s observed", level)
			}
		}
		tick.Stop()
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch: %v", err)
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/dronebridge/pkg/command"
	"github.com/germanamz/dronebridge/pkg/syncer"
	"github.com/germanamz/dronebridge/pkg/watchdog"
)

const sampleYAML = `
tower:
  url: ws://127.0.0.1:7070/tower
  app_id: org.example.tower
  dial_timeout: 3s

sink:
  url: ws://127.0.0.1:7071/data
  prefix: /drone/

watchdog_period: 45s
preferences_file: /etc/dronebridge/prefs.yaml

log:
  level: debug
  format: json
`

func validConfig() Config {
	return Config{Tower: TowerConfig{URL: "ws://localhost:7070"}}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ws://127.0.0.1:7070/tower", cfg.Tower.URL)
	assert.Equal(t, "org.example.tower", cfg.TowerAppID())
	assert.Equal(t, 3*time.Second, cfg.DialTimeoutDuration())
	assert.Equal(t, "ws://127.0.0.1:7071/data", cfg.Sink.URL)
	assert.Equal(t, "/drone/", cfg.SinkPrefix())
	assert.Equal(t, 45*time.Second, cfg.WatchdogPeriodDuration())
	assert.Equal(t, "/etc/dronebridge/prefs.yaml", cfg.PreferencesFile)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/no/such/file.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine: load config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tower: [\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine: parse config")
}

func TestLoadConfig_ExpandsEnvVars(t *testing.T) {
	t.Setenv("DRONEBRIDGE_TEST_TOWER", "wss://tower.example:443/ws")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tower:\n  url: ${DRONEBRIDGE_TEST_TOWER}\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://tower.example:443/ws", cfg.Tower.URL)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, watchdog.DefaultPeriod, cfg.WatchdogPeriodDuration())
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeoutDuration())
	assert.Equal(t, command.DefaultTowerAppID, cfg.TowerAppID())
	assert.Equal(t, syncer.DefaultPrefix, cfg.SinkPrefix())
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing tower url", func(c *Config) { c.Tower.URL = "" }, "tower.url is required"},
		{"bad tower scheme", func(c *Config) { c.Tower.URL = "ftp://x" }, "unsupported scheme"},
		{"tower without host", func(c *Config) { c.Tower.URL = "ws://" }, "missing host"},
		{"bad sink url", func(c *Config) { c.Sink.URL = "tcp://x:1" }, "sink.url"},
		{"relative prefix", func(c *Config) { c.Sink.Prefix = "vehicle/" }, "must start with /"},
		{"bad watchdog period", func(c *Config) { c.WatchdogPeriod = "soon" }, "watchdog_period"},
		{"zero watchdog period", func(c *Config) { c.WatchdogPeriod = "0s" }, "must be positive"},
		{"bad dial timeout", func(c *Config) { c.Tower.DialTimeout = "-1s" }, "tower.dial_timeout"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

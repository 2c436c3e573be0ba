package engine

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/germanamz/dronebridge/pkg/command"
	"github.com/germanamz/dronebridge/pkg/syncer"
	"github.com/germanamz/dronebridge/pkg/watchdog"
)

// DefaultDialTimeout bounds the control service dial when tower.dial_timeout
// is unset.
const DefaultDialTimeout = 10 * time.Second

// Config is the top-level bridge configuration.
type Config struct {
	Tower           TowerConfig `yaml:"tower"`
	Sink            SinkConfig  `yaml:"sink"`
	WatchdogPeriod  string      `yaml:"watchdog_period"` // Duration string, default "30s".
	PreferencesFile string      `yaml:"preferences_file"`
	Log             LogConfig   `yaml:"log"`
}

// TowerConfig locates the control service.
type TowerConfig struct {
	URL         string `yaml:"url"`
	AppID       string `yaml:"app_id"`       // Tower app whose vehicle link may be adopted.
	DialTimeout string `yaml:"dial_timeout"` // Duration string, default "10s".
}

// SinkConfig locates the companion data layer. An empty URL logs snapshots
// instead of sending them.
type SinkConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error.
	Format string `yaml:"format"` // text or json.
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR are expanded before
// parsing, so endpoints can be supplied from the environment or a .env file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Tower.URL == "" {
		return fmt.Errorf("engine: config: tower.url is required")
	}
	if err := validateWSURL(c.Tower.URL); err != nil {
		return fmt.Errorf("engine: config: tower.url: %w", err)
	}

	if c.Sink.URL != "" {
		if err := validateWSURL(c.Sink.URL); err != nil {
			return fmt.Errorf("engine: config: sink.url: %w", err)
		}
	}

	if c.Sink.Prefix != "" && !strings.HasPrefix(c.Sink.Prefix, "/") {
		return fmt.Errorf("engine: config: sink.prefix %q must start with /", c.Sink.Prefix)
	}

	if _, err := parseDuration(c.WatchdogPeriod, watchdog.DefaultPeriod); err != nil {
		return fmt.Errorf("engine: config: watchdog_period: %w", err)
	}
	if _, err := parseDuration(c.Tower.DialTimeout, DefaultDialTimeout); err != nil {
		return fmt.Errorf("engine: config: tower.dial_timeout: %w", err)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("engine: config: log.level: %w", err)
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("engine: config: log.format %q: want text or json", c.Log.Format)
	}

	return nil
}

// WatchdogPeriodDuration returns the parsed watchdog period.
func (c Config) WatchdogPeriodDuration() time.Duration {
	d, _ := parseDuration(c.WatchdogPeriod, watchdog.DefaultPeriod)
	return d
}

// DialTimeoutDuration returns the parsed control service dial timeout.
func (c Config) DialTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.Tower.DialTimeout, DefaultDialTimeout)
	return d
}

// TowerAppID returns the adoptable Tower app ID.
func (c Config) TowerAppID() string {
	if c.Tower.AppID == "" {
		return command.DefaultTowerAppID
	}
	return c.Tower.AppID
}

// SinkPrefix returns the data-layer prefix for vehicle attributes.
func (c Config) SinkPrefix() string {
	if c.Sink.Prefix == "" {
		return syncer.DefaultPrefix
	}
	return c.Sink.Prefix
}

// LogLevel returns the configured slog level, info when unset.
func (c Config) LogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return def, err
	}
	if d <= 0 {
		return def, fmt.Errorf("%q must be positive", s)
	}

	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}

	return l, nil
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("missing host")
	}

	return nil
}

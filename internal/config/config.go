package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the monitor
type Config struct {
	Feeds   FeedsConfig   `yaml:"feeds"`
	Camera  CameraConfig  `yaml:"camera"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Poll    PollConfig    `yaml:"poll"`
	Session SessionConfig `yaml:"session"`
	Server  ServerConfig  `yaml:"server"`
	Archive ArchiveConfig `yaml:"archive"`
	Notify  NotifyConfig  `yaml:"notify"`
	Logging LoggingConfig `yaml:"logging"`
}

// FeedsConfig points at the two telemetry channels of the live worker
type FeedsConfig struct {
	MotionURL string        `yaml:"motion_url"`
	HealthURL string        `yaml:"health_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// CameraConfig contains the capture endpoint. An empty URL disables snapshots.
type CameraConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled reports whether a capture endpoint is configured
func (c CameraConfig) Enabled() bool {
	return c.URL != ""
}

// AlertsConfig contains the alert rule thresholds
type AlertsConfig struct {
	GasThreshold float64 `yaml:"gas_threshold"`
	FallKeyword  string  `yaml:"fall_keyword"`
}

// PollConfig contains the tick loop and window settings
type PollConfig struct {
	Delay     time.Duration `yaml:"delay"`
	Retention time.Duration `yaml:"retention"`
	LogRows   int           `yaml:"log_rows"`
	// EvictOnAppend is a pointer so an explicit false survives ApplyDefaults.
	EvictOnAppend *bool `yaml:"evict_on_append"`
	// StaleAfter marks a subject stale after this many failed cycles in a row; 0 disables.
	StaleAfter int `yaml:"stale_after"`
}

// Evicts reports whether expired readings are dropped on append
func (p PollConfig) Evicts() bool {
	return p.EvictOnAppend == nil || *p.EvictOnAppend
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// LoadConfig loads configuration from a YAML file.
// A .env file in the working directory, if present, is loaded first so it can feed the env overrides.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	config.OverrideFromEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.Feeds.Timeout == 0 {
		c.Feeds.Timeout = 5 * time.Second
	}
	if c.Camera.Timeout == 0 {
		c.Camera.Timeout = 2 * time.Second
	}
	if c.Alerts.GasThreshold == 0 {
		c.Alerts.GasThreshold = 300
	}
	if c.Alerts.FallKeyword == "" {
		c.Alerts.FallKeyword = "Fall"
	}
	if c.Poll.Delay == 0 {
		c.Poll.Delay = 1 * time.Second
	}
	if c.Poll.Retention == 0 {
		c.Poll.Retention = 1 * time.Hour
	}
	if c.Poll.LogRows == 0 {
		c.Poll.LogRows = 50
	}
	if c.Poll.EvictOnAppend == nil {
		evict := true
		c.Poll.EvictOnAppend = &evict
	}
	c.applySurfaceDefaults()
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 10
	}
}

// OverrideFromEnv overrides config values from environment variables
func (c *Config) OverrideFromEnv() {
	// Only override if environment variable is set (non-empty)
	if v := os.Getenv("MONITOR_MOTION_URL"); v != "" {
		c.Feeds.MotionURL = v
	}
	if v := os.Getenv("MONITOR_HEALTH_URL"); v != "" {
		c.Feeds.HealthURL = v
	}
	if v := os.Getenv("MONITOR_CAMERA_URL"); v != "" {
		c.Camera.URL = v
	}
	c.overrideSurfacesFromEnv()
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validateHTTPURL("feeds.motion_url", c.Feeds.MotionURL); err != nil {
		return err
	}
	if err := validateHTTPURL("feeds.health_url", c.Feeds.HealthURL); err != nil {
		return err
	}
	if c.Camera.Enabled() {
		if err := validateHTTPURL("camera.url", c.Camera.URL); err != nil {
			return err
		}
	}
	if c.Feeds.Timeout <= 0 || c.Camera.Timeout <= 0 {
		return fmt.Errorf("fetch timeouts must be positive")
	}
	if c.Poll.Delay < 100*time.Millisecond {
		return fmt.Errorf("poll delay must be at least 100ms")
	}
	if c.Poll.Retention < time.Minute {
		return fmt.Errorf("retention must be at least 1 minute")
	}
	if c.Poll.LogRows < 1 {
		return fmt.Errorf("log rows must be at least 1")
	}
	if c.Poll.StaleAfter < 0 {
		return fmt.Errorf("stale_after must not be negative")
	}
	if c.Alerts.GasThreshold < 0 {
		return fmt.Errorf("gas threshold must not be negative")
	}
	if err := c.validateSurfaces(); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("log format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// String returns a safe string representation (hides credentials)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Feeds: %+v, Camera: %+v, Alerts: %+v, Poll: [Delay=%s, Retention=%s, LogRows=%d, Evict=%t, StaleAfter=%d], "+
		"Session: [User=%s, Password=%s], Server: %+v, Archive: %+v, Notify: [Enabled=%t, Broker=%s, Topic=%s, Password=%s], Logging: %+v}",
		c.Feeds,
		c.Camera,
		c.Alerts,
		c.Poll.Delay, c.Poll.Retention, c.Poll.LogRows, c.Poll.Evicts(), c.Poll.StaleAfter,
		c.Session.Username,
		maskToken(c.Session.Password),
		c.Server,
		c.Archive,
		c.Notify.Enabled, c.Notify.Broker, c.Notify.Topic, maskToken(c.Notify.Password),
		c.Logging,
	)
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must start with http:// or https://", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host", field)
	}
	return nil
}

// maskToken masks all but first 4 characters of a secret
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

func isBrokerURL(raw string) bool {
	for _, scheme := range []string{"tcp://", "ssl://", "tls://", "ws://", "wss://"} {
		if strings.HasPrefix(raw, scheme) {
			return true
		}
	}
	return false
}

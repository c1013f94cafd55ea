package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const DefaultNotifyTopic = "worker-monitor/{subject}/alerts"

// SessionConfig holds the single login credential pair
type SessionConfig struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	CookieName string `yaml:"cookie_name"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ArchiveConfig controls the optional SQLite archive of readings and alerts.
// The archive is write-only: the in-memory windows are never restored from it.
type ArchiveConfig struct {
	Enabled        bool          `yaml:"enabled"`
	DBPath         string        `yaml:"db_path"`
	BatchSize      int           `yaml:"batch_size"`
	FlushPeriod    time.Duration `yaml:"flush_period"`
	ChannelSize    int           `yaml:"channel_size"`
	RetentionHours int           `yaml:"retention_hours"`
	CleanupPeriod  time.Duration `yaml:"cleanup_period"`
}

// NotifyConfig controls MQTT alert publishing
type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Topic may contain {subject}, replaced by the subject ID.
	Topic string `yaml:"topic"`
	QoS   byte   `yaml:"qos"`
}

func (c *Config) applySurfaceDefaults() {
	if c.Session.Username == "" {
		c.Session.Username = "admin"
	}
	if c.Session.Password == "" {
		c.Session.Password = "password123"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "worker_monitor_session"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8081
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 60 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Archive.DBPath == "" {
		c.Archive.DBPath = "./data/worker-monitor.db"
	}
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = 50
	}
	if c.Archive.FlushPeriod == 0 {
		c.Archive.FlushPeriod = 5 * time.Second
	}
	if c.Archive.ChannelSize == 0 {
		c.Archive.ChannelSize = 500
	}
	if c.Archive.RetentionHours == 0 {
		c.Archive.RetentionHours = 24
	}
	if c.Archive.CleanupPeriod == 0 {
		c.Archive.CleanupPeriod = time.Hour
	}
	if c.Notify.ClientID == "" {
		c.Notify.ClientID = "worker-monitor"
	}
	if c.Notify.Topic == "" {
		c.Notify.Topic = DefaultNotifyTopic
	}
}

func (c *Config) overrideSurfacesFromEnv() {
	if v := os.Getenv("MONITOR_USERNAME"); v != "" {
		c.Session.Username = v
	}
	if v := os.Getenv("MONITOR_PASSWORD"); v != "" {
		c.Session.Password = v
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		// A non-numeric port is left for Validate to report on the configured value.
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.Notify.Broker = v
	}
}

func (c *Config) validateSurfaces() error {
	if strings.TrimSpace(c.Session.Username) == "" || c.Session.Password == "" {
		return fmt.Errorf("session username and password are required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Archive.Enabled {
		if c.Archive.DBPath == "" {
			return fmt.Errorf("archive db_path is required when the archive is enabled")
		}
		if c.Archive.BatchSize < 1 || c.Archive.ChannelSize < 1 {
			return fmt.Errorf("archive batch_size and channel_size must be positive")
		}
		if c.Archive.RetentionHours < 1 {
			return fmt.Errorf("archive retention_hours must be at least 1")
		}
	}
	if c.Notify.Enabled {
		if !isBrokerURL(c.Notify.Broker) {
			return fmt.Errorf("notify broker must be a tcp://, ssl://, tls://, ws:// or wss:// URL")
		}
		if c.Notify.Topic == "" {
			return fmt.Errorf("notify topic is required")
		}
	}
	if c.Notify.QoS > 2 {
		return fmt.Errorf("notify qos must be 0, 1 or 2")
	}
	return nil
}

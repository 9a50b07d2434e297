package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the root configuration structure
type Config struct {
	App     AppConfig     `json:"app"`
	Server  ServerConfig  `json:"server"`
	Serial  SerialConfig  `json:"serial"`
	Stream  StreamConfig  `json:"stream"`
	Network NetworkConfig `json:"network"`
	NATS    NATSConfig    `json:"nats"`
	Logging LoggingConfig `json:"logging"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name       string `json:"name"`
	InstanceID string `json:"instance_id"`
}

// ServerConfig contains the control API settings
type ServerConfig struct {
	Listen         string   `json:"listen"`          // e.g., ":8000"
	BasePath       string   `json:"base_path"`       // Optional prefix for every route, e.g., "/api"
	AllowedOrigins []string `json:"allowed_origins"` // ["*"] = permissive
}

// SerialConfig contains serial attach settings
type SerialConfig struct {
	DefaultBaudRate int `json:"default_baud_rate"`
	ReadTimeoutMs   int `json:"read_timeout_ms"` // 0 = block until data or close
}

// StreamConfig contains live-tail settings
type StreamConfig struct {
	QueueCapacity   int `json:"queue_capacity"`    // Per-subscriber buffered lines
	PingIntervalSec int `json:"ping_interval_sec"` // WebSocket keepalive
	WriteTimeoutSec int `json:"write_timeout_sec"` // WebSocket write deadline
}

// NetworkConfig contains router automation settings
type NetworkConfig struct {
	RequestTimeoutSec int          `json:"request_timeout_sec"` // Per router HTTP call
	SessionTTLMin     int          `json:"session_ttl_min"`     // How long a router cookie jar is reused
	Router            RouterConfig `json:"router"`
}

// RouterConfig describes one router vendor's management API
type RouterConfig struct {
	Vendor        string `json:"vendor"`         // "form" (generic form-encoded API)
	Scheme        string `json:"scheme"`         // http or https
	LoginPath     string `json:"login_path"`
	BlockPath     string `json:"block_path"`
	UnblockPath   string `json:"unblock_path"`
	UsernameField string `json:"username_field"`
	PasswordField string `json:"password_field"`
	MACField      string `json:"mac_field"`
	SuccessField  string `json:"success_field"` // JSON field holding the success indicator
	SuccessValue  string `json:"success_value"` // Expected value, compared as text
	SuccessText   string `json:"success_text"`  // Alternative: body must contain this text
	SkipTLSVerify bool   `json:"skip_tls_verify"`
}

// NATSConfig contains the optional NATS mirror settings
type NATSConfig struct {
	Enabled          bool   `json:"enabled"`
	URL              string `json:"url"`                // NATS server URL
	SubjectPrefix    string `json:"subject_prefix"`     // Prefix for subjects (e.g., "espmon")
	MaxReconnects    int    `json:"max_reconnects"`     // Max reconnection attempts
	ReconnectWaitSec int    `json:"reconnect_wait_sec"` // Wait between reconnects
	HeartbeatSec     int    `json:"heartbeat_sec"`      // Status heartbeat interval
	MirrorLines      bool   `json:"mirror_lines"`       // Publish every serial line
}

// LoggingConfig contains service logging and log rotation settings
type LoggingConfig struct {
	BasePath   string `json:"base_path"`   // Empty = stdout
	MaxSizeMB  int    `json:"max_size_mb"` // Max size before rotation
	MaxBackups int    `json:"max_backups"` // Max number of old log files
	Compress   bool   `json:"compress"`    // Compress rotated logs
	Level      string `json:"level"`       // Log level: debug, info, warn, error
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	cfg.applyEnv()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.setDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults fills in default values for optional fields
func (c *Config) setDefaults() {
	if c.App.Name == "" {
		c.App.Name = "ESPMonitor"
	}
	if c.App.InstanceID == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			c.App.InstanceID = host
		} else {
			c.App.InstanceID = "default"
		}
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8000"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	if c.Serial.DefaultBaudRate == 0 {
		c.Serial.DefaultBaudRate = 115200
	}

	if c.Stream.QueueCapacity == 0 {
		c.Stream.QueueCapacity = 5000
	}
	if c.Stream.PingIntervalSec == 0 {
		c.Stream.PingIntervalSec = 30
	}
	if c.Stream.WriteTimeoutSec == 0 {
		c.Stream.WriteTimeoutSec = 10
	}

	if c.Network.RequestTimeoutSec == 0 {
		c.Network.RequestTimeoutSec = 10
	}
	if c.Network.SessionTTLMin == 0 {
		c.Network.SessionTTLMin = 15
	}
	r := &c.Network.Router
	if r.Vendor == "" {
		r.Vendor = "form"
	}
	if r.Scheme == "" {
		r.Scheme = "http"
	}
	if r.LoginPath == "" {
		r.LoginPath = "/api/login"
	}
	if r.BlockPath == "" {
		r.BlockPath = "/api/access/block"
	}
	if r.UnblockPath == "" {
		r.UnblockPath = "/api/access/unblock"
	}
	if r.UsernameField == "" {
		r.UsernameField = "username"
	}
	if r.PasswordField == "" {
		r.PasswordField = "password"
	}
	if r.MACField == "" {
		r.MACField = "mac"
	}
	if r.SuccessField == "" && r.SuccessText == "" {
		r.SuccessField = "success"
		r.SuccessValue = "true"
	}

	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "espmon"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}
	if c.NATS.ReconnectWaitSec == 0 {
		c.NATS.ReconnectWaitSec = 5
	}
	if c.NATS.HeartbeatSec == 0 {
		c.NATS.HeartbeatSec = 60
	}

	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 50
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// applyEnv lets deployers override deployment-specific settings without
// editing the config file
func (c *Config) applyEnv() {
	if v := os.Getenv("ESPMON_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("ESPMON_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			c.Server.AllowedOrigins = origins
		}
	}
	if v := os.Getenv("ESPMON_NATS_URL"); v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
}

// Helper methods for time conversions
func (s *SerialConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

func (s *StreamConfig) PingInterval() time.Duration {
	return time.Duration(s.PingIntervalSec) * time.Second
}

func (s *StreamConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSec) * time.Second
}

func (n *NetworkConfig) RequestTimeout() time.Duration {
	return time.Duration(n.RequestTimeoutSec) * time.Second
}

func (n *NetworkConfig) SessionTTL() time.Duration {
	return time.Duration(n.SessionTTLMin) * time.Minute
}

func (n *NATSConfig) ReconnectWait() time.Duration {
	return time.Duration(n.ReconnectWaitSec) * time.Second
}

func (n *NATSConfig) HeartbeatInterval() time.Duration {
	return time.Duration(n.HeartbeatSec) * time.Second
}

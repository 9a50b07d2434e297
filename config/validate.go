package config

import (
	"fmt"
	"net/url"
	"strings"

	"espmonitor/serial"
)

var (
	// Valid log levels
	validLogLevels = map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	// Router vendors with a built-in adapter
	validVendors = map[string]bool{
		"form": true,
	}
)

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.validateApp(); err != nil {
		return fmt.Errorf("app config: %w", err)
	}

	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.validateSerial(); err != nil {
		return fmt.Errorf("serial config: %w", err)
	}

	if err := c.validateStream(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	if err := c.validateNetwork(); err != nil {
		return fmt.Errorf("network config: %w", err)
	}

	if err := c.validateNATS(); err != nil {
		return fmt.Errorf("nats config: %w", err)
	}

	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func (c *Config) validateApp() error {
	if c.App.Name == "" {
		return fmt.Errorf("name is required")
	}

	if c.App.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("listen is required")
	}

	if c.Server.BasePath != "" {
		if !strings.HasPrefix(c.Server.BasePath, "/") {
			return fmt.Errorf("base_path must start with /, got: %s", c.Server.BasePath)
		}
		if strings.HasSuffix(c.Server.BasePath, "/") {
			return fmt.Errorf("base_path must not end with /, got: %s", c.Server.BasePath)
		}
	}

	for _, origin := range c.Server.AllowedOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("allowed_origins entry %q must be * or scheme://host[:port]", origin)
		}
	}

	return nil
}

func (c *Config) validateSerial() error {
	if !serial.ValidBaudRate(c.Serial.DefaultBaudRate) {
		return fmt.Errorf("invalid default_baud_rate %d, must be one of: %s",
			c.Serial.DefaultBaudRate, serial.BaudRateList())
	}

	if c.Serial.ReadTimeoutMs < 0 {
		return fmt.Errorf("read_timeout_ms must be non-negative, got: %d", c.Serial.ReadTimeoutMs)
	}

	return nil
}

func (c *Config) validateStream() error {
	if c.Stream.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got: %d", c.Stream.QueueCapacity)
	}

	if c.Stream.PingIntervalSec <= 0 {
		return fmt.Errorf("ping_interval_sec must be positive, got: %d", c.Stream.PingIntervalSec)
	}

	if c.Stream.WriteTimeoutSec <= 0 {
		return fmt.Errorf("write_timeout_sec must be positive, got: %d", c.Stream.WriteTimeoutSec)
	}

	return nil
}

func (c *Config) validateNetwork() error {
	if c.Network.RequestTimeoutSec <= 0 {
		return fmt.Errorf("request_timeout_sec must be positive, got: %d", c.Network.RequestTimeoutSec)
	}

	if c.Network.SessionTTLMin <= 0 {
		return fmt.Errorf("session_ttl_min must be positive, got: %d", c.Network.SessionTTLMin)
	}

	r := c.Network.Router
	if !validVendors[r.Vendor] {
		return fmt.Errorf("unsupported router vendor %q", r.Vendor)
	}

	if r.Scheme != "http" && r.Scheme != "https" {
		return fmt.Errorf("router scheme must be http or https, got: %s", r.Scheme)
	}

	for name, path := range map[string]string{
		"login_path":   r.LoginPath,
		"block_path":   r.BlockPath,
		"unblock_path": r.UnblockPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("router %s must start with /, got: %q", name, path)
		}
	}

	if r.MACField == "" {
		return fmt.Errorf("router mac_field is required")
	}

	if r.SuccessField == "" && r.SuccessText == "" {
		return fmt.Errorf("router needs success_field or success_text")
	}

	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}

	if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		return fmt.Errorf("url must start with nats:// or tls://, got: %s", c.NATS.URL)
	}

	if c.NATS.SubjectPrefix == "" {
		return fmt.Errorf("subject_prefix is required")
	}

	// -1 means unlimited reconnects (NATS client convention)
	if c.NATS.MaxReconnects < -1 {
		return fmt.Errorf("max_reconnects must be -1 (unlimited) or non-negative, got: %d", c.NATS.MaxReconnects)
	}

	if c.NATS.ReconnectWaitSec <= 0 {
		return fmt.Errorf("reconnect_wait_sec must be positive, got: %d", c.NATS.ReconnectWaitSec)
	}

	if c.NATS.HeartbeatSec <= 0 {
		return fmt.Errorf("heartbeat_sec must be positive, got: %d", c.NATS.HeartbeatSec)
	}

	return nil
}

func (c *Config) validateLogging() error {
	if c.Logging.MaxSizeMB <= 0 {
		return fmt.Errorf("max_size_mb must be positive, got: %d", c.Logging.MaxSizeMB)
	}

	if c.Logging.MaxBackups < 0 {
		return fmt.Errorf("max_backups must be non-negative, got: %d", c.Logging.MaxBackups)
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %s, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

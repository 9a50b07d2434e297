package config

import (
	"testing"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	tmpDir := t.TempDir()
	return &Config{
		App: AppConfig{
			Name:       "Test",
			InstanceID: "test-01",
		},
		Server: ServerConfig{
			Listen:         ":8000",
			AllowedOrigins: []string{"*"},
		},
		Serial: SerialConfig{
			DefaultBaudRate: 115200,
		},
		Stream: StreamConfig{
			QueueCapacity:   100,
			PingIntervalSec: 30,
			WriteTimeoutSec: 10,
		},
		Network: NetworkConfig{
			RequestTimeoutSec: 10,
			SessionTTLMin:     15,
			Router: RouterConfig{
				Vendor:        "form",
				Scheme:        "http",
				LoginPath:     "/api/login",
				BlockPath:     "/api/access/block",
				UnblockPath:   "/api/access/unblock",
				UsernameField: "username",
				PasswordField: "password",
				MACField:      "mac",
				SuccessField:  "success",
				SuccessValue:  "true",
			},
		},
		NATS: NATSConfig{
			Enabled:          true,
			URL:              "nats://localhost:4222",
			SubjectPrefix:    "espmon",
			MaxReconnects:    -1,
			ReconnectWaitSec: 5,
			HeartbeatSec:     60,
		},
		Logging: LoggingConfig{
			BasePath:   tmpDir,
			MaxSizeMB:  10,
			MaxBackups: 3,
			Level:      "info",
		},
	}
}

type validateCase struct {
	name    string
	modify  func(*Config)
	wantErr bool
}

func runValidateCases(t *testing.T, tests []validateCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateValidConfig(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidateAppConfig(t *testing.T) {
	runValidateCases(t, []validateCase{
		{"missing app name", func(c *Config) { c.App.Name = "" }, true},
		{"missing instance_id", func(c *Config) { c.App.InstanceID = "" }, true},
	})
}

func TestValidateServerConfig(t *testing.T) {
	runValidateCases(t, []validateCase{
		{"missing listen", func(c *Config) { c.Server.Listen = "" }, true},
		{"base path", func(c *Config) { c.Server.BasePath = "/api" }, false},
		{"base path without leading slash", func(c *Config) { c.Server.BasePath = "api" }, true},
		{"base path with trailing slash", func(c *Config) { c.Server.BasePath = "/api/" }, true},
		{"explicit origins", func(c *Config) {
			c.Server.AllowedOrigins = []string{"http://localhost:5173", "https://bench.example.com"}
		}, false},
		{"origin without scheme", func(c *Config) { c.Server.AllowedOrigins = []string{"localhost:5173"} }, true},
	})
}

func TestValidateSerialConfig(t *testing.T) {
	runValidateCases(t, []validateCase{
		{"boot rom rate", func(c *Config) { c.Serial.DefaultBaudRate = 74880 }, false},
		{"non-standard rate", func(c *Config) { c.Serial.DefaultBaudRate = 12345 }, true},
		{"zero rate", func(c *Config) { c.Serial.DefaultBaudRate = 0 }, true},
		{"negative read timeout", func(c *Config) { c.Serial.ReadTimeoutMs = -1 }, true},
	})
}

func TestValidateStreamConfig(t *testing.T) {
	runValidateCases(t, []validateCase{
		{"zero queue capacity", func(c *Config) { c.Stream.QueueCapacity = 0 }, true},
		{"zero ping interval", func(c *Config) { c.Stream.PingIntervalSec = 0 }, true},
		{"negative write timeout", func(c *Config) { c.Stream.WriteTimeoutSec = -5 }, true},
	})
}

func TestValidateNetworkConfig(t *testing.T) {
	runValidateCases(t, []validateCase{
		{"zero request timeout", func(c *Config) { c.Network.RequestTimeoutSec = 0 }, true},
		{"zero session ttl", func(c *Config) { c.Network.SessionTTLMin = 0 }, true},
		{"unknown vendor", func(c *Config) { c.Network.Router.Vendor = "openwrt" }, true},
		{"https scheme", func(c *Config) { c.Network.Router.Scheme = "https" }, false},
		{"ftp scheme", func(c *Config) { c.Network.Router.Scheme = "ftp" }, true},
		{"relative block path", func(c *Config) { c.Network.Router.BlockPath = "block" }, true},
		{"missing mac field", func(c *Config) { c.Network.Router.MACField = "" }, true},
		{"success text only", func(c *Config) {
			c.Network.Router.SuccessField = ""
			c.Network.Router.SuccessText = "Saved"
		}, false},
		{"no success indicator", func(c *Config) { c.Network.Router.SuccessField = "" }, true},
	})
}

func TestValidateNATSConfig(t *testing.T) {
	runValidateCases(t, []validateCase{
		{"disabled ignores url", func(c *Config) {
			c.NATS.Enabled = false
			c.NATS.URL = "http://wrong"
		}, false},
		{"tls url", func(c *Config) { c.NATS.URL = "tls://broker:4222" }, false},
		{"http url", func(c *Config) { c.NATS.URL = "http://broker:4222" }, true},
		{"missing subject prefix", func(c *Config) { c.NATS.SubjectPrefix = "" }, true},
		{"max reconnects below -1", func(c *Config) { c.NATS.MaxReconnects = -2 }, true},
		{"zero reconnect wait", func(c *Config) { c.NATS.ReconnectWaitSec = 0 }, true},
		{"zero heartbeat", func(c *Config) { c.NATS.HeartbeatSec = 0 }, true},
	})
}

func TestValidateLoggingConfig(t *testing.T) {
	runValidateCases(t, []validateCase{
		{"zero max size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, true},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, true},
		{"zero backups", func(c *Config) { c.Logging.MaxBackups = 0 }, false},
		{"invalid level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"debug level", func(c *Config) { c.Logging.Level = "debug" }, false},
	})
}

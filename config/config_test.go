package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	configJSON := `{
		"app": {
			"name": "BenchMonitor",
			"instance_id": "bench-01"
		},
		"server": {
			"listen": ":9000",
			"base_path": "/api",
			"allowed_origins": ["http://localhost:5173"]
		},
		"serial": {
			"default_baud_rate": 74880
		},
		"network": {
			"router": {
				"scheme": "https",
				"success_text": "OK",
				"skip_tls_verify": true
			}
		},
		"nats": {
			"enabled": true,
			"url": "nats://localhost:4222",
			"subject_prefix": "lab",
			"mirror_lines": true
		},
		"logging": {
			"base_path": "` + tmpDir + `",
			"level": "debug"
		}
	}`

	if err := os.WriteFile(configPath, []byte(configJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.App.InstanceID != "bench-01" {
		t.Errorf("App.InstanceID = %q, want %q", cfg.App.InstanceID, "bench-01")
	}
	if cfg.Server.Listen != ":9000" || cfg.Server.BasePath != "/api" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Serial.DefaultBaudRate != 74880 {
		t.Errorf("Serial.DefaultBaudRate = %d, want 74880", cfg.Serial.DefaultBaudRate)
	}
	if cfg.Network.Router.SuccessText != "OK" || cfg.Network.Router.SuccessField != "" {
		t.Errorf("success_text should suppress the default success_field, got %+v", cfg.Network.Router)
	}
	if !cfg.NATS.MirrorLines || cfg.NATS.SubjectPrefix != "lab" {
		t.Errorf("NATS = %+v", cfg.NATS)
	}

	// Unset fields pick up defaults
	if cfg.Stream.QueueCapacity != 5000 {
		t.Errorf("Stream.QueueCapacity = %d, want 5000", cfg.Stream.QueueCapacity)
	}
	if cfg.Network.Router.LoginPath != "/api/login" {
		t.Errorf("Router.LoginPath = %q, want default", cfg.Network.Router.LoginPath)
	}
	if cfg.NATS.MaxReconnects != -1 {
		t.Errorf("NATS.MaxReconnects = %d, want -1", cfg.NATS.MaxReconnects)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.json")

	if err := os.WriteFile(configPath, []byte("not valid json"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid JSON, got nil")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"serial": {"default_baud_rate": 12345}}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for non-standard baud rate, got nil")
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("ESPMON_LISTEN", "")
	t.Setenv("ESPMON_ALLOWED_ORIGINS", "")
	t.Setenv("ESPMON_NATS_URL", "")

	cfg := Default()

	if cfg.Server.Listen != ":8000" {
		t.Errorf("Server.Listen = %q, want :8000", cfg.Server.Listen)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("Server.AllowedOrigins = %v, want [*]", cfg.Server.AllowedOrigins)
	}
	if cfg.Serial.DefaultBaudRate != 115200 {
		t.Errorf("Serial.DefaultBaudRate = %d, want 115200", cfg.Serial.DefaultBaudRate)
	}
	if cfg.NATS.Enabled {
		t.Error("NATS should be disabled by default")
	}
	if cfg.App.InstanceID == "" {
		t.Error("App.InstanceID should default to the hostname")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ESPMON_LISTEN", "127.0.0.1:8100")
	t.Setenv("ESPMON_ALLOWED_ORIGINS", "http://a.local, ,http://b.local")
	t.Setenv("ESPMON_NATS_URL", "nats://broker:4222")

	cfg := Default()

	if cfg.Server.Listen != "127.0.0.1:8100" {
		t.Errorf("Server.Listen = %q", cfg.Server.Listen)
	}
	want := []string{"http://a.local", "http://b.local"}
	if len(cfg.Server.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins = %v, want %v", cfg.Server.AllowedOrigins, want)
	}
	for i := range want {
		if cfg.Server.AllowedOrigins[i] != want[i] {
			t.Errorf("AllowedOrigins[%d] = %q, want %q", i, cfg.Server.AllowedOrigins[i], want[i])
		}
	}
	if !cfg.NATS.Enabled || cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("NATS = %+v, want enabled with env URL", cfg.NATS)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{
		Serial:  SerialConfig{ReadTimeoutMs: 250},
		Stream:  StreamConfig{PingIntervalSec: 30, WriteTimeoutSec: 10},
		Network: NetworkConfig{RequestTimeoutSec: 8, SessionTTLMin: 15},
		NATS:    NATSConfig{ReconnectWaitSec: 5, HeartbeatSec: 60},
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"ReadTimeout", cfg.Serial.ReadTimeout(), 250 * time.Millisecond},
		{"PingInterval", cfg.Stream.PingInterval(), 30 * time.Second},
		{"WriteTimeout", cfg.Stream.WriteTimeout(), 10 * time.Second},
		{"RequestTimeout", cfg.Network.RequestTimeout(), 8 * time.Second},
		{"SessionTTL", cfg.Network.SessionTTL(), 15 * time.Minute},
		{"ReconnectWait", cfg.NATS.ReconnectWait(), 5 * time.Second},
		{"HeartbeatInterval", cfg.NATS.HeartbeatInterval(), time.Minute},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s() = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

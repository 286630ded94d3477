package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 15000
  port_retries: 3
worker:
  name: "ValuesWorker"
  options:
    seed: "true"
updater:
  interval: 0.5
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1883
    client_id: "bench-1"
  qos: 1
  topic_prefix: "lab"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "devserver.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 15000 {
		t.Errorf("Server.Port = %d, want 15000", cfg.Server.Port)
	}
	if cfg.Worker.Name != "ValuesWorker" {
		t.Errorf("Worker.Name = %q, want %q", cfg.Worker.Name, "ValuesWorker")
	}
	if cfg.Worker.Options["seed"] != "true" {
		t.Errorf("Worker.Options[seed] = %q, want %q", cfg.Worker.Options["seed"], "true")
	}
	if got := cfg.UpdateInterval(); got != 500*time.Millisecond {
		t.Errorf("UpdateInterval() = %v, want 500ms", got)
	}
	if cfg.MQTT.TopicPrefix != "lab" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "lab")
	}

	// Values not in the file keep their defaults.
	if cfg.Server.ReadBufferSize != 8192 {
		t.Errorf("Server.ReadBufferSize = %d, want default 8192", cfg.Server.ReadBufferSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/devserver.yaml", false)
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_MissingFileAllowed(t *testing.T) {
	cfg, err := Load("/nonexistent/path/devserver.yaml", true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "devserver.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath, true)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
updater:
  interval: 0
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "devserver.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath, false)
	if err == nil {
		t.Error("Load() expected validation error for zero interval, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "negative port retries",
			mutate:  func(c *Config) { c.Server.PortRetries = -1 },
			wantErr: true,
		},
		{
			name:    "empty worker name",
			mutate:  func(c *Config) { c.Worker.Name = "  " },
			wantErr: true,
		},
		{
			name:    "negative interval",
			mutate:  func(c *Config) { c.Updater.Interval = -2 },
			wantErr: true,
		},
		{
			name:    "zero send queue",
			mutate:  func(c *Config) { c.Server.SendQueueSize = 0 },
			wantErr: true,
		},
		{
			name: "invalid QoS only checked when enabled",
			mutate: func(c *Config) {
				c.MQTT.QoS = 3
			},
			wantErr: false,
		},
		{
			name: "invalid QoS",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name: "http port checked when enabled",
			mutate: func(c *Config) {
				c.HTTP.Enabled = true
				c.HTTP.Port = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{WriteTimeout: 7},
		HTTP: HTTPConfig{
			Timeouts: HTTPTimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 7 {
		t.Errorf("GetWriteTimeout() = %v, want 7", got)
	}
	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetHTTPWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetHTTPWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("DEVSERVER_SERVER_HOST", "10.0.0.5")
	t.Setenv("DEVSERVER_SERVER_PORT", "23456")
	t.Setenv("DEVSERVER_DATABASE_PATH", "/custom/path.db")
	t.Setenv("DEVSERVER_MQTT_HOST", "mqtt.example.com")
	t.Setenv("DEVSERVER_MQTT_USERNAME", "testuser")
	t.Setenv("DEVSERVER_MQTT_PASSWORD", "testpass")
	t.Setenv("DEVSERVER_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.Server.Host != "10.0.0.5" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "10.0.0.5")
	}
	if cfg.Server.Port != 23456 {
		t.Errorf("Server.Port = %d, want 23456", cfg.Server.Port)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestApplyEnvOverrides_BadPortIgnored(t *testing.T) {
	cfg := Default()
	t.Setenv("DEVSERVER_SERVER_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Default Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.PortRetries != 10 {
		t.Errorf("Default Server.PortRetries = %d, want 10", cfg.Server.PortRetries)
	}
	if cfg.UpdateInterval() != time.Second {
		t.Errorf("Default UpdateInterval() = %v, want 1s", cfg.UpdateInterval())
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

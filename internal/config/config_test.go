package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JaimeStill/headcount/internal/config"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"

[server]
port = 8080

[database]
host = "localhost"
name = "headcount"
user = "headcount"

[cache]
url = "redis://localhost:6379/1"

[api]
base_path = "/api"
max_frame_size = "4MB"

[auth]
jwt_secret = "test-secret"

[engine]
anonymization_salt = "pepper"
threshold = 0.75
capacity = 50
window = "10m"

[history]
default_limit = 20

[broadcast]
interval = "1s"

[broadcast.mqtt]
broker = "tcp://localhost:1883"
qos = 1

[detection]
provider = "none"
`

const overlayConfig = `
[server]
port = 9090

[engine]
threshold = 0.8
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func TestLoadFrom(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)

	cfg, err := config.LoadFrom(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Cache.URL != "redis://localhost:6379/1" {
		t.Errorf("cache url: got %s", cfg.Cache.URL)
	}
	if cfg.API.MaxFrameSizeBytes() != 4*1024*1024 {
		t.Errorf("max frame size: got %d", cfg.API.MaxFrameSizeBytes())
	}
	if cfg.Engine.Threshold != 0.75 || cfg.Engine.Capacity != 50 {
		t.Errorf("engine: got %+v", cfg.Engine)
	}
	if cfg.Engine.WindowDuration() != 10*time.Minute {
		t.Errorf("engine window: got %s", cfg.Engine.WindowDuration())
	}
	if cfg.History.DefaultLimit != 20 || cfg.History.MaxLimit != 100 {
		t.Errorf("history limits: got %d/%d", cfg.History.DefaultLimit, cfg.History.MaxLimit)
	}
	if cfg.History.WindowDuration() != 24*time.Hour {
		t.Errorf("history window: got %s", cfg.History.WindowDuration())
	}
	if cfg.Broadcast.IntervalDuration() != time.Second {
		t.Errorf("broadcast interval: got %s", cfg.Broadcast.IntervalDuration())
	}
	if !cfg.Broadcast.MQTT.Enabled() || cfg.Broadcast.MQTT.Topic != "headcount/live-count" {
		t.Errorf("mqtt: got %+v", cfg.Broadcast.MQTT)
	}
	if cfg.Auth.TokenExpiryDuration() != 24*time.Hour {
		t.Errorf("token expiry: got %s", cfg.Auth.TokenExpiryDuration())
	}
	if cfg.Storage.Enabled() {
		t.Error("storage should be disabled without an endpoint")
	}
}

func TestLoadWithOverlay(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)
	writeConfig(t, dir, "config.staging.toml", overlayConfig)

	t.Setenv(config.EnvHeadcountEnv, "staging")

	cfg, err := config.LoadFrom(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090 (from overlay)", cfg.Server.Port)
	}
	if cfg.Engine.Threshold != 0.8 {
		t.Errorf("threshold: got %g, want 0.8 (from overlay)", cfg.Engine.Threshold)
	}
	if cfg.Engine.Capacity != 50 {
		t.Errorf("capacity: got %d, want 50 (from base)", cfg.Engine.Capacity)
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", baseConfig)

	t.Setenv(config.EnvHeadcountVersion, "2.0.0")
	t.Setenv(config.EnvServerPort, "3000")
	t.Setenv(config.EnvEngineAnonymizationSalt, "from-env")
	t.Setenv("HEADCOUNT_DETECTION_PROVIDER", "vision")

	cfg, err := config.LoadFrom(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Version != "2.0.0" {
		t.Errorf("version: got %s, want 2.0.0", cfg.Version)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("server port: got %d, want 3000", cfg.Server.Port)
	}
	if cfg.Engine.AnonymizationSalt != "from-env" {
		t.Errorf("salt: got %s", cfg.Engine.AnonymizationSalt)
	}
	if cfg.Detection.Provider != config.DetectionVision {
		t.Errorf("provider: got %s", cfg.Detection.Provider)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("HEADCOUNT_DB_NAME", "testdb")
	t.Setenv("HEADCOUNT_DB_USER", "testuser")
	t.Setenv(config.EnvAuthJWTSecret, "secret")
	t.Setenv(config.EnvEngineAnonymizationSalt, "salt")

	cfg, err := config.LoadFrom(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("load without config.toml failed: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("server port default: got %d, want 8000", cfg.Server.Port)
	}
	if cfg.Server.ReadHeaderTimeoutDuration() != 10*time.Second {
		t.Errorf("read header timeout default: got %s", cfg.Server.ReadHeaderTimeoutDuration())
	}
	if cfg.Engine.Threshold != 0.6 || cfg.Engine.Capacity != 1000 {
		t.Errorf("engine defaults: got %+v", cfg.Engine)
	}
	if cfg.Engine.WindowDuration() != 30*time.Minute {
		t.Errorf("window default: got %s", cfg.Engine.WindowDuration())
	}
	if cfg.Broadcast.IntervalDuration() != 2*time.Second {
		t.Errorf("interval default: got %s", cfg.Broadcast.IntervalDuration())
	}
	if cfg.Detection.Provider != config.DetectionNone {
		t.Errorf("provider default: got %s", cfg.Detection.Provider)
	}
	if cfg.Logging.Mode != "development" {
		t.Errorf("logging default: got %s", cfg.Logging.Mode)
	}
}

func TestLoadRequiredSecrets(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		salt    string
		wantErr error
	}{
		{"missing jwt secret", "", "salt", config.ErrMissingJWTSecret},
		{"missing salt", "secret", "", config.ErrMissingSalt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Setenv("HEADCOUNT_DB_NAME", "testdb")
			t.Setenv("HEADCOUNT_DB_USER", "testuser")
			if tt.secret != "" {
				t.Setenv(config.EnvAuthJWTSecret, tt.secret)
			}
			if tt.salt != "" {
				t.Setenv(config.EnvEngineAnonymizationSalt, tt.salt)
			}

			_, err := config.LoadFrom(filepath.Join(dir, "config.toml"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngineValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EngineConfig
		wantErr bool
	}{
		{"defaults", config.EngineConfig{AnonymizationSalt: "s"}, false},
		{"threshold above one", config.EngineConfig{AnonymizationSalt: "s", Threshold: 1.5}, true},
		{"negative capacity", config.EngineConfig{AnonymizationSalt: "s", Capacity: -1}, true},
		{"bad window", config.EngineConfig{AnonymizationSalt: "s", Window: "soon"}, true},
		{"zero window", config.EngineConfig{AnonymizationSalt: "s", Window: "0s"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Finalize error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHistoryValidation(t *testing.T) {
	cfg := config.HistoryConfig{DefaultLimit: 200, MaxLimit: 100}
	if err := cfg.Finalize(); err == nil {
		t.Error("expected error when default_limit exceeds max_limit")
	}
}

func TestDetectionValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DetectionConfig
		wantErr bool
	}{
		{"default none", config.DetectionConfig{}, false},
		{"vision", config.DetectionConfig{Provider: config.DetectionVision}, false},
		{"worker without command", config.DetectionConfig{Provider: config.DetectionWorker}, true},
		{"worker", config.DetectionConfig{
			Provider: config.DetectionWorker,
			Worker:   config.WorkerConfig{Command: "python3", Args: []string{"worker.py"}},
		}, false},
		{"unknown", config.DetectionConfig{Provider: "magic"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Finalize error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBroadcastValidation(t *testing.T) {
	cfg := config.BroadcastConfig{MQTT: config.MQTTConfig{QoS: 3}}
	if err := cfg.Finalize(); err == nil {
		t.Error("expected error for qos 3")
	}
}

func TestAuthOIDC(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "s", OIDCIssuer: "https://issuer.example.com"}
	if err := cfg.Finalize(); err == nil {
		t.Error("expected error for missing oidc_client_id")
	}

	cfg.OIDCClientID = "headcount"
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !cfg.OIDCEnabled() {
		t.Error("expected OIDC enabled")
	}
}

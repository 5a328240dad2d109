package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	if config.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("expected default base URL http://localhost:8000, got %s", config.Backend.BaseURL)
	}
	if config.Realtime.BackoffBase != time.Second {
		t.Errorf("expected backoff base 1s, got %v", config.Realtime.BackoffBase)
	}
	if config.Realtime.MaxRetries != 5 {
		t.Errorf("expected max retries 5, got %d", config.Realtime.MaxRetries)
	}
	if config.State.Scope != "default" {
		t.Errorf("expected default scope, got %s", config.State.Scope)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"missing backend", func(c *Config) { c.Backend = nil }, true},
		{"empty base URL", func(c *Config) { c.Backend.BaseURL = "" }, true},
		{"empty ws URL", func(c *Config) { c.Backend.WSBaseURL = "" }, true},
		{"zero request timeout", func(c *Config) { c.Backend.RequestTimeout = 0 }, true},
		{"missing realtime", func(c *Config) { c.Realtime = nil }, true},
		{"negative settle delay", func(c *Config) { c.Realtime.SettleDelay = -time.Second }, true},
		{"zero settle delay ok", func(c *Config) { c.Realtime.SettleDelay = 0 }, false},
		{"zero backoff base", func(c *Config) { c.Realtime.BackoffBase = 0 }, true},
		{"negative max retries", func(c *Config) { c.Realtime.MaxRetries = -1 }, true},
		{"zero max retries ok", func(c *Config) { c.Realtime.MaxRetries = 0 }, false},
		{"zero buffer size", func(c *Config) { c.Realtime.BufferSize = 0 }, true},
		{"missing state", func(c *Config) { c.State = nil }, true},
		{"empty database path", func(c *Config) { c.State.DatabasePath = "" }, true},
		{"empty scope", func(c *Config) { c.State.Scope = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COTRAIN_BACKEND_URL", "http://backend:9000")
	t.Setenv("COTRAIN_BACKEND_WS_URL", "ws://backend:9000")
	t.Setenv("COTRAIN_BACKOFF_BASE", "50ms")
	t.Setenv("COTRAIN_MAX_RETRIES", "3")
	t.Setenv("COTRAIN_PROFILE", "alice")

	config := LoadFromEnv()

	if config.Backend.BaseURL != "http://backend:9000" {
		t.Errorf("expected env base URL, got %s", config.Backend.BaseURL)
	}
	if config.Backend.WSBaseURL != "ws://backend:9000" {
		t.Errorf("expected env ws URL, got %s", config.Backend.WSBaseURL)
	}
	if config.Realtime.BackoffBase != 50*time.Millisecond {
		t.Errorf("expected env backoff base 50ms, got %v", config.Realtime.BackoffBase)
	}
	if config.Realtime.MaxRetries != 3 {
		t.Errorf("expected env max retries 3, got %d", config.Realtime.MaxRetries)
	}
	if config.State.Scope != "alice" {
		t.Errorf("expected env scope alice, got %s", config.State.Scope)
	}
}

func TestLoadFromEnvInvalidValuesIgnored(t *testing.T) {
	t.Setenv("COTRAIN_REQUEST_TIMEOUT", "not-a-duration")
	t.Setenv("COTRAIN_MAX_RETRIES", "not-a-number")

	config := LoadFromEnv()

	if config.Backend.RequestTimeout != 30*time.Second {
		t.Errorf("invalid duration should keep default, got %v", config.Backend.RequestTimeout)
	}
	if config.Realtime.MaxRetries != 5 {
		t.Errorf("invalid integer should keep default, got %d", config.Realtime.MaxRetries)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `{
		"backend": {
			"base_url": "http://train:8000",
			"request_timeout": "45s"
		},
		"realtime": {
			"backoff_base": "2s",
			"max_retries": 8
		},
		"state": {
			"scope": "bob"
		}
	}`

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Backend.BaseURL != "http://train:8000" {
		t.Errorf("expected file base URL, got %s", config.Backend.BaseURL)
	}
	if config.Backend.RequestTimeout != 45*time.Second {
		t.Errorf("expected file request timeout 45s, got %v", config.Backend.RequestTimeout)
	}
	if config.Realtime.BackoffBase != 2*time.Second {
		t.Errorf("expected file backoff base 2s, got %v", config.Realtime.BackoffBase)
	}
	if config.Realtime.MaxRetries != 8 {
		t.Errorf("expected file max retries 8, got %d", config.Realtime.MaxRetries)
	}
	if config.State.Scope != "bob" {
		t.Errorf("expected file scope bob, got %s", config.State.Scope)
	}
	// Fields absent from the file keep their defaults
	if config.Backend.WSBaseURL != "ws://localhost:8000" {
		t.Errorf("expected default ws URL, got %s", config.Backend.WSBaseURL)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadFromFileInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("COTRAIN_PROFILE", "env-profile")

	content := `{"state": {"scope": "file-profile"}}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config := LoadConfigWithPrecedence(path)
	if config.State.Scope != "file-profile" {
		t.Errorf("file should win over environment, got %s", config.State.Scope)
	}

	// Missing file falls back to environment
	config = LoadConfigWithPrecedence("/nonexistent/config.json")
	if config.State.Scope != "env-profile" {
		t.Errorf("missing file should fall back to environment, got %s", config.State.Scope)
	}

	// No file at all uses environment over defaults
	config = LoadConfigWithPrecedence("")
	if config.State.Scope != "env-profile" {
		t.Errorf("empty path should use environment, got %s", config.State.Scope)
	}
}

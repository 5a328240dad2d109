package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings
// coordinator - retry/backoff constants live here, not as module-level globals,
// so tests can inject fast timings
type Config struct {
	Backend  *BackendConfig  `json:"backend"`
	Realtime *RealtimeConfig `json:"realtime"`
	State    *StateConfig    `json:"state"`
}

// BackendConfig locates the external training backend
type BackendConfig struct {
	BaseURL        string        `json:"base_url"`
	WSBaseURL      string        `json:"ws_base_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// RealtimeConfig tunes the coordination channel lifecycle
// FUNCTIONAL DISCOVERY: Backoff for retry n is base*2^n; with the defaults the
// schedule is 1s, 2s, 4s, 8s, 16s and then no further attempts
type RealtimeConfig struct {
	SettleDelay  time.Duration `json:"settle_delay"`
	BackoffBase  time.Duration `json:"backoff_base"`
	MaxRetries   int           `json:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// StateConfig locates the per-profile durable state
// The scope plays the role of a browser tab: each profile holds exactly one
// identity and never shares it with other profiles.
type StateConfig struct {
	DatabasePath string `json:"database_path"`
	Scope        string `json:"scope"`
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: &BackendConfig{
			BaseURL:        "http://localhost:8000",
			WSBaseURL:      "ws://localhost:8000",
			RequestTimeout: 30 * time.Second,
		},
		Realtime: &RealtimeConfig{
			SettleDelay:  300 * time.Millisecond,
			BackoffBase:  time.Second,
			MaxRetries:   5,
			DialTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Second,
			BufferSize:   100,
		},
		State: &StateConfig{
			DatabasePath: "./data/cotrain.db",
			Scope:        "default",
		},
	}
}

// Validate ensures the configuration is usable before component initialization.
func (c *Config) Validate() error {
	if c.Backend == nil {
		return fmt.Errorf("backend configuration is required")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base URL cannot be empty")
	}
	if c.Backend.WSBaseURL == "" {
		return fmt.Errorf("backend websocket base URL cannot be empty")
	}
	if c.Backend.RequestTimeout <= 0 {
		return fmt.Errorf("backend request timeout must be positive")
	}

	if c.Realtime == nil {
		return fmt.Errorf("realtime configuration is required")
	}
	if c.Realtime.SettleDelay < 0 {
		return fmt.Errorf("realtime settle delay cannot be negative")
	}
	if c.Realtime.BackoffBase <= 0 {
		return fmt.Errorf("realtime backoff base must be positive")
	}
	if c.Realtime.MaxRetries < 0 {
		return fmt.Errorf("realtime max retries cannot be negative")
	}
	if c.Realtime.DialTimeout <= 0 {
		return fmt.Errorf("realtime dial timeout must be positive")
	}
	if c.Realtime.WriteTimeout <= 0 {
		return fmt.Errorf("realtime write timeout must be positive")
	}
	if c.Realtime.BufferSize <= 0 {
		return fmt.Errorf("realtime buffer size must be positive")
	}

	if c.State == nil {
		return fmt.Errorf("state configuration is required")
	}
	if c.State.DatabasePath == "" {
		return fmt.Errorf("state database path cannot be empty")
	}
	if c.State.Scope == "" {
		return fmt.Errorf("state scope cannot be empty")
	}

	return nil
}

// LoadFromEnv builds a configuration from defaults overridden by COTRAIN_*
// environment variables.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if baseURL := os.Getenv("COTRAIN_BACKEND_URL"); baseURL != "" {
		config.Backend.BaseURL = baseURL
	}

	if wsURL := os.Getenv("COTRAIN_BACKEND_WS_URL"); wsURL != "" {
		config.Backend.WSBaseURL = wsURL
	}

	if timeout := os.Getenv("COTRAIN_REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Backend.RequestTimeout = d
		}
	}

	if settle := os.Getenv("COTRAIN_SETTLE_DELAY"); settle != "" {
		if d, err := time.ParseDuration(settle); err == nil {
			config.Realtime.SettleDelay = d
		}
	}

	if base := os.Getenv("COTRAIN_BACKOFF_BASE"); base != "" {
		if d, err := time.ParseDuration(base); err == nil {
			config.Realtime.BackoffBase = d
		}
	}

	if retries := os.Getenv("COTRAIN_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			config.Realtime.MaxRetries = n
		}
	}

	if dialTimeout := os.Getenv("COTRAIN_DIAL_TIMEOUT"); dialTimeout != "" {
		if d, err := time.ParseDuration(dialTimeout); err == nil {
			config.Realtime.DialTimeout = d
		}
	}

	if writeTimeout := os.Getenv("COTRAIN_WRITE_TIMEOUT"); writeTimeout != "" {
		if d, err := time.ParseDuration(writeTimeout); err == nil {
			config.Realtime.WriteTimeout = d
		}
	}

	if bufferSize := os.Getenv("COTRAIN_BUFFER_SIZE"); bufferSize != "" {
		if n, err := strconv.Atoi(bufferSize); err == nil {
			config.Realtime.BufferSize = n
		}
	}

	if dbPath := os.Getenv("COTRAIN_STATE_PATH"); dbPath != "" {
		config.State.DatabasePath = dbPath
	}

	if scope := os.Getenv("COTRAIN_PROFILE"); scope != "" {
		config.State.Scope = scope
	}

	return config
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration
// strings like "1s" and "300ms"
type ConfigFile struct {
	Backend  *BackendConfigFile  `json:"backend"`
	Realtime *RealtimeConfigFile `json:"realtime"`
	State    *StateConfigFile    `json:"state"`
}

type BackendConfigFile struct {
	BaseURL        string `json:"base_url"`
	WSBaseURL      string `json:"ws_base_url"`
	RequestTimeout string `json:"request_timeout"`
}

type RealtimeConfigFile struct {
	SettleDelay  string `json:"settle_delay"`
	BackoffBase  string `json:"backoff_base"`
	MaxRetries   int    `json:"max_retries"`
	DialTimeout  string `json:"dial_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type StateConfigFile struct {
	DatabasePath string `json:"database_path"`
	Scope        string `json:"scope"`
}

// LoadFromFile reads a JSON configuration file over the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Backend != nil {
		if configFile.Backend.BaseURL != "" {
			config.Backend.BaseURL = configFile.Backend.BaseURL
		}
		if configFile.Backend.WSBaseURL != "" {
			config.Backend.WSBaseURL = configFile.Backend.WSBaseURL
		}
		if configFile.Backend.RequestTimeout != "" {
			if d, err := time.ParseDuration(configFile.Backend.RequestTimeout); err == nil {
				config.Backend.RequestTimeout = d
			}
		}
	}

	if configFile.Realtime != nil {
		if configFile.Realtime.SettleDelay != "" {
			if d, err := time.ParseDuration(configFile.Realtime.SettleDelay); err == nil {
				config.Realtime.SettleDelay = d
			}
		}
		if configFile.Realtime.BackoffBase != "" {
			if d, err := time.ParseDuration(configFile.Realtime.BackoffBase); err == nil {
				config.Realtime.BackoffBase = d
			}
		}
		if configFile.Realtime.MaxRetries > 0 {
			config.Realtime.MaxRetries = configFile.Realtime.MaxRetries
		}
		if configFile.Realtime.DialTimeout != "" {
			if d, err := time.ParseDuration(configFile.Realtime.DialTimeout); err == nil {
				config.Realtime.DialTimeout = d
			}
		}
		if configFile.Realtime.WriteTimeout != "" {
			if d, err := time.ParseDuration(configFile.Realtime.WriteTimeout); err == nil {
				config.Realtime.WriteTimeout = d
			}
		}
		if configFile.Realtime.BufferSize > 0 {
			config.Realtime.BufferSize = configFile.Realtime.BufferSize
		}
	}

	if configFile.State != nil {
		if configFile.State.DatabasePath != "" {
			config.State.DatabasePath = configFile.State.DatabasePath
		}
		if configFile.State.Scope != "" {
			config.State.Scope = configFile.State.Scope
		}
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch
	// errors early rather than at first backend call
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence loads configuration with precedence
// file > environment > defaults.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// Silently ignore file errors - environment/defaults still work
	}

	return config
}

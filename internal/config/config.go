package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all client configuration.
type Config struct {
	API     APIConfig    `envconfig:"API" yaml:"api"`
	Stream  StreamConfig `envconfig:"STREAM" yaml:"stream"`
	Chat    ChatConfig   `envconfig:"CHAT" yaml:"chat"`
	Logging LogConfig    `envconfig:"LOG" yaml:"logging"`
}

// APIConfig holds REST transport settings for the planning service.
type APIConfig struct {
	BaseURL           string        `envconfig:"BASE_URL" yaml:"base_url"`
	Timeout           time.Duration `envconfig:"TIMEOUT" yaml:"timeout"`
	RetryCount        int           `envconfig:"RETRY_COUNT" yaml:"retry_count"`
	RetryWaitMin      time.Duration `envconfig:"RETRY_WAIT_MIN" yaml:"retry_wait_min"`
	RetryWaitMax      time.Duration `envconfig:"RETRY_WAIT_MAX" yaml:"retry_wait_max"`
	RequestsPerSecond float64       `envconfig:"RPS" yaml:"requests_per_second"`
}

// StreamConfig holds stream connection and reconnection settings.
type StreamConfig struct {
	HeartbeatInterval    time.Duration `envconfig:"HEARTBEAT" yaml:"heartbeat_interval"`
	HandshakeTimeout     time.Duration `envconfig:"HANDSHAKE_TIMEOUT" yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `envconfig:"WRITE_TIMEOUT" yaml:"write_timeout"`
	MaxReconnectAttempts int           `envconfig:"MAX_RECONNECTS" yaml:"max_reconnect_attempts"`
	BackoffBase          time.Duration `envconfig:"BACKOFF_BASE" yaml:"backoff_base"`
	BackoffCap           time.Duration `envconfig:"BACKOFF_CAP" yaml:"backoff_cap"`
	FeedBuffer           int           `envconfig:"FEED_BUFFER" yaml:"feed_buffer"`
}

// ChatConfig holds conversation behavior settings.
type ChatConfig struct {
	IncludeReasoning bool `envconfig:"INCLUDE_REASONING" yaml:"include_reasoning"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LEVEL" yaml:"level"`
	Format string `envconfig:"FORMAT" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:      "http://localhost:8000",
			Timeout:      30 * time.Second,
			RetryCount:   3,
			RetryWaitMin: time.Second,
			RetryWaitMax: 30 * time.Second,
		},
		Stream: StreamConfig{
			HeartbeatInterval:    30 * time.Second,
			HandshakeTimeout:     10 * time.Second,
			WriteTimeout:         10 * time.Second,
			MaxReconnectAttempts: 5,
			BackoffBase:          time.Second,
			BackoffCap:           30 * time.Second,
			FeedBuffer:           64,
		},
		Chat: ChatConfig{
			IncludeReasoning: true,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load resolves configuration from defaults, an optional YAML file,
// and GROUNDPLAN_* environment variables, later layers winning. The
// struct carries no envconfig defaults so unset variables leave file
// values untouched.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("groundplan", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	base, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return fmt.Errorf("api.base_url: scheme must be http or https, got %q", base.Scheme)
	}
	if base.Host == "" {
		return fmt.Errorf("api.base_url: missing host")
	}

	if c.Stream.HeartbeatInterval <= 0 {
		return fmt.Errorf("stream.heartbeat_interval must be positive")
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		return fmt.Errorf("stream.max_reconnect_attempts cannot be negative")
	}
	if c.Stream.BackoffBase <= 0 {
		return fmt.Errorf("stream.backoff_base must be positive")
	}
	if c.Stream.BackoffCap < c.Stream.BackoffBase {
		return fmt.Errorf("stream.backoff_cap cannot be below stream.backoff_base")
	}

	return nil
}

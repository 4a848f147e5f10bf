package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultURL              = "ws://localhost:3003/socket"
	DefaultBackoffInitial   = 1 * time.Second
	DefaultBackoffMax       = 60 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// Config is the top-level watch client configuration.
type Config struct {
	// URL is the server's WebSocket endpoint (ws:// or wss://).
	URL string `yaml:"url"`

	// Origin is sent as the Origin header. Leave empty for non-browser use.
	Origin string `yaml:"origin"`

	// RequestMetricsEvery sends request_metrics on this interval. 0 disables.
	RequestMetricsEvery time.Duration `yaml:"request_metrics_every"`

	// Events limits which events are printed. Empty prints all.
	Events []string `yaml:"events"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	Backoff BackoffConfig `yaml:"backoff"`
	TLS     TLSConfig     `yaml:"tls"`
	Logging LoggingConfig `yaml:"logging"`
}

// BackoffConfig bounds the reconnect delay.
type BackoffConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// TLSConfig holds optional wss:// dial options.
type TLSConfig struct {
	// CAFile is a PEM bundle of trusted roots. When set it replaces the
	// system pool.
	CAFile string `yaml:"ca_file"`

	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

// Wants reports whether event should be printed.
func (c *Config) Wants(event string) bool {
	if len(c.Events) == 0 {
		return true
	}
	for _, e := range c.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Load reads path, if it exists, over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %q: %w", path, err)
			}
		}
	}

	setString(&cfg.URL, "NOTIFYHUB_URL")
	setString(&cfg.Origin, "NOTIFYHUB_ORIGIN")
	setString(&cfg.Logging.Level, "LOG_LEVEL")

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		URL:              DefaultURL,
		HandshakeTimeout: DefaultHandshakeTimeout,
		Backoff: BackoffConfig{
			Initial: DefaultBackoffInitial,
			Max:     DefaultBackoffMax,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url: host is required")
	}
	if cfg.RequestMetricsEvery < 0 {
		return fmt.Errorf("request_metrics_every must not be negative")
	}
	if cfg.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake_timeout must be positive")
	}
	if cfg.Backoff.Initial <= 0 {
		return fmt.Errorf("backoff.initial must be positive")
	}
	if cfg.Backoff.Max < cfg.Backoff.Initial {
		return fmt.Errorf("backoff.max (%v) must be >= backoff.initial (%v)", cfg.Backoff.Max, cfg.Backoff.Initial)
	}
	if cfg.TLS.CAFile != "" {
		if _, err := os.Stat(cfg.TLS.CAFile); err != nil {
			return fmt.Errorf("tls.ca_file: %w", err)
		}
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", cfg.Logging.Format)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

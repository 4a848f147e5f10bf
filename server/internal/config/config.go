package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort        = 3003
	DefaultGRPCPort        = 50051
	DefaultCORSOrigin      = "http://localhost:3000"
	DefaultShutdownGrace   = 10 * time.Second
	DefaultMetricsInterval = 5 * time.Second
	DefaultNotifyInterval  = 30 * time.Second
	DefaultSendBuffer      = 64
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPongWait        = 60 * time.Second
	DefaultMaxMessageSize  = 4096
	DefaultPollWait        = 25 * time.Second
	DefaultHistorySize     = 50
	DefaultRelayRate       = 5.0
	DefaultRelayBurst      = 10
	DefaultBusSubject      = "notifyhub.notifications"
	DefaultScrapeTimeout   = 10 * time.Second
	MaxBusInstance         = 1023
	defaultInitialUsers    = 1247
	defaultInitialRevenue  = 85420000
	defaultInitialLoad     = 24
	defaultInitialUptime   = 99.9
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultMetricsProvider = "random"
	defaultAuthHeader      = "x-api-key"
	defaultServiceName     = "notifyhub-server"
	defaultWebSocketPath   = "/socket"
	defaultPollingPath     = "/socket/poll"
)

// Config is the top-level server configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Hub           HubConfig           `yaml:"hub"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Bus           BusConfig           `yaml:"bus"`
}

// ServerConfig holds listener and HTTP-facing settings.
type ServerConfig struct {
	// HTTPPort serves the WebSocket endpoint, the polling fallback and the
	// REST API (default 3003, env NOTIFICATION_PORT).
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves the gRPC health service. 0 disables it.
	GRPCPort int `yaml:"grpc_port"`

	// ShutdownGrace bounds how long in-flight frames may take to flush on
	// SIGINT/SIGTERM before connections are force-closed.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`

	CORS CORSConfig `yaml:"cors"`
	Auth AuthConfig `yaml:"auth"`
}

// CORSConfig restricts cross-origin access to a single origin.
type CORSConfig struct {
	// Origin is the only allowed origin (default http://localhost:3000,
	// env FRONTEND_URL).
	Origin string `yaml:"origin"`

	// Methods is the allowed method set. Defaults to GET, POST.
	Methods []string `yaml:"methods"`

	// Credentials sets Access-Control-Allow-Credentials.
	Credentials bool `yaml:"credentials"`
}

// AuthConfig guards the mutating REST routes.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return defaultAuthHeader
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"` // json | text
	Service string `yaml:"service"`
}

// HubConfig tunes per-connection transport behaviour.
type HubConfig struct {
	WebSocketPath string `yaml:"websocket_path"`
	PollingPath   string `yaml:"polling_path"`

	// SendBuffer is the per-connection outbox depth. When full, the oldest
	// queued frame is dropped.
	SendBuffer int `yaml:"send_buffer"`

	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PongWait       time.Duration `yaml:"pong_wait"`
	MaxMessageSize int64         `yaml:"max_message_size"`

	// PollWait is how long a long-poll GET waits for frames before returning
	// an empty batch. Polling sessions idle for longer than PongWait expire.
	PollWait time.Duration `yaml:"poll_wait"`

	// RelayRate and RelayBurst limit send_notification per connection.
	RelayRate  float64 `yaml:"relay_rate"`
	RelayBurst int     `yaml:"relay_burst"`
}

// MetricsConfig controls the metrics updater and its data provider.
type MetricsConfig struct {
	Interval time.Duration `yaml:"interval"`

	// Provider is one of: random | host | scrape.
	Provider string `yaml:"provider"`

	Initial InitialMetrics `yaml:"initial"`
	Scrape  ScrapeConfig   `yaml:"scrape"`

	// Seed makes the random provider deterministic when non-zero.
	Seed uint64 `yaml:"seed"`
}

// InitialMetrics seeds the snapshot at startup.
type InitialMetrics struct {
	ActiveUsers  int64   `yaml:"active_users"`
	TotalRevenue int64   `yaml:"total_revenue"`
	ServerLoad   float64 `yaml:"server_load"`
	Uptime       float64 `yaml:"uptime"`
}

// ScrapeConfig maps Prometheus metric families onto snapshot fields.
// Empty metric names leave the corresponding field untouched.
type ScrapeConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	Timeout           time.Duration `yaml:"timeout"`
	ActiveUsersMetric string        `yaml:"active_users_metric"`
	RevenueMetric     string        `yaml:"revenue_metric"`
	LoadMetric        string        `yaml:"load_metric"`

	// Header and KeyEnv add an API key header to every scrape request.
	Header string `yaml:"header"`
	KeyEnv string `yaml:"key_env"`
}

// Key returns the scrape API key resolved from the environment.
func (s ScrapeConfig) Key() string {
	if s.KeyEnv == "" {
		return ""
	}
	return os.Getenv(s.KeyEnv)
}

// NotificationsConfig controls the generator and its catalog.
type NotificationsConfig struct {
	Interval time.Duration `yaml:"interval"`

	// Catalog replaces the built-in templates when non-empty. Message is a
	// Go text/template; {{randInt lo hi}} yields a value in [lo, hi).
	Catalog []TemplateConfig `yaml:"catalog"`

	// HistorySize is how many recent notifications the REST API keeps.
	HistorySize int `yaml:"history_size"`
}

// TemplateConfig is one catalog entry.
type TemplateConfig struct {
	Type     string `yaml:"type"`
	Title    string `yaml:"title"`
	Message  string `yaml:"message"`
	Severity string `yaml:"severity"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition on the metrics snapshot.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is "field op value", e.g. "server_load > 80",
	// "active_users < 10", "total_revenue <= 0".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// BusConfig enables cross-instance notification fan-out over NATS.
type BusConfig struct {
	// NATSURL enables the NATS bus when set (env NATS_URL).
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`

	// Instance is this process's index among the instances sharing the
	// bus, in [0, MaxBusInstance]. It is folded into every notification
	// ID so instances never mint the same ID. -1 picks one at random
	// (env NOTIFYHUB_INSTANCE).
	Instance int `yaml:"instance"`
}

// Load reads the config file at path, if it exists, over the defaults, then
// applies environment overrides and validates the result. A missing file is
// not an error: the service runs on defaults and environment alone.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("server config: read %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("server config: parse yaml: %w", err)
			}
		}
	}

	loadEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:      DefaultHTTPPort,
			GRPCPort:      DefaultGRPCPort,
			ShutdownGrace: DefaultShutdownGrace,
			CORS: CORSConfig{
				Origin:      DefaultCORSOrigin,
				Methods:     []string{"GET", "POST"},
				Credentials: true,
			},
			Auth: AuthConfig{Mode: "none"},
		},
		Logging: LoggingConfig{
			Level:   defaultLogLevel,
			Format:  defaultLogFormat,
			Service: defaultServiceName,
		},
		Hub: HubConfig{
			WebSocketPath:  defaultWebSocketPath,
			PollingPath:    defaultPollingPath,
			SendBuffer:     DefaultSendBuffer,
			WriteTimeout:   DefaultWriteTimeout,
			PongWait:       DefaultPongWait,
			MaxMessageSize: DefaultMaxMessageSize,
			PollWait:       DefaultPollWait,
			RelayRate:      DefaultRelayRate,
			RelayBurst:     DefaultRelayBurst,
		},
		Metrics: MetricsConfig{
			Interval: DefaultMetricsInterval,
			Provider: defaultMetricsProvider,
			Initial: InitialMetrics{
				ActiveUsers:  defaultInitialUsers,
				TotalRevenue: defaultInitialRevenue,
				ServerLoad:   defaultInitialLoad,
				Uptime:       defaultInitialUptime,
			},
			Scrape: ScrapeConfig{Timeout: DefaultScrapeTimeout},
		},
		Notifications: NotificationsConfig{
			Interval:    DefaultNotifyInterval,
			HistorySize: DefaultHistorySize,
		},
		Bus: BusConfig{Subject: DefaultBusSubject, Instance: -1},
	}
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config. NOTIFICATION_PORT
// and FRONTEND_URL keep the names the dashboard deployment already uses.
func loadEnv(cfg *Config) {
	setInt(&cfg.Server.HTTPPort, "NOTIFICATION_PORT")
	setInt(&cfg.Server.GRPCPort, "NOTIFYHUB_GRPC_PORT")
	setString(&cfg.Server.CORS.Origin, "FRONTEND_URL")
	setDuration(&cfg.Server.ShutdownGrace, "NOTIFYHUB_SHUTDOWN_GRACE")
	setString(&cfg.Server.Auth.Mode, "NOTIFYHUB_AUTH_MODE")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setDuration(&cfg.Metrics.Interval, "NOTIFYHUB_METRICS_INTERVAL")
	setString(&cfg.Metrics.Provider, "NOTIFYHUB_METRICS_PROVIDER")
	setDuration(&cfg.Notifications.Interval, "NOTIFYHUB_NOTIFY_INTERVAL")
	setInt(&cfg.Hub.SendBuffer, "NOTIFYHUB_SEND_BUFFER")
	setString(&cfg.Bus.NATSURL, "NATS_URL")
	setInt(&cfg.Bus.Instance, "NOTIFYHUB_INSTANCE")
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.GRPCPort < 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", cfg.Server.GRPCPort)
	}
	if cfg.Server.GRPCPort != 0 && cfg.Server.GRPCPort == cfg.Server.HTTPPort {
		return fmt.Errorf("server.grpc_port and server.http_port must differ (both %d)", cfg.Server.HTTPPort)
	}
	if cfg.Server.CORS.Origin == "" {
		return errors.New("server.cors.origin is required")
	}
	if cfg.Server.ShutdownGrace <= 0 {
		return errors.New("server.shutdown_grace must be positive")
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q unknown: want json|text", cfg.Logging.Format)
	}
	if cfg.Hub.SendBuffer < 1 {
		return errors.New("hub.send_buffer must be >= 1")
	}
	if cfg.Hub.PongWait <= 0 || cfg.Hub.WriteTimeout <= 0 || cfg.Hub.PollWait <= 0 {
		return errors.New("hub.pong_wait, hub.write_timeout and hub.poll_wait must be positive")
	}
	if cfg.Hub.PollWait >= cfg.Hub.PongWait {
		return fmt.Errorf("hub.poll_wait %v must be shorter than hub.pong_wait %v", cfg.Hub.PollWait, cfg.Hub.PongWait)
	}
	if cfg.Hub.RelayRate <= 0 || cfg.Hub.RelayBurst < 1 {
		return errors.New("hub.relay_rate must be positive and hub.relay_burst >= 1")
	}
	if cfg.Metrics.Interval <= 0 {
		return errors.New("metrics.interval must be positive")
	}
	switch cfg.Metrics.Provider {
	case "random", "host":
	case "scrape":
		if cfg.Metrics.Scrape.Endpoint == "" {
			return errors.New("metrics.scrape.endpoint is required when metrics.provider is scrape")
		}
	default:
		return fmt.Errorf("metrics.provider %q unknown: want random|host|scrape", cfg.Metrics.Provider)
	}
	if cfg.Notifications.Interval <= 0 {
		return errors.New("notifications.interval must be positive")
	}
	if cfg.Notifications.HistorySize < 0 {
		return errors.New("notifications.history_size must not be negative")
	}
	for i, t := range cfg.Notifications.Catalog {
		if t.Type == "" || t.Title == "" {
			return fmt.Errorf("notifications.catalog[%d]: type and title are required", i)
		}
		if t.Severity == "" {
			continue
		}
		switch t.Severity {
		case "info", "success", "warning", "error":
		default:
			return fmt.Errorf("notifications.catalog[%d]: severity %q unknown", i, t.Severity)
		}
	}
	if cfg.Bus.Instance < -1 || cfg.Bus.Instance > MaxBusInstance {
		return fmt.Errorf("bus.instance %d is out of range [-1, %d]", cfg.Bus.Instance, MaxBusInstance)
	}
	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d]: name and condition are required", i)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

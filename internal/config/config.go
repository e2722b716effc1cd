// Package config loads and validates monitor configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// MonitorConfig governs the poll loop and alerting policy.
type MonitorConfig struct {
	URL                  string `mapstructure:"url"`
	CheckIntervalSeconds int    `mapstructure:"check_interval"`
	TimeoutSeconds       int    `mapstructure:"timeout"`
	AlertCooldownSeconds int    `mapstructure:"alert_cooldown"`
	UseRenderedCheck     bool   `mapstructure:"use_rendered_check"`
	FailureThreshold     int    `mapstructure:"failure_threshold"`
}

// DetectorConfig tunes the evidence extractor.
type DetectorConfig struct {
	MarkerText        string  `mapstructure:"marker_text"`
	HTTPThreshold     float64 `mapstructure:"http_threshold"`
	RenderedThreshold float64 `mapstructure:"rendered_threshold"`
	SnippetBytes      int     `mapstructure:"snippet_bytes"`
}

// HTTPConfig configures the lightweight fetcher.
type HTTPConfig struct {
	UserAgent  string  `mapstructure:"user_agent"`
	MaxRetries int     `mapstructure:"max_retries"`
	MaxRPS     float64 `mapstructure:"max_rps"`
	Burst      int     `mapstructure:"burst"`
}

// HeadlessConfig configures the rendered-DOM fetcher.
type HeadlessConfig struct {
	Screenshot   bool   `mapstructure:"screenshot"`
	WaitSelector string `mapstructure:"wait_selector"`
}

// AlertsConfig holds channel credentials.
type AlertsConfig struct {
	SendTimeoutSeconds int            `mapstructure:"send_timeout"`
	Email              EmailConfig    `mapstructure:"email"`
	DiscordWebhook     string         `mapstructure:"discord_webhook"`
	Pushover           PushoverConfig `mapstructure:"pushover"`
	PubSub             PubSubConfig   `mapstructure:"pubsub"`
}

// EmailConfig holds SMTP settings and recipients.
type EmailConfig struct {
	SMTPServer string   `mapstructure:"smtp_server"`
	SMTPPort   int      `mapstructure:"smtp_port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	From       string   `mapstructure:"from"`
	To         []string `mapstructure:"to"`
}

// Enabled reports whether any email setting was provided.
func (e EmailConfig) Enabled() bool {
	return e.SMTPServer != "" || e.Username != "" || e.From != "" || len(e.To) > 0
}

// PushoverConfig holds push-notification credentials.
type PushoverConfig struct {
	AppToken string `mapstructure:"app_token"`
	UserKey  string `mapstructure:"user_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// Enabled reports whether any pushover credential was provided.
func (p PushoverConfig) Enabled() bool {
	return p.AppToken != "" || p.UserKey != ""
}

// PubSubConfig holds metadata for publishing alerts to Pub/Sub.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether a pubsub topic was configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" || p.Topic != ""
}

// StorageConfig selects the state/history store.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// ArtifactsConfig selects where debug artifacts are written.
type ArtifactsConfig struct {
	Driver    string `mapstructure:"driver"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ServerConfig controls the status API.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	ServiceName    string `mapstructure:"service_name"`
	// ProjectID selects the Cloud Trace project; empty keeps spans in-process.
	ProjectID string `mapstructure:"project_id"`
}

// ConfigurationError reports an invalid or missing setting detected at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LIQMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("monitor.url", "https://app.strikefinance.org/liquidity")
	v.SetDefault("monitor.check_interval", 15)
	v.SetDefault("monitor.timeout", 12)
	v.SetDefault("monitor.alert_cooldown", 180)
	v.SetDefault("monitor.use_rendered_check", true)
	v.SetDefault("monitor.failure_threshold", 3)
	v.SetDefault("detector.marker_text", "Liquidity Currently Capped")
	v.SetDefault("detector.http_threshold", 0.5)
	v.SetDefault("detector.rendered_threshold", 0.75)
	v.SetDefault("detector.snippet_bytes", 1000)
	v.SetDefault("http.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.max_rps", 2.0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("headless.screenshot", true)
	v.SetDefault("headless.wait_selector", "button")
	v.SetDefault("alerts.send_timeout", 10)
	v.SetDefault("alerts.email.smtp_port", 587)
	v.SetDefault("alerts.pushover.endpoint", "https://api.pushover.net/1/messages.json")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "strike_monitor.db")
	v.SetDefault("artifacts.driver", "local")
	v.SetDefault("artifacts.dir", "logs")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 5000)
	v.SetDefault("logging.development", false)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "liquidity-monitor")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	fail := func(field, reason string) {
		errs = append(errs, &ConfigurationError{Field: field, Reason: reason})
	}

	if strings.TrimSpace(c.Monitor.URL) == "" {
		fail("monitor.url", "must be set")
	}
	if c.Monitor.CheckIntervalSeconds <= 0 {
		fail("monitor.check_interval", "must be > 0")
	}
	if c.Monitor.TimeoutSeconds <= 0 {
		fail("monitor.timeout", "must be > 0")
	}
	if c.Monitor.AlertCooldownSeconds < 0 {
		fail("monitor.alert_cooldown", "must be >= 0")
	}
	if c.Monitor.FailureThreshold <= 0 {
		fail("monitor.failure_threshold", "must be > 0")
	}
	if strings.TrimSpace(c.Detector.MarkerText) == "" {
		fail("detector.marker_text", "must be set")
	}
	if c.Detector.HTTPThreshold <= 0 || c.Detector.HTTPThreshold > 1 {
		fail("detector.http_threshold", "must be in (0, 1]")
	}
	if c.Detector.RenderedThreshold <= 0 || c.Detector.RenderedThreshold > 1 {
		fail("detector.rendered_threshold", "must be in (0, 1]")
	}
	if c.HTTP.MaxRetries < 0 {
		fail("http.max_retries", "must be >= 0")
	}
	if c.HTTP.MaxRPS < 0 {
		fail("http.max_rps", "must be >= 0")
	}
	if c.Alerts.SendTimeoutSeconds <= 0 {
		fail("alerts.send_timeout", "must be > 0")
	}
	errs = append(errs, c.validateChannels()...)

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			fail("storage.sqlite_path", "must be set for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			fail("storage.postgres_dsn", "must be set for the postgres driver")
		}
	case "memory":
	default:
		fail("storage.driver", fmt.Sprintf("unknown driver %q", c.Storage.Driver))
	}

	switch c.Artifacts.Driver {
	case "local":
		if c.Artifacts.Dir == "" {
			fail("artifacts.dir", "must be set for the local driver")
		}
	case "gcs":
		if c.Artifacts.GCSBucket == "" {
			fail("artifacts.gcs_bucket", "must be set for the gcs driver")
		}
	case "memory":
	default:
		fail("artifacts.driver", fmt.Sprintf("unknown driver %q", c.Artifacts.Driver))
	}

	if c.Server.Enabled && c.Server.Port <= 0 {
		fail("server.port", "must be > 0")
	}
	return errors.Join(errs...)
}

func (c Config) validateChannels() []error {
	var errs []error
	fail := func(field, reason string) {
		errs = append(errs, &ConfigurationError{Field: field, Reason: reason})
	}
	a := c.Alerts
	configured := 0
	if a.Email.Enabled() {
		configured++
		if a.Email.SMTPServer == "" {
			fail("alerts.email.smtp_server", "required when email is configured")
		}
		if a.Email.SMTPPort <= 0 {
			fail("alerts.email.smtp_port", "must be > 0")
		}
		if a.Email.Username == "" || a.Email.Password == "" {
			fail("alerts.email.username", "username and password are required when email is configured")
		}
		if a.Email.From == "" {
			fail("alerts.email.from", "required when email is configured")
		}
		if len(a.Email.To) == 0 {
			fail("alerts.email.to", "at least one recipient is required")
		}
	}
	if a.DiscordWebhook != "" {
		configured++
		if !strings.HasPrefix(a.DiscordWebhook, "http://") && !strings.HasPrefix(a.DiscordWebhook, "https://") {
			fail("alerts.discord_webhook", "must be an http(s) URL")
		}
	}
	if a.Pushover.Enabled() {
		configured++
		if a.Pushover.AppToken == "" || a.Pushover.UserKey == "" {
			fail("alerts.pushover", "app_token and user_key are both required")
		}
	}
	if a.PubSub.Enabled() {
		configured++
		if a.PubSub.ProjectID == "" || a.PubSub.Topic == "" {
			fail("alerts.pubsub", "project_id and topic are both required")
		}
	}
	if configured == 0 {
		fail("alerts", "at least one alert channel must be configured")
	}
	return errs
}

// CheckInterval returns the poll interval as a duration.
func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.Monitor.CheckIntervalSeconds) * time.Second
}

// FetchTimeout returns the per-fetch budget as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Monitor.TimeoutSeconds) * time.Second
}

// AlertCooldown returns the minimum time between liquidity alerts.
func (c Config) AlertCooldown() time.Duration {
	return time.Duration(c.Monitor.AlertCooldownSeconds) * time.Second
}

// SendTimeout returns the per-channel send budget.
func (c Config) SendTimeout() time.Duration {
	return time.Duration(c.Alerts.SendTimeoutSeconds) * time.Second
}

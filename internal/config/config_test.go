package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
monitor:
  url: https://example.com/liquidity
  check_interval: 30
  timeout: 20
  alert_cooldown: 600
  use_rendered_check: false
  failure_threshold: 5
detector:
  http_threshold: 0.75
alerts:
  discord_webhook: https://discord.example/webhook
  pushover:
    app_token: app
    user_key: user
storage:
  driver: memory
artifacts:
  driver: memory
server:
  port: 9090
logging:
  development: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Monitor.URL != "https://example.com/liquidity" {
		t.Fatalf("expected url override, got %q", cfg.Monitor.URL)
	}
	if cfg.Monitor.UseRenderedCheck {
		t.Fatal("expected rendered check to be disabled")
	}
	if got := cfg.CheckInterval(); got != 30*time.Second {
		t.Fatalf("expected check interval 30s, got %v", got)
	}
	if got := cfg.FetchTimeout(); got != 20*time.Second {
		t.Fatalf("expected timeout 20s, got %v", got)
	}
	if got := cfg.AlertCooldown(); got != 10*time.Minute {
		t.Fatalf("expected cooldown 10m, got %v", got)
	}
	if cfg.Detector.HTTPThreshold != 0.75 || cfg.Detector.RenderedThreshold != 0.75 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Detector)
	}
	if cfg.Detector.MarkerText != "Liquidity Currently Capped" {
		t.Fatalf("expected default marker text, got %q", cfg.Detector.MarkerText)
	}
	if cfg.Alerts.Pushover.Endpoint == "" {
		t.Fatal("expected default pushover endpoint")
	}
	if cfg.HTTP.MaxRPS != 2 || cfg.Telemetry.ServiceName != "liquidity-monitor" || cfg.Telemetry.TracingEnabled {
		t.Fatalf("unexpected http/telemetry defaults: %+v %+v", cfg.HTTP, cfg.Telemetry)
	}
	if cfg.Server.Port != 9090 || !cfg.Logging.Development {
		t.Fatalf("unexpected server/logging config: %+v %+v", cfg.Server, cfg.Logging)
	}
}

func TestLoadFailsFastWithoutChannels(t *testing.T) {
	t.Parallel()

	_, err := Load("")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if !strings.Contains(err.Error(), "at least one alert channel") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Monitor: MonitorConfig{
			URL:                  "https://example.com",
			CheckIntervalSeconds: 15,
			TimeoutSeconds:       10,
			AlertCooldownSeconds: 180,
			FailureThreshold:     3,
		},
		Detector: DetectorConfig{
			MarkerText:        "Liquidity Currently Capped",
			HTTPThreshold:     0.5,
			RenderedThreshold: 0.75,
		},
		Alerts: AlertsConfig{
			SendTimeoutSeconds: 10,
			DiscordWebhook:     "https://discord.example/hook",
		},
		Storage:   StorageConfig{Driver: "memory"},
		Artifacts: ArtifactsConfig{Driver: "memory"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to be valid, got %v", err)
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "missing url",
			cfg: func() Config {
				c := base
				c.Monitor.URL = " "
				return c
			}(),
			want: "monitor.url",
		},
		{
			name: "invalid interval",
			cfg: func() Config {
				c := base
				c.Monitor.CheckIntervalSeconds = 0
				return c
			}(),
			want: "monitor.check_interval",
		},
		{
			name: "threshold out of range",
			cfg: func() Config {
				c := base
				c.Detector.HTTPThreshold = 1.5
				return c
			}(),
			want: "detector.http_threshold",
		},
		{
			name: "partial email credentials",
			cfg: func() Config {
				c := base
				c.Alerts.Email = EmailConfig{SMTPServer: "smtp.example.com", SMTPPort: 587}
				return c
			}(),
			want: "alerts.email.from",
		},
		{
			name: "partial pushover credentials",
			cfg: func() Config {
				c := base
				c.Alerts.Pushover = PushoverConfig{AppToken: "app"}
				return c
			}(),
			want: "alerts.pushover",
		},
		{
			name: "no channels",
			cfg: func() Config {
				c := base
				c.Alerts.DiscordWebhook = ""
				return c
			}(),
			want: "at least one alert channel",
		},
		{
			name: "postgres without dsn",
			cfg: func() Config {
				c := base
				c.Storage.Driver = "postgres"
				return c
			}(),
			want: "storage.postgres_dsn",
		},
		{
			name: "negative rate limit",
			cfg: func() Config {
				c := base
				c.HTTP.MaxRPS = -1
				return c
			}(),
			want: "http.max_rps",
		},
		{
			name: "unknown artifacts driver",
			cfg: func() Config {
				c := base
				c.Artifacts.Driver = "s3"
				return c
			}(),
			want: "artifacts.driver",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %T", err)
			}
		})
	}
}

// Package app initializes and holds long-lived monitor services, acting as
// a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub/v2"
	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/liquidity-monitor/internal/alert"
	"github.com/JakeFAU/liquidity-monitor/internal/alert/channels"
	"github.com/JakeFAU/liquidity-monitor/internal/api"
	"github.com/JakeFAU/liquidity-monitor/internal/clock/system"
	"github.com/JakeFAU/liquidity-monitor/internal/config"
	"github.com/JakeFAU/liquidity-monitor/internal/diagnostics"
	"github.com/JakeFAU/liquidity-monitor/internal/evidence"
	"github.com/JakeFAU/liquidity-monitor/internal/fetcher"
	collyfetcher "github.com/JakeFAU/liquidity-monitor/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/liquidity-monitor/internal/fetcher/headless"
	"github.com/JakeFAU/liquidity-monitor/internal/hash/sha256"
	"github.com/JakeFAU/liquidity-monitor/internal/id/uuid"
	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
	"github.com/JakeFAU/liquidity-monitor/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/liquidity-monitor/internal/publisher/pubsub"
	"github.com/JakeFAU/liquidity-monitor/internal/scheduler"
	"github.com/JakeFAU/liquidity-monitor/internal/storage/gcs"
	"github.com/JakeFAU/liquidity-monitor/internal/storage/local"
	"github.com/JakeFAU/liquidity-monitor/internal/storage/memory"
	"github.com/JakeFAU/liquidity-monitor/internal/storage/postgres"
	"github.com/JakeFAU/liquidity-monitor/internal/storage/sqlite"
	"github.com/JakeFAU/liquidity-monitor/internal/tracker"
)

// App holds the shared, long-lived services of the monitor.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Store      monitor.Store
	Tracker    *tracker.Tracker
	Dispatcher *alert.Dispatcher
	Scheduler  *scheduler.Scheduler
	Server     *api.Server
	Clock      monitor.Clock

	closers []func() error
}

// DefaultHeaders are sent with the HTTP check so it resembles a browser visit.
func DefaultHeaders() http.Header {
	return http.Header{
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.9"},
		"Pragma":          {"no-cache"},
	}
}

// New builds every service described by cfg. It fails fast when a
// configured backend cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Clock: system.New()}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.Store = store

	blobs, err := a.openBlobStore(ctx)
	if err != nil {
		return err
	}

	ids := uuid.New()
	a.Tracker = tracker.New(tracker.Config{
		AlertCooldown:    cfg.AlertCooldown(),
		FailureThreshold: cfg.Monitor.FailureThreshold,
	}, store, a.Clock, ids, logger.Named("tracker"))
	if err := a.Tracker.Load(ctx); err != nil {
		return err
	}

	chans, err := a.buildChannels(ctx)
	if err != nil {
		return err
	}
	a.Dispatcher = alert.NewDispatcher(chans, alert.Config{
		SendTimeout: cfg.SendTimeout(),
		PageURL:     cfg.Monitor.URL,
	}, logger.Named("alert"))

	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.HTTP.MaxRPS, Burst: cfg.HTTP.Burst})
	httpFetcher := fetcher.NewRetrying(
		fetcher.NewRateLimited(
			collyfetcher.New(collyfetcher.Config{UserAgent: cfg.HTTP.UserAgent, Timeout: cfg.FetchTimeout()}),
			limiter, monitor.MethodHTTP,
		),
		fetcher.NewExponentialRetryPolicy(cfg.HTTP.MaxRetries),
		logger.Named("fetcher"),
	)

	deps := scheduler.Deps{
		HTTP:        httpFetcher,
		Extractor:   evidence.New(evidenceConfig(cfg), sha256.New()),
		Tracker:     a.Tracker,
		Notifier:    a.Dispatcher,
		Alerts:      store,
		Diagnostics: diagnostics.New(blobs, cfg.Artifacts.Prefix, logger.Named("diagnostics")),
		Clock:       a.Clock,
		IDs:         ids,
	}
	if cfg.Monitor.UseRenderedCheck {
		rendered, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       1,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.FetchTimeout(),
			WaitSelector:      cfg.Headless.WaitSelector,
			Screenshot:        cfg.Headless.Screenshot,
		})
		if err != nil {
			logger.Warn("rendered check unavailable, continuing with HTTP only", zap.Error(err))
		} else {
			a.closers = append(a.closers, func() error { rendered.Close(); return nil })
			deps.Rendered = fetcher.NewRateLimited(rendered, limiter, monitor.MethodRendered)
		}
	}

	a.Scheduler, err = scheduler.New(scheduler.Config{
		URL:          cfg.Monitor.URL,
		Interval:     cfg.CheckInterval(),
		FetchTimeout: cfg.FetchTimeout(),
		Headers:      DefaultHeaders(),
	}, deps, logger.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	a.Server = api.NewServer(a.Tracker, store, a.Clock, api.Config{
		URL:           cfg.Monitor.URL,
		CheckInterval: cfg.CheckInterval(),
		Channels:      a.Dispatcher.Channels(),
	}, logger.Named("api"))
	return nil
}

func evidenceConfig(cfg config.Config) evidence.Config {
	return evidence.Config{
		MarkerText:        cfg.Detector.MarkerText,
		HTTPThreshold:     cfg.Detector.HTTPThreshold,
		RenderedThreshold: cfg.Detector.RenderedThreshold,
		SnippetBytes:      cfg.Detector.SnippetBytes,
	}
}

// OpenStore opens only the configured state store. Read-only commands use it
// without building fetchers or channels.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Clock: system.New()}
	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store
	return a, nil
}

func (a *App) openStore(ctx context.Context) (monitor.Store, error) {
	cfg := a.Config.Storage
	switch cfg.Driver {
	case "sqlite":
		a.Logger.Info("using sqlite state store", zap.String("path", cfg.SQLitePath))
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "postgres":
		a.Logger.Info("using postgres state store")
		s, err := postgres.New(ctx, postgres.Config{DSN: cfg.PostgresDSN, MaxConns: 4, MaxConnLifetime: time.Hour})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		return s, nil
	case "memory":
		a.Logger.Warn("using in-memory state store; state is lost on restart")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

func (a *App) openBlobStore(ctx context.Context) (monitor.BlobStore, error) {
	cfg := a.Config.Artifacts
	switch cfg.Driver {
	case "local":
		s, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local artifacts: %w", err)
		}
		return s, nil
	case "gcs":
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		s, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs artifacts: %w", err)
		}
		return s, nil
	case "memory":
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown artifacts driver: %s", cfg.Driver)
	}
}

func (a *App) buildChannels(ctx context.Context) ([]alert.Channel, error) {
	cfg := a.Config.Alerts
	client := &http.Client{Timeout: a.Config.SendTimeout()}
	var out []alert.Channel

	if cfg.Email.Enabled() {
		out = append(out, channels.NewEmail(channels.EmailConfig{
			Host:     cfg.Email.SMTPServer,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}))
	}
	if cfg.DiscordWebhook != "" {
		out = append(out, channels.NewDiscord(cfg.DiscordWebhook, client))
	}
	if cfg.Pushover.Enabled() {
		out = append(out, channels.NewPushover(channels.PushoverConfig{
			AppToken: cfg.Pushover.AppToken,
			UserKey:  cfg.Pushover.UserKey,
			Endpoint: cfg.Pushover.Endpoint,
		}, client))
	}
	if cfg.PubSub.Enabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(psClient)
		a.closers = append(a.closers, func() error {
			pub.Close()
			return psClient.Close()
		})
		out = append(out, channels.NewPubSub(pub, cfg.PubSub.Topic))
	}
	if len(out) == 0 {
		return nil, errors.New("no alert channels configured")
	}
	names := make([]string, 0, len(out))
	for _, ch := range out {
		names = append(names, ch.Name())
	}
	a.Logger.Info("alert channels configured", zap.Strings("channels", names))
	return out, nil
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("error closing resource", zap.Error(err))
		}
	}
	a.closers = nil
}

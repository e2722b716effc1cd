// Package scheduler runs the monitor cycle on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/liquidity-monitor/internal/consensus"
	"github.com/JakeFAU/liquidity-monitor/internal/evidence"
	"github.com/JakeFAU/liquidity-monitor/internal/metrics"
	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
	"github.com/JakeFAU/liquidity-monitor/internal/tracker"
)

// Config controls the poll loop.
type Config struct {
	URL          string
	Interval     time.Duration
	FetchTimeout time.Duration
	Headers      http.Header
}

// Recorder applies a cycle's consensus to the monitor state.
type Recorder interface {
	Record(ctx context.Context, result monitor.ConsensusResult) (tracker.Decision, error)
}

// Notifier fans notifications out to the alert channels.
type Notifier interface {
	Dispatch(ctx context.Context, event monitor.AlertEvent) monitor.AlertEvent
	NotifyHealth(ctx context.Context, notice monitor.HealthNotice) map[string]monitor.ChannelResult
}

// AlertRecorder persists dispatched alert events.
type AlertRecorder interface {
	AppendAlert(ctx context.Context, event monitor.AlertEvent) error
}

// DisagreementCapturer stores diagnostics when the fetch methods disagree.
type DisagreementCapturer interface {
	CaptureDisagreement(ctx context.Context, result monitor.ConsensusResult) ([]string, error)
}

// Deps groups the collaborators of a Scheduler.
type Deps struct {
	HTTP monitor.Fetcher
	// Rendered is optional; when nil only the HTTP method runs.
	Rendered    monitor.Fetcher
	Extractor   monitor.Extractor
	Tracker     Recorder
	Notifier    Notifier
	Alerts      AlertRecorder
	Diagnostics DisagreementCapturer
	Clock       monitor.Clock
	IDs         monitor.IDGenerator
}

type methodFetcher struct {
	method  monitor.Method
	fetcher monitor.Fetcher
}

// Scheduler drives fetch, extract, resolve, record and dispatch for each cycle.
type Scheduler struct {
	cfg      Config
	deps     Deps
	fetchers []methodFetcher
	logger   *zap.Logger
}

// New constructs a Scheduler.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Scheduler, error) {
	if cfg.URL == "" {
		return nil, errors.New("scheduler: url is required")
	}
	if deps.HTTP == nil || deps.Extractor == nil || deps.Tracker == nil || deps.Clock == nil {
		return nil, errors.New("scheduler: http fetcher, extractor, tracker and clock are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 12 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fetchers := []methodFetcher{{method: monitor.MethodHTTP, fetcher: deps.HTTP}}
	if deps.Rendered != nil {
		fetchers = append(fetchers, methodFetcher{method: monitor.MethodRendered, fetcher: deps.Rendered})
	}
	return &Scheduler{cfg: cfg, deps: deps, fetchers: fetchers, logger: logger}, nil
}

var tracer = otel.Tracer("github.com/JakeFAU/liquidity-monitor/internal/scheduler")

// Run executes cycles until ctx is canceled. A cycle already in flight is
// not interrupted by cancellation; it finishes under its own timeouts.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("monitor loop started",
		zap.String("url", s.cfg.URL),
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("methods", len(s.fetchers)),
	)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("monitor loop stopped")
			return nil
		case <-timer.C:
		}

		s.safeCycle(context.WithoutCancel(ctx))
		timer.Reset(s.cfg.Interval)
	}
}

func (s *Scheduler) safeCycle(ctx context.Context) {
	var err error
	if recovered := panics.Try(func() { _, err = s.RunCycle(ctx) }); recovered != nil {
		s.logger.Error("monitor cycle panicked", zap.Error(recovered.AsError()))
		return
	}
	if err != nil {
		s.logger.Error("monitor cycle failed", zap.Error(err))
	}
}

// RunCycle performs one complete check and returns its consensus.
func (s *Scheduler) RunCycle(ctx context.Context) (result monitor.ConsensusResult, err error) {
	ctx, span := tracer.Start(ctx, "monitor.cycle")
	defer func() {
		span.SetAttributes(
			attribute.String("cycle.id", result.ID),
			attribute.String("cycle.verdict", string(result.Verdict)),
			attribute.Bool("cycle.agreement", result.Agreement),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	at := s.deps.Clock.Now()
	result = consensus.Resolve(at, s.observe(ctx, at)...)
	if s.deps.IDs != nil {
		if id, idErr := s.deps.IDs.NewID(); idErr == nil {
			result.ID = id
		}
	}

	if !result.Agreement && s.deps.Diagnostics != nil {
		if _, capErr := s.deps.Diagnostics.CaptureDisagreement(ctx, result); capErr != nil {
			s.logger.Warn("diagnostics capture incomplete", zap.String("cycle_id", result.ID), zap.Error(capErr))
		}
	}

	decision, err := s.deps.Tracker.Record(ctx, result)
	if err != nil {
		metrics.ObservePersistenceError()
		return result, fmt.Errorf("record cycle: %w", err)
	}
	result = decision.Result
	metrics.ObserveCycle(string(result.Verdict), decision.State.ConsecutiveFailures, result.Agreement)

	if decision.Health != nil && s.deps.Notifier != nil {
		s.deps.Notifier.NotifyHealth(ctx, *decision.Health)
	}
	if decision.Alert != nil && s.deps.Notifier != nil {
		event := s.deps.Notifier.Dispatch(ctx, *decision.Alert)
		if s.deps.Alerts != nil {
			if appendErr := s.deps.Alerts.AppendAlert(ctx, event); appendErr != nil {
				metrics.ObservePersistenceError()
				return result, &monitor.PersistenceError{Op: "append alert", Cause: appendErr}
			}
		}
	}
	return result, nil
}

// observe fetches every method concurrently and returns one observation
// per method in a stable order.
func (s *Scheduler) observe(ctx context.Context, at time.Time) []monitor.Observation {
	observations := make([]monitor.Observation, len(s.fetchers))
	var wg conc.WaitGroup
	for i, mf := range s.fetchers {
		wg.Go(func() {
			var obs monitor.Observation
			if recovered := panics.Try(func() { obs = s.observeMethod(ctx, mf, at) }); recovered != nil {
				obs = evidence.Failed(mf.method, at, fmt.Errorf("fetcher panicked: %w", recovered.AsError()))
			}
			observations[i] = obs
		})
	}
	wg.Wait()
	return observations
}

func (s *Scheduler) observeMethod(ctx context.Context, mf methodFetcher, at time.Time) monitor.Observation {
	ctx, span := tracer.Start(ctx, "monitor.observe",
		trace.WithAttributes(attribute.String("method", string(mf.method))))
	defer span.End()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	resp, err := mf.fetcher.Fetch(fetchCtx, monitor.FetchRequest{URL: s.cfg.URL, Headers: s.cfg.Headers})
	metrics.ObserveFetch(string(mf.method), err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		s.logger.Warn("fetch failed", zap.String("method", string(mf.method)), zap.Error(err))
		return evidence.Failed(mf.method, at, err)
	}
	obs := s.deps.Extractor.Extract(mf.method, resp, at)
	span.SetAttributes(
		attribute.String("verdict", string(obs.Verdict)),
		attribute.Int("indicator.hits", obs.IndicatorHits),
	)
	s.logger.Debug("observation extracted",
		zap.String("method", string(mf.method)),
		zap.String("verdict", string(obs.Verdict)),
		zap.Int("hits", obs.IndicatorHits),
		zap.Int("total", obs.IndicatorTotal),
		zap.String("error", obs.Error),
	)
	return obs
}

package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/JakeFAU/liquidity-monitor/internal/metrics"
	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

// Config controls dispatch behavior.
type Config struct {
	SendTimeout time.Duration
	PageURL     string
}

// Dispatcher sends each notification to all channels concurrently and waits
// for every attempt. It never returns an error: failures are recorded per
// channel.
type Dispatcher struct {
	channels []Channel
	cfg      Config
	logger   *zap.Logger
}

// NewDispatcher builds a Dispatcher over the configured channels.
func NewDispatcher(channels []Channel, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{channels: channels, cfg: cfg, logger: logger}
}

// Channels returns the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch delivers a liquidity alert and returns the event with
// ChannelResults and ChannelsNotified filled in.
func (d *Dispatcher) Dispatch(ctx context.Context, event monitor.AlertEvent) monitor.AlertEvent {
	results := d.send(ctx, LiquidityNotification(event, d.cfg.PageURL))

	event.ChannelResults = make(map[string]monitor.ChannelResult, len(results))
	event.ChannelsNotified = make([]string, 0, len(results))
	for _, r := range results {
		event.ChannelResults[r.Channel] = r
		if r.OK {
			event.ChannelsNotified = append(event.ChannelsNotified, r.Channel)
		}
	}
	metrics.ObserveAlert(string(KindLiquidity))
	d.logger.Info("liquidity alert dispatched",
		zap.String("alert_id", event.ID),
		zap.Strings("channels_notified", event.ChannelsNotified),
		zap.Int("channels_failed", len(results)-len(event.ChannelsNotified)),
	)
	return event
}

// NotifyHealth delivers a checker-health notice.
func (d *Dispatcher) NotifyHealth(ctx context.Context, notice monitor.HealthNotice) map[string]monitor.ChannelResult {
	results := d.send(ctx, HealthNotification(notice, d.cfg.PageURL))
	out := make(map[string]monitor.ChannelResult, len(results))
	for _, r := range results {
		out[r.Channel] = r
	}
	metrics.ObserveAlert(string(KindHealth))
	d.logger.Warn("monitor health notice dispatched",
		zap.Bool("recovered", notice.Recovered),
		zap.Int("consecutive_failures", notice.ConsecutiveFailures),
	)
	return out
}

func (d *Dispatcher) send(ctx context.Context, n Notification) []monitor.ChannelResult {
	return iter.Map(d.channels, func(ch *Channel) monitor.ChannelResult {
		return d.sendOne(ctx, *ch, n)
	})
}

func (d *Dispatcher) sendOne(ctx context.Context, ch Channel, n Notification) monitor.ChannelResult {
	name := ch.Name()
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	var err error
	if recovered := panics.Try(func() { err = ch.Notify(sendCtx, n) }); recovered != nil {
		err = fmt.Errorf("channel panicked: %w", recovered.AsError())
	}
	result := monitor.ChannelResult{Channel: name, OK: err == nil, Duration: time.Since(start)}
	if err != nil {
		sendErr := &monitor.ChannelSendError{Channel: name, Cause: err}
		result.Error = sendErr.Error()
		d.logger.Error("alert channel failed",
			zap.String("channel", name),
			zap.String("kind", string(n.Kind)),
			zap.Error(sendErr),
		)
	}
	metrics.ObserveChannelSend(name, result.OK)
	return result
}

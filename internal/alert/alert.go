// Package alert fans notifications out to every configured channel.
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

// Kind distinguishes liquidity alerts from checker-health notices.
type Kind string

// Notification kinds.
const (
	KindLiquidity Kind = "liquidity"
	KindHealth    Kind = "health"
)

// Notification is the channel-neutral message handed to every Channel.
type Notification struct {
	Kind       Kind
	Title      string
	Body       string
	URL        string
	DetectedAt time.Time
	// Event is set for liquidity alerts.
	Event *monitor.AlertEvent
	// Health is set for checker-health notices.
	Health *monitor.HealthNotice
}

// Channel delivers a notification to one destination.
type Channel interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// LiquidityNotification renders the message for a CAPPED to AVAILABLE alert.
func LiquidityNotification(event monitor.AlertEvent, pageURL string) Notification {
	var b strings.Builder
	b.WriteString("LIQUIDITY DEPLOYMENT DETECTED\n\n")
	b.WriteString("The Strike Finance liquidity cap appears to have been lifted.\n")
	fmt.Fprintf(&b, "Transition: %s -> %s\n", event.Transition.From, event.Transition.To)
	fmt.Fprintf(&b, "Detected at: %s\n", event.DetectedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "URL: %s\n\n", pageURL)
	b.WriteString("Please verify manually before deploying capital.")
	ev := event
	return Notification{
		Kind:       KindLiquidity,
		Title:      "Strike Finance Liquidity Alert",
		Body:       b.String(),
		URL:        pageURL,
		DetectedAt: event.DetectedAt,
		Event:      &ev,
	}
}

// HealthNotification renders the message for a checker-health notice.
func HealthNotification(notice monitor.HealthNotice, pageURL string) Notification {
	n := notice
	out := Notification{
		Kind:       KindHealth,
		URL:        pageURL,
		DetectedAt: notice.DetectedAt,
		Health:     &n,
	}
	if notice.Recovered {
		out.Title = "Strike Monitor Recovered"
		out.Body = fmt.Sprintf("The monitor is producing observations again after %d failed cycles.", notice.ConsecutiveFailures)
		return out
	}
	out.Title = "Strike Monitor Failing"
	out.Body = fmt.Sprintf("Monitor has failed %d consecutive cycles. Last error: %s", notice.ConsecutiveFailures, notice.LastError)
	return out
}

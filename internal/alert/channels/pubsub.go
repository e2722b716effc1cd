package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/liquidity-monitor/internal/alert"
	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
)

// Publisher publishes a JSON payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PubSubMessage is the payload published for machine consumers.
type PubSubMessage struct {
	Kind       alert.Kind            `json:"kind"`
	Title      string                `json:"title"`
	URL        string                `json:"url"`
	DetectedAt time.Time             `json:"detected_at"`
	Event      *monitor.AlertEvent   `json:"event,omitempty"`
	Health     *monitor.HealthNotice `json:"health,omitempty"`
}

// PubSub publishes notifications to a message topic.
type PubSub struct {
	publisher Publisher
	topic     string
}

// NewPubSub builds a PubSub channel.
func NewPubSub(publisher Publisher, topic string) *PubSub {
	return &PubSub{publisher: publisher, topic: topic}
}

// Name implements alert.Channel.
func (p *PubSub) Name() string { return "pubsub" }

// Notify implements alert.Channel.
func (p *PubSub) Notify(ctx context.Context, n alert.Notification) error {
	msg := PubSubMessage{
		Kind:       n.Kind,
		Title:      n.Title,
		URL:        n.URL,
		DetectedAt: n.DetectedAt,
		Event:      n.Event,
		Health:     n.Health,
	}
	if _, err := p.publisher.Publish(ctx, p.topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

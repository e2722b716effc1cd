package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JakeFAU/liquidity-monitor/internal/alert"
)

// Embed colors.
const (
	colorGreen  = 65280
	colorYellow = 16776960
	colorRed    = 16711680
)

// Discord posts an embed to a chat webhook.
type Discord struct {
	webhookURL string
	client     *http.Client
}

// NewDiscord builds a Discord channel. A nil client uses a 10s-timeout default.
func NewDiscord(webhookURL string, client *http.Client) *Discord {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Discord{webhookURL: webhookURL, client: client}
}

// Name implements alert.Channel.
func (d *Discord) Name() string { return "discord" }

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
	URL         string `json:"url,omitempty"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// Notify implements alert.Channel.
func (d *Discord) Notify(ctx context.Context, n alert.Notification) error {
	color := colorGreen
	if n.Kind == alert.KindHealth {
		color = colorYellow
		if n.Health != nil && !n.Health.Recovered {
			color = colorRed
		}
	}
	payload, err := json.Marshal(discordPayload{Embeds: []discordEmbed{{
		Title:       n.Title,
		Description: n.Body,
		Color:       color,
		Timestamp:   n.DetectedAt.UTC().Format(time.RFC3339),
		URL:         n.URL,
	}}})
	if err != nil {
		return fmt.Errorf("marshal embed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(d.client, req)
}

// do executes req and treats any non-2xx status as an error.
func do(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully drained below
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/liquidity-monitor/internal/alert"
)

// DefaultPushoverEndpoint is the public messages API.
const DefaultPushoverEndpoint = "https://api.pushover.net/1/messages.json"

// PushoverConfig holds push-service credentials.
type PushoverConfig struct {
	AppToken string
	UserKey  string
	Endpoint string
}

// Pushover sends push notifications. Liquidity alerts use emergency
// priority, which repeats until acknowledged.
type Pushover struct {
	cfg    PushoverConfig
	client *http.Client
}

// NewPushover builds a Pushover channel.
func NewPushover(cfg PushoverConfig, client *http.Client) *Pushover {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultPushoverEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Pushover{cfg: cfg, client: client}
}

// Name implements alert.Channel.
func (p *Pushover) Name() string { return "pushover" }

// Notify implements alert.Channel.
func (p *Pushover) Notify(ctx context.Context, n alert.Notification) error {
	form := url.Values{}
	form.Set("token", p.cfg.AppToken)
	form.Set("user", p.cfg.UserKey)
	form.Set("title", n.Title)
	form.Set("message", n.Body)
	form.Set("timestamp", strconv.FormatInt(n.DetectedAt.Unix(), 10))
	if n.URL != "" {
		form.Set("url", n.URL)
	}
	if n.Kind == alert.KindLiquidity {
		form.Set("priority", "2")
		form.Set("retry", "30")
		form.Set("expire", "3600")
	} else {
		form.Set("priority", "0")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(p.client, req)
}

package channels

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/JakeFAU/liquidity-monitor/internal/alert"
	"github.com/JakeFAU/liquidity-monitor/internal/monitor"
	"github.com/JakeFAU/liquidity-monitor/internal/publisher/memory"
)

var detected = time.Date(2025, 1, 1, 0, 1, 40, 0, time.UTC)

func liquidity() alert.Notification {
	return alert.LiquidityNotification(monitor.AlertEvent{
		ID:         "alert-1",
		Transition: monitor.Transition{From: monitor.VerdictCapped, To: monitor.VerdictAvailable},
		DetectedAt: detected,
	}, "https://app.strikefinance.org/liquidity")
}

func health() alert.Notification {
	return alert.HealthNotification(monitor.HealthNotice{DetectedAt: detected, ConsecutiveFailures: 3, LastError: "timeout"}, "")
}

func TestDiscordNotify(t *testing.T) {
	t.Parallel()

	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	d := NewDiscord(srv.URL, srv.Client())
	require.Equal(t, "discord", d.Name())
	require.NoError(t, d.Notify(context.Background(), liquidity()))
	require.Len(t, got.Embeds, 1)
	require.Equal(t, colorGreen, got.Embeds[0].Color)
	require.Equal(t, "Strike Finance Liquidity Alert", got.Embeds[0].Title)
	require.Equal(t, "2025-01-01T00:01:40Z", got.Embeds[0].Timestamp)

	require.NoError(t, d.Notify(context.Background(), health()))
	require.Equal(t, colorRed, got.Embeds[0].Color)
}

func TestDiscordNotifyErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message": "Unknown Webhook"}`, http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	err := NewDiscord(srv.URL, nil).Notify(context.Background(), liquidity())
	require.ErrorContains(t, err, "unexpected status 404")
	require.ErrorContains(t, err, "Unknown Webhook")
}

func TestPushoverNotify(t *testing.T) {
	t.Parallel()

	forms := make(chan url.Values, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		forms <- form
		_, _ = w.Write([]byte(`{"status":1,"request":"abc"}`))
	}))
	t.Cleanup(srv.Close)

	p := NewPushover(PushoverConfig{AppToken: "app", UserKey: "user", Endpoint: srv.URL}, srv.Client())
	require.Equal(t, "pushover", p.Name())

	require.NoError(t, p.Notify(context.Background(), liquidity()))
	form := <-forms
	require.Equal(t, "app", form.Get("token"))
	require.Equal(t, "user", form.Get("user"))
	require.Equal(t, "2", form.Get("priority"))
	require.Equal(t, "30", form.Get("retry"))
	require.Equal(t, "3600", form.Get("expire"))
	require.Equal(t, "https://app.strikefinance.org/liquidity", form.Get("url"))

	require.NoError(t, p.Notify(context.Background(), health()))
	form = <-forms
	require.Equal(t, "0", form.Get("priority"))
	require.Empty(t, form.Get("retry"))
}

func TestPushoverDefaultEndpoint(t *testing.T) {
	t.Parallel()

	require.Equal(t, DefaultPushoverEndpoint, NewPushover(PushoverConfig{}, nil).cfg.Endpoint)
}

func TestPubSubNotify(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	ch := NewPubSub(pub, "liquidity-alerts")
	require.Equal(t, "pubsub", ch.Name())
	require.NoError(t, ch.Notify(context.Background(), liquidity()))

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "liquidity-alerts", msgs[0].Topic)
	payload, ok := msgs[0].Payload.(PubSubMessage)
	require.True(t, ok)
	require.Equal(t, alert.KindLiquidity, payload.Kind)
	require.Equal(t, "alert-1", payload.Event.ID)

	pub.FailWith(errors.New("permission denied"))
	err := ch.Notify(context.Background(), health())
	require.ErrorContains(t, err, "publish to liquidity-alerts: permission denied")
}

func TestEmailMessage(t *testing.T) {
	t.Parallel()

	e := NewEmail(EmailConfig{Host: "smtp.example.com", From: "monitor@example.com", To: []string{"ops@example.com", "me@example.com"}})
	require.Equal(t, "email", e.Name())
	require.Equal(t, 587, e.cfg.Port)

	msg, err := e.message(liquidity())
	require.NoError(t, err)
	require.Equal(t, []string{"[ALERT] Strike Finance Liquidity Alert"}, msg.GetGenHeader(mail.HeaderSubject))
	require.Len(t, msg.GetTo(), 2)

	var sent *mail.Msg
	e.dial = func(_ context.Context, m *mail.Msg) error {
		sent = m
		return nil
	}
	require.NoError(t, e.Notify(context.Background(), health()))
	require.Equal(t, []string{"[MONITOR] Strike Monitor Failing"}, sent.GetGenHeader(mail.HeaderSubject))
}

func TestEmailInvalidAddress(t *testing.T) {
	t.Parallel()

	e := NewEmail(EmailConfig{Host: "smtp.example.com", From: "not an address", To: []string{"ops@example.com"}})
	err := e.Notify(context.Background(), liquidity())
	require.ErrorContains(t, err, "set from")
}

func TestEmailDialFailure(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	e := NewEmail(EmailConfig{
		Host: "127.0.0.1", Port: port, Username: "u", Password: "p",
		From: "monitor@example.com", To: []string{"ops@example.com"},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = e.Notify(ctx, liquidity())
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "smtp"), err.Error())
}

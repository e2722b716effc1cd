package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/JakeFAU/liquidity-monitor/internal/alert"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Email sends notifications over SMTP with mandatory STARTTLS.
type Email struct {
	cfg  EmailConfig
	dial func(ctx context.Context, msg *mail.Msg) error
}

// NewEmail builds an Email channel.
func NewEmail(cfg EmailConfig) *Email {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	e := &Email{cfg: cfg}
	e.dial = e.dialAndSend
	return e
}

// Name implements alert.Channel.
func (e *Email) Name() string { return "email" }

// Notify implements alert.Channel.
func (e *Email) Notify(ctx context.Context, n alert.Notification) error {
	msg, err := e.message(n)
	if err != nil {
		return err
	}
	return e.dial(ctx, msg)
}

func (e *Email) message(n alert.Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(e.cfg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(e.cfg.To...); err != nil {
		return nil, fmt.Errorf("set recipients: %w", err)
	}
	prefix := "[ALERT]"
	if n.Kind == alert.KindHealth {
		prefix = "[MONITOR]"
	}
	msg.Subject(fmt.Sprintf("%s %s", prefix, n.Title))
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf("%s\n\nTime: %s\n", n.Body, n.DetectedAt.UTC().Format(time.RFC3339)))
	return msg, nil
}

func (e *Email) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(e.cfg.Host,
		mail.WithPort(e.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(e.cfg.Username),
		mail.WithPassword(e.cfg.Password),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

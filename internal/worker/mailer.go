package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/opensource-finance/claimguard/internal/domain"
	"gopkg.in/gomail.v2"
)

// NewDeliverer creates the deliverer selected by cfg.Deliverer.
func NewDeliverer(cfg domain.NotificationConfig) (Deliverer, error) {
	switch cfg.Deliverer {
	case "log", "":
		return LogDeliverer{}, nil
	case "smtp":
		return NewMailer(cfg)
	default:
		return nil, fmt.Errorf("unsupported deliverer: %s", cfg.Deliverer)
	}
}

// LogDeliverer writes each event to the structured log.
type LogDeliverer struct{}

// Deliver implements Deliverer.
func (LogDeliverer) Deliver(_ context.Context, event domain.Event) error {
	slog.Info("notification",
		"event_id", event.ID,
		"type", event.Type,
		"tenant_id", event.TenantID,
		"subject", event.Subject,
		"payload", event.Payload,
	)
	return nil
}

// sender is the part of gomail.Dialer the mailer needs.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer emails each event to a fixed recipient list over SMTP.
type Mailer struct {
	sender     sender
	from       string
	recipients []string
}

// NewMailer creates an SMTP mailer.
func NewMailer(cfg domain.NotificationConfig) (*Mailer, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("at least one notification recipient is required")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	from := cfg.From
	if from == "" {
		from = cfg.SMTPUsername
	}
	return &Mailer{
		sender:     gomail.NewDialer(cfg.SMTPHost, port, cfg.SMTPUsername, cfg.SMTPPassword),
		from:       from,
		recipients: cfg.Recipients,
	}, nil
}

// Deliver implements Deliverer. gomail has no context support, so a
// cancelled context only stops delivery before dialing.
func (m *Mailer) Deliver(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.sender.DialAndSend(m.message(event)); err != nil {
		return fmt.Errorf("failed to send notification email: %w", err)
	}
	return nil
}

func (m *Mailer) message(event domain.Event) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.recipients...)
	msg.SetHeader("Subject", fmt.Sprintf("[ClaimGuard] %s %s", event.Type, event.Subject))
	msg.SetBody("text/plain", body(event))
	return msg
}

func body(event domain.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event:    %s\n", event.Type)
	fmt.Fprintf(&b, "Tenant:   %s\n", event.TenantID)
	fmt.Fprintf(&b, "Subject:  %s\n", event.Subject)
	fmt.Fprintf(&b, "Occurred: %s\n", event.OccurredAt.UTC().Format("2006-01-02 15:04:05 MST"))

	keys := make([]string, 0, len(event.Payload))
	for k := range event.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		b.WriteString("\n")
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, event.Payload[k])
	}
	return b.String()
}

// Package notify publishes business events for asynchronous delivery.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/claimguard/internal/domain"
)

// DefaultTimeout bounds a single Notify call made through Emit.
const DefaultTimeout = 2 * time.Second

// BusNotifier publishes events as JSON onto the event bus, one topic per event type.
type BusNotifier struct {
	bus domain.EventBus
}

// NewBusNotifier creates a notifier backed by bus.
func NewBusNotifier(bus domain.EventBus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

// Notify publishes event under its type for tenantID.
func (n *BusNotifier) Notify(ctx context.Context, tenantID string, event domain.Event) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	event.TenantID = tenantID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return n.bus.Publish(ctx, tenantID, event.Type, data)
}

// Nop discards every event.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, string, domain.Event) error { return nil }

// NewEvent builds an event with a fresh ID.
func NewEvent(eventType, subject string, payload map[string]any, at time.Time) domain.Event {
	return domain.Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Subject:    subject,
		Payload:    payload,
		OccurredAt: at,
	}
}

// Decode parses an event published by BusNotifier.
func Decode(data []byte) (domain.Event, error) {
	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("failed to decode event: %w", err)
	}
	return event, nil
}

// Emit sends event with a bounded timeout. Failures are logged, never returned:
// a lost notification must not undo the mutation that produced it.
func Emit(ctx context.Context, n domain.Notifier, tenantID string, event domain.Event) {
	if n == nil {
		return
	}

	nctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	if err := n.Notify(nctx, tenantID, event); err != nil {
		slog.Warn("notification failed",
			"tenant_id", tenantID,
			"type", event.Type,
			"subject", event.Subject,
			"error", err,
		)
	}
}

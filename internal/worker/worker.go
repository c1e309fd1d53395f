// Package worker delivers business notifications published on the event bus.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/notify"
)

// Deliverer hands one event to its recipients.
type Deliverer interface {
	Deliver(ctx context.Context, event domain.Event) error
}

// Worker consumes notification topics and delivers events with a fixed
// number of goroutines.
type Worker struct {
	bus       domain.EventBus
	deliverer Deliverer
	timeout   time.Duration

	jobs          chan domain.Event
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs limits delivery to these tenants. Empty means every tenant.
	TenantIDs []string

	// Topics to consume. Empty means domain.NotificationTopics.
	Topics []string

	// WorkerCount is the number of delivery goroutines.
	WorkerCount int

	// QueueSize buffers decoded events waiting for a free goroutine.
	QueueSize int

	// DeliveryTimeout bounds a single delivery.
	DeliveryTimeout time.Duration
}

// NewWorker creates a new delivery worker.
func NewWorker(bus domain.EventBus, deliverer Deliverer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		deliverer: deliverer,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the configured topics and launches the delivery goroutines.
func (w *Worker) Start(cfg Config) error {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	topics := cfg.Topics
	if len(topics) == 0 {
		topics = domain.NotificationTopics
	}
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.AllTenants}
	}

	w.timeout = cfg.DeliveryTimeout
	w.jobs = make(chan domain.Event, cfg.QueueSize)
	for i := 0; i < cfg.WorkerCount; i++ {
		w.wg.Add(1)
		go w.run()
	}

	for _, tenantID := range tenants {
		for _, topic := range topics {
			sub, err := w.bus.Subscribe(w.ctx, tenantID, topic, w.handleMessage)
			if err != nil {
				w.Stop()
				return fmt.Errorf("failed to subscribe to %s for tenant %s: %w", topic, tenantID, err)
			}
			w.subscriptions = append(w.subscriptions, sub)
		}
	}

	slog.Info("notification workers started",
		"workers", cfg.WorkerCount,
		"tenants", len(tenants),
		"topics", len(topics),
	)
	return nil
}

// handleMessage decodes a bus message and queues it for delivery.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	event, err := notify.Decode(msg.Payload)
	if err != nil {
		slog.Error("failed to parse notification",
			"message_id", msg.ID,
			"topic", msg.Topic,
			"error", err,
		)
		return err
	}
	if event.TenantID == "" {
		event.TenantID = msg.TenantID
	}

	select {
	case w.jobs <- event:
		return nil
	case <-w.ctx.Done():
		return w.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event := <-w.jobs:
			w.deliver(event)
		}
	}
}

func (w *Worker) deliver(event domain.Event) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()

	if err := w.deliverer.Deliver(ctx, event); err != nil {
		w.failed.Add(1)
		slog.Error("notification delivery failed",
			"event_id", event.ID,
			"type", event.Type,
			"tenant_id", event.TenantID,
			"error", err,
		)
		return
	}
	w.delivered.Add(1)
	slog.Debug("notification delivered",
		"event_id", event.ID,
		"type", event.Type,
		"tenant_id", event.TenantID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop unsubscribes and waits for in-flight deliveries to finish.
// Events still queued are dropped.
func (w *Worker) Stop() error {
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.cancel()
	w.wg.Wait()

	slog.Info("notification workers stopped",
		"delivered", w.delivered.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Delivered         uint64   `json:"delivered"`
	Failed            uint64   `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Delivered:         w.delivered.Load(),
		Failed:            w.failed.Load(),
	}
}

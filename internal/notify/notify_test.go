package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/claimguard/internal/bus"
	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusNotifier(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	ctx := context.Background()
	received := make(chan *domain.Message, 1)
	_, err := b.Subscribe(ctx, "tenant-001", domain.TopicClaimFiled, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	event := NewEvent(domain.TopicClaimFiled, "CLM-2024-0001", map[string]any{"status": "Reported"}, at)
	require.NoError(t, NewBusNotifier(b).Notify(ctx, "tenant-001", event))

	select {
	case msg := <-received:
		got, err := Decode(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, "tenant-001", got.TenantID)
		assert.Equal(t, "CLM-2024-0001", got.Subject)
		assert.Equal(t, "Reported", got.Payload["status"])
		assert.True(t, at.Equal(got.OccurredAt))
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBusNotifierRequiresType(t *testing.T) {
	b := bus.NewChannelBus(1)
	defer b.Close()
	err := NewBusNotifier(b).Notify(context.Background(), "tenant-001", domain.Event{})
	assert.Error(t, err)
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, string, domain.Event) error {
	f.calls++
	return errors.New("broker down")
}

func TestEmitSwallowsErrors(t *testing.T) {
	n := &failingNotifier{}
	Emit(context.Background(), n, "tenant-001", NewEvent(domain.TopicPolicyCreated, "POL-2024-001", nil, time.Now()))
	assert.Equal(t, 1, n.calls)

	// nil notifier is allowed
	Emit(context.Background(), nil, "tenant-001", domain.Event{Type: domain.TopicPolicyCreated})
	assert.NoError(t, Nop{}.Notify(context.Background(), "tenant-001", domain.Event{}))
}

// Package bus provides event bus implementations carrying ClaimGuard
// notifications between the engines and the delivery worker.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/claimguard/internal/domain"
)

// New creates a new event bus based on configuration.
// "channel" is in-process; "nats" and "amqp" reach an external broker.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	case "amqp":
		return NewAMQPBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

func newMessage(tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}

// encodeMessage wraps payload in the JSON envelope used on broker transports.
func encodeMessage(tenantID, topic string, payload []byte) ([]byte, error) {
	data, err := json.Marshal(newMessage(tenantID, topic, payload))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

func decodeMessage(data []byte) (*domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// routingKey is the broker subject for a tenant topic. AllTenants maps to
// the single-token wildcard both NATS and AMQP topic exchanges understand.
func routingKey(tenantID, topic string) string {
	return "claimguard." + tenantID + "." + topic
}

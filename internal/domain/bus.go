package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels, NATS or RabbitMQ.
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// tenantID may be AllTenants to receive the topic for every tenant.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AllTenants subscribes to a topic across every tenant.
const AllTenants = "*"

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel", "nats" or "amqp"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds

	// RabbitMQ settings
	AMQPUrl      string
	AMQPExchange string
}

// Notification topics published by the engines.
const (
	TopicClaimFiled         = "claim.filed"
	TopicClaimStatusChanged = "claim.status_changed"
	TopicClaimUpdated       = "claim.updated"
	TopicFraudAlertRaised   = "fraud.alert_raised"
	TopicFraudAlertResolved = "fraud.alert_resolved"
	TopicPolicyCreated      = "policy.created"
	TopicPolicyRenewed      = "policy.renewed"
	TopicPolicyExpired      = "policy.expired"
)

// NotificationTopics lists every topic a delivery worker listens on.
var NotificationTopics = []string{
	TopicClaimFiled,
	TopicClaimStatusChanged,
	TopicClaimUpdated,
	TopicFraudAlertRaised,
	TopicFraudAlertResolved,
	TopicPolicyCreated,
	TopicPolicyRenewed,
	TopicPolicyExpired,
}

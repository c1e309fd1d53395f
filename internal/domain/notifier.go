package domain

import (
	"context"
	"time"
)

// Event is a business notification emitted after a successful mutation.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenantId"`
	Subject    string         `json:"subject"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Notifier delivers events to interested parties. Delivery is best effort;
// callers log failures and never roll back the mutation.
type Notifier interface {
	Notify(ctx context.Context, tenantID string, event Event) error
}

// Blob is a document or photo uploaded against a claim or policy.
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

// DocumentStore persists blobs and returns a retrievable URL.
type DocumentStore interface {
	Store(ctx context.Context, tenantID string, blob Blob) (string, error)
}

// StorageConfig selects the document store.
type StorageConfig struct {
	// Type is "disk" or "minio"
	Type string

	// Disk settings
	Directory string
	BaseURL   string

	// MinIO settings
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
}

// NotificationConfig controls the delivery worker.
type NotificationConfig struct {
	// Deliverer is "log" or "smtp"
	Deliverer   string
	WorkerCount int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
	Recipients   []string
}

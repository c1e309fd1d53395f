// Package domain defines the core types and collaborator interfaces for ClaimGuard.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
// Lookups of missing records return ErrNotFound.
type Repository interface {
	// Insurer operations
	SaveInsurer(ctx context.Context, tenantID string, insurer *Insurer) error
	GetInsurer(ctx context.Context, tenantID string, insurerID string) (*Insurer, error)
	ListInsurers(ctx context.Context, tenantID string) ([]*Insurer, error)

	// Policy operations. UpdatePolicy only succeeds when the stored version
	// equals policy.Version, otherwise it returns ErrVersionConflict.
	// RenewPolicy updates old and inserts its successor in one transaction.
	CreatePolicy(ctx context.Context, tenantID string, policy *InsurancePolicy) error
	UpdatePolicy(ctx context.Context, tenantID string, policy *InsurancePolicy) error
	RenewPolicy(ctx context.Context, tenantID string, old, successor *InsurancePolicy) error
	GetPolicy(ctx context.Context, tenantID string, policyID string) (*InsurancePolicy, error)
	ListPolicies(ctx context.Context, tenantID string, filter PolicyFilter) ([]*InsurancePolicy, error)

	// Claim operations. UpdateClaim only succeeds when the stored version
	// equals expectedVersion, otherwise it returns ErrVersionConflict.
	CreateClaim(ctx context.Context, tenantID string, claim *InsuranceClaim) error
	UpdateClaim(ctx context.Context, tenantID string, claim *InsuranceClaim, expectedVersion int64) error
	GetClaim(ctx context.Context, tenantID string, claimID string) (*InsuranceClaim, error)
	ListClaims(ctx context.Context, tenantID string, filter ClaimFilter) ([]*InsuranceClaim, error)

	// Fraud alerts are upserted and never deleted.
	SaveAlert(ctx context.Context, tenantID string, alert *FraudAlert) error
	GetAlert(ctx context.Context, tenantID string, alertID string) (*FraudAlert, error)
	ListAlerts(ctx context.Context, tenantID string, filter AlertFilter) ([]*FraudAlert, error)

	// Risk assessments, one per customer
	SaveAssessment(ctx context.Context, tenantID string, assessment *RiskAssessment) error
	GetAssessment(ctx context.Context, tenantID string, customerID string) (*RiskAssessment, error)

	// NextSequence atomically increments and returns the named counter, starting at 1.
	NextSequence(ctx context.Context, tenantID string, name string) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

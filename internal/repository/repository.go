// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/opensource-finance/claimguard/internal/domain"
)

var (
	ErrNotFound        = domain.ErrNotFound
	ErrInvalidInput    = domain.ErrInvalidInput
	ErrVersionConflict = domain.ErrVersionConflict
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := NewWithDB(db, cfg.Driver)

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// NewWithDB wraps an already opened connection. Migrations are not run.
func NewWithDB(db *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{db: db, driver: driver}
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	return nil
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveInsurer inserts or updates an insurer.
func (r *SQLRepository) SaveInsurer(ctx context.Context, tenantID string, insurer *domain.Insurer) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if insurer == nil || insurer.ID == "" {
		return fmt.Errorf("%w: insurer id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO insurers (id, tenant_id, name, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		insurer.ID, tenantID, insurer.Name, boolInt(insurer.Active), unixNanos(insurer.CreatedAt),
	)
	return err
}

// GetInsurer retrieves an insurer by ID with tenant isolation.
func (r *SQLRepository) GetInsurer(ctx context.Context, tenantID string, insurerID string) (*domain.Insurer, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT id, name, active, created_at FROM insurers WHERE tenant_id = ? AND id = ?`

	insurer, err := scanInsurer(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, insurerID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	insurer.TenantID = tenantID
	return insurer, nil
}

// ListInsurers returns every insurer of a tenant.
func (r *SQLRepository) ListInsurers(ctx context.Context, tenantID string) ([]*domain.Insurer, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT id, name, active, created_at FROM insurers WHERE tenant_id = ? ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insurers []*domain.Insurer
	for rows.Next() {
		insurer, err := scanInsurer(rows)
		if err != nil {
			return nil, err
		}
		insurer.TenantID = tenantID
		insurers = append(insurers, insurer)
	}
	return insurers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInsurer(row rowScanner) (*domain.Insurer, error) {
	var (
		insurer   domain.Insurer
		active    int
		createdAt int64
	)
	if err := row.Scan(&insurer.ID, &insurer.Name, &active, &createdAt); err != nil {
		return nil, err
	}
	insurer.Active = active != 0
	if createdAt != 0 {
		insurer.CreatedAt = time.Unix(0, createdAt).UTC()
	}
	return &insurer, nil
}

// CreatePolicy stores a new policy.
func (r *SQLRepository) CreatePolicy(ctx context.Context, tenantID string, policy *domain.InsurancePolicy) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	return r.insertPolicy(ctx, r.db, tenantID, policy)
}

// UpdatePolicy writes policy if the stored version still equals policy.Version.
// On success policy.Version is incremented.
func (r *SQLRepository) UpdatePolicy(ctx context.Context, tenantID string, policy *domain.InsurancePolicy) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	return r.updatePolicy(ctx, r.db, tenantID, policy)
}

// RenewPolicy writes old and inserts successor in one transaction. A stale
// old version, or a successor already recorded for old, returns
// ErrVersionConflict and leaves both rows as they were.
func (r *SQLRepository) RenewPolicy(ctx context.Context, tenantID string, old, successor *domain.InsurancePolicy) (err error) {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if old == nil || successor == nil {
		return fmt.Errorf("%w: policy and successor are required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	expected := old.Version
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			old.Version = expected
		}
	}()

	if err = r.updatePolicy(ctx, tx, tenantID, old); err != nil {
		return err
	}
	if err = r.insertPolicy(ctx, tx, tenantID, successor); err != nil {
		if isUniqueViolation(err) {
			return ErrVersionConflict
		}
		return err
	}
	return tx.Commit()
}

func (r *SQLRepository) insertPolicy(ctx context.Context, q execer, tenantID string, policy *domain.InsurancePolicy) error {
	doc, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	query := `
		INSERT INTO policies (
			id, tenant_id, policy_number, customer_id, insurer_id,
			status, start_date, end_date, renewed_from, version, doc, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = q.ExecContext(ctx, r.rebind(query),
		policy.ID, tenantID, policy.PolicyNumber, policy.CustomerID, policy.InsurerID,
		string(policy.Status), unixNanos(policy.StartDate), unixNanos(policy.EndDate),
		policy.RenewedFrom, policy.Version, string(doc), unixNanos(policy.UpdatedAt),
	)
	return err
}

func (r *SQLRepository) updatePolicy(ctx context.Context, q execer, tenantID string, policy *domain.InsurancePolicy) error {
	expected := policy.Version
	policy.Version = expected + 1
	doc, err := json.Marshal(policy)
	if err != nil {
		policy.Version = expected
		return fmt.Errorf("failed to encode policy: %w", err)
	}

	query := `
		UPDATE policies
		SET customer_id = ?, insurer_id = ?, status = ?, start_date = ?, end_date = ?,
			version = ?, doc = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND version = ?
	`

	result, err := q.ExecContext(ctx, r.rebind(query),
		policy.CustomerID, policy.InsurerID, string(policy.Status),
		unixNanos(policy.StartDate), unixNanos(policy.EndDate),
		policy.Version, string(doc), unixNanos(policy.UpdatedAt),
		tenantID, policy.ID, expected,
	)
	if err != nil {
		policy.Version = expected
		return err
	}
	if err := r.requireVersion(ctx, q, result, "policies", tenantID, policy.ID); err != nil {
		policy.Version = expected
		return err
	}
	return nil
}

// GetPolicy retrieves a policy by ID with tenant isolation.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string, policyID string) (*domain.InsurancePolicy, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT doc FROM policies WHERE tenant_id = ? AND id = ?`

	var policy domain.InsurancePolicy
	if err := r.getDoc(ctx, &policy, query, tenantID, policyID); err != nil {
		return nil, err
	}
	policy.TenantID = tenantID
	return &policy, nil
}

// ListPolicies returns policies matching the filter ordered by start date.
func (r *SQLRepository) ListPolicies(ctx context.Context, tenantID string, filter domain.PolicyFilter) ([]*domain.InsurancePolicy, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var w where
	w.add("tenant_id = ?", tenantID)
	if filter.CustomerID != "" {
		w.add("customer_id = ?", filter.CustomerID)
	}
	if filter.InsurerID != "" {
		w.add("insurer_id = ?", filter.InsurerID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}

	query := `SELECT doc FROM policies WHERE ` + w.String() + ` ORDER BY start_date, policy_number`

	policies, err := listDocs[domain.InsurancePolicy](ctx, r, query, w.args...)
	if err != nil {
		return nil, err
	}
	for _, p := range policies {
		p.TenantID = tenantID
	}
	return policies, nil
}

// CreateClaim stores a new claim.
func (r *SQLRepository) CreateClaim(ctx context.Context, tenantID string, claim *domain.InsuranceClaim) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	doc, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}

	query := `
		INSERT INTO claims (
			id, tenant_id, claim_number, policy_id, customer_id,
			status, reported_at, version, doc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		claim.ID, tenantID, claim.ClaimNumber, claim.PolicyID, claim.CustomerID,
		string(claim.Status), unixNanos(claim.ReportedAt), claim.Version, string(doc),
	)
	return err
}

// UpdateClaim writes claim if the stored version still equals expectedVersion.
// On success claim.Version is expectedVersion+1.
func (r *SQLRepository) UpdateClaim(ctx context.Context, tenantID string, claim *domain.InsuranceClaim, expectedVersion int64) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	previous := claim.Version
	claim.Version = expectedVersion + 1
	doc, err := json.Marshal(claim)
	if err != nil {
		claim.Version = previous
		return fmt.Errorf("failed to encode claim: %w", err)
	}

	query := `
		UPDATE claims
		SET status = ?, version = ?, doc = ?
		WHERE tenant_id = ? AND id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(claim.Status), claim.Version, string(doc),
		tenantID, claim.ID, expectedVersion,
	)
	if err != nil {
		claim.Version = previous
		return err
	}

	if err := r.requireVersion(ctx, r.db, result, "claims", tenantID, claim.ID); err != nil {
		claim.Version = previous
		return err
	}
	return nil
}

// GetClaim retrieves a claim by ID with tenant isolation.
func (r *SQLRepository) GetClaim(ctx context.Context, tenantID string, claimID string) (*domain.InsuranceClaim, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT doc, version FROM claims WHERE tenant_id = ? AND id = ?`

	var (
		doc     string
		version int64
	)
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID).Scan(&doc, &version)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var claim domain.InsuranceClaim
	if err := json.Unmarshal([]byte(doc), &claim); err != nil {
		return nil, fmt.Errorf("failed to decode claim: %w", err)
	}
	claim.TenantID = tenantID
	claim.Version = version
	return &claim, nil
}

// ListClaims returns claims matching the filter ordered by report time.
func (r *SQLRepository) ListClaims(ctx context.Context, tenantID string, filter domain.ClaimFilter) ([]*domain.InsuranceClaim, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var w where
	w.add("tenant_id = ?", tenantID)
	if filter.CustomerID != "" {
		w.add("customer_id = ?", filter.CustomerID)
	}
	if filter.PolicyID != "" {
		w.add("policy_id = ?", filter.PolicyID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if !filter.Since.IsZero() {
		w.add("reported_at >= ?", filter.Since.UnixNano())
	}

	query := `SELECT doc FROM claims WHERE ` + w.String() + ` ORDER BY reported_at, claim_number`

	claims, err := listDocs[domain.InsuranceClaim](ctx, r, query, w.args...)
	if err != nil {
		return nil, err
	}
	for _, c := range claims {
		c.TenantID = tenantID
	}
	return claims, nil
}

// SaveAlert inserts or updates a fraud alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, tenantID string, alert *domain.FraudAlert) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	doc, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	query := `
		INSERT INTO fraud_alerts (
			id, tenant_id, claim_id, customer_id, alert_type,
			severity, resolved, detected_at, doc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			severity = excluded.severity,
			resolved = excluded.resolved,
			doc = excluded.doc
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, tenantID, alert.ClaimID, alert.CustomerID, string(alert.AlertType),
		string(alert.Severity), boolInt(alert.Resolved()), unixNanos(alert.DetectedAt), string(doc),
	)
	return err
}

// GetAlert retrieves a fraud alert by ID with tenant isolation.
func (r *SQLRepository) GetAlert(ctx context.Context, tenantID string, alertID string) (*domain.FraudAlert, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT doc FROM fraud_alerts WHERE tenant_id = ? AND id = ?`

	var alert domain.FraudAlert
	if err := r.getDoc(ctx, &alert, query, tenantID, alertID); err != nil {
		return nil, err
	}
	alert.TenantID = tenantID
	return &alert, nil
}

// ListAlerts returns fraud alerts matching the filter ordered by detection time.
func (r *SQLRepository) ListAlerts(ctx context.Context, tenantID string, filter domain.AlertFilter) ([]*domain.FraudAlert, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var w where
	w.add("tenant_id = ?", tenantID)
	if filter.ClaimID != "" {
		w.add("claim_id = ?", filter.ClaimID)
	}
	if filter.CustomerID != "" {
		w.add("customer_id = ?", filter.CustomerID)
	}
	if filter.OpenOnly {
		w.add("resolved = ?", 0)
	}

	query := `SELECT doc FROM fraud_alerts WHERE ` + w.String() + ` ORDER BY detected_at, id`

	alerts, err := listDocs[domain.FraudAlert](ctx, r, query, w.args...)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		a.TenantID = tenantID
	}
	return alerts, nil
}

// SaveAssessment inserts or replaces the risk assessment of a customer.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, assessment *domain.RiskAssessment) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if assessment == nil || assessment.CustomerID == "" {
		return fmt.Errorf("%w: customerID is required", ErrInvalidInput)
	}
	doc, err := json.Marshal(assessment)
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}

	query := `
		INSERT INTO risk_assessments (tenant_id, customer_id, score, level, updated_at, doc)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, customer_id) DO UPDATE SET
			score = excluded.score,
			level = excluded.level,
			updated_at = excluded.updated_at,
			doc = excluded.doc
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tenantID, assessment.CustomerID, assessment.Score, string(assessment.Level),
		unixNanos(assessment.LastUpdated), string(doc),
	)
	return err
}

// GetAssessment retrieves the stored risk assessment of a customer.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, customerID string) (*domain.RiskAssessment, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT doc FROM risk_assessments WHERE tenant_id = ? AND customer_id = ?`

	var assessment domain.RiskAssessment
	if err := r.getDoc(ctx, &assessment, query, tenantID, customerID); err != nil {
		return nil, err
	}
	assessment.TenantID = tenantID
	return &assessment, nil
}

// NextSequence atomically increments the named counter and returns its new value.
func (r *SQLRepository) NextSequence(ctx context.Context, tenantID string, name string) (int64, error) {
	if err := requireTenant(tenantID); err != nil {
		return 0, err
	}
	if name == "" {
		return 0, fmt.Errorf("%w: sequence name is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO sequences (tenant_id, name, seq_value) VALUES (?, ?, 1)
		ON CONFLICT (tenant_id, name) DO UPDATE SET seq_value = sequences.seq_value + 1
		RETURNING seq_value
	`

	var value int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, name).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) getDoc(ctx context.Context, dest any, query string, args ...any) error {
	var doc string
	err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&doc)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(doc), dest); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

func listDocs[T any](ctx context.Context, r *SQLRepository, query string, args ...any) ([]*T, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		item := new(T)
		if err := json.Unmarshal([]byte(doc), item); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// requireVersion turns an optimistic UPDATE that matched no row into
// ErrNotFound or ErrVersionConflict.
func (r *SQLRepository) requireVersion(ctx context.Context, q execer, result sql.Result, table, tenantID, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var count int
	query := `SELECT COUNT(*) FROM ` + table + ` WHERE tenant_id = ? AND id = ?`
	if err := q.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// where accumulates AND-ed conditions and their arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	return strings.Join(w.conds, " AND ")
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var _ domain.Repository = (*SQLRepository)(nil)


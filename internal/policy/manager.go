// Package policy issues, renews and expires insurance policies.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/claimguard/internal/coverage"
	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/keylock"
	"github.com/opensource-finance/claimguard/internal/notify"
)

// Assessor looks up the stored risk assessment of a customer.
// A nil assessment means the customer has not been assessed.
type Assessor interface {
	Assessment(ctx context.Context, tenantID, customerID string) (*domain.RiskAssessment, error)
}

// CreatePolicyInput carries the fields a caller supplies for a new policy.
type CreatePolicyInput struct {
	CustomerID     string    `json:"customerId"`
	InsurerID      string    `json:"insuranceCompany"`
	CoverageType   string    `json:"coverageType"`
	CoverageAmount float64   `json:"coverageAmount"`
	Premium        float64   `json:"premium"`    // zero uses the quoted premium
	Deductible     float64   `json:"deductible"` // zero uses the tier deductible
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	AutoRenew      bool      `json:"autoRenew"`
	Documents      []string  `json:"documents,omitempty"`
}

// Manager owns policy and insurer records.
type Manager struct {
	repo     domain.Repository
	catalog  *coverage.Catalog
	assessor Assessor
	notifier domain.Notifier
	cfg      domain.PolicyConfig
	locks    *keylock.Map
	now      func() time.Time
	newID    func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides record ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// NewManager creates a policy manager. assessor and notifier may be nil.
func NewManager(repo domain.Repository, catalog *coverage.Catalog, assessor Assessor, notifier domain.Notifier, cfg domain.PolicyConfig, opts ...Option) *Manager {
	if cfg.RenewalWindow <= 0 {
		cfg.RenewalWindow = 30 * 24 * time.Hour
	}
	if cfg.GracePeriod < 0 {
		cfg.GracePeriod = 0
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = domain.DefaultStorageTimeout
	}
	if catalog == nil {
		catalog = coverage.Default()
	}

	m := &Manager{
		repo:     repo,
		catalog:  catalog,
		assessor: assessor,
		notifier: notifier,
		cfg:      cfg,
		locks:    keylock.New(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Catalog returns the coverage catalog policies are validated against.
func (m *Manager) Catalog() *coverage.Catalog {
	return m.catalog
}

func (m *Manager) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.StorageTimeout)
}

// RegisterInsurer stores an insurer. An empty ID is generated.
func (m *Manager) RegisterInsurer(ctx context.Context, tenantID string, insurer domain.Insurer) (*domain.Insurer, error) {
	insurer.Name = strings.TrimSpace(insurer.Name)
	if insurer.Name == "" {
		return nil, &domain.ValidationError{Entity: "insurer", Field: "name", Reason: "is required"}
	}
	if insurer.ID == "" {
		insurer.ID = m.newID()
	}
	if insurer.CreatedAt.IsZero() {
		insurer.CreatedAt = m.now()
	}
	insurer.TenantID = tenantID

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()

	if err := m.repo.SaveInsurer(sctx, tenantID, &insurer); err != nil {
		return nil, domain.NewStorageError("save", "insurer", insurer.ID, err)
	}
	return &insurer, nil
}

// ListInsurers returns every insurer of the tenant.
func (m *Manager) ListInsurers(ctx context.Context, tenantID string) ([]*domain.Insurer, error) {
	sctx, cancel := m.storageCtx(ctx)
	defer cancel()

	insurers, err := m.repo.ListInsurers(sctx, tenantID)
	if err != nil {
		return nil, domain.NewStorageError("list", "insurers", "", err)
	}
	return insurers, nil
}

// CreatePolicy validates input, numbers the policy and stores it.
// Customers assessed Very High, and policies starting in the future, are
// created Pending; everything else starts Active.
func (m *Manager) CreatePolicy(ctx context.Context, tenantID string, in CreatePolicyInput) (*domain.InsurancePolicy, error) {
	invalid := func(field, reason string) error {
		return &domain.ValidationError{Entity: "policy", Field: field, Reason: reason}
	}

	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, invalid("customerId", "is required")
	}
	tier, err := m.catalog.Tier(in.CoverageType)
	if err != nil {
		return nil, err
	}
	if in.CoverageAmount <= 0 {
		return nil, invalid("coverageAmount", "must be positive")
	}
	if in.CoverageAmount > tier.MaxCoverage {
		return nil, invalid("coverageAmount", fmt.Sprintf("%.2f exceeds %s maximum %.2f", in.CoverageAmount, tier.Name, tier.MaxCoverage))
	}

	premium := in.Premium
	if premium == 0 {
		quote, err := m.catalog.Quote(in.CoverageAmount, tier.Name)
		if err != nil {
			return nil, err
		}
		premium = quote.Premium
	}
	if premium < tier.BasePremium {
		return nil, invalid("premium", fmt.Sprintf("%.2f is below the %s base premium %.2f", premium, tier.Name, tier.BasePremium))
	}

	deductible := in.Deductible
	if deductible == 0 {
		deductible = tier.Deductible
	}
	if deductible < 0 {
		return nil, invalid("deductible", "must not be negative")
	}

	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, invalid("startDate", "start and end dates are required")
	}
	if !in.EndDate.After(in.StartDate) {
		return nil, invalid("endDate", "must be after startDate")
	}
	if strings.TrimSpace(in.InsurerID) == "" {
		return nil, invalid("insuranceCompany", "is required")
	}

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()

	insurer, err := m.repo.GetInsurer(sctx, tenantID, in.InsurerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, invalid("insuranceCompany", fmt.Sprintf("insurer %s does not exist", in.InsurerID))
	}
	if err != nil {
		return nil, domain.NewStorageError("get", "insurer", in.InsurerID, err)
	}
	if !insurer.Active {
		return nil, invalid("insuranceCompany", fmt.Sprintf("insurer %s is not active", in.InsurerID))
	}

	now := m.now()
	status := domain.PolicyActive
	var reason domain.PendingReason
	if in.StartDate.After(now) {
		status, reason = domain.PolicyPending, domain.PendingAwaitingStart
	}
	if m.assessor != nil {
		a, err := m.assessor.Assessment(ctx, tenantID, in.CustomerID)
		if err != nil {
			return nil, err
		}
		if a != nil && a.Level == domain.RiskVeryHigh {
			status, reason = domain.PolicyPending, domain.PendingUnderwriting
		}
	}

	number, err := m.nextPolicyNumber(sctx, tenantID, now)
	if err != nil {
		return nil, err
	}

	policy := &domain.InsurancePolicy{
		ID:             m.newID(),
		TenantID:       tenantID,
		CustomerID:     in.CustomerID,
		PolicyNumber:   number,
		InsurerID:      in.InsurerID,
		CoverageType:   tier.Name,
		CoverageAmount: in.CoverageAmount,
		Premium:        premium,
		Deductible:     deductible,
		StartDate:      in.StartDate.UTC(),
		EndDate:        in.EndDate.UTC(),
		Status:         status,
		PendingReason:  reason,
		AutoRenew:      in.AutoRenew,
		Documents:      in.Documents,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.repo.CreatePolicy(sctx, tenantID, policy); err != nil {
		return nil, domain.NewStorageError("create", "policy", policy.ID, err)
	}

	slog.Info("policy created",
		"tenant_id", tenantID,
		"policy_number", policy.PolicyNumber,
		"customer_id", policy.CustomerID,
		"status", policy.Status,
	)
	m.emit(ctx, tenantID, domain.TopicPolicyCreated, policy)
	return policy, nil
}

// nextPolicyNumber formats POL-YYYY-NNN from the per-year sequence.
func (m *Manager) nextPolicyNumber(ctx context.Context, tenantID string, now time.Time) (string, error) {
	year := now.Year()
	seq, err := m.repo.NextSequence(ctx, tenantID, fmt.Sprintf("policy-%d", year))
	if err != nil {
		return "", domain.NewStorageError("next", "policy sequence", "", err)
	}
	return fmt.Sprintf("POL-%d-%03d", year, seq), nil
}

// GetPolicy returns a policy by ID.
func (m *Manager) GetPolicy(ctx context.Context, tenantID, policyID string) (*domain.InsurancePolicy, error) {
	sctx, cancel := m.storageCtx(ctx)
	defer cancel()

	p, err := m.repo.GetPolicy(sctx, tenantID, policyID)
	if err != nil {
		return nil, domain.NewStorageError("get", "policy", policyID, err)
	}
	return p, nil
}

// ListPolicies returns the policies matching filter.
func (m *Manager) ListPolicies(ctx context.Context, tenantID string, filter domain.PolicyFilter) ([]*domain.InsurancePolicy, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &domain.ValidationError{Entity: "policy", Field: "status", Reason: fmt.Sprintf("unknown status %q", filter.Status)}
	}

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()

	policies, err := m.repo.ListPolicies(sctx, tenantID, filter)
	if err != nil {
		return nil, domain.NewStorageError("list", "policies", "", err)
	}
	return policies, nil
}

var statusTransitions = map[domain.PolicyStatus][]domain.PolicyStatus{
	domain.PolicyPending:   {domain.PolicyActive, domain.PolicyCancelled},
	domain.PolicyActive:    {domain.PolicySuspended, domain.PolicyCancelled, domain.PolicyExpired},
	domain.PolicySuspended: {domain.PolicyActive, domain.PolicyCancelled},
}

// CanTransition reports whether a policy may move from one status to another.
func CanTransition(from, to domain.PolicyStatus) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateStatus activates, suspends, cancels or expires a policy.
// Expired and Cancelled policies are final.
func (m *Manager) UpdateStatus(ctx context.Context, tenantID, policyID string, status domain.PolicyStatus) (*domain.InsurancePolicy, error) {
	if !status.Valid() {
		return nil, &domain.ValidationError{Entity: "policy", ID: policyID, Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	unlock := m.locks.Lock(tenantID + "/" + policyID)
	defer unlock()

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()

	p, err := m.repo.GetPolicy(sctx, tenantID, policyID)
	if err != nil {
		return nil, domain.NewStorageError("get", "policy", policyID, err)
	}
	if !CanTransition(p.Status, status) {
		reason := fmt.Sprintf("cannot change status from %s to %s", p.Status, status)
		if p.Status.Final() {
			reason = fmt.Sprintf("status %s is final", p.Status)
		}
		return nil, &domain.ValidationError{Entity: "policy", ID: policyID, Field: "status", Reason: reason}
	}

	from := p.Status
	p.Status = status
	p.PendingReason = ""
	p.UpdatedAt = m.now()
	if err := m.repo.UpdatePolicy(sctx, tenantID, p); err != nil {
		return nil, writeError("update", p, err)
	}

	slog.Info("policy status changed",
		"tenant_id", tenantID,
		"policy_number", p.PolicyNumber,
		"from", from,
		"to", status,
	)
	if status == domain.PolicyExpired {
		m.emit(ctx, tenantID, domain.TopicPolicyExpired, p)
	}
	return p, nil
}

func (m *Manager) emit(ctx context.Context, tenantID, topic string, p *domain.InsurancePolicy) {
	payload := map[string]any{
		"policyId":     p.ID,
		"policyNumber": p.PolicyNumber,
		"customerId":   p.CustomerID,
		"status":       string(p.Status),
		"endDate":      p.EndDate.Format(time.RFC3339),
	}
	if p.RenewedFrom != "" {
		payload["renewedFrom"] = p.RenewedFrom
	}
	notify.Emit(ctx, m.notifier, tenantID, notify.NewEvent(topic, p.PolicyNumber, payload, m.now()))
}

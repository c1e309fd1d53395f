// Package claims implements the claim lifecycle: filing, assignment,
// status transitions, attachments and settlement.
//
// Every mutation of a claim appends exactly one timeline event and is
// written with an optimistic version check while holding a per-claim lock,
// so two racing transitions from the same status cannot both succeed.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/fraud"
	"github.com/opensource-finance/claimguard/internal/keylock"
	"github.com/opensource-finance/claimguard/internal/metrics"
	"github.com/opensource-finance/claimguard/internal/notify"
	"github.com/opensource-finance/claimguard/internal/risk"
)

// PolicyReader resolves the policy a claim is filed against.
type PolicyReader interface {
	GetPolicy(ctx context.Context, tenantID, policyID string) (*domain.InsurancePolicy, error)
}

// Scorer computes the initial fraud score of a claim and rebuilds the
// customer's assessment when their claim history changes.
type Scorer interface {
	ScoreClaim(ctx context.Context, tenantID string, cc risk.ClaimContext) (*risk.ClaimScore, error)
	AssessCustomer(ctx context.Context, tenantID, customerID string) (*domain.RiskAssessment, error)
}

// FraudChecker runs fraud detection and stores its alerts.
type FraudChecker interface {
	Evaluate(ctx context.Context, tenantID string, claim *domain.InsuranceClaim, policy *domain.InsurancePolicy) ([]*domain.FraudAlert, error)
	Record(ctx context.Context, tenantID string, alerts []*domain.FraudAlert) error
	Reassess(ctx context.Context, tenantID string, claim *domain.InsuranceClaim, policy *domain.InsurancePolicy) ([]*domain.FraudAlert, error)
	ListAlerts(ctx context.Context, tenantID string, filter domain.AlertFilter) ([]*domain.FraudAlert, error)
}

// Deps are the collaborators of an Engine. Repo and Policies are required.
type Deps struct {
	Repo      domain.Repository
	Policies  PolicyReader
	Risk      Scorer
	Fraud     FraudChecker
	Notifier  domain.Notifier
	Documents domain.DocumentStore
	Config    domain.ClaimsConfig
	Clock     func() time.Time
	NewID     func() string
}

// Engine runs the claim lifecycle.
type Engine struct {
	repo      domain.Repository
	policies  PolicyReader
	risk      Scorer
	fraud     FraudChecker
	notifier  domain.Notifier
	documents domain.DocumentStore
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
	locks     *keylock.Map
}

// NewEngine creates a claim engine.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("claims: repository is required")
	}
	if deps.Policies == nil {
		return nil, fmt.Errorf("claims: policy reader is required")
	}

	e := &Engine{
		repo:      deps.Repo,
		policies:  deps.Policies,
		risk:      deps.Risk,
		fraud:     deps.Fraud,
		notifier:  deps.Notifier,
		documents: deps.Documents,
		timeout:   deps.Config.StorageTimeout,
		now:       deps.Clock,
		newID:     deps.NewID,
		locks:     keylock.New(),
	}
	if e.timeout <= 0 {
		e.timeout = domain.DefaultStorageTimeout
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.New().String() }
	}
	return e, nil
}

// FileClaimInput describes a new claim.
type FileClaimInput struct {
	PolicyID        string           `json:"policyId"`
	CustomerID      string           `json:"customerId"`
	PackageID       string           `json:"packageId,omitempty"`
	ClaimType       domain.ClaimType `json:"claimType"`
	Description     string           `json:"description"`
	IncidentDate    time.Time        `json:"incidentDate"`
	ReportedAmount  float64          `json:"reportedAmount"`
	EstimatedAmount float64          `json:"estimatedAmount"` // zero copies reportedAmount
}

// AdvanceRequest moves a claim to Target.
type AdvanceRequest struct {
	Target         domain.ClaimStatus `json:"status"`
	Actor          string             `json:"actor"`
	Note           string             `json:"note,omitempty"`
	ApprovedAmount *float64           `json:"approvedAmount,omitempty"`
	ExpectedStatus domain.ClaimStatus `json:"expectedStatus,omitempty"`
}

// ReassessResult is the outcome of re-running fraud detection on a claim.
type ReassessResult struct {
	Claim  *domain.InsuranceClaim `json:"claim"`
	Alerts []*domain.FraudAlert   `json:"alerts"`
}

func invalidClaim(id, field, reason string) error {
	return &domain.ValidationError{Entity: "claim", ID: id, Field: field, Reason: reason}
}

// FileClaim validates and stores a new claim in Reported status. The fraud
// score blends claim heuristics with the customer's assessment and is
// raised to the floor implied by any fraud alert the claim triggers.
func (e *Engine) FileClaim(ctx context.Context, tenantID string, in FileClaimInput, actor string) (*domain.InsuranceClaim, error) {
	now := e.now()

	if !in.ClaimType.Valid() {
		return nil, invalidClaim("", "claimType", fmt.Sprintf("unknown claim type %q", in.ClaimType))
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, invalidClaim("", "description", "is required")
	}
	if in.ReportedAmount <= 0 {
		return nil, invalidClaim("", "reportedAmount", "must be positive")
	}
	if in.EstimatedAmount < 0 {
		return nil, invalidClaim("", "estimatedAmount", "must not be negative")
	}
	if in.EstimatedAmount == 0 {
		in.EstimatedAmount = in.ReportedAmount
	}
	if in.IncidentDate.IsZero() {
		return nil, invalidClaim("", "incidentDate", "is required")
	}
	if in.IncidentDate.After(now) {
		return nil, invalidClaim("", "incidentDate", "must not be in the future")
	}

	policy, err := e.policies.GetPolicy(ctx, tenantID, in.PolicyID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.ReferentialError{Entity: "claim", Ref: "policy", RefID: in.PolicyID}
	}
	if err != nil {
		return nil, err
	}
	if policy.CustomerID != in.CustomerID {
		return nil, &domain.ReferentialError{
			Entity: "claim",
			Ref:    "policy",
			RefID:  in.PolicyID,
			Reason: fmt.Sprintf("does not belong to customer %s", in.CustomerID),
		}
	}
	if policy.Status != domain.PolicyActive {
		return nil, invalidClaim("", "policyId", fmt.Sprintf("policy %s is %s", policy.PolicyNumber, policy.Status))
	}
	if in.IncidentDate.Before(policy.StartDate) {
		return nil, invalidClaim("", "incidentDate", "is before the policy start date")
	}
	if in.IncidentDate.After(policy.EndDate) {
		return nil, invalidClaim("", "incidentDate", "is after the policy end date")
	}

	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	recent, err := e.repo.ListClaims(sctx, tenantID, domain.ClaimFilter{
		CustomerID: in.CustomerID,
		Since:      now.AddDate(-1, 0, 0),
	})
	if err != nil {
		return nil, domain.NewStorageError("list", "claims", in.CustomerID, err)
	}

	claim := &domain.InsuranceClaim{
		ID:              e.newID(),
		TenantID:        tenantID,
		PolicyID:        policy.ID,
		CustomerID:      in.CustomerID,
		PackageID:       in.PackageID,
		ClaimType:       in.ClaimType,
		Description:     strings.TrimSpace(in.Description),
		IncidentDate:    in.IncidentDate.UTC(),
		ReportedAmount:  in.ReportedAmount,
		EstimatedAmount: in.EstimatedAmount,
		Status:          domain.ClaimReported,
		ReportedAt:      now,
		RiskLevel:       domain.RiskLow,
		UpdatedAt:       now,
	}

	if e.risk != nil {
		score, err := e.risk.ScoreClaim(ctx, tenantID, risk.ClaimContext{
			TenantID:        tenantID,
			CustomerID:      claim.CustomerID,
			ClaimType:       claim.ClaimType,
			ReportedAmount:  claim.ReportedAmount,
			EstimatedAmount: claim.EstimatedAmount,
			CoverageAmount:  policy.CoverageAmount,
			PriorClaims:     len(recent),
			DelayDays:       now.Sub(claim.IncidentDate).Hours() / 24,
			PolicyAgeDays:   claim.IncidentDate.Sub(policy.StartDate).Hours() / 24,
		})
		if err != nil {
			return nil, err
		}
		claim.FraudScore = score.Score
		claim.RiskLevel = score.Level
	}

	var alerts []*domain.FraudAlert
	if e.fraud != nil {
		if alerts, err = e.fraud.Evaluate(ctx, tenantID, claim, policy); err != nil {
			return nil, err
		}
		if floor := fraud.ScoreFloor(alerts); floor > claim.FraudScore {
			claim.FraudScore = floor
			claim.RiskLevel = risk.ClassifyRiskLevel(floor)
		}
	}
	claim.Priority = DerivePriority(claim.RiskLevel, claim.ReportedAmount, claim.ClaimType)

	number, err := e.nextClaimNumber(sctx, tenantID, now)
	if err != nil {
		return nil, err
	}
	claim.ClaimNumber = number
	claim.Timeline = []domain.ClaimTimelineEvent{{
		ID:          e.newID(),
		Timestamp:   now,
		EventType:   domain.EventClaimFiled,
		Description: fmt.Sprintf("%s claim %s filed for %.2f", claim.ClaimType, number, claim.ReportedAmount),
		PerformedBy: actorOr(actor, claim.CustomerID),
	}}

	if err := e.repo.CreateClaim(sctx, tenantID, claim); err != nil {
		return nil, domain.NewStorageError("create", "claim", claim.ID, err)
	}

	if len(alerts) > 0 {
		if err := e.fraud.Record(ctx, tenantID, alerts); err != nil {
			slog.Error("failed to store fraud alerts",
				"tenant_id", tenantID,
				"claim_number", claim.ClaimNumber,
				"error", err,
			)
		}
	}

	e.refreshCustomer(ctx, tenantID, claim)

	metrics.RecordClaimFiled(string(claim.ClaimType))
	slog.Info("claim filed",
		"tenant_id", tenantID,
		"claim_number", claim.ClaimNumber,
		"policy_number", policy.PolicyNumber,
		"fraud_score", claim.FraudScore,
		"risk_level", claim.RiskLevel,
		"alerts", len(alerts),
	)
	e.emit(ctx, tenantID, domain.TopicClaimFiled, claim, map[string]any{
		"policyId":   claim.PolicyID,
		"priority":   string(claim.Priority),
		"fraudScore": claim.FraudScore,
		"alerts":     len(alerts),
	})
	return claim, nil
}

// refreshCustomer rebuilds the customer's assessment after a claim changed
// their history. A failure is logged and does not undo the claim change.
func (e *Engine) refreshCustomer(ctx context.Context, tenantID string, c *domain.InsuranceClaim) {
	if e.risk == nil {
		return
	}
	if _, err := e.risk.AssessCustomer(ctx, tenantID, c.CustomerID); err != nil {
		slog.Warn("customer risk refresh failed",
			"tenant_id", tenantID,
			"customer_id", c.CustomerID,
			"claim_number", c.ClaimNumber,
			"error", err,
		)
	}
}

func (e *Engine) nextClaimNumber(ctx context.Context, tenantID string, now time.Time) (string, error) {
	year := now.Year()
	seq, err := e.repo.NextSequence(ctx, tenantID, fmt.Sprintf("claim-%d", year))
	if err != nil {
		return "", domain.NewStorageError("next", "claim sequence", "", err)
	}
	return fmt.Sprintf("CLM-%d-%04d", year, seq), nil
}

func actorOr(actor, fallback string) string {
	if strings.TrimSpace(actor) == "" {
		return fallback
	}
	return actor
}

// GetClaim returns a claim by ID.
func (e *Engine) GetClaim(ctx context.Context, tenantID, claimID string) (*domain.InsuranceClaim, error) {
	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	c, err := e.repo.GetClaim(sctx, tenantID, claimID)
	if err != nil {
		return nil, domain.NewStorageError("get", "claim", claimID, err)
	}
	return c, nil
}

// ListClaims returns the claims matching filter.
func (e *Engine) ListClaims(ctx context.Context, tenantID string, filter domain.ClaimFilter) ([]*domain.InsuranceClaim, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalidClaim("", "status", fmt.Sprintf("unknown status %q", filter.Status))
	}

	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	claims, err := e.repo.ListClaims(sctx, tenantID, filter)
	if err != nil {
		return nil, domain.NewStorageError("list", "claims", "", err)
	}
	return claims, nil
}

func (e *Engine) emit(ctx context.Context, tenantID, topic string, c *domain.InsuranceClaim, extra map[string]any) {
	payload := map[string]any{
		"claimId":     c.ID,
		"claimNumber": c.ClaimNumber,
		"customerId":  c.CustomerID,
		"status":      string(c.Status),
		"riskLevel":   string(c.RiskLevel),
	}
	for k, v := range extra {
		payload[k] = v
	}
	notify.Emit(ctx, e.notifier, tenantID, notify.NewEvent(topic, c.ClaimNumber, payload, e.now()))
}

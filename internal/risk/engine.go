package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// Customer factor weights. They sum to 1.
const (
	weightClaimFrequency = 0.35
	weightLossRatio      = 0.30
	weightFraudAlerts    = 0.25
	weightTenure         = 0.10
)

// ClaimScore is the risk verdict for a single claim.
type ClaimScore struct {
	Score         float64             `json:"score"`
	Level         domain.RiskLevel    `json:"level"`
	Heuristic     float64             `json:"heuristic"`
	CustomerScore *float64            `json:"customerScore,omitempty"`
	Factors       []domain.RiskFactor `json:"factors"`
}

// Engine assesses customers from their history and scores new claims.
type Engine struct {
	repo  domain.Repository
	cache domain.Cache
	rules *RuleEngine
	cfg   domain.RiskConfig
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a risk engine. cache may be nil.
func NewEngine(repo domain.Repository, cache domain.Cache, rules *RuleEngine, cfg domain.RiskConfig, opts ...Option) *Engine {
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = domain.DefaultStorageTimeout
	}
	if cfg.ClaimWeight <= 0 || cfg.ClaimWeight > 1 {
		cfg.ClaimWeight = 0.7
	}
	if cfg.AssessmentTTL <= 0 {
		cfg.AssessmentTTL = 15 * time.Minute
	}

	e := &Engine{
		repo:  repo,
		cache: cache,
		rules: rules,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules exposes the factor rule engine.
func (e *Engine) Rules() *RuleEngine {
	return e.rules
}

// Assessment returns the customer's assessment, or nil when the customer
// has never been assessed. An assessment older than AssessmentTTL is
// rebuilt from the current history before it is returned.
func (e *Engine) Assessment(ctx context.Context, tenantID, customerID string) (*domain.RiskAssessment, error) {
	a, err := e.storedAssessment(ctx, tenantID, customerID)
	if err != nil || a == nil {
		return a, err
	}
	if e.now().Sub(a.LastUpdated) > e.cfg.AssessmentTTL {
		slog.Debug("customer assessment stale",
			"tenant_id", tenantID,
			"customer_id", customerID,
			"last_updated", a.LastUpdated,
		)
		return e.AssessCustomer(ctx, tenantID, customerID)
	}
	return a, nil
}

func (e *Engine) storedAssessment(ctx context.Context, tenantID, customerID string) (*domain.RiskAssessment, error) {
	if e.cache != nil {
		if a, err := e.cache.GetAssessment(ctx, tenantID, customerID); err == nil && a != nil {
			return a, nil
		} else if err != nil {
			slog.Warn("risk cache read failed", "tenant_id", tenantID, "customer_id", customerID, "error", err)
		}
	}

	sctx, cancel := context.WithTimeout(ctx, e.cfg.StorageTimeout)
	defer cancel()

	a, err := e.repo.GetAssessment(sctx, tenantID, customerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewStorageError("get", "risk assessment", customerID, err)
	}
	e.cacheAssessment(ctx, tenantID, a)
	return a, nil
}

// AssessCustomer rebuilds, stores and caches a customer's risk assessment.
func (e *Engine) AssessCustomer(ctx context.Context, tenantID, customerID string) (*domain.RiskAssessment, error) {
	if customerID == "" {
		return nil, &domain.ValidationError{Entity: "risk assessment", Field: "customerId", Reason: "is required"}
	}

	sctx, cancel := context.WithTimeout(ctx, e.cfg.StorageTimeout)
	defer cancel()

	claims, err := e.repo.ListClaims(sctx, tenantID, domain.ClaimFilter{CustomerID: customerID})
	if err != nil {
		return nil, domain.NewStorageError("list", "claims", customerID, err)
	}
	policies, err := e.repo.ListPolicies(sctx, tenantID, domain.PolicyFilter{CustomerID: customerID})
	if err != nil {
		return nil, domain.NewStorageError("list", "policies", customerID, err)
	}
	alerts, err := e.repo.ListAlerts(sctx, tenantID, domain.AlertFilter{CustomerID: customerID, OpenOnly: true})
	if err != nil {
		return nil, domain.NewStorageError("list", "fraud alerts", customerID, err)
	}

	now := e.now()
	factors := CustomerFactors(claims, policies, alerts, now)
	score, err := ComputeRiskScore(factors)
	if err != nil {
		return nil, err
	}

	a := &domain.RiskAssessment{
		TenantID:    tenantID,
		CustomerID:  customerID,
		Score:       round2(score),
		Level:       ClassifyRiskLevel(score),
		Factors:     factors,
		LastUpdated: now,
	}
	a.Recommendations = Recommendations(a)

	if err := e.repo.SaveAssessment(sctx, tenantID, a); err != nil {
		return nil, domain.NewStorageError("save", "risk assessment", customerID, err)
	}
	e.cacheAssessment(ctx, tenantID, a)

	slog.Debug("customer assessed",
		"tenant_id", tenantID,
		"customer_id", customerID,
		"score", a.Score,
		"level", a.Level,
	)
	return a, nil
}

// ScoreClaim evaluates the factor rules for a claim and blends the
// result with the customer's assessment, assessing the customer first
// if no current assessment exists.
func (e *Engine) ScoreClaim(ctx context.Context, tenantID string, cc ClaimContext) (*ClaimScore, error) {
	factors := e.rules.Evaluate(ctx, cc)
	heuristic, err := ComputeRiskScore(factors)
	if err != nil {
		return nil, err
	}

	result := &ClaimScore{
		Heuristic: round2(heuristic),
		Factors:   factors,
		Score:     heuristic,
	}

	if cc.CustomerID != "" {
		a, err := e.Assessment(ctx, tenantID, cc.CustomerID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			if a, err = e.AssessCustomer(ctx, tenantID, cc.CustomerID); err != nil {
				return nil, err
			}
		}
		customer := a.Score
		result.CustomerScore = &customer
		result.Score = e.cfg.ClaimWeight*heuristic + (1-e.cfg.ClaimWeight)*customer
	}

	result.Score = round2(clamp(result.Score))
	result.Level = ClassifyRiskLevel(result.Score)
	return result, nil
}

func (e *Engine) cacheAssessment(ctx context.Context, tenantID string, a *domain.RiskAssessment) {
	if e.cache == nil || a == nil {
		return
	}
	if err := e.cache.SetAssessment(ctx, tenantID, a, e.cfg.AssessmentTTL); err != nil {
		slog.Warn("risk cache write failed", "tenant_id", tenantID, "customer_id", a.CustomerID, "error", err)
	}
}

// CustomerFactors derives the customer-level factors from history.
func CustomerFactors(claims []*domain.InsuranceClaim, policies []*domain.InsurancePolicy, openAlerts []*domain.FraudAlert, now time.Time) []domain.RiskFactor {
	yearAgo := now.AddDate(-1, 0, 0)
	recent := 0
	var payouts float64
	for _, c := range claims {
		if !c.ReportedAt.Before(yearAgo) {
			recent++
		}
		if c.ApprovedAmount != nil && (c.Status == domain.ClaimApproved || c.Status == domain.ClaimSettled) {
			payouts += *c.ApprovedAmount
		}
	}

	var premiums float64
	var earliest time.Time
	for _, p := range policies {
		premiums += p.Premium
		if earliest.IsZero() || p.StartDate.Before(earliest) {
			earliest = p.StartDate
		}
	}

	var lossScore, ratio float64
	switch {
	case premiums > 0:
		ratio = payouts / premiums
		lossScore = math.Min(ratio*100, 100)
	case payouts > 0:
		lossScore = 100
	}

	tenureScore := 50.0
	tenureDesc := "no policies on record"
	if !earliest.IsZero() {
		days := now.Sub(earliest).Hours() / 24
		switch {
		case days < 90:
			tenureScore = 60
		case days < 365:
			tenureScore = 30
		default:
			tenureScore = 10
		}
		tenureDesc = fmt.Sprintf("customer since %s", earliest.Format("2006-01-02"))
	}

	return []domain.RiskFactor{
		{
			Name:        "claim_frequency",
			Weight:      weightClaimFrequency,
			Score:       math.Min(float64(recent)*25, 100),
			Description: fmt.Sprintf("%d claims in the last 12 months", recent),
		},
		{
			Name:        "loss_ratio",
			Weight:      weightLossRatio,
			Score:       round2(lossScore),
			Description: fmt.Sprintf("payouts %.2f against premiums %.2f", payouts, premiums),
		},
		{
			Name:        "fraud_alerts",
			Weight:      weightFraudAlerts,
			Score:       math.Min(float64(len(openAlerts))*40, 100),
			Description: fmt.Sprintf("%d unresolved fraud alerts", len(openAlerts)),
		},
		{
			Name:        "tenure",
			Weight:      weightTenure,
			Score:       tenureScore,
			Description: tenureDesc,
		},
	}
}

// Recommendations suggests follow-up actions for an assessment.
func Recommendations(a *domain.RiskAssessment) []string {
	var out []string
	switch a.Level {
	case domain.RiskVeryHigh:
		out = append(out, "Refer new policies to manual underwriting")
	case domain.RiskHigh:
		out = append(out, "Require manual review of new claims")
	case domain.RiskMedium:
		out = append(out, "Monitor claim activity")
	default:
		out = append(out, "Eligible for standard premiums")
	}

	for _, f := range a.Factors {
		if f.Score < 70 {
			continue
		}
		switch f.Name {
		case "claim_frequency":
			out = append(out, "Review recent claim frequency with the customer")
		case "loss_ratio":
			out = append(out, "Consider a premium adjustment at renewal")
		case "fraud_alerts":
			out = append(out, "Resolve open fraud alerts before approving payouts")
		}
	}
	return out
}

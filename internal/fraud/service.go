package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/metrics"
	"github.com/opensource-finance/claimguard/internal/notify"
)

// Service loads claim history, persists alerts and resolves them.
type Service struct {
	repo     domain.Repository
	engine   *Engine
	notifier domain.Notifier
	timeout  time.Duration
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a fraud service. notifier may be nil.
func NewService(repo domain.Repository, engine *Engine, notifier domain.Notifier, cfg domain.FraudConfig, opts ...Option) *Service {
	timeout := cfg.StorageTimeout
	if timeout <= 0 {
		timeout = domain.DefaultStorageTimeout
	}
	s := &Service{
		repo:     repo,
		engine:   engine,
		notifier: notifier,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate runs the detectors against claim using the customer's stored
// claim history. Nothing is persisted.
func (s *Service) Evaluate(ctx context.Context, tenantID string, claim *domain.InsuranceClaim, policy *domain.InsurancePolicy) ([]*domain.FraudAlert, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	history, err := s.repo.ListClaims(sctx, tenantID, domain.ClaimFilter{CustomerID: claim.CustomerID})
	if err != nil {
		return nil, domain.NewStorageError("list", "claims", claim.CustomerID, err)
	}
	start := time.Now()
	alerts := s.engine.EvaluateClaim(ctx, claim, history, policy, s.now())
	metrics.RecordFraudEvaluation(time.Since(start))
	return alerts, nil
}

// Record stores alerts and announces each one.
func (s *Service) Record(ctx context.Context, tenantID string, alerts []*domain.FraudAlert) error {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, a := range alerts {
		a.TenantID = tenantID
		if err := s.repo.SaveAlert(sctx, tenantID, a); err != nil {
			return domain.NewStorageError("save", "fraud alert", a.ID, err)
		}
		metrics.RecordFraudAlert(string(a.AlertType), string(a.Severity))
		slog.Info("fraud alert raised",
			"tenant_id", tenantID,
			"claim_id", a.ClaimID,
			"type", a.AlertType,
			"severity", a.Severity,
		)
		s.emit(ctx, tenantID, domain.TopicFraudAlertRaised, a)
	}
	return nil
}

// Reassess re-runs detection for a stored claim. A detector whose alert
// type already exists on the claim refreshes an open alert in place and
// leaves a resolved one alone. Returns the new and refreshed alerts.
func (s *Service) Reassess(ctx context.Context, tenantID string, claim *domain.InsuranceClaim, policy *domain.InsurancePolicy) ([]*domain.FraudAlert, error) {
	found, err := s.Evaluate(ctx, tenantID, claim, policy)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	existing, err := s.repo.ListAlerts(sctx, tenantID, domain.AlertFilter{ClaimID: claim.ID})
	cancel()
	if err != nil {
		return nil, domain.NewStorageError("list", "fraud alerts", claim.ID, err)
	}
	byType := make(map[domain.AlertType]*domain.FraudAlert, len(existing))
	for _, a := range existing {
		byType[a.AlertType] = a
	}

	var fresh, refreshed []*domain.FraudAlert
	for _, a := range found {
		prev, ok := byType[a.AlertType]
		switch {
		case !ok:
			fresh = append(fresh, a)
		case prev.Resolved():
			// cleared by a reviewer
		case prev.Severity != a.Severity || strings.Join(prev.Evidence, "\n") != strings.Join(a.Evidence, "\n"):
			prev.Severity = a.Severity
			prev.Description = a.Description
			prev.Evidence = a.Evidence
			refreshed = append(refreshed, prev)
		}
	}

	if err := s.Record(ctx, tenantID, fresh); err != nil {
		return nil, err
	}
	sctx, cancel = context.WithTimeout(ctx, s.timeout)
	defer cancel()
	for _, a := range refreshed {
		if err := s.repo.SaveAlert(sctx, tenantID, a); err != nil {
			return nil, domain.NewStorageError("save", "fraud alert", a.ID, err)
		}
	}
	return append(fresh, refreshed...), nil
}

// ResolveAlert closes an alert. Resolving a resolved alert returns it unchanged.
func (s *Service) ResolveAlert(ctx context.Context, tenantID, alertID, resolver, resolution string) (*domain.FraudAlert, error) {
	if strings.TrimSpace(resolver) == "" {
		return nil, &domain.ValidationError{Entity: "fraud alert", ID: alertID, Field: "resolvedBy", Reason: "is required"}
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	a, err := s.repo.GetAlert(sctx, tenantID, alertID)
	if err != nil {
		return nil, domain.NewStorageError("get", "fraud alert", alertID, err)
	}
	if a.Resolved() {
		return a, nil
	}

	at := s.now()
	a.ResolvedAt = &at
	a.ResolvedBy = resolver
	a.Resolution = resolution
	if err := s.repo.SaveAlert(sctx, tenantID, a); err != nil {
		return nil, domain.NewStorageError("save", "fraud alert", alertID, err)
	}

	slog.Info("fraud alert resolved", "tenant_id", tenantID, "alert_id", alertID, "resolved_by", resolver)
	s.emit(ctx, tenantID, domain.TopicFraudAlertResolved, a)
	return a, nil
}

// GetAlert returns one alert.
func (s *Service) GetAlert(ctx context.Context, tenantID, alertID string) (*domain.FraudAlert, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	a, err := s.repo.GetAlert(sctx, tenantID, alertID)
	if err != nil {
		return nil, domain.NewStorageError("get", "fraud alert", alertID, err)
	}
	return a, nil
}

// ListAlerts returns the alerts matching filter.
func (s *Service) ListAlerts(ctx context.Context, tenantID string, filter domain.AlertFilter) ([]*domain.FraudAlert, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	alerts, err := s.repo.ListAlerts(sctx, tenantID, filter)
	if err != nil {
		return nil, domain.NewStorageError("list", "fraud alerts", "", err)
	}
	return alerts, nil
}

func (s *Service) emit(ctx context.Context, tenantID, topic string, a *domain.FraudAlert) {
	payload := map[string]any{
		"alertId":    a.ID,
		"claimId":    a.ClaimID,
		"customerId": a.CustomerID,
		"alertType":  string(a.AlertType),
		"severity":   string(a.Severity),
	}
	if a.Resolved() {
		payload["resolvedBy"] = a.ResolvedBy
	}
	subject := fmt.Sprintf("%s alert on claim %s", a.AlertType, a.ClaimID)
	notify.Emit(ctx, s.notifier, tenantID, notify.NewEvent(topic, subject, payload, s.now()))
}

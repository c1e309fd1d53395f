package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/metrics"
)

// RenewOrExpirePolicy applies the renewal rules to one policy at time now.
//
// An Active auto-renewing policy without a successor is renewed when now
// falls between RenewalWindow before its end and GracePeriod after it. The
// successor starts at the old end date, runs for the same duration and keeps
// the same terms; it stays Pending until its start date. An Active policy
// whose end date has passed is expired.
//
// A Pending policy whose end date has passed is expired. One that was only
// waiting for its start date is activated once now reaches it; policies held
// for underwriting are left alone.
//
// Calls for the same policy are serialized and the write is checked against
// the stored version, so a policy never gets two successors.
func (m *Manager) RenewOrExpirePolicy(ctx context.Context, tenantID, policyID string, now time.Time) (*domain.RenewalResult, error) {
	unlock := m.locks.Lock(tenantID + "/" + policyID)
	defer unlock()

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()

	p, err := m.repo.GetPolicy(sctx, tenantID, policyID)
	if err != nil {
		return nil, domain.NewStorageError("get", "policy", policyID, err)
	}

	var result *domain.RenewalResult
	switch p.Status {
	case domain.PolicyActive:
		result, err = m.renewActive(sctx, tenantID, p, now)
	case domain.PolicyPending:
		result, err = m.settlePending(sctx, tenantID, p, now)
	default:
		return &domain.RenewalResult{Policy: p, Action: domain.RenewalNone}, nil
	}
	if err != nil || result.Action == domain.RenewalNone {
		return result, err
	}

	slog.Info("policy renewal pass",
		"tenant_id", tenantID,
		"policy_number", p.PolicyNumber,
		"action", result.Action,
	)
	if result.Successor != nil {
		m.emit(ctx, tenantID, domain.TopicPolicyRenewed, result.Successor)
	}
	if p.Status == domain.PolicyExpired {
		m.emit(ctx, tenantID, domain.TopicPolicyExpired, p)
	}
	return result, nil
}

func (m *Manager) renewActive(ctx context.Context, tenantID string, p *domain.InsurancePolicy, now time.Time) (*domain.RenewalResult, error) {
	result := &domain.RenewalResult{Policy: p, Action: domain.RenewalNone}
	renew := m.renewable(p, now)
	expire := now.After(p.EndDate)
	if !renew && !expire {
		return result, nil
	}

	if expire {
		p.Status = domain.PolicyExpired
		result.Action = domain.RenewalExpired
	}
	p.UpdatedAt = m.now()

	if !renew {
		if err := m.repo.UpdatePolicy(ctx, tenantID, p); err != nil {
			return nil, writeError("update", p, err)
		}
		return result, nil
	}

	successor, err := m.successor(ctx, tenantID, p, now)
	if err != nil {
		return nil, err
	}
	p.RenewedTo = successor.ID
	if err := m.repo.RenewPolicy(ctx, tenantID, p, successor); err != nil {
		return nil, writeError("renew", p, err)
	}

	result.Successor = successor
	result.Action = domain.RenewalRenewed
	if expire {
		result.Action = domain.RenewalRenewedAndExpired
	}
	return result, nil
}

func (m *Manager) settlePending(ctx context.Context, tenantID string, p *domain.InsurancePolicy, now time.Time) (*domain.RenewalResult, error) {
	result := &domain.RenewalResult{Policy: p, Action: domain.RenewalNone}
	switch {
	case now.After(p.EndDate):
		p.Status = domain.PolicyExpired
		result.Action = domain.RenewalExpired
	case p.PendingReason == domain.PendingAwaitingStart && !now.Before(p.StartDate):
		p.Status = domain.PolicyActive
		result.Action = domain.RenewalActivated
	default:
		return result, nil
	}

	p.PendingReason = ""
	p.UpdatedAt = m.now()
	if err := m.repo.UpdatePolicy(ctx, tenantID, p); err != nil {
		return nil, writeError("update", p, err)
	}
	return result, nil
}

func (m *Manager) renewable(p *domain.InsurancePolicy, now time.Time) bool {
	if !p.AutoRenew || p.RenewedTo != "" {
		return false
	}
	opens := p.EndDate.Add(-m.cfg.RenewalWindow)
	closes := p.EndDate.Add(m.cfg.GracePeriod)
	return !now.Before(opens) && !now.After(closes)
}

func (m *Manager) successor(ctx context.Context, tenantID string, p *domain.InsurancePolicy, now time.Time) (*domain.InsurancePolicy, error) {
	number, err := m.nextPolicyNumber(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}
	created := m.now()
	next := &domain.InsurancePolicy{
		ID:             m.newID(),
		TenantID:       tenantID,
		CustomerID:     p.CustomerID,
		PolicyNumber:   number,
		InsurerID:      p.InsurerID,
		CoverageType:   p.CoverageType,
		CoverageAmount: p.CoverageAmount,
		Premium:        p.Premium,
		Deductible:     p.Deductible,
		StartDate:      p.EndDate,
		EndDate:        p.EndDate.Add(p.EndDate.Sub(p.StartDate)),
		Status:         domain.PolicyActive,
		AutoRenew:      p.AutoRenew,
		RenewedFrom:    p.ID,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	if now.Before(next.StartDate) {
		next.Status = domain.PolicyPending
		next.PendingReason = domain.PendingAwaitingStart
	}
	return next, nil
}

// writeError keeps a lost optimistic write distinguishable from an outage.
func writeError(op string, p *domain.InsurancePolicy, err error) error {
	if errors.Is(err, domain.ErrVersionConflict) {
		return fmt.Errorf("policy %s changed concurrently: %w", p.PolicyNumber, err)
	}
	return domain.NewStorageError(op, "policy", p.ID, err)
}

// SweepPolicies runs RenewOrExpirePolicy over every Active and Pending policy
// of the tenant and returns the results that changed something. A failing
// policy is logged and does not stop the sweep; its error is joined into the
// result.
func (m *Manager) SweepPolicies(ctx context.Context, tenantID string, now time.Time) ([]*domain.RenewalResult, error) {
	var policies []*domain.InsurancePolicy
	for _, status := range []domain.PolicyStatus{domain.PolicyActive, domain.PolicyPending} {
		batch, err := m.ListPolicies(ctx, tenantID, domain.PolicyFilter{Status: status})
		if err != nil {
			return nil, err
		}
		policies = append(policies, batch...)
	}

	var (
		results []*domain.RenewalResult
		errs    []error
	)
	for _, p := range policies {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := m.RenewOrExpirePolicy(ctx, tenantID, p.ID, now)
		if err != nil {
			slog.Error("policy sweep failed",
				"tenant_id", tenantID,
				"policy_number", p.PolicyNumber,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		if res.Action != domain.RenewalNone {
			metrics.RecordRenewal(string(res.Action))
			results = append(results, res)
		}
	}

	slog.Info("policy sweep complete",
		"tenant_id", tenantID,
		"checked", len(policies),
		"changed", len(results),
		"failed", len(errs),
	)
	return results, errors.Join(errs...)
}

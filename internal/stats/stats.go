// Package stats summarises a tenant's policies, claims and fraud alerts.
package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
)

const cacheKey = "stats:summary"

// Compute builds the summary from in-memory collections. It does not mutate its inputs.
func Compute(policies []*domain.InsurancePolicy, claims []*domain.InsuranceClaim, alerts []*domain.FraudAlert, now time.Time) *domain.InsuranceStats {
	s := &domain.InsuranceStats{
		PoliciesByStatus: make(map[domain.PolicyStatus]int),
		ClaimsByStatus:   make(map[domain.ClaimStatus]int),
		ClaimsByType:     make(map[domain.ClaimType]int),
		AlertsBySeverity: make(map[domain.Severity]int),
		MonthlyTrend:     []domain.MonthlyTrend{},
		GeneratedAt:      now,
	}

	for _, p := range policies {
		s.TotalPolicies++
		s.PoliciesByStatus[p.Status]++
		if p.Status == domain.PolicyActive {
			s.ActivePolicies++
		}
		s.TotalPremiums += p.Premium
	}

	months := make(map[string]*domain.MonthlyTrend)
	var paid int
	for _, c := range claims {
		s.TotalClaims++
		s.ClaimsByStatus[c.Status]++
		s.ClaimsByType[c.ClaimType]++
		s.TotalReportedAmount += c.ReportedAmount
		if c.Status.Open() {
			s.OpenClaims++
		}
		if c.RiskLevel == domain.RiskHigh || c.RiskLevel == domain.RiskVeryHigh {
			s.HighRiskClaims++
		}

		key := c.ReportedAt.UTC().Format("2006-01")
		m, ok := months[key]
		if !ok {
			m = &domain.MonthlyTrend{Month: key}
			months[key] = m
		}
		m.Claims++
		m.ReportedAmount += c.ReportedAmount

		if c.ApprovedAmount != nil {
			paid++
			s.TotalApprovedPayouts += *c.ApprovedAmount
			m.ApprovedAmount += *c.ApprovedAmount
		}
	}
	if paid > 0 {
		s.AveragePayout = s.TotalApprovedPayouts / float64(paid)
	}

	for _, m := range months {
		s.MonthlyTrend = append(s.MonthlyTrend, *m)
	}
	sort.Slice(s.MonthlyTrend, func(i, j int) bool { return s.MonthlyTrend[i].Month < s.MonthlyTrend[j].Month })

	for _, a := range alerts {
		if a.Resolved() {
			continue
		}
		s.OpenFraudAlerts++
		s.AlertsBySeverity[a.Severity]++
	}
	return s
}

// Service loads a tenant's collections and caches the computed summary.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	cfg   domain.StatsConfig
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a statistics service. cache may be nil.
func NewService(repo domain.Repository, cache domain.Cache, cfg domain.StatsConfig, opts ...Option) *Service {
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = domain.DefaultStorageTimeout
	}
	s := &Service{repo: repo, cache: cache, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the tenant summary, from cache when a fresh copy exists.
func (s *Service) Stats(ctx context.Context, tenantID string) (*domain.InsuranceStats, error) {
	if cached := s.cached(ctx, tenantID); cached != nil {
		return cached, nil
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	policies, err := s.repo.ListPolicies(sctx, tenantID, domain.PolicyFilter{})
	if err != nil {
		return nil, domain.NewStorageError("list", "policies", tenantID, err)
	}
	claims, err := s.repo.ListClaims(sctx, tenantID, domain.ClaimFilter{})
	if err != nil {
		return nil, domain.NewStorageError("list", "claims", tenantID, err)
	}
	alerts, err := s.repo.ListAlerts(sctx, tenantID, domain.AlertFilter{})
	if err != nil {
		return nil, domain.NewStorageError("list", "fraud alerts", tenantID, err)
	}

	result := Compute(policies, claims, alerts, s.now().UTC())
	s.store(ctx, tenantID, result)
	return result, nil
}

// Invalidate drops the cached summary so the next call recomputes it.
func (s *Service) Invalidate(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, tenantID, cacheKey); err != nil {
		slog.Warn("stats cache delete failed", "tenant_id", tenantID, "error", err)
	}
}

func (s *Service) cached(ctx context.Context, tenantID string) *domain.InsuranceStats {
	if s.cache == nil || s.cfg.CacheTTL <= 0 {
		return nil
	}
	data, err := s.cache.Get(ctx, tenantID, cacheKey)
	if err != nil {
		slog.Warn("stats cache read failed", "tenant_id", tenantID, "error", err)
		return nil
	}
	if data == nil {
		return nil
	}
	var out domain.InsuranceStats
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}

func (s *Service) store(ctx context.Context, tenantID string, st *domain.InsuranceStats) {
	if s.cache == nil || s.cfg.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, tenantID, cacheKey, data, s.cfg.CacheTTL); err != nil {
		slog.Warn("stats cache write failed", "tenant_id", tenantID, "error", err)
	}
}

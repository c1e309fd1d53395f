package claims

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/claimguard/internal/cache"
	"github.com/opensource-finance/claimguard/internal/coverage"
	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/fraud"
	"github.com/opensource-finance/claimguard/internal/policy"
	"github.com/opensource-finance/claimguard/internal/repository/repotest"
	"github.com/opensource-finance/claimguard/internal/risk"
	"github.com/stretchr/testify/require"
)

const tenant = "tenant-001"

var baseTime = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Notify(_ context.Context, _ string, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type memStore struct {
	mu    sync.Mutex
	blobs map[string]domain.Blob
}

func (m *memStore) Store(_ context.Context, tenantID string, blob domain.Blob) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blobs == nil {
		m.blobs = make(map[string]domain.Blob)
	}
	url := fmt.Sprintf("mem://%s/%d/%s", tenantID, len(m.blobs)+1, blob.Name)
	m.blobs[url] = blob
	return url, nil
}

type harness struct {
	engine   *Engine
	repo     domain.Repository
	policies *policy.Manager
	fraud    *fraud.Service
	notes    *recorder
	docs     *memStore
	policy   *domain.InsurancePolicy
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithRepo(t, repotest.New(t))
}

func newHarnessWithRepo(t *testing.T, repo domain.Repository) *harness {
	t.Helper()
	ctx := context.Background()
	clock := func() time.Time { return baseTime }

	notes := &recorder{}
	docs := &memStore{}

	policies := policy.NewManager(repo, coverage.Default(), nil, notes, domain.PolicyConfig{}, policy.WithClock(clock))
	_, err := policies.RegisterInsurer(ctx, tenant, domain.Insurer{ID: "ins-1", Name: "Seguros Uno", Active: true})
	require.NoError(t, err)

	pol, err := policies.CreatePolicy(ctx, tenant, policy.CreatePolicyInput{
		CustomerID:     "cust-1",
		InsurerID:      "ins-1",
		CoverageType:   coverage.TierEstandar,
		CoverageAmount: 5000,
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, "POL-2024-001", pol.PolicyNumber)

	rules, err := risk.NewDefaultRuleEngine(2)
	require.NoError(t, err)
	riskEngine := risk.NewEngine(repo, cache.NewLRUCache(100), rules, domain.RiskConfig{}, risk.WithClock(clock))

	fraudCfg := domain.DefaultFraudConfig()
	fraudSvc := fraud.NewService(repo, fraud.NewEngine(2, fraud.DefaultDetectors(fraudCfg)...), notes, fraudCfg, fraud.WithClock(clock))

	engine, err := NewEngine(Deps{
		Repo:      repo,
		Policies:  policies,
		Risk:      riskEngine,
		Fraud:     fraudSvc,
		Notifier:  notes,
		Documents: docs,
		Clock:     clock,
	})
	require.NoError(t, err)

	return &harness{
		engine:   engine,
		repo:     repo,
		policies: policies,
		fraud:    fraudSvc,
		notes:    notes,
		docs:     docs,
		policy:   pol,
	}
}

func (h *harness) input(amount float64) FileClaimInput {
	return FileClaimInput{
		PolicyID:       h.policy.ID,
		CustomerID:     h.policy.CustomerID,
		ClaimType:      domain.ClaimDamage,
		Description:    "Parcel arrived with the corner crushed",
		IncidentDate:   baseTime.AddDate(0, 0, -9),
		ReportedAmount: amount,
	}
}

func (h *harness) file(t *testing.T, amount float64) *domain.InsuranceClaim {
	t.Helper()
	c, err := h.engine.FileClaim(context.Background(), tenant, h.input(amount), "cust-1")
	require.NoError(t, err)
	return c
}

func ptr(v float64) *float64 { return &v }

// paths reach each status from Reported through legal edges.
var paths = map[domain.ClaimStatus][]domain.ClaimStatus{
	domain.ClaimReported:              nil,
	domain.ClaimUnderReview:           {domain.ClaimUnderReview},
	domain.ClaimInvestigation:         {domain.ClaimUnderReview, domain.ClaimInvestigation},
	domain.ClaimDocumentationRequired: {domain.ClaimUnderReview, domain.ClaimDocumentationRequired},
	domain.ClaimApproved:              {domain.ClaimApproved},
	domain.ClaimDenied:                {domain.ClaimDenied},
	domain.ClaimSettled:               {domain.ClaimApproved, domain.ClaimSettled},
	domain.ClaimClosed:                {domain.ClaimClosed},
}

// request builds an advance request that satisfies every target's field rules.
func request(target domain.ClaimStatus) AdvanceRequest {
	return AdvanceRequest{
		Target:         target,
		Actor:          "adjuster-1",
		Note:           "reviewed",
		ApprovedAmount: ptr(100),
	}
}

func (h *harness) claimIn(t *testing.T, status domain.ClaimStatus) *domain.InsuranceClaim {
	t.Helper()
	c := h.file(t, 1200)
	for _, step := range paths[status] {
		var err error
		c, err = h.engine.Advance(context.Background(), tenant, c.ID, request(step))
		require.NoError(t, err, "advancing to %s", step)
	}
	require.Equal(t, status, c.Status)
	return c
}

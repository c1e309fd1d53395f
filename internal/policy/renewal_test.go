package policy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func policyEnding(t *testing.T, m *Manager, end time.Time, autoRenew bool) *domain.InsurancePolicy {
	t.Helper()
	in := validInput()
	in.StartDate = end.AddDate(-1, 0, 0)
	in.EndDate = end
	in.AutoRenew = autoRenew
	p, err := m.CreatePolicy(context.Background(), tenant, in)
	require.NoError(t, err)
	require.Equal(t, domain.PolicyActive, p.Status)
	return p
}

func TestRenewOrExpirePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("OutsideWindowDoesNothing", func(t *testing.T) {
		m, _, _ := newTestManager(t, nil)
		p := policyEnding(t, m, now.AddDate(0, 3, 0), true)

		res, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalNone, res.Action)
		assert.Nil(t, res.Successor)
	})

	t.Run("RenewsInsideWindow", func(t *testing.T) {
		m, rec, _ := newTestManager(t, nil)
		end := now.AddDate(0, 0, 10)
		p := policyEnding(t, m, end, true)

		res, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
		require.NoError(t, err)
		require.Equal(t, domain.RenewalRenewed, res.Action)

		succ := res.Successor
		require.NotNil(t, succ)
		assert.Equal(t, domain.PolicyActive, res.Policy.Status)
		assert.Equal(t, domain.PolicyPending, succ.Status)
		assert.Equal(t, domain.PendingAwaitingStart, succ.PendingReason)
		assert.Equal(t, succ.ID, res.Policy.RenewedTo)
		assert.Equal(t, p.ID, succ.RenewedFrom)
		assert.True(t, succ.StartDate.Equal(end))
		assert.True(t, succ.EndDate.Equal(end.Add(end.Sub(p.StartDate))))
		assert.Equal(t, p.CoverageAmount, succ.CoverageAmount)
		assert.Equal(t, p.Premium, succ.Premium)
		assert.Equal(t, p.Deductible, succ.Deductible)
		assert.Equal(t, p.InsurerID, succ.InsurerID)
		assert.Equal(t, "POL-2024-002", succ.PolicyNumber)
		assert.Contains(t, rec.types(), domain.TopicPolicyRenewed)

		stored, err := m.GetPolicy(ctx, tenant, p.ID)
		require.NoError(t, err)
		assert.Equal(t, succ.ID, stored.RenewedTo)

		again, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalNone, again.Action)

		all, err := m.ListPolicies(ctx, tenant, domain.PolicyFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("RenewsAndExpiresInGracePeriod", func(t *testing.T) {
		m, _, _ := newTestManager(t, nil)
		p := policyEnding(t, m, now.AddDate(0, 0, -3), true)

		res, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalRenewedAndExpired, res.Action)
		assert.Equal(t, domain.PolicyExpired, res.Policy.Status)
		require.NotNil(t, res.Successor)
		assert.Equal(t, domain.PolicyActive, res.Successor.Status)
	})

	t.Run("ExpiresAfterGracePeriod", func(t *testing.T) {
		m, rec, _ := newTestManager(t, nil)
		p := policyEnding(t, m, now.AddDate(0, 0, -20), true)

		res, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalExpired, res.Action)
		assert.Nil(t, res.Successor)
		assert.Contains(t, rec.types(), domain.TopicPolicyExpired)

		again, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalNone, again.Action)
		assert.Equal(t, domain.PolicyExpired, again.Policy.Status)
	})

	t.Run("NoAutoRenewOnlyExpires", func(t *testing.T) {
		m, _, _ := newTestManager(t, nil)
		p := policyEnding(t, m, now.AddDate(0, 0, -1), false)

		res, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalExpired, res.Action)
		assert.Nil(t, res.Successor)
	})
}

// slowRepo widens the gap between reading a policy and writing it back.
type slowRepo struct {
	domain.Repository
}

func (r slowRepo) GetPolicy(ctx context.Context, tenantID, policyID string) (*domain.InsurancePolicy, error) {
	time.Sleep(5 * time.Millisecond)
	return r.Repository.GetPolicy(ctx, tenantID, policyID)
}

// flakyRenewRepo fails the first RenewPolicy call.
type flakyRenewRepo struct {
	domain.Repository
	calls atomic.Int32
}

func (r *flakyRenewRepo) RenewPolicy(ctx context.Context, tenantID string, old, successor *domain.InsurancePolicy) error {
	if r.calls.Add(1) == 1 {
		return errors.New("connection reset")
	}
	return r.Repository.RenewPolicy(ctx, tenantID, old, successor)
}

// staleRepo lets another writer touch the policy between our read and write.
type staleRepo struct {
	domain.Repository
	once sync.Once
}

func (r *staleRepo) RenewPolicy(ctx context.Context, tenantID string, old, successor *domain.InsurancePolicy) error {
	r.once.Do(func() {
		other, err := r.Repository.GetPolicy(ctx, tenantID, old.ID)
		if err == nil {
			other.Documents = append(other.Documents, "endorsement.pdf")
			_ = r.Repository.UpdatePolicy(ctx, tenantID, other)
		}
	})
	return r.Repository.RenewPolicy(ctx, tenantID, old, successor)
}

func successorsOf(t *testing.T, m *Manager, policyID string) int {
	t.Helper()
	all, err := m.ListPolicies(context.Background(), tenant, domain.PolicyFilter{})
	require.NoError(t, err)
	n := 0
	for _, p := range all {
		if p.RenewedFrom == policyID {
			n++
		}
	}
	return n
}

func TestConcurrentRenewals(t *testing.T) {
	repo := slowRepo{Repository: repotest.New(t)}
	m, rec := newTestManagerWithRepo(t, repo, nil)
	ctx := context.Background()
	p := policyEnding(t, m, now.AddDate(0, 0, 10), true)

	const callers = 4
	var (
		wg      sync.WaitGroup
		renewed atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
			if assert.NoError(t, err) && res.Action == domain.RenewalRenewed {
				renewed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), renewed.Load())
	assert.Equal(t, 1, successorsOf(t, m, p.ID))
	assert.Equal(t, 0, m.locks.Len())

	n := 0
	for _, typ := range rec.types() {
		if typ == domain.TopicPolicyRenewed {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestRenewalWriteFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("FailedWriteLeavesNoOrphan", func(t *testing.T) {
		repo := &flakyRenewRepo{Repository: repotest.New(t)}
		m, _ := newTestManagerWithRepo(t, repo, nil)
		p := policyEnding(t, m, now.AddDate(0, 0, 10), true)

		_, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
		var se *domain.StorageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 0, successorsOf(t, m, p.ID))

		res, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalRenewed, res.Action)
		assert.Equal(t, 1, successorsOf(t, m, p.ID))

		again, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalNone, again.Action)
		assert.Equal(t, 1, successorsOf(t, m, p.ID))
	})

	t.Run("ConcurrentWriterConflicts", func(t *testing.T) {
		repo := &staleRepo{Repository: repotest.New(t)}
		m, _ := newTestManagerWithRepo(t, repo, nil)
		p := policyEnding(t, m, now.AddDate(0, 0, 10), true)

		_, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrVersionConflict))
		var se *domain.StorageError
		assert.False(t, errors.As(err, &se))
		assert.Equal(t, 0, successorsOf(t, m, p.ID))

		stored, err := m.GetPolicy(ctx, tenant, p.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.RenewedTo)
		assert.Equal(t, []string{"endorsement.pdf"}, stored.Documents)

		res, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now)
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalRenewed, res.Action)
		assert.Equal(t, 1, successorsOf(t, m, p.ID))
	})
}

func TestPendingPolicies(t *testing.T) {
	ctx := context.Background()

	futureInput := func(customer string) CreatePolicyInput {
		in := validInput()
		in.CustomerID = customer
		in.StartDate = now.AddDate(0, 0, 5)
		in.EndDate = now.AddDate(1, 0, 5)
		return in
	}

	t.Run("ActivatesAtStartDate", func(t *testing.T) {
		m, _, _ := newTestManager(t, nil)
		p, err := m.CreatePolicy(ctx, tenant, futureInput("cust-1"))
		require.NoError(t, err)
		require.Equal(t, domain.PolicyPending, p.Status)

		res, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now.AddDate(0, 0, 4))
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalNone, res.Action)

		res, err = m.RenewOrExpirePolicy(ctx, tenant, p.ID, p.StartDate)
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalActivated, res.Action)
		assert.Equal(t, domain.PolicyActive, res.Policy.Status)
		assert.Empty(t, res.Policy.PendingReason)

		stored, err := m.GetPolicy(ctx, tenant, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PolicyActive, stored.Status)
	})

	t.Run("UnderwritingStaysPending", func(t *testing.T) {
		m, _, _ := newTestManager(t, stubAssessor{"risky": domain.RiskVeryHigh})
		p, err := m.CreatePolicy(ctx, tenant, futureInput("risky"))
		require.NoError(t, err)
		require.Equal(t, domain.PendingUnderwriting, p.PendingReason)

		res, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, now.AddDate(0, 1, 0))
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalNone, res.Action)
		assert.Equal(t, domain.PolicyPending, res.Policy.Status)
	})

	t.Run("ExpiresAfterEndDate", func(t *testing.T) {
		m, rec, _ := newTestManager(t, stubAssessor{"risky": domain.RiskVeryHigh})
		p, err := m.CreatePolicy(ctx, tenant, futureInput("risky"))
		require.NoError(t, err)

		res, err := m.RenewOrExpirePolicy(ctx, tenant, p.ID, p.EndDate.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, domain.RenewalExpired, res.Action)
		assert.Equal(t, domain.PolicyExpired, res.Policy.Status)
		assert.Nil(t, res.Successor)
		assert.Contains(t, rec.types(), domain.TopicPolicyExpired)
	})
}

func TestSweepActivatesSuccessor(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	ctx := context.Background()
	end := now.AddDate(0, 0, 5)
	p := policyEnding(t, m, end, true)

	first, err := m.SweepPolicies(ctx, tenant, now)
	require.NoError(t, err)
	require.Len(t, first, 1)
	succ := first[0].Successor
	require.NotNil(t, succ)
	assert.Equal(t, domain.PolicyPending, succ.Status)

	active, err := m.ListPolicies(ctx, tenant, domain.PolicyFilter{Status: domain.PolicyActive})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	later := end.Add(time.Hour)
	second, err := m.SweepPolicies(ctx, tenant, later)
	require.NoError(t, err)
	actions := map[string]domain.RenewalAction{}
	for _, r := range second {
		actions[r.Policy.ID] = r.Action
	}
	assert.Equal(t, domain.RenewalExpired, actions[p.ID])
	assert.Equal(t, domain.RenewalActivated, actions[succ.ID])

	active, err = m.ListPolicies(ctx, tenant, domain.PolicyFilter{Status: domain.PolicyActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, succ.ID, active[0].ID)
}

func TestSweepPolicies(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	ctx := context.Background()

	policyEnding(t, m, now.AddDate(0, 0, 5), true)
	policyEnding(t, m, now.AddDate(0, 0, -30), false)
	policyEnding(t, m, now.AddDate(0, 6, 0), true)

	results, err := m.SweepPolicies(ctx, tenant, now)
	require.NoError(t, err)
	require.Len(t, results, 2)

	actions := map[domain.RenewalAction]int{}
	for _, r := range results {
		actions[r.Action]++
	}
	assert.Equal(t, 1, actions[domain.RenewalRenewed])
	assert.Equal(t, 1, actions[domain.RenewalExpired])

	again, err := m.SweepPolicies(ctx, tenant, now)
	require.NoError(t, err)
	assert.Empty(t, again)
}

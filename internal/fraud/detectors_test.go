package fraud

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func claimAt(n int, reported time.Time) *domain.InsuranceClaim {
	return &domain.InsuranceClaim{
		ID:             fmt.Sprintf("c%d", n),
		ClaimNumber:    fmt.Sprintf("CLM-2024-%04d", n),
		PolicyID:       "pol-1",
		CustomerID:     "cust-1",
		ClaimType:      domain.ClaimDamage,
		Description:    fmt.Sprintf("reference %04d", n),
		ReportedAmount: 100,
		IncidentDate:   reported.AddDate(0, 0, -1),
		ReportedAt:     reported,
	}
}

func TestMultipleClaims(t *testing.T) {
	d := MultipleClaims{Threshold: 3, Window: 183 * 24 * time.Hour}
	ctx := context.Background()
	current := claimAt(99, now)

	t.Run("ThreePriorClaims", func(t *testing.T) {
		history := []*domain.InsuranceClaim{
			claimAt(3, now.AddDate(0, -1, 0)),
			claimAt(1, now.AddDate(0, -5, 0)),
			claimAt(2, now.AddDate(0, -3, 0)),
			claimAt(0, now.AddDate(0, -8, 0)),
			current,
		}
		f, err := d.Detect(ctx, Input{Claim: current, History: history, Now: now})
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Equal(t, domain.AlertMultipleClaims, f.AlertType)
		assert.Equal(t, domain.SeverityMedium, f.Severity)
		assert.Equal(t, []string{
			"CLM-2024-0001 filed 2024-01-15",
			"CLM-2024-0002 filed 2024-03-15",
			"CLM-2024-0003 filed 2024-05-15",
		}, f.Evidence)
	})

	t.Run("SeverityScales", func(t *testing.T) {
		want := map[int]domain.Severity{
			2: "",
			3: domain.SeverityMedium,
			4: domain.SeverityHigh,
			5: domain.SeverityCritical,
			7: domain.SeverityCritical,
		}
		for count, sev := range want {
			var history []*domain.InsuranceClaim
			for i := 0; i < count; i++ {
				history = append(history, claimAt(i, now.AddDate(0, 0, -(i+1)*7)))
			}
			f, err := d.Detect(ctx, Input{Claim: current, History: history, Now: now})
			require.NoError(t, err)
			if sev == "" {
				assert.Nil(t, f, "count %d", count)
				continue
			}
			require.NotNil(t, f, "count %d", count)
			assert.Equal(t, sev, f.Severity, "count %d", count)
			assert.Len(t, f.Evidence, count)
		}
	})

	t.Run("LaterClaimsIgnored", func(t *testing.T) {
		older := claimAt(50, now.AddDate(0, -2, 0))
		history := []*domain.InsuranceClaim{
			claimAt(51, now.AddDate(0, -1, 0)),
			claimAt(52, now),
			claimAt(53, now.AddDate(0, 0, 1)),
		}
		f, err := d.Detect(ctx, Input{Claim: older, History: history, Now: now})
		require.NoError(t, err)
		assert.Nil(t, f)
	})
}

func TestSuspiciousPattern(t *testing.T) {
	d := SuspiciousPattern{Window: 90 * 24 * time.Hour, Similarity: 0.5, MinMatches: 2}
	ctx := context.Background()

	mk := func(n int, typ domain.ClaimType, desc string, daysAgo int) *domain.InsuranceClaim {
		c := claimAt(n, now.AddDate(0, 0, -daysAgo))
		c.ClaimType = typ
		c.Description = desc
		return c
	}
	current := mk(10, domain.ClaimDamage, "Box crushed, screen cracked on arrival", 0)

	t.Run("TwoMatchesLow", func(t *testing.T) {
		history := []*domain.InsuranceClaim{
			mk(1, domain.ClaimDamage, "box crushed and screen cracked on arrival", 10),
			mk(2, domain.ClaimDamage, "Screen cracked, box crushed on arrival!", 40),
			mk(3, domain.ClaimTheft, "box crushed screen cracked on arrival", 5),
			mk(4, domain.ClaimDamage, "box crushed screen cracked on arrival", 120),
			mk(5, domain.ClaimDamage, "package never showed up", 3),
		}
		f, err := d.Detect(ctx, Input{Claim: current, History: history, Now: now})
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Equal(t, domain.SeverityLow, f.Severity)
		assert.Len(t, f.Evidence, 2)
	})

	t.Run("FourMatchesMedium", func(t *testing.T) {
		var history []*domain.InsuranceClaim
		for i := 1; i <= 4; i++ {
			history = append(history, mk(i, domain.ClaimDamage, "box crushed screen cracked on arrival", i*5))
		}
		f, err := d.Detect(ctx, Input{Claim: current, History: history, Now: now})
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Equal(t, domain.SeverityMedium, f.Severity)
	})

	t.Run("OneMatchNoAlert", func(t *testing.T) {
		history := []*domain.InsuranceClaim{mk(1, domain.ClaimDamage, "box crushed screen cracked on arrival", 10)}
		f, err := d.Detect(ctx, Input{Claim: current, History: history, Now: now})
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("EmptyDescriptionDegrades", func(t *testing.T) {
		_, err := d.Detect(ctx, Input{Claim: mk(11, domain.ClaimDamage, "!!", 0), Now: now})
		assert.True(t, errors.Is(err, ErrInsufficientHistory))
	})

	t.Run("Jaccard", func(t *testing.T) {
		a := tokenize("the red box")
		b := tokenize("the blue box")
		assert.InDelta(t, 0.5, jaccard(a, b), 1e-9)
		assert.Equal(t, 0.0, jaccard(a, tokenize("")))
	})
}

func TestUnusualAmount(t *testing.T) {
	d := UnusualAmount{Multiple: 3, High: 5, MinHistory: 2}
	ctx := context.Background()

	history := []*domain.InsuranceClaim{claimAt(1, now.AddDate(0, -2, 0)), claimAt(2, now.AddDate(0, -1, 0))}
	other := claimAt(3, now.AddDate(0, -1, 0))
	other.PolicyID = "pol-2"
	other.ReportedAmount = 100000
	history = append(history, other)

	cases := []struct {
		amount float64
		want   domain.Severity
	}{
		{300, ""},
		{301, domain.SeverityMedium},
		{500, domain.SeverityMedium},
		{501, domain.SeverityHigh},
	}
	for _, tc := range cases {
		c := claimAt(9, now)
		c.ReportedAmount = tc.amount
		f, err := d.Detect(ctx, Input{Claim: c, History: history, Now: now})
		require.NoError(t, err)
		if tc.want == "" {
			assert.Nil(t, f, "amount %v", tc.amount)
			continue
		}
		require.NotNil(t, f, "amount %v", tc.amount)
		assert.Equal(t, tc.want, f.Severity, "amount %v", tc.amount)
		assert.Contains(t, f.Evidence, "average of 2 prior claims 100.00")
	}

	t.Run("NeedsHistory", func(t *testing.T) {
		c := claimAt(9, now)
		c.ReportedAmount = 10000
		_, err := d.Detect(ctx, Input{Claim: c, History: history[:1], Now: now})
		assert.True(t, errors.Is(err, ErrInsufficientHistory))
	})
}

func TestEarlyClaim(t *testing.T) {
	d := EarlyClaim{Window: 15 * 24 * time.Hour, High: 3 * 24 * time.Hour}
	ctx := context.Background()
	start := now.AddDate(0, 0, -30)
	policy := &domain.InsurancePolicy{ID: "pol-1", PolicyNumber: "POL-2024-001", StartDate: start}

	cases := []struct {
		days int
		want domain.Severity
	}{
		{1, domain.SeverityMedium},
		{3, domain.SeverityMedium},
		{10, domain.SeverityLow},
		{15, domain.SeverityLow},
		{16, ""},
	}
	for _, tc := range cases {
		c := claimAt(1, now)
		c.IncidentDate = start.AddDate(0, 0, tc.days)
		f, err := d.Detect(ctx, Input{Claim: c, Policy: policy, Now: now})
		require.NoError(t, err)
		if tc.want == "" {
			assert.Nil(t, f, "day %d", tc.days)
			continue
		}
		require.NotNil(t, f, "day %d", tc.days)
		assert.Equal(t, tc.want, f.Severity, "day %d", tc.days)
	}

	t.Run("RenewedPolicyExempt", func(t *testing.T) {
		renewed := *policy
		renewed.RenewedFrom = "pol-0"
		c := claimAt(1, now)
		c.IncidentDate = start.AddDate(0, 0, 1)
		f, err := d.Detect(ctx, Input{Claim: c, Policy: &renewed, Now: now})
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("NoPolicyDegrades", func(t *testing.T) {
		_, err := d.Detect(ctx, Input{Claim: claimAt(1, now), Now: now})
		assert.True(t, errors.Is(err, ErrInsufficientHistory))
	})
}

package coverage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuote(t *testing.T) {
	catalog := Default()

	t.Run("StandardTier", func(t *testing.T) {
		q, err := catalog.Quote(2000, TierEstandar)
		require.NoError(t, err)
		assert.Equal(t, 2000.0, q.CoverageAmount)
		assert.Equal(t, 55.0, q.Premium)
		assert.Equal(t, 100.0, q.Deductible)
		assert.Equal(t, TierEstandar, q.Tier)
	})

	t.Run("CoverageCappedAtTierMax", func(t *testing.T) {
		q, err := catalog.Quote(3000, TierBasico)
		require.NoError(t, err)
		assert.Equal(t, 1000.0, q.CoverageAmount)
		assert.Equal(t, 30.0, q.Premium)
	})

	t.Run("PremiumNeverBelowBase", func(t *testing.T) {
		for _, tier := range catalog.Tiers() {
			q, err := catalog.Quote(1, tier.Name)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, q.Premium, tier.BasePremium, tier.Name)
			assert.LessOrEqual(t, q.CoverageAmount, tier.MaxCoverage, tier.Name)
		}
	})

	t.Run("CaseInsensitiveLookup", func(t *testing.T) {
		q, err := catalog.Quote(100, "premium")
		require.NoError(t, err)
		assert.Equal(t, TierPremium, q.Tier)
	})

	t.Run("UnknownTier", func(t *testing.T) {
		_, err := catalog.Quote(100, "Platino")
		require.Error(t, err)
		assert.True(t, domain.IsInvalidTier(err))

		var v *domain.ValidationError
		require.ErrorAs(t, err, &v)
		assert.Equal(t, "tier", v.Field)
	})

	t.Run("NonPositiveValue", func(t *testing.T) {
		for _, value := range []float64{0, -10} {
			_, err := catalog.Quote(value, TierPremium)
			var v *domain.ValidationError
			require.ErrorAs(t, err, &v)
			assert.Equal(t, "packageValue", v.Field)
		}
	})
}

func TestNewCatalogValidation(t *testing.T) {
	_, err := NewCatalog(nil)
	assert.Error(t, err)

	_, err = NewCatalog([]domain.CoverageTier{{Name: "A", MaxCoverage: 10}, {Name: "a", MaxCoverage: 20}})
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewCatalog([]domain.CoverageTier{{Name: "Zero"}})
	assert.ErrorContains(t, err, "maxCoverage")

	_, err = NewCatalog([]domain.CoverageTier{{Name: "Neg", MaxCoverage: 10, Rate: -1}})
	assert.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	doc := `
tiers:
  - name: Mini
    maxCoverage: 500
    basePremium: 5
    deductible: 20
    rate: 0.01
  - name: Maxi
    maxCoverage: 2500
    basePremium: 25
    deductible: 80
    rate: 0.02
    features: [Loss, Damage]
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	tiers := catalog.Tiers()
	require.Len(t, tiers, 2)
	assert.Equal(t, "Mini", tiers[0].Name)
	assert.Equal(t, []string{"Loss", "Damage"}, tiers[1].Features)

	q, err := catalog.Quote(1000, "Maxi")
	require.NoError(t, err)
	assert.Equal(t, 45.0, q.Premium)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseCatalog([]byte("tiers: [::"))
	assert.Error(t, err)
}

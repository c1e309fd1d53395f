// Package coverage holds the coverage tier catalog and the premium calculator.
package coverage

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/opensource-finance/claimguard/internal/domain"
	"gopkg.in/yaml.v3"
)

// Default tier names.
const (
	TierBasico      = "Básico"
	TierEstandar    = "Estándar"
	TierPremium     = "Premium"
	TierEmpresarial = "Empresarial"
)

// DefaultTiers returns the built-in catalog.
func DefaultTiers() []domain.CoverageTier {
	return []domain.CoverageTier{
		{
			Name:           TierBasico,
			Description:    "Entry coverage for low value parcels",
			MaxCoverage:    1000,
			BasePremium:    15,
			Deductible:     50,
			Rate:           0.005,
			Features:       []string{"Loss", "Theft"},
			RecommendedFor: []string{"documents", "small parcels"},
		},
		{
			Name:           TierEstandar,
			Description:    "Standard coverage including damage",
			MaxCoverage:    5000,
			BasePremium:    35,
			Deductible:     100,
			Rate:           0.01,
			Features:       []string{"Loss", "Theft", "Damage"},
			RecommendedFor: []string{"electronics", "household goods"},
		},
		{
			Name:           TierPremium,
			Description:    "Extended coverage with delay protection",
			MaxCoverage:    15000,
			BasePremium:    75,
			Deductible:     250,
			Rate:           0.015,
			Features:       []string{"Loss", "Theft", "Damage", "Delay"},
			RecommendedFor: []string{"high value parcels", "jewelry"},
		},
		{
			Name:           TierEmpresarial,
			Description:    "Business coverage for recurring shipments",
			MaxCoverage:    50000,
			BasePremium:    150,
			Deductible:     500,
			Rate:           0.02,
			Features:       []string{"Loss", "Theft", "Damage", "Delay", "Wrong Delivery"},
			RecommendedFor: []string{"merchants", "bulk shipments"},
		},
	}
}

// Catalog is an immutable set of coverage tiers.
type Catalog struct {
	tiers []domain.CoverageTier
	index map[string]int
}

// NewCatalog validates tiers and builds a catalog preserving their order.
func NewCatalog(tiers []domain.CoverageTier) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("catalog must define at least one tier")
	}

	c := &Catalog{index: make(map[string]int, len(tiers))}
	for _, t := range tiers {
		if err := validateTier(t); err != nil {
			return nil, err
		}
		key := strings.ToLower(t.Name)
		if _, dup := c.index[key]; dup {
			return nil, fmt.Errorf("duplicate tier %q", t.Name)
		}
		c.index[key] = len(c.tiers)
		c.tiers = append(c.tiers, t)
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := NewCatalog(DefaultTiers())
	if err != nil {
		panic(err)
	}
	return c
}

type catalogFile struct {
	Tiers []domain.CoverageTier `yaml:"tiers"`
}

// LoadCatalog reads a YAML catalog of the form `tiers: [...]`.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return NewCatalog(f.Tiers)
}

func validateTier(t domain.CoverageTier) error {
	switch {
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("tier name is required")
	case t.MaxCoverage <= 0:
		return fmt.Errorf("tier %q: maxCoverage must be positive", t.Name)
	case t.BasePremium < 0, t.Deductible < 0, t.Rate < 0:
		return fmt.Errorf("tier %q: premium, deductible and rate must not be negative", t.Name)
	}
	return nil
}

// Tier looks up a tier by name, ignoring case.
func (c *Catalog) Tier(name string) (domain.CoverageTier, error) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return domain.CoverageTier{}, domain.NewInvalidTierError(name)
	}
	return c.tiers[i], nil
}

// Tiers returns a copy of the catalog in declaration order.
func (c *Catalog) Tiers() []domain.CoverageTier {
	return append([]domain.CoverageTier(nil), c.tiers...)
}

// Quote prices a package under a tier. Coverage is capped at the tier
// maximum while the premium loading uses the full declared value.
func (c *Catalog) Quote(packageValue float64, tierName string) (*domain.Quote, error) {
	tier, err := c.Tier(tierName)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(packageValue) || math.IsInf(packageValue, 0) || packageValue <= 0 {
		return nil, &domain.ValidationError{
			Entity: "quote",
			Field:  "packageValue",
			Reason: "must be greater than zero",
		}
	}

	return &domain.Quote{
		Tier:           tier.Name,
		PackageValue:   packageValue,
		CoverageAmount: math.Min(packageValue, tier.MaxCoverage),
		Premium:        roundCents(tier.BasePremium + packageValue*tier.Rate),
		Deductible:     tier.Deductible,
	}, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

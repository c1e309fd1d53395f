// Package risk scores customers and claims on a 0-100 scale.
//
// Scores combine weighted factors as a normalized weighted average,
// Σ(score×weight) / Σweight, clamped to [0, 100]. When the weights sum
// to 1 this equals the plain weighted sum.
package risk

import (
	"fmt"
	"math"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// Level thresholds. Scores below MediumThreshold are Low.
const (
	MediumThreshold   = 30.0
	HighThreshold     = 60.0
	VeryHighThreshold = 80.0
)

// ValidateFactor checks that a factor can take part in a score.
func ValidateFactor(f domain.RiskFactor) error {
	if math.IsNaN(f.Weight) || f.Weight <= 0 || f.Weight > 1 {
		return &domain.ValidationError{
			Entity: "risk factor",
			ID:     f.Name,
			Field:  "weight",
			Reason: fmt.Sprintf("must be in (0, 1], got %v", f.Weight),
		}
	}
	if math.IsNaN(f.Score) || math.IsInf(f.Score, 0) {
		return &domain.ValidationError{
			Entity: "risk factor",
			ID:     f.Name,
			Field:  "score",
			Reason: "must be finite",
		}
	}
	return nil
}

// ComputeRiskScore returns the normalized weighted average of factors.
// An empty factor list scores 0.
func ComputeRiskScore(factors []domain.RiskFactor) (float64, error) {
	var sum, weights float64
	for _, f := range factors {
		if err := ValidateFactor(f); err != nil {
			return 0, err
		}
		sum += f.Score * f.Weight
		weights += f.Weight
	}
	if weights == 0 {
		return 0, nil
	}
	return clamp(sum / weights), nil
}

// ClassifyRiskLevel maps a score to its level band.
func ClassifyRiskLevel(score float64) domain.RiskLevel {
	switch {
	case score >= VeryHighThreshold:
		return domain.RiskVeryHigh
	case score >= HighThreshold:
		return domain.RiskHigh
	case score >= MediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

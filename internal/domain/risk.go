package domain

import (
	"math"
	"time"
)

// RiskLevel buckets a 0-100 risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskVeryHigh RiskLevel = "Very High"
)

// Valid reports whether l is a known risk level.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh, RiskVeryHigh:
		return true
	}
	return false
}

// RiskFactor is one weighted contributor to a risk score.
type RiskFactor struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Score       float64 `json:"score"`
	Description string  `json:"description,omitempty"`
}

// RiskAssessment is the stored risk profile of a customer.
type RiskAssessment struct {
	TenantID        string       `json:"tenantId"`
	CustomerID      string       `json:"customerId"`
	Score           float64      `json:"score"`
	Level           RiskLevel    `json:"level"`
	Factors         []RiskFactor `json:"factors"`
	Recommendations []string     `json:"recommendations"`
	LastUpdated     time.Time    `json:"lastUpdated"`
}

// ConsistencyTolerance is the allowed drift between a stored score and its factors.
const ConsistencyTolerance = 2.0

// Consistent reports whether Score matches the weighted average of Factors.
func (a *RiskAssessment) Consistent() bool {
	var sum, weights float64
	for _, f := range a.Factors {
		sum += f.Score * f.Weight
		weights += f.Weight
	}
	if weights == 0 {
		return a.Score == 0
	}
	recomputed := math.Max(0, math.Min(100, sum/weights))
	return math.Abs(a.Score-recomputed) <= ConsistencyTolerance
}

// RiskFactorRule is a CEL expression producing a 0-100 factor score for a claim.
type RiskFactorRule struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Expression  string  `json:"expression" yaml:"expression"`
	Weight      float64 `json:"weight" yaml:"weight"`
	Enabled     bool    `json:"enabled" yaml:"enabled"`
}

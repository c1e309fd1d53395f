package domain

// CoverageTier is an immutable entry of the coverage catalog.
type CoverageTier struct {
	Name           string   `json:"name" yaml:"name"`
	Description    string   `json:"description" yaml:"description"`
	MaxCoverage    float64  `json:"maxCoverage" yaml:"maxCoverage"`
	BasePremium    float64  `json:"basePremium" yaml:"basePremium"`
	Deductible     float64  `json:"deductible" yaml:"deductible"`
	Rate           float64  `json:"rate" yaml:"rate"` // loading factor applied to package value
	Features       []string `json:"features,omitempty" yaml:"features"`
	RecommendedFor []string `json:"recommendedFor,omitempty" yaml:"recommendedFor"`
}

// Quote is the premium calculation for a package under a tier.
type Quote struct {
	Tier           string  `json:"tier"`
	PackageValue   float64 `json:"packageValue"`
	CoverageAmount float64 `json:"coverageAmount"`
	Premium        float64 `json:"premium"`
	Deductible     float64 `json:"deductible"`
}

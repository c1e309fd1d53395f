package domain

import "time"

// AlertType names the detector that raised a fraud alert.
type AlertType string

const (
	AlertMultipleClaims    AlertType = "Multiple Claims"
	AlertSuspiciousPattern AlertType = "Suspicious Pattern"
	AlertUnusualAmount     AlertType = "Unusual Amount"
	AlertEarlyClaim        AlertType = "Early Claim"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertMultipleClaims, AlertSuspiciousPattern, AlertUnusualAmount, AlertEarlyClaim:
		return true
	}
	return false
}

// Severity grades a fraud alert.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// FraudAlert is a suspicion raised against a claim.
type FraudAlert struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	ClaimID     string     `json:"claimId"`
	CustomerID  string     `json:"customerId"`
	AlertType   AlertType  `json:"alertType"`
	Severity    Severity   `json:"severity"`
	Description string     `json:"description"`
	DetectedAt  time.Time  `json:"detectedAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy  string     `json:"resolvedBy,omitempty"`
	Resolution  string     `json:"resolution,omitempty"`
	Evidence    []string   `json:"evidence"`
}

// Resolved reports whether the alert has been closed by an investigator.
func (a *FraudAlert) Resolved() bool {
	return a.ResolvedAt != nil
}

// AlertFilter narrows ListAlerts. Zero fields match everything.
type AlertFilter struct {
	ClaimID    string
	CustomerID string
	OpenOnly   bool
}

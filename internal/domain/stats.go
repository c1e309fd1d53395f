package domain

import "time"

// InsuranceStats is a read-only summary of a tenant's book.
type InsuranceStats struct {
	TotalPolicies        int                  `json:"totalPolicies"`
	ActivePolicies       int                  `json:"activePolicies"`
	TotalClaims          int                  `json:"totalClaims"`
	OpenClaims           int                  `json:"openClaims"`
	PoliciesByStatus     map[PolicyStatus]int `json:"policiesByStatus"`
	ClaimsByStatus       map[ClaimStatus]int  `json:"claimsByStatus"`
	ClaimsByType         map[ClaimType]int    `json:"claimsByType"`
	TotalPremiums        float64              `json:"totalPremiums"`
	TotalReportedAmount  float64              `json:"totalReportedAmount"`
	TotalApprovedPayouts float64              `json:"totalApprovedPayouts"`
	AveragePayout        float64              `json:"averagePayout"`
	OpenFraudAlerts      int                  `json:"openFraudAlerts"`
	AlertsBySeverity     map[Severity]int     `json:"alertsBySeverity"`
	HighRiskClaims       int                  `json:"highRiskClaims"`
	MonthlyTrend         []MonthlyTrend       `json:"monthlyTrend"`
	GeneratedAt          time.Time            `json:"generatedAt"`
}

// MonthlyTrend aggregates claims reported in one calendar month.
type MonthlyTrend struct {
	Month          string  `json:"month"` // YYYY-MM
	Claims         int     `json:"claims"`
	ReportedAmount float64 `json:"reportedAmount"`
	ApprovedAmount float64 `json:"approvedAmount"`
}

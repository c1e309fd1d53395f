package domain

import "time"

// PolicyStatus is the lifecycle status of an insurance policy.
type PolicyStatus string

const (
	PolicyActive    PolicyStatus = "Active"
	PolicyPending   PolicyStatus = "Pending"
	PolicyExpired   PolicyStatus = "Expired"
	PolicyCancelled PolicyStatus = "Cancelled"
	PolicySuspended PolicyStatus = "Suspended"
)

// Valid reports whether s is a known policy status.
func (s PolicyStatus) Valid() bool {
	switch s {
	case PolicyActive, PolicyPending, PolicyExpired, PolicyCancelled, PolicySuspended:
		return true
	}
	return false
}

// Final reports whether no further status change is allowed.
func (s PolicyStatus) Final() bool {
	return s == PolicyExpired || s == PolicyCancelled
}

// PendingReason records why a policy is Pending.
type PendingReason string

const (
	// PendingAwaitingStart policies become Active at their start date.
	PendingAwaitingStart PendingReason = "awaiting_start"
	// PendingUnderwriting policies wait for a manual decision.
	PendingUnderwriting PendingReason = "underwriting"
)

// Insurer is an insurance company policies are written against.
type Insurer struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// InsurancePolicy is a coverage contract for a customer.
type InsurancePolicy struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenantId"`
	CustomerID     string        `json:"customerId"`
	PolicyNumber   string        `json:"policyNumber"`
	InsurerID      string        `json:"insuranceCompany"`
	CoverageType   string        `json:"coverageType"`
	CoverageAmount float64       `json:"coverageAmount"`
	Premium        float64       `json:"premium"`
	Deductible     float64       `json:"deductible"`
	StartDate      time.Time     `json:"startDate"`
	EndDate        time.Time     `json:"endDate"`
	Status         PolicyStatus  `json:"status"`
	PendingReason  PendingReason `json:"pendingReason,omitempty"`
	AutoRenew      bool          `json:"autoRenew"`
	Documents      []string      `json:"documents,omitempty"`
	RenewedFrom    string        `json:"renewedFrom,omitempty"`
	RenewedTo      string        `json:"renewedTo,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`

	// Version is bumped on every update and used for optimistic locking.
	Version int64 `json:"version"`
}

// PolicyFilter narrows ListPolicies. Zero fields match everything.
type PolicyFilter struct {
	CustomerID string
	InsurerID  string
	Status     PolicyStatus
}

// RenewalAction describes what a renewal sweep did to a policy.
type RenewalAction string

const (
	RenewalNone              RenewalAction = "none"
	RenewalRenewed           RenewalAction = "renewed"
	RenewalExpired           RenewalAction = "expired"
	RenewalRenewedAndExpired RenewalAction = "renewed_and_expired"
	RenewalActivated         RenewalAction = "activated"
)

// RenewalResult is returned by a renew-or-expire pass over one policy.
type RenewalResult struct {
	Policy    *InsurancePolicy `json:"policy"`
	Successor *InsurancePolicy `json:"successor,omitempty"`
	Action    RenewalAction    `json:"action"`
}

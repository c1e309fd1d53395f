package domain

import "time"

// ClaimStatus is a state of the claim lifecycle.
type ClaimStatus string

const (
	ClaimReported              ClaimStatus = "Reported"
	ClaimUnderReview           ClaimStatus = "Under Review"
	ClaimInvestigation         ClaimStatus = "Investigation"
	ClaimDocumentationRequired ClaimStatus = "Documentation Required"
	ClaimApproved              ClaimStatus = "Approved"
	ClaimDenied                ClaimStatus = "Denied"
	ClaimSettled               ClaimStatus = "Settled"
	ClaimClosed                ClaimStatus = "Closed"
)

// ClaimStatuses lists every lifecycle state in workflow order.
var ClaimStatuses = []ClaimStatus{
	ClaimReported,
	ClaimUnderReview,
	ClaimInvestigation,
	ClaimDocumentationRequired,
	ClaimApproved,
	ClaimDenied,
	ClaimSettled,
	ClaimClosed,
}

// Valid reports whether s is a known claim status.
func (s ClaimStatus) Valid() bool {
	for _, known := range ClaimStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the claim can no longer move through the workflow.
// Denied is terminal except for administrative closure.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimSettled || s == ClaimClosed || s == ClaimDenied
}

// Open reports whether the claim is still being worked.
func (s ClaimStatus) Open() bool {
	return !s.Terminal() && s != ClaimApproved
}

// ClaimType classifies what happened to the package.
type ClaimType string

const (
	ClaimDamage        ClaimType = "Damage"
	ClaimLoss          ClaimType = "Loss"
	ClaimTheft         ClaimType = "Theft"
	ClaimDelay         ClaimType = "Delay"
	ClaimWrongDelivery ClaimType = "Wrong Delivery"
	ClaimOther         ClaimType = "Other"
)

// Valid reports whether t is a known claim type.
func (t ClaimType) Valid() bool {
	switch t {
	case ClaimDamage, ClaimLoss, ClaimTheft, ClaimDelay, ClaimWrongDelivery, ClaimOther:
		return true
	}
	return false
}

// ClaimPriority orders the handling queue.
type ClaimPriority string

const (
	PriorityLow    ClaimPriority = "Low"
	PriorityMedium ClaimPriority = "Medium"
	PriorityHigh   ClaimPriority = "High"
	PriorityUrgent ClaimPriority = "Urgent"
)

// Valid reports whether p is a known priority.
func (p ClaimPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// TimelineEventType is the vocabulary of claim timeline entries.
type TimelineEventType string

const (
	EventClaimFiled             TimelineEventType = "Claim Filed"
	EventAssigned               TimelineEventType = "Assigned"
	EventReviewStarted          TimelineEventType = "Review Started"
	EventInvestigationStarted   TimelineEventType = "Investigation Started"
	EventDocumentationRequested TimelineEventType = "Documentation Requested"
	EventDocumentationReceived  TimelineEventType = "Documentation Received"
	EventInvestigationComplete  TimelineEventType = "Investigation Complete"
	EventApproved               TimelineEventType = "Approved"
	EventDenied                 TimelineEventType = "Denied"
	EventSettlementOffered      TimelineEventType = "Settlement Offered"
	EventSettlementAccepted     TimelineEventType = "Settlement Accepted"
	EventPaymentProcessed       TimelineEventType = "Payment Processed"
	EventClaimClosed            TimelineEventType = "Claim Closed"
	EventNoteAdded              TimelineEventType = "Note Added"
	EventDocumentAdded          TimelineEventType = "Document Added"
	EventPhotoAdded             TimelineEventType = "Photo Added"
)

// ClaimTimelineEvent is one append-only entry of a claim's history.
type ClaimTimelineEvent struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	EventType   TimelineEventType `json:"eventType"`
	Description string            `json:"description"`
	PerformedBy string            `json:"performedBy"`
	Attachments []string          `json:"attachments,omitempty"`
}

// ClaimNote is a free-text remark left on a claim.
type ClaimNote struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// InsuranceClaim is a request for compensation under a policy.
type InsuranceClaim struct {
	ID              string               `json:"id"`
	TenantID        string               `json:"tenantId"`
	ClaimNumber     string               `json:"claimNumber"`
	PolicyID        string               `json:"policyId"`
	CustomerID      string               `json:"customerId"`
	PackageID       string               `json:"packageId,omitempty"`
	ClaimType       ClaimType            `json:"claimType"`
	Description     string               `json:"description"`
	IncidentDate    time.Time            `json:"incidentDate"`
	ReportedAmount  float64              `json:"reportedAmount"`
	EstimatedAmount float64              `json:"estimatedAmount"`
	ApprovedAmount  *float64             `json:"approvedAmount,omitempty"`
	SettlementOffer *float64             `json:"settlementOffer,omitempty"`
	Status          ClaimStatus          `json:"status"`
	Priority        ClaimPriority        `json:"priority"`
	ReportedAt      time.Time            `json:"reportedAt"`
	AssignedTo      string               `json:"assignedTo,omitempty"`
	AssignedAt      *time.Time           `json:"assignedAt,omitempty"`
	ResolvedAt      *time.Time           `json:"resolvedAt,omitempty"`
	DenialReason    string               `json:"denialReason,omitempty"`
	Timeline        []ClaimTimelineEvent `json:"timeline"`
	Documents       []string             `json:"documents,omitempty"`
	Photos          []string             `json:"photos,omitempty"`
	Notes           []ClaimNote          `json:"notes,omitempty"`
	FraudScore      float64              `json:"fraudScore"`
	RiskLevel       RiskLevel            `json:"riskLevel"`
	Version         int64                `json:"version"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// LastEventAt returns the timestamp of the newest timeline entry.
func (c *InsuranceClaim) LastEventAt() time.Time {
	if len(c.Timeline) == 0 {
		return time.Time{}
	}
	return c.Timeline[len(c.Timeline)-1].Timestamp
}

// Clone returns a deep copy so a mutation can be validated without touching c.
func (c *InsuranceClaim) Clone() *InsuranceClaim {
	out := *c
	if c.ApprovedAmount != nil {
		v := *c.ApprovedAmount
		out.ApprovedAmount = &v
	}
	if c.SettlementOffer != nil {
		v := *c.SettlementOffer
		out.SettlementOffer = &v
	}
	if c.AssignedAt != nil {
		v := *c.AssignedAt
		out.AssignedAt = &v
	}
	if c.ResolvedAt != nil {
		v := *c.ResolvedAt
		out.ResolvedAt = &v
	}
	out.Timeline = make([]ClaimTimelineEvent, len(c.Timeline))
	for i, ev := range c.Timeline {
		ev.Attachments = append([]string(nil), ev.Attachments...)
		out.Timeline[i] = ev
	}
	out.Documents = append([]string(nil), c.Documents...)
	out.Photos = append([]string(nil), c.Photos...)
	out.Notes = append([]ClaimNote(nil), c.Notes...)
	return &out
}

// ClaimFilter narrows ListClaims. Zero fields match everything.
type ClaimFilter struct {
	CustomerID string
	PolicyID   string
	Status     ClaimStatus
	Since      time.Time // reportedAt >= Since
}

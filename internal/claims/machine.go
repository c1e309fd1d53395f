package claims

import (
	"fmt"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// edges lists the legal status transitions. Settled and Closed have none.
var edges = map[domain.ClaimStatus][]domain.ClaimStatus{
	domain.ClaimReported: {
		domain.ClaimUnderReview, domain.ClaimApproved, domain.ClaimDenied, domain.ClaimClosed,
	},
	domain.ClaimUnderReview: {
		domain.ClaimInvestigation, domain.ClaimDocumentationRequired,
		domain.ClaimApproved, domain.ClaimDenied, domain.ClaimClosed,
	},
	domain.ClaimInvestigation: {
		domain.ClaimDocumentationRequired, domain.ClaimApproved, domain.ClaimDenied, domain.ClaimClosed,
	},
	domain.ClaimDocumentationRequired: {
		domain.ClaimInvestigation, domain.ClaimApproved, domain.ClaimDenied, domain.ClaimClosed,
	},
	domain.ClaimApproved: {
		domain.ClaimSettled, domain.ClaimDenied, domain.ClaimClosed,
	},
	domain.ClaimDenied: {
		domain.ClaimClosed,
	},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to domain.ClaimStatus) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Targets returns the statuses reachable from status in one step.
func Targets(status domain.ClaimStatus) []domain.ClaimStatus {
	return append([]domain.ClaimStatus(nil), edges[status]...)
}

// CheckTransition validates a status change. Settled and Closed claims
// reject every change with TerminalStateError, as does a Denied claim for
// anything but administrative closure.
func CheckTransition(claimID string, from, to domain.ClaimStatus) error {
	if !to.Valid() {
		return &domain.ValidationError{
			Entity: "claim",
			ID:     claimID,
			Field:  "status",
			Reason: fmt.Sprintf("unknown status %q", to),
		}
	}
	if from.Terminal() && !CanTransition(from, to) {
		return &domain.TerminalStateError{ClaimID: claimID, Status: from}
	}
	if !CanTransition(from, to) {
		return &domain.InvalidTransitionError{ClaimID: claimID, From: from, To: to}
	}
	return nil
}

// EventFor returns the timeline event recorded for a transition.
func EventFor(from, to domain.ClaimStatus) domain.TimelineEventType {
	switch to {
	case domain.ClaimUnderReview:
		return domain.EventReviewStarted
	case domain.ClaimInvestigation:
		if from == domain.ClaimDocumentationRequired {
			return domain.EventDocumentationReceived
		}
		return domain.EventInvestigationStarted
	case domain.ClaimDocumentationRequired:
		return domain.EventDocumentationRequested
	case domain.ClaimApproved:
		return domain.EventApproved
	case domain.ClaimDenied:
		return domain.EventDenied
	case domain.ClaimSettled:
		return domain.EventPaymentProcessed
	default:
		return domain.EventClaimClosed
	}
}

// Priority thresholds on the reported amount.
const (
	urgentAmount = 10000.0
	highAmount   = 5000.0
	mediumAmount = 1000.0
)

// DerivePriority ranks a new claim from its risk level, amount and type.
func DerivePriority(level domain.RiskLevel, reportedAmount float64, claimType domain.ClaimType) domain.ClaimPriority {
	switch {
	case level == domain.RiskVeryHigh || reportedAmount >= urgentAmount:
		return domain.PriorityUrgent
	case level == domain.RiskHigh || reportedAmount >= highAmount:
		return domain.PriorityHigh
	case level == domain.RiskMedium || reportedAmount >= mediumAmount,
		claimType == domain.ClaimTheft, claimType == domain.ClaimLoss:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/fraud"
	"github.com/opensource-finance/claimguard/internal/metrics"
	"github.com/opensource-finance/claimguard/internal/risk"
)

// change applies one mutation to c and describes the timeline event it records.
type change func(ctx context.Context, c *domain.InsuranceClaim, now time.Time) (*domain.ClaimTimelineEvent, error)

// mutate loads a claim under its lock, applies fn to a copy, appends the
// event and writes the copy if the stored version is unchanged. The stored
// claim is untouched when fn or the write fails.
func (e *Engine) mutate(ctx context.Context, tenantID, claimID string, fn change) (before, after *domain.InsuranceClaim, err error) {
	unlock := e.locks.Lock(tenantID + "/" + claimID)
	defer unlock()

	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	current, err := e.repo.GetClaim(sctx, tenantID, claimID)
	if err != nil {
		return nil, nil, domain.NewStorageError("get", "claim", claimID, err)
	}

	next := current.Clone()
	now := e.now()
	event, err := fn(sctx, next, now)
	if err != nil {
		return nil, nil, err
	}

	event.ID = e.newID()
	event.Timestamp = nextEventTime(current.LastEventAt(), now)
	next.Timeline = append(next.Timeline, *event)
	next.UpdatedAt = now

	if err := e.repo.UpdateClaim(sctx, tenantID, next, current.Version); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.RecordConflict()
			return nil, nil, &domain.InvalidTransitionError{
				ClaimID: claimID,
				From:    current.Status,
				To:      next.Status,
				Reason:  "claim was modified concurrently",
				Err:     domain.ErrVersionConflict,
			}
		}
		return nil, nil, domain.NewStorageError("update", "claim", claimID, err)
	}
	return current, next, nil
}

// nextEventTime keeps timeline timestamps strictly increasing.
func nextEventTime(last, now time.Time) time.Time {
	if !now.After(last) {
		return last.Add(time.Nanosecond)
	}
	return now
}

// Assign hands a Reported or Under Review claim to an adjuster.
func (e *Engine) Assign(ctx context.Context, tenantID, claimID, assignee, actor string) (*domain.InsuranceClaim, error) {
	if strings.TrimSpace(assignee) == "" {
		return nil, invalidClaim(claimID, "assignedTo", "is required")
	}

	_, claim, err := e.mutate(ctx, tenantID, claimID, func(_ context.Context, c *domain.InsuranceClaim, now time.Time) (*domain.ClaimTimelineEvent, error) {
		if c.Status != domain.ClaimReported && c.Status != domain.ClaimUnderReview {
			return nil, &domain.InvalidTransitionError{ClaimID: claimID, From: c.Status, To: c.Status, Action: "assign"}
		}
		c.AssignedTo = assignee
		c.AssignedAt = &now
		return &domain.ClaimTimelineEvent{
			EventType:   domain.EventAssigned,
			Description: "Assigned to " + assignee,
			PerformedBy: actorOr(actor, assignee),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, tenantID, domain.TopicClaimUpdated, claim, map[string]any{
		"event":      string(domain.EventAssigned),
		"assignedTo": assignee,
	})
	return claim, nil
}

// Advance moves a claim along the lifecycle graph.
//
// Approval needs an approved amount no larger than the reported amount or
// the policy coverage. Denial needs a note, kept as the denial reason.
// Settled, Denied and Closed record the resolution time.
func (e *Engine) Advance(ctx context.Context, tenantID, claimID string, req AdvanceRequest) (*domain.InsuranceClaim, error) {
	before, claim, err := e.mutate(ctx, tenantID, claimID, func(ctx context.Context, c *domain.InsuranceClaim, now time.Time) (*domain.ClaimTimelineEvent, error) {
		from := c.Status
		if req.ExpectedStatus != "" && req.ExpectedStatus != from {
			return nil, &domain.InvalidTransitionError{
				ClaimID: claimID,
				From:    from,
				To:      req.Target,
				Reason:  fmt.Sprintf("expected status %s", req.ExpectedStatus),
			}
		}
		if err := CheckTransition(claimID, from, req.Target); err != nil {
			return nil, err
		}

		note := strings.TrimSpace(req.Note)
		switch req.Target {
		case domain.ClaimApproved:
			if err := e.checkApprovedAmount(ctx, c, req.ApprovedAmount); err != nil {
				return nil, err
			}
			amount := *req.ApprovedAmount
			c.ApprovedAmount = &amount
		case domain.ClaimDenied:
			if note == "" {
				return nil, invalidClaim(claimID, "note", "a denial reason is required")
			}
			c.DenialReason = note
			c.ApprovedAmount = nil
			c.SettlementOffer = nil
		}

		switch req.Target {
		case domain.ClaimSettled:
			c.ResolvedAt = &now
		case domain.ClaimDenied, domain.ClaimClosed:
			if c.ResolvedAt == nil {
				c.ResolvedAt = &now
			}
		}
		c.Status = req.Target

		description := note
		if description == "" {
			description = fmt.Sprintf("Status changed from %s to %s", from, req.Target)
		}
		return &domain.ClaimTimelineEvent{
			EventType:   EventFor(from, req.Target),
			Description: description,
			PerformedBy: actorOr(req.Actor, "system"),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(before.Status), string(claim.Status))
	slog.Info("claim status changed",
		"tenant_id", tenantID,
		"claim_number", claim.ClaimNumber,
		"from", before.Status,
		"to", claim.Status,
		"actor", req.Actor,
	)
	extra := map[string]any{"from": string(before.Status)}
	if claim.ApprovedAmount != nil {
		extra["approvedAmount"] = *claim.ApprovedAmount
	}
	if claim.DenialReason != "" && claim.Status == domain.ClaimDenied {
		extra["denialReason"] = claim.DenialReason
	}
	e.emit(ctx, tenantID, domain.TopicClaimStatusChanged, claim, extra)
	if claim.Status == domain.ClaimApproved || claim.Status == domain.ClaimSettled {
		e.refreshCustomer(ctx, tenantID, claim)
	}
	return claim, nil
}

func (e *Engine) checkApprovedAmount(ctx context.Context, c *domain.InsuranceClaim, amount *float64) error {
	if amount == nil {
		return invalidClaim(c.ID, "approvedAmount", "is required for approval")
	}
	v := *amount
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return invalidClaim(c.ID, "approvedAmount", "must be positive")
	}
	if v > c.ReportedAmount {
		return invalidClaim(c.ID, "approvedAmount", fmt.Sprintf("%.2f exceeds the reported amount %.2f", v, c.ReportedAmount))
	}

	policy, err := e.policies.GetPolicy(ctx, c.TenantID, c.PolicyID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.ReferentialError{Entity: "claim", ID: c.ID, Ref: "policy", RefID: c.PolicyID}
	}
	if err != nil {
		return err
	}
	if v > policy.CoverageAmount {
		return invalidClaim(c.ID, "approvedAmount", fmt.Sprintf("%.2f exceeds the policy coverage %.2f", v, policy.CoverageAmount))
	}
	return nil
}

// AddNote appends a note. Allowed in every status.
func (e *Engine) AddNote(ctx context.Context, tenantID, claimID, author, text string) (*domain.InsuranceClaim, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalidClaim(claimID, "text", "is required")
	}
	if strings.TrimSpace(author) == "" {
		return nil, invalidClaim(claimID, "author", "is required")
	}

	_, claim, err := e.mutate(ctx, tenantID, claimID, func(_ context.Context, c *domain.InsuranceClaim, now time.Time) (*domain.ClaimTimelineEvent, error) {
		c.Notes = append(c.Notes, domain.ClaimNote{
			ID:        e.newID(),
			Author:    author,
			Text:      text,
			CreatedAt: now,
		})
		return &domain.ClaimTimelineEvent{
			EventType:   domain.EventNoteAdded,
			Description: text,
			PerformedBy: author,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(ctx, tenantID, domain.TopicClaimUpdated, claim, map[string]any{"event": string(domain.EventNoteAdded)})
	return claim, nil
}

// AttachDocument stores blob and records its URL. Allowed in every status.
func (e *Engine) AttachDocument(ctx context.Context, tenantID, claimID string, blob domain.Blob, actor string) (*domain.InsuranceClaim, error) {
	return e.attach(ctx, tenantID, claimID, blob, actor, false)
}

// AttachPhoto stores an image and records its URL. Allowed in every status.
func (e *Engine) AttachPhoto(ctx context.Context, tenantID, claimID string, blob domain.Blob, actor string) (*domain.InsuranceClaim, error) {
	if blob.ContentType != "" && !strings.HasPrefix(blob.ContentType, "image/") {
		return nil, invalidClaim(claimID, "contentType", fmt.Sprintf("%s is not an image", blob.ContentType))
	}
	return e.attach(ctx, tenantID, claimID, blob, actor, true)
}

func (e *Engine) attach(ctx context.Context, tenantID, claimID string, blob domain.Blob, actor string, photo bool) (*domain.InsuranceClaim, error) {
	if strings.TrimSpace(blob.Name) == "" {
		return nil, invalidClaim(claimID, "name", "is required")
	}
	if len(blob.Data) == 0 {
		return nil, invalidClaim(claimID, "data", "must not be empty")
	}
	if e.documents == nil {
		return nil, fmt.Errorf("claims: no document store configured")
	}

	// Fail on a missing claim before writing the blob.
	if _, err := e.GetClaim(ctx, tenantID, claimID); err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	url, err := e.documents.Store(sctx, tenantID, blob)
	cancel()
	if err != nil {
		return nil, domain.NewStorageError("store", "document", blob.Name, err)
	}

	eventType := domain.EventDocumentAdded
	if photo {
		eventType = domain.EventPhotoAdded
	}

	_, claim, err := e.mutate(ctx, tenantID, claimID, func(_ context.Context, c *domain.InsuranceClaim, _ time.Time) (*domain.ClaimTimelineEvent, error) {
		if photo {
			c.Photos = append(c.Photos, url)
		} else {
			c.Documents = append(c.Documents, url)
		}
		return &domain.ClaimTimelineEvent{
			EventType:   eventType,
			Description: blob.Name,
			PerformedBy: actorOr(actor, c.CustomerID),
			Attachments: []string{url},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(ctx, tenantID, domain.TopicClaimUpdated, claim, map[string]any{"event": string(eventType), "url": url})
	return claim, nil
}

// requireStatus rejects an action unless the claim is in status.
func requireStatus(c *domain.InsuranceClaim, status domain.ClaimStatus, action string) error {
	if c.Status != status {
		return &domain.InvalidTransitionError{
			ClaimID: c.ID,
			From:    c.Status,
			To:      c.Status,
			Action:  action,
			Reason:  fmt.Sprintf("requires status %s", status),
		}
	}
	return nil
}

// CompleteInvestigation records the end of an investigation. The claim
// stays in Investigation until advanced.
func (e *Engine) CompleteInvestigation(ctx context.Context, tenantID, claimID, actor, findings string) (*domain.InsuranceClaim, error) {
	_, claim, err := e.mutate(ctx, tenantID, claimID, func(_ context.Context, c *domain.InsuranceClaim, _ time.Time) (*domain.ClaimTimelineEvent, error) {
		if err := requireStatus(c, domain.ClaimInvestigation, "complete investigation"); err != nil {
			return nil, err
		}
		description := strings.TrimSpace(findings)
		if description == "" {
			description = "Investigation complete"
		}
		return &domain.ClaimTimelineEvent{
			EventType:   domain.EventInvestigationComplete,
			Description: description,
			PerformedBy: actorOr(actor, "system"),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(ctx, tenantID, domain.TopicClaimUpdated, claim, map[string]any{"event": string(domain.EventInvestigationComplete)})
	return claim, nil
}

// OfferSettlement proposes a payout up to the approved amount.
func (e *Engine) OfferSettlement(ctx context.Context, tenantID, claimID string, amount float64, actor string) (*domain.InsuranceClaim, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, invalidClaim(claimID, "amount", "must be positive")
	}

	_, claim, err := e.mutate(ctx, tenantID, claimID, func(_ context.Context, c *domain.InsuranceClaim, _ time.Time) (*domain.ClaimTimelineEvent, error) {
		if err := requireStatus(c, domain.ClaimApproved, "offer a settlement"); err != nil {
			return nil, err
		}
		if c.ApprovedAmount != nil && amount > *c.ApprovedAmount {
			return nil, invalidClaim(claimID, "amount", fmt.Sprintf("%.2f exceeds the approved amount %.2f", amount, *c.ApprovedAmount))
		}
		offer := amount
		c.SettlementOffer = &offer
		return &domain.ClaimTimelineEvent{
			EventType:   domain.EventSettlementOffered,
			Description: fmt.Sprintf("Settlement of %.2f offered", amount),
			PerformedBy: actorOr(actor, "system"),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(ctx, tenantID, domain.TopicClaimUpdated, claim, map[string]any{
		"event":  string(domain.EventSettlementOffered),
		"amount": amount,
	})
	return claim, nil
}

// AcceptSettlement records the customer's acceptance of the open offer.
// The offered amount becomes the approved amount.
func (e *Engine) AcceptSettlement(ctx context.Context, tenantID, claimID, actor string) (*domain.InsuranceClaim, error) {
	_, claim, err := e.mutate(ctx, tenantID, claimID, func(_ context.Context, c *domain.InsuranceClaim, _ time.Time) (*domain.ClaimTimelineEvent, error) {
		if err := requireStatus(c, domain.ClaimApproved, "accept a settlement"); err != nil {
			return nil, err
		}
		if c.SettlementOffer == nil {
			return nil, &domain.InvalidTransitionError{
				ClaimID: claimID,
				From:    c.Status,
				To:      c.Status,
				Action:  "accept a settlement",
				Reason:  "no settlement has been offered",
			}
		}
		accepted := *c.SettlementOffer
		c.ApprovedAmount = &accepted
		return &domain.ClaimTimelineEvent{
			EventType:   domain.EventSettlementAccepted,
			Description: fmt.Sprintf("Settlement of %.2f accepted", accepted),
			PerformedBy: actorOr(actor, c.CustomerID),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(ctx, tenantID, domain.TopicClaimUpdated, claim, map[string]any{"event": string(domain.EventSettlementAccepted)})
	e.refreshCustomer(ctx, tenantID, claim)
	return claim, nil
}

// ReassessClaim re-runs fraud detection. When open alerts raise the fraud
// score floor above the stored score, the claim is updated with a note on
// its timeline.
func (e *Engine) ReassessClaim(ctx context.Context, tenantID, claimID, actor string) (*ReassessResult, error) {
	if e.fraud == nil {
		return nil, fmt.Errorf("claims: fraud detection is not configured")
	}

	claim, err := e.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		return nil, err
	}
	policy, err := e.policies.GetPolicy(ctx, tenantID, claim.PolicyID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	changed, err := e.fraud.Reassess(ctx, tenantID, claim, policy)
	if err != nil {
		return nil, err
	}
	open, err := e.fraud.ListAlerts(ctx, tenantID, domain.AlertFilter{ClaimID: claimID, OpenOnly: true})
	if err != nil {
		return nil, err
	}

	floor := fraud.ScoreFloor(open)
	if floor > claim.FraudScore {
		_, claim, err = e.mutate(ctx, tenantID, claimID, func(_ context.Context, c *domain.InsuranceClaim, _ time.Time) (*domain.ClaimTimelineEvent, error) {
			if floor <= c.FraudScore {
				return nil, errUnchanged
			}
			c.FraudScore = floor
			c.RiskLevel = risk.ClassifyRiskLevel(floor)
			return &domain.ClaimTimelineEvent{
				EventType:   domain.EventNoteAdded,
				Description: fmt.Sprintf("Fraud score raised to %.2f after reassessment", floor),
				PerformedBy: actorOr(actor, "system"),
			}, nil
		})
		if errors.Is(err, errUnchanged) {
			claim, err = e.GetClaim(ctx, tenantID, claimID)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(changed) > 0 {
		e.refreshCustomer(ctx, tenantID, claim)
	}
	return &ReassessResult{Claim: claim, Alerts: changed}, nil
}

var errUnchanged = errors.New("claim unchanged")

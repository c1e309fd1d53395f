// Package fraud runs fraud detectors over claims and manages the alerts
// they raise. Alerts are never deleted; reviewers resolve them.
package fraud

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/claimguard/internal/domain"
)

// Severity floors applied to a claim's fraud score.
var severityFloor = map[domain.Severity]float64{
	domain.SeverityLow:      35,
	domain.SeverityMedium:   55,
	domain.SeverityHigh:     75,
	domain.SeverityCritical: 90,
}

// ScoreFloor returns the minimum fraud score implied by alerts, or 0 when
// none are open.
func ScoreFloor(alerts []*domain.FraudAlert) float64 {
	var floor float64
	for _, a := range alerts {
		if a.Resolved() {
			continue
		}
		if f := severityFloor[a.Severity]; f > floor {
			floor = f
		}
	}
	return floor
}

// DefaultDetectors builds the standard detector set from cfg.
func DefaultDetectors(cfg domain.FraudConfig) []Detector {
	return []Detector{
		MultipleClaims{Threshold: cfg.MultipleClaimsThreshold, Window: cfg.MultipleClaimsWindow},
		SuspiciousPattern{Window: cfg.PatternWindow, Similarity: cfg.PatternSimilarity, MinMatches: cfg.PatternMinMatches},
		UnusualAmount{Multiple: cfg.UnusualAmountMultiple, High: cfg.UnusualAmountHigh, MinHistory: cfg.UnusualAmountHistory},
		EarlyClaim{Window: cfg.EarlyClaimWindow, High: cfg.EarlyClaimHigh},
	}
}

// Engine runs detectors in parallel with a bounded worker pool.
type Engine struct {
	detectors  []Detector
	maxWorkers int
	newID      func() string
}

// NewEngine creates an engine. No detectors means DefaultDetectors(DefaultFraudConfig()).
func NewEngine(maxWorkers int, detectors ...Detector) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if len(detectors) == 0 {
		detectors = DefaultDetectors(domain.DefaultFraudConfig())
	}
	return &Engine{
		detectors:  detectors,
		maxWorkers: maxWorkers,
		newID:      func() string { return uuid.New().String() },
	}
}

// EvaluateClaim runs every detector against claim and returns the alerts
// raised, in detector order. A failing detector is logged and skipped.
func (e *Engine) EvaluateClaim(ctx context.Context, claim *domain.InsuranceClaim, history []*domain.InsuranceClaim, policy *domain.InsurancePolicy, now time.Time) []*domain.FraudAlert {
	in := Input{Claim: claim, History: history, Policy: policy, Now: now}
	findings := make([]*Finding, len(e.detectors))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, d := range e.detectors {
		wg.Add(1)
		go func(idx int, d Detector) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			f, err := d.Detect(ctx, in)
			if errors.Is(err, ErrInsufficientHistory) {
				slog.Debug("fraud detector skipped", "detector", d.Name(), "claim_id", claim.ID)
				return
			}
			if err != nil {
				slog.Warn("fraud detector failed",
					"detector", d.Name(),
					"claim_id", claim.ID,
					"error", err,
				)
				return
			}
			findings[idx] = f
		}(i, d)
	}
	wg.Wait()

	var alerts []*domain.FraudAlert
	for _, f := range findings {
		if f == nil || len(f.Evidence) == 0 {
			continue
		}
		alerts = append(alerts, &domain.FraudAlert{
			ID:          e.newID(),
			TenantID:    claim.TenantID,
			ClaimID:     claim.ID,
			CustomerID:  claim.CustomerID,
			AlertType:   f.AlertType,
			Severity:    f.Severity,
			Description: f.Description,
			DetectedAt:  now,
			Evidence:    f.Evidence,
		})
	}
	return alerts
}

package fraud

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// ErrInsufficientHistory is returned by a detector that lacks the data it
// needs. The detector then contributes no alert.
var ErrInsufficientHistory = errors.New("insufficient history")

// Input is what a detector sees about a claim.
type Input struct {
	Claim   *domain.InsuranceClaim
	History []*domain.InsuranceClaim // other claims of the same customer
	Policy  *domain.InsurancePolicy
	Now     time.Time
}

// reference is the instant windows are measured back from.
func (in Input) reference() time.Time {
	if !in.Claim.ReportedAt.IsZero() {
		return in.Claim.ReportedAt
	}
	return in.Now
}

// prior returns history claims reported within window before the claim,
// oldest first. The claim itself and later claims are excluded.
func (in Input) prior(window time.Duration) []*domain.InsuranceClaim {
	ref := in.reference()
	since := ref.Add(-window)

	var out []*domain.InsuranceClaim
	for _, c := range in.History {
		if c.ID == in.Claim.ID || c.ReportedAt.After(ref) || c.ReportedAt.Before(since) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReportedAt.Before(out[j].ReportedAt) })
	return out
}

// Finding is a detector verdict before it becomes a stored alert.
type Finding struct {
	AlertType   domain.AlertType
	Severity    domain.Severity
	Description string
	Evidence    []string
}

// Detector inspects one claim. It returns nil when nothing is suspicious.
type Detector interface {
	Name() string
	Detect(ctx context.Context, in Input) (*Finding, error)
}

// MultipleClaims flags customers filing many claims in a short period.
type MultipleClaims struct {
	Threshold int
	Window    time.Duration
}

func (d MultipleClaims) Name() string { return "multiple_claims" }

func (d MultipleClaims) Detect(_ context.Context, in Input) (*Finding, error) {
	prior := in.prior(d.Window)
	if len(prior) < d.Threshold {
		return nil, nil
	}

	severity := domain.SeverityMedium
	switch {
	case len(prior) >= d.Threshold+2:
		severity = domain.SeverityCritical
	case len(prior) == d.Threshold+1:
		severity = domain.SeverityHigh
	}

	evidence := make([]string, len(prior))
	for i, c := range prior {
		evidence[i] = fmt.Sprintf("%s filed %s", c.ClaimNumber, c.ReportedAt.Format("2006-01-02"))
	}
	return &Finding{
		AlertType:   domain.AlertMultipleClaims,
		Severity:    severity,
		Description: fmt.Sprintf("customer filed %d claims in the %d days before this one", len(prior), int(d.Window.Hours()/24)),
		Evidence:    evidence,
	}, nil
}

// SuspiciousPattern flags claims whose type and wording repeat earlier claims.
type SuspiciousPattern struct {
	Window     time.Duration
	Similarity float64
	MinMatches int
}

func (d SuspiciousPattern) Name() string { return "suspicious_pattern" }

func (d SuspiciousPattern) Detect(_ context.Context, in Input) (*Finding, error) {
	tokens := tokenize(in.Claim.Description)
	if len(tokens) == 0 {
		return nil, ErrInsufficientHistory
	}

	var evidence []string
	for _, c := range in.prior(d.Window) {
		if c.ClaimType != in.Claim.ClaimType {
			continue
		}
		sim := jaccard(tokens, tokenize(c.Description))
		if sim >= d.Similarity {
			evidence = append(evidence, fmt.Sprintf("%s %s similarity %.2f", c.ClaimNumber, c.ClaimType, sim))
		}
	}
	if len(evidence) < d.MinMatches {
		return nil, nil
	}

	severity := domain.SeverityLow
	if len(evidence) >= d.MinMatches+2 {
		severity = domain.SeverityMedium
	}
	return &Finding{
		AlertType:   domain.AlertSuspiciousPattern,
		Severity:    severity,
		Description: fmt.Sprintf("%s claim resembles %d recent claims", in.Claim.ClaimType, len(evidence)),
		Evidence:    evidence,
	}, nil
}

// UnusualAmount flags reported amounts far above the policy's claim average.
type UnusualAmount struct {
	Multiple   float64
	High       float64
	MinHistory int
}

func (d UnusualAmount) Name() string { return "unusual_amount" }

func (d UnusualAmount) Detect(_ context.Context, in Input) (*Finding, error) {
	var sum float64
	var n int
	for _, c := range in.History {
		if c.ID == in.Claim.ID || c.PolicyID != in.Claim.PolicyID {
			continue
		}
		sum += c.ReportedAmount
		n++
	}
	if n < d.MinHistory || sum <= 0 {
		return nil, ErrInsufficientHistory
	}

	avg := sum / float64(n)
	ratio := in.Claim.ReportedAmount / avg
	if ratio <= d.Multiple {
		return nil, nil
	}

	severity := domain.SeverityMedium
	if ratio > d.High {
		severity = domain.SeverityHigh
	}
	return &Finding{
		AlertType:   domain.AlertUnusualAmount,
		Severity:    severity,
		Description: fmt.Sprintf("reported amount is %.1fx the policy average", ratio),
		Evidence: []string{
			fmt.Sprintf("reported %.2f", in.Claim.ReportedAmount),
			fmt.Sprintf("average of %d prior claims %.2f", n, avg),
		},
	}, nil
}

// EarlyClaim flags incidents shortly after a new policy starts.
// Renewed policies are exempt.
type EarlyClaim struct {
	Window time.Duration
	High   time.Duration
}

func (d EarlyClaim) Name() string { return "early_claim" }

func (d EarlyClaim) Detect(_ context.Context, in Input) (*Finding, error) {
	if in.Policy == nil {
		return nil, ErrInsufficientHistory
	}
	if in.Policy.RenewedFrom != "" {
		return nil, nil
	}

	gap := in.Claim.IncidentDate.Sub(in.Policy.StartDate)
	if gap < 0 || gap > d.Window {
		return nil, nil
	}

	severity := domain.SeverityLow
	if gap <= d.High {
		severity = domain.SeverityMedium
	}
	days := int(gap.Hours() / 24)
	return &Finding{
		AlertType:   domain.AlertEarlyClaim,
		Severity:    severity,
		Description: fmt.Sprintf("incident %d days after policy start", days),
		Evidence: []string{
			fmt.Sprintf("%s started %s", in.Policy.PolicyNumber, in.Policy.StartDate.Format("2006-01-02")),
			fmt.Sprintf("incident on %s", in.Claim.IncidentDate.Format("2006-01-02")),
		},
	}, nil
}

// tokenize lower-cases text into a set of words of three or more characters.
func tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) >= 3 {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

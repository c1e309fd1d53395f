package risk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/claimguard/internal/domain"
	"gopkg.in/yaml.v3"
)

// ClaimContext is the data a factor rule can see about a claim.
type ClaimContext struct {
	TenantID        string
	CustomerID      string
	ClaimType       domain.ClaimType
	ReportedAmount  float64
	EstimatedAmount float64
	CoverageAmount  float64
	PriorClaims     int     // claims by the customer in the last 12 months
	DelayDays       float64 // days between incident and report
	PolicyAgeDays   float64 // days between policy start and incident
}

func (c ClaimContext) activation() map[string]any {
	return map[string]any{
		"reported_amount":  c.ReportedAmount,
		"estimated_amount": c.EstimatedAmount,
		"coverage_amount":  c.CoverageAmount,
		"prior_claims":     int64(c.PriorClaims),
		"claim_type":       string(c.ClaimType),
		"delay_days":       c.DelayDays,
		"policy_age_days":  c.PolicyAgeDays,
	}
}

// DefaultRules returns the built-in claim factor rules. Weights sum to 1.
func DefaultRules() []domain.RiskFactorRule {
	return []domain.RiskFactorRule{
		{
			Name:        "coverage_ratio",
			Description: "Reported amount relative to policy coverage",
			Expression:  `coverage_amount <= 0.0 || reported_amount >= coverage_amount ? 100.0 : reported_amount / coverage_amount * 100.0`,
			Weight:      0.35,
			Enabled:     true,
		},
		{
			Name:        "claim_history",
			Description: "Claims filed by the customer in the last 12 months",
			Expression:  `prior_claims >= 5 ? 100.0 : double(prior_claims) * 20.0`,
			Weight:      0.30,
			Enabled:     true,
		},
		{
			Name:        "claim_type",
			Description: "Inherent risk of the claim type",
			Expression:  `claim_type in ["Theft", "Loss"] ? 70.0 : (claim_type == "Damage" ? 40.0 : 20.0)`,
			Weight:      0.15,
			Enabled:     true,
		},
		{
			Name:        "reporting_delay",
			Description: "Days between incident and report",
			Expression:  `delay_days > 30.0 ? 80.0 : (delay_days > 7.0 ? 40.0 : 10.0)`,
			Weight:      0.20,
			Enabled:     true,
		},
	}
}

// RuleEngine evaluates CEL factor rules against a ClaimContext.
type RuleEngine struct {
	mu         sync.RWMutex
	env        *cel.Env
	rules      []*compiledRule
	maxWorkers int
}

type compiledRule struct {
	config  domain.RiskFactorRule
	program cel.Program
}

// NewRuleEngine creates an engine with no rules loaded.
func NewRuleEngine(maxWorkers int) (*RuleEngine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	env, err := cel.NewEnv(
		cel.Variable("reported_amount", cel.DoubleType),
		cel.Variable("estimated_amount", cel.DoubleType),
		cel.Variable("coverage_amount", cel.DoubleType),
		cel.Variable("prior_claims", cel.IntType),
		cel.Variable("claim_type", cel.StringType),
		cel.Variable("delay_days", cel.DoubleType),
		cel.Variable("policy_age_days", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &RuleEngine{env: env, maxWorkers: maxWorkers}, nil
}

// NewDefaultRuleEngine creates an engine loaded with DefaultRules.
func NewDefaultRuleEngine(maxWorkers int) (*RuleEngine, error) {
	e, err := NewRuleEngine(maxWorkers)
	if err != nil {
		return nil, err
	}
	if err := e.ReloadRules(DefaultRules()); err != nil {
		return nil, err
	}
	return e, nil
}

// ValidateRule compiles a rule without loading it.
func (e *RuleEngine) ValidateRule(rule domain.RiskFactorRule) error {
	_, err := e.compile(rule)
	return err
}

// LoadRule compiles a rule and adds it, replacing any rule with the same name.
func (e *RuleEngine) LoadRule(rule domain.RiskFactorRule) error {
	compiled, err := e.compile(rule)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range e.rules {
		if r.config.Name == rule.Name {
			e.rules[i] = compiled
			return nil
		}
	}
	e.rules = append(e.rules, compiled)
	return nil
}

// ReloadRules atomically replaces every loaded rule. Disabled rules are skipped.
// Nothing changes if any rule fails to compile.
func (e *RuleEngine) ReloadRules(rules []domain.RiskFactorRule) error {
	next := make([]*compiledRule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if seen[rule.Name] {
			return fmt.Errorf("duplicate rule %s", rule.Name)
		}
		seen[rule.Name] = true

		compiled, err := e.compile(rule)
		if err != nil {
			return err
		}
		next = append(next, compiled)
	}

	e.mu.Lock()
	e.rules = next
	e.mu.Unlock()
	return nil
}

// Rules returns the loaded rule configurations in evaluation order.
func (e *RuleEngine) Rules() []domain.RiskFactorRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.RiskFactorRule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.config
	}
	return out
}

// RulesCount returns the number of loaded rules.
func (e *RuleEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Evaluate runs every rule in parallel and returns one factor per rule
// that evaluated cleanly, in load order. Failing rules are logged and skipped.
func (e *RuleEngine) Evaluate(ctx context.Context, cc ClaimContext) []domain.RiskFactor {
	e.mu.RLock()
	rules := append([]*compiledRule(nil), e.rules...)
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := cc.activation()
	results := make([]*domain.RiskFactor, len(rules))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *compiledRule) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			out, _, err := r.program.Eval(activation)
			if err != nil {
				slog.Warn("risk rule evaluation failed",
					"rule", r.config.Name,
					"tenant_id", cc.TenantID,
					"error", err,
				)
				return
			}
			results[idx] = &domain.RiskFactor{
				Name:        r.config.Name,
				Weight:      r.config.Weight,
				Score:       toScore(out),
				Description: r.config.Description,
			}
		}(i, rule)
	}
	wg.Wait()

	factors := make([]domain.RiskFactor, 0, len(results))
	for _, f := range results {
		if f != nil {
			factors = append(factors, *f)
		}
	}
	return factors
}

func (e *RuleEngine) compile(rule domain.RiskFactorRule) (*compiledRule, error) {
	if rule.Name == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	if rule.Weight <= 0 || rule.Weight > 1 {
		return nil, fmt.Errorf("rule %s: weight must be in (0, 1], got %v", rule.Name, rule.Weight)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.Name, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", rule.Name, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.Name, err)
	}

	return &compiledRule{config: rule, program: program}, nil
}

// toScore converts a CEL value to a 0-100 factor score. true scores 100.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 100
		}
		return 0
	case types.Double:
		return clamp(float64(v))
	case types.Int:
		return clamp(float64(v))
	default:
		return 0
	}
}

type ruleFile struct {
	Rules []domain.RiskFactorRule `yaml:"rules"`
}

// LoadRuleFile reads custom factor rules from a YAML document of the form `rules: [...]`.
func LoadRuleFile(path string) ([]domain.RiskFactorRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}
	return f.Rules, nil
}

package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/claimguard/internal/api"
	"github.com/opensource-finance/claimguard/internal/bus"
	"github.com/opensource-finance/claimguard/internal/cache"
	"github.com/opensource-finance/claimguard/internal/claims"
	"github.com/opensource-finance/claimguard/internal/coverage"
	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/fraud"
	"github.com/opensource-finance/claimguard/internal/notify"
	"github.com/opensource-finance/claimguard/internal/policy"
	"github.com/opensource-finance/claimguard/internal/repository"
	"github.com/opensource-finance/claimguard/internal/risk"
	"github.com/opensource-finance/claimguard/internal/stats"
	"github.com/opensource-finance/claimguard/internal/storage"
)

// app holds every wired component of a running ClaimGuard process.
type app struct {
	cfg      *domain.Config
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	services api.Services

	closers []func() error
}

// Close releases infrastructure in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// buildApp initializes infrastructure and the engines on top of it.
func buildApp(cfg *domain.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	a.cache = c
	a.closers = append(a.closers, c.Close)
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	eventBus, err := bus.New(cfg.EventBus)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}
	a.bus = eventBus
	a.closers = append(a.closers, eventBus.Close)
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	docs, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document storage: %w", err)
	}
	slog.Info("document storage initialized", "type", cfg.Storage.Type)

	catalog := coverage.Default()
	if cfg.Catalog.Path != "" {
		if catalog, err = coverage.LoadCatalog(cfg.Catalog.Path); err != nil {
			return nil, err
		}
	}
	slog.Info("coverage catalog loaded", "tiers", len(catalog.Tiers()))

	rules, err := buildRules(cfg.Risk)
	if err != nil {
		return nil, err
	}
	slog.Info("risk rules loaded", "rules_count", rules.RulesCount())

	clock := func() time.Time { return time.Now().UTC() }
	notifier := notify.NewBusNotifier(eventBus)

	riskEngine := risk.NewEngine(repo, c, rules, cfg.Risk)
	policies := policy.NewManager(repo, catalog, riskEngine, notifier, cfg.Policy)
	fraudSvc := fraud.NewService(repo, fraud.NewEngine(cfg.Fraud.MaxWorkers, fraud.DefaultDetectors(cfg.Fraud)...), notifier, cfg.Fraud)

	engine, err := claims.NewEngine(claims.Deps{
		Repo:      repo,
		Policies:  policies,
		Risk:      riskEngine,
		Fraud:     fraudSvc,
		Notifier:  notifier,
		Documents: docs,
		Config:    cfg.Claims,
		Clock:     clock,
	})
	if err != nil {
		return nil, err
	}

	a.services = api.Services{
		Policies: policies,
		Claims:   engine,
		Fraud:    fraudSvc,
		Risk:     riskEngine,
		Stats:    stats.NewService(repo, c, cfg.Stats),
		Repo:     repo,
		Cache:    c,
		Bus:      eventBus,
		Clock:    clock,
	}
	ok = true
	return a, nil
}

// buildRules loads the default factor rules and overlays any rule file.
func buildRules(cfg domain.RiskConfig) (*risk.RuleEngine, error) {
	rules, err := risk.NewDefaultRuleEngine(cfg.MaxWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	if cfg.RulesPath == "" {
		return rules, nil
	}

	custom, err := risk.LoadRuleFile(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	for _, rule := range custom {
		if err := rules.LoadRule(rule); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
		}
	}
	return rules, nil
}

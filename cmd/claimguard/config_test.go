package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/opensource-finance/claimguard/internal/domain"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfgFile = ""
		cfg, err := loadConfig(viper.New())
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.Tier != domain.TierCommunity {
			t.Errorf("expected community tier, got %s", cfg.Tier)
		}
		if cfg.Repository.Driver != "sqlite" {
			t.Errorf("expected sqlite, got %s", cfg.Repository.Driver)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("expected port 8080, got %d", cfg.Server.Port)
		}
	})

	t.Run("ProTier", func(t *testing.T) {
		cfgFile = ""
		t.Setenv("CLAIMGUARD_TIER", "pro")
		cfg, err := loadConfig(viper.New())
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.Tier != domain.TierPro {
			t.Errorf("expected pro tier, got %s", cfg.Tier)
		}
		if cfg.EventBus.Type != "nats" {
			t.Errorf("expected nats bus, got %s", cfg.EventBus.Type)
		}
	})

	t.Run("InvalidTier", func(t *testing.T) {
		cfgFile = ""
		t.Setenv("CLAIMGUARD_TIER", "platinum")
		if _, err := loadConfig(viper.New()); err == nil {
			t.Fatal("expected error for unknown tier")
		}
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		cfgFile = ""
		t.Setenv("CLAIMGUARD_SERVER_PORT", "9090")
		t.Setenv("CLAIMGUARD_SERVER_RATE_LIMIT", "2.5")
		t.Setenv("CLAIMGUARD_POLICY_GRACE_PERIOD", "48h")
		t.Setenv("CLAIMGUARD_SWEEP_ENABLED", "false")
		t.Setenv("CLAIMGUARD_SWEEP_TENANTS", "acme, globex")
		t.Setenv("CLAIMGUARD_EVENTBUS_TYPE", "amqp")

		cfg, err := loadConfig(viper.New())
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Server.RateLimit != 2.5 {
			t.Errorf("expected rate limit 2.5, got %v", cfg.Server.RateLimit)
		}
		if cfg.Policy.GracePeriod != 48*time.Hour {
			t.Errorf("expected 48h grace period, got %v", cfg.Policy.GracePeriod)
		}
		if cfg.Sweep.Enabled {
			t.Error("expected sweep disabled")
		}
		if len(cfg.Sweep.Tenants) != 2 || cfg.Sweep.Tenants[0] != "acme" || cfg.Sweep.Tenants[1] != "globex" {
			t.Errorf("unexpected tenants: %v", cfg.Sweep.Tenants)
		}
		if cfg.EventBus.Type != "amqp" {
			t.Errorf("expected amqp bus, got %s", cfg.EventBus.Type)
		}
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "claimguard.yaml")
		doc := "server:\n  port: 7070\nrisk:\n  claim_weight: 0.5\nsweep:\n  tenants:\n    - north\n"
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		cfgFile = path
		t.Cleanup(func() { cfgFile = "" })

		cfg, err := loadConfig(viper.New())
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Errorf("expected port 7070, got %d", cfg.Server.Port)
		}
		if cfg.Risk.ClaimWeight != 0.5 {
			t.Errorf("expected claim weight 0.5, got %v", cfg.Risk.ClaimWeight)
		}
		if len(cfg.Sweep.Tenants) != 1 || cfg.Sweep.Tenants[0] != "north" {
			t.Errorf("unexpected tenants: %v", cfg.Sweep.Tenants)
		}
	})

	t.Run("MissingConfigFile", func(t *testing.T) {
		cfgFile = filepath.Join(t.TempDir(), "absent.yaml")
		t.Cleanup(func() { cfgFile = "" })
		if _, err := loadConfig(viper.New()); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})
}

func TestBuildRules(t *testing.T) {
	t.Run("DefaultsOnly", func(t *testing.T) {
		rules, err := buildRules(domain.RiskConfig{MaxWorkers: 2})
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if rules.RulesCount() == 0 {
			t.Error("expected default rules")
		}
	})

	t.Run("RuleFile", func(t *testing.T) {
		base, err := buildRules(domain.RiskConfig{MaxWorkers: 2})
		if err != nil {
			t.Fatalf("build: %v", err)
		}

		path := filepath.Join(t.TempDir(), "rules.yaml")
		doc := "rules:\n  - name: large_reported_amount\n    expression: 'reported_amount > 100000.0 ? 90.0 : 0.0'\n    weight: 0.1\n    enabled: true\n"
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		rules, err := buildRules(domain.RiskConfig{MaxWorkers: 2, RulesPath: path})
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if rules.RulesCount() != base.RulesCount()+1 {
			t.Errorf("expected %d rules, got %d", base.RulesCount()+1, rules.RulesCount())
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := buildRules(domain.RiskConfig{RulesPath: filepath.Join(t.TempDir(), "none.yaml")}); err == nil {
			t.Fatal("expected error for missing rule file")
		}
	})
}

func TestCommands(t *testing.T) {
	t.Run("Version", func(t *testing.T) {
		var out bytes.Buffer
		root := newRootCmd()
		root.SetOut(&out)
		root.SetArgs([]string{"version"})
		if err := root.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if !strings.Contains(out.String(), "claimguard "+Version) {
			t.Errorf("unexpected output: %q", out.String())
		}
	})

	t.Run("Quote", func(t *testing.T) {
		cfgFile = ""
		var out bytes.Buffer
		root := newRootCmd()
		root.SetOut(&out)
		root.SetArgs([]string{"quote", "--value", "1000"})
		if err := root.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
		var quote domain.Quote
		if err := json.Unmarshal(out.Bytes(), &quote); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if quote.Premium <= 0 {
			t.Errorf("expected positive premium, got %v", quote.Premium)
		}
	})

	t.Run("QuoteUnknownTier", func(t *testing.T) {
		cfgFile = ""
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetArgs([]string{"quote", "--value", "1000", "--coverage", "Gold"})
		if err := root.Execute(); err == nil {
			t.Fatal("expected error for unknown tier")
		}
	})

	t.Run("SweepWithoutTenants", func(t *testing.T) {
		cfgFile = ""
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetArgs([]string{"sweep"})
		if err := root.Execute(); err == nil {
			t.Fatal("expected error without tenants")
		}
	})
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opensource-finance/claimguard/internal/coverage"
)

func newSweepCmd(v *viper.Viper) *cobra.Command {
	var (
		tenants []string
		at      string
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Renew or expire due policies once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			setupLogger(cfg.Logging)

			if len(tenants) == 0 {
				tenants = cfg.Sweep.Tenants
			}
			if len(tenants) == 0 {
				return fmt.Errorf("no tenants: pass --tenant or set CLAIMGUARD_SWEEP_TENANTS")
			}

			now := time.Now().UTC()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}

			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return printJSON(cmd.OutOrStdout(), sweepTenants(cmd.Context(), a, tenants, now))
		},
	}
	cmd.Flags().StringArrayVar(&tenants, "tenant", nil, "tenant to sweep (repeatable)")
	cmd.Flags().StringVar(&at, "at", "", "evaluation time in RFC3339 (default now)")
	return cmd
}

func newQuoteCmd(v *viper.Viper) *cobra.Command {
	var (
		value float64
		tier  string
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote the premium for a package value and coverage tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			catalog := coverage.Default()
			if cfg.Catalog.Path != "" {
				if catalog, err = coverage.LoadCatalog(cfg.Catalog.Path); err != nil {
					return err
				}
			}

			quote, err := catalog.Quote(value, tier)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), quote)
		},
	}
	cmd.Flags().Float64Var(&value, "value", 0, "declared package value")
	cmd.Flags().StringVar(&tier, "coverage", coverage.TierEstandar, "coverage tier")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opensource-finance/claimguard/internal/api"
	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/worker"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, notification worker and renewal scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			setupLogger(cfg.Logging)
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *domain.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting claimguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"tier", cfg.Tier,
	)

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	deliverer, err := worker.NewDeliverer(cfg.Notification)
	if err != nil {
		return fmt.Errorf("failed to initialize deliverer: %w", err)
	}
	notifications := worker.NewWorker(a.bus, deliverer)
	if err := notifications.Start(worker.Config{WorkerCount: cfg.Notification.WorkerCount}); err != nil {
		return fmt.Errorf("failed to start notification worker: %w", err)
	}
	slog.Info("notification worker started", "deliverer", cfg.Notification.Deliverer)

	scheduler, err := startSweeper(a, cfg.Sweep)
	if err != nil {
		_ = notifications.Stop()
		return err
	}

	srv := api.NewServer(cfg.Server, a.services, Version)
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("claimguard is ready", "host", cfg.Server.Host, "port", cfg.Server.Port)
	printBanner(cfg, Version)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serveErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if err := notifications.Stop(); err != nil {
		slog.Error("failed to stop notification worker", "error", err)
	}
	ws := notifications.GetStats()
	slog.Info("notification worker stopped", "delivered", ws.Delivered, "failed", ws.Failed)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("claimguard shutdown complete")
	return runErr
}

// startSweeper schedules the renewal sweep for the configured tenants.
// It returns nil when the sweep is disabled or has no tenants.
func startSweeper(a *app, cfg domain.SweepConfig) (*cron.Cron, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Tenants) == 0 {
		slog.Warn("renewal sweep enabled without tenants, scheduler not started")
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(cfg.Schedule, func() {
		sweepTenants(context.Background(), a, cfg.Tenants, a.services.Clock())
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Schedule, err)
	}
	c.Start()
	slog.Info("renewal sweep scheduled", "schedule", cfg.Schedule, "tenants", len(cfg.Tenants))
	return c, nil
}

// sweepTenants runs SweepPolicies for each tenant and returns the results by tenant.
func sweepTenants(ctx context.Context, a *app, tenants []string, now time.Time) map[string][]*domain.RenewalResult {
	out := make(map[string][]*domain.RenewalResult, len(tenants))
	for _, tenantID := range tenants {
		results, err := a.services.Policies.SweepPolicies(ctx, tenantID, now)
		if err != nil {
			slog.Error("renewal sweep finished with errors", "tenant_id", tenantID, "error", err)
		}
		if len(results) > 0 {
			a.services.Stats.Invalidate(ctx, tenantID)
		}
		slog.Info("renewal sweep complete", "tenant_id", tenantID, "changed", len(results))
		out[tenantID] = results
	}
	return out
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ClaimGuard")
	fmt.Println("  Insurance claims processing and fraud detection")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /coverage/tiers             - List coverage tiers")
	fmt.Println("    POST /coverage/quote             - Quote a premium")
	fmt.Println("    POST /policies                   - Issue a policy")
	fmt.Println("    POST /policies/{id}/renew        - Renew or expire a policy")
	fmt.Println("    POST /policies/sweep             - Run the renewal sweep")
	fmt.Println("    POST /claims                     - File a claim")
	fmt.Println("    POST /claims/{id}/advance        - Move a claim to a new status")
	fmt.Println("    POST /claims/{id}/reassess       - Re-run fraud detection")
	fmt.Println("    GET  /fraud/alerts               - List fraud alerts")
	fmt.Println("    GET  /customers/{id}/risk        - Customer risk assessment")
	fmt.Println("    GET  /stats                      - Portfolio statistics")
	fmt.Println("    GET  /health                     - Health check")
	fmt.Println()
}

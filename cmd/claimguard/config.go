package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// loadConfig builds the configuration from tier defaults, an optional config
// file, a .env file and CLAIMGUARD_* environment variables, in that order.
func loadConfig(v *viper.Viper) (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v.SetEnvPrefix("CLAIMGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := domain.DefaultConfig()
	switch domain.Tier(strings.ToLower(v.GetString("tier"))) {
	case "", domain.TierCommunity:
	case domain.TierPro:
		cfg = domain.ProConfig()
	default:
		return nil, domain.NewInvalidTierError(v.GetString("tier"))
	}

	// Server
	setString(v, "server.host", &cfg.Server.Host)
	setInt(v, "server.port", &cfg.Server.Port)
	setInt(v, "server.read_timeout", &cfg.Server.ReadTimeout)
	setInt(v, "server.write_timeout", &cfg.Server.WriteTimeout)
	setFloat(v, "server.rate_limit", &cfg.Server.RateLimit)
	setInt(v, "server.rate_burst", &cfg.Server.RateBurst)
	setDuration(v, "server.idempotency_ttl", &cfg.Server.IdempotencyTTL)

	// Repository
	setString(v, "repository.driver", &cfg.Repository.Driver)
	setString(v, "repository.sqlite_path", &cfg.Repository.SQLitePath)
	setString(v, "repository.postgres_host", &cfg.Repository.PostgresHost)
	setInt(v, "repository.postgres_port", &cfg.Repository.PostgresPort)
	setString(v, "repository.postgres_user", &cfg.Repository.PostgresUser)
	setString(v, "repository.postgres_password", &cfg.Repository.PostgresPassword)
	setString(v, "repository.postgres_db", &cfg.Repository.PostgresDB)
	setString(v, "repository.postgres_sslmode", &cfg.Repository.PostgresSSLMode)

	// Cache
	setString(v, "cache.type", &cfg.Cache.Type)
	setInt(v, "cache.local_max_size", &cfg.Cache.LocalMaxSize)
	setDuration(v, "cache.local_ttl", &cfg.Cache.LocalTTL)
	setString(v, "cache.redis_addr", &cfg.Cache.RedisAddr)
	setString(v, "cache.redis_password", &cfg.Cache.RedisPassword)
	setInt(v, "cache.redis_db", &cfg.Cache.RedisDB)
	setBool(v, "cache.two_phase", &cfg.Cache.EnableTwoPhase)

	// Event bus
	setString(v, "eventbus.type", &cfg.EventBus.Type)
	setInt(v, "eventbus.buffer_size", &cfg.EventBus.ChannelBufferSize)
	setString(v, "eventbus.nats_url", &cfg.EventBus.NATSUrl)
	setString(v, "eventbus.nats_token", &cfg.EventBus.NATSToken)
	setString(v, "eventbus.amqp_url", &cfg.EventBus.AMQPUrl)
	setString(v, "eventbus.amqp_exchange", &cfg.EventBus.AMQPExchange)

	// Document storage
	setString(v, "storage.type", &cfg.Storage.Type)
	setString(v, "storage.directory", &cfg.Storage.Directory)
	setString(v, "storage.base_url", &cfg.Storage.BaseURL)
	setString(v, "storage.minio_endpoint", &cfg.Storage.MinIOEndpoint)
	setString(v, "storage.minio_access_key", &cfg.Storage.MinIOAccessKey)
	setString(v, "storage.minio_secret_key", &cfg.Storage.MinIOSecretKey)
	setString(v, "storage.minio_bucket", &cfg.Storage.MinIOBucket)
	setBool(v, "storage.minio_use_ssl", &cfg.Storage.MinIOUseSSL)

	// Notifications
	setString(v, "notification.deliverer", &cfg.Notification.Deliverer)
	setInt(v, "notification.worker_count", &cfg.Notification.WorkerCount)
	setString(v, "notification.smtp_host", &cfg.Notification.SMTPHost)
	setInt(v, "notification.smtp_port", &cfg.Notification.SMTPPort)
	setString(v, "notification.smtp_username", &cfg.Notification.SMTPUsername)
	setString(v, "notification.smtp_password", &cfg.Notification.SMTPPassword)
	setString(v, "notification.from", &cfg.Notification.From)
	setList(v, "notification.recipients", &cfg.Notification.Recipients)

	// Engines
	setString(v, "catalog.path", &cfg.Catalog.Path)
	setDuration(v, "policy.renewal_window", &cfg.Policy.RenewalWindow)
	setDuration(v, "policy.grace_period", &cfg.Policy.GracePeriod)
	setInt(v, "risk.max_workers", &cfg.Risk.MaxWorkers)
	setDuration(v, "risk.assessment_ttl", &cfg.Risk.AssessmentTTL)
	setFloat(v, "risk.claim_weight", &cfg.Risk.ClaimWeight)
	setString(v, "risk.rules_path", &cfg.Risk.RulesPath)
	setInt(v, "fraud.max_workers", &cfg.Fraud.MaxWorkers)
	setInt(v, "fraud.multiple_claims_threshold", &cfg.Fraud.MultipleClaimsThreshold)
	setDuration(v, "fraud.multiple_claims_window", &cfg.Fraud.MultipleClaimsWindow)
	setFloat(v, "fraud.pattern_similarity", &cfg.Fraud.PatternSimilarity)
	setFloat(v, "fraud.unusual_amount_multiple", &cfg.Fraud.UnusualAmountMultiple)
	setDuration(v, "fraud.early_claim_window", &cfg.Fraud.EarlyClaimWindow)
	setDuration(v, "stats.cache_ttl", &cfg.Stats.CacheTTL)

	// Sweep scheduler
	setBool(v, "sweep.enabled", &cfg.Sweep.Enabled)
	setString(v, "sweep.schedule", &cfg.Sweep.Schedule)
	setList(v, "sweep.tenants", &cfg.Sweep.Tenants)

	// Observability
	setString(v, "logging.level", &cfg.Logging.Level)
	setString(v, "logging.format", &cfg.Logging.Format)
	setBool(v, "tracing.enabled", &cfg.Tracing.Enabled)
	setString(v, "tracing.service_name", &cfg.Tracing.ServiceName)

	return cfg, nil
}

func bindEnv(v *viper.Viper, key string) {
	_ = v.BindEnv(key)
}

func setString(v *viper.Viper, key string, dst *string) {
	bindEnv(v, key)
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	bindEnv(v, key)
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setFloat(v *viper.Viper, key string, dst *float64) {
	bindEnv(v, key)
	if v.IsSet(key) {
		*dst = v.GetFloat64(key)
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	bindEnv(v, key)
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

func setDuration(v *viper.Viper, key string, dst *time.Duration) {
	bindEnv(v, key)
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
	}
}

// setList accepts a YAML list or a comma separated environment value.
func setList(v *viper.Viper, key string, dst *[]string) {
	bindEnv(v, key)
	if !v.IsSet(key) {
		return
	}
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	*dst = out
}

// setupLogger installs the default slog logger.
func setupLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

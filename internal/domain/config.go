package domain

import "time"

// Config holds the complete ClaimGuard configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which infrastructure backends are wired
	Tier Tier `json:"tier"`

	// Component configurations
	Repository   RepositoryConfig   `json:"repository"`
	Cache        CacheConfig        `json:"cache"`
	EventBus     EventBusConfig     `json:"eventBus"`
	Storage      StorageConfig      `json:"storage"`
	Notification NotificationConfig `json:"notification"`

	// Engine settings
	Catalog CatalogConfig `json:"catalog"`
	Policy  PolicyConfig  `json:"policy"`
	Claims  ClaimsConfig  `json:"claims"`
	Risk    RiskConfig    `json:"risk"`
	Fraud   FraudConfig   `json:"fraud"`
	Stats   StatsConfig   `json:"stats"`
	Sweep   SweepConfig   `json:"sweep"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds

	// Per-tenant request rate limit; zero disables limiting
	RateLimit      float64       `json:"rateLimit"`
	RateBurst      int           `json:"rateBurst"`
	IdempotencyTTL time.Duration `json:"idempotencyTtl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// CatalogConfig points at an optional YAML coverage catalog.
type CatalogConfig struct {
	Path string `json:"path"`
}

// PolicyConfig controls renewal behaviour.
type PolicyConfig struct {
	RenewalWindow  time.Duration `json:"renewalWindow"`
	GracePeriod    time.Duration `json:"gracePeriod"`
	StorageTimeout time.Duration `json:"storageTimeout"`
}

// ClaimsConfig controls the claim lifecycle engine.
type ClaimsConfig struct {
	StorageTimeout time.Duration `json:"storageTimeout"`
}

// RiskConfig controls risk scoring.
type RiskConfig struct {
	MaxWorkers     int           `json:"maxWorkers"`
	AssessmentTTL  time.Duration `json:"assessmentTtl"`
	ClaimWeight    float64       `json:"claimWeight"` // heuristic share when blending with the customer score
	StorageTimeout time.Duration `json:"storageTimeout"`
	RulesPath      string        `json:"rulesPath"`
}

// FraudConfig holds detector thresholds.
type FraudConfig struct {
	MaxWorkers int `json:"maxWorkers"`

	MultipleClaimsThreshold int           `json:"multipleClaimsThreshold"`
	MultipleClaimsWindow    time.Duration `json:"multipleClaimsWindow"`

	PatternWindow     time.Duration `json:"patternWindow"`
	PatternSimilarity float64       `json:"patternSimilarity"`
	PatternMinMatches int           `json:"patternMinMatches"`

	UnusualAmountMultiple float64 `json:"unusualAmountMultiple"`
	UnusualAmountHigh     float64 `json:"unusualAmountHigh"`
	UnusualAmountHistory  int     `json:"unusualAmountHistory"`

	EarlyClaimWindow time.Duration `json:"earlyClaimWindow"`
	EarlyClaimHigh   time.Duration `json:"earlyClaimHigh"`

	StorageTimeout time.Duration `json:"storageTimeout"`
}

// StatsConfig controls the statistics cache.
type StatsConfig struct {
	CacheTTL       time.Duration `json:"cacheTtl"`
	StorageTimeout time.Duration `json:"storageTimeout"`
}

// SweepConfig schedules the policy renewal sweep in serve mode.
type SweepConfig struct {
	Enabled  bool     `json:"enabled"`
	Schedule string   `json:"schedule"` // cron expression
	Tenants  []string `json:"tenants"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, channels and local disk
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, NATS, Redis and MinIO
	TierPro Tier = "pro"
)

// DefaultStorageTimeout bounds every repository call made by the engines.
const DefaultStorageTimeout = 5 * time.Second

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   30,
			RateLimit:      50,
			RateBurst:      100,
			IdempotencyTTL: 10 * time.Minute,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./claimguard.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Storage: StorageConfig{
			Type:      "disk",
			Directory: "./documents",
			BaseURL:   "/documents",
		},
		Notification: NotificationConfig{
			Deliverer:   "log",
			WorkerCount: 2,
			SMTPPort:    587,
			From:        "claims@claimguard.local",
		},
		Policy: PolicyConfig{
			RenewalWindow:  30 * 24 * time.Hour,
			GracePeriod:    7 * 24 * time.Hour,
			StorageTimeout: DefaultStorageTimeout,
		},
		Claims: ClaimsConfig{
			StorageTimeout: DefaultStorageTimeout,
		},
		Risk: RiskConfig{
			MaxWorkers:     4,
			AssessmentTTL:  15 * time.Minute,
			ClaimWeight:    0.7,
			StorageTimeout: DefaultStorageTimeout,
		},
		Fraud:   DefaultFraudConfig(),
		Stats:   StatsConfig{CacheTTL: 30 * time.Second, StorageTimeout: DefaultStorageTimeout},
		Sweep:   SweepConfig{Enabled: true, Schedule: "@hourly"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{Enabled: false, ServiceName: "claimguard"},
	}
}

// DefaultFraudConfig returns the standard detector thresholds.
func DefaultFraudConfig() FraudConfig {
	return FraudConfig{
		MaxWorkers:              4,
		MultipleClaimsThreshold: 3,
		MultipleClaimsWindow:    183 * 24 * time.Hour,
		PatternWindow:           90 * 24 * time.Hour,
		PatternSimilarity:       0.5,
		PatternMinMatches:       2,
		UnusualAmountMultiple:   3,
		UnusualAmountHigh:       5,
		UnusualAmountHistory:    2,
		EarlyClaimWindow:        15 * 24 * time.Hour,
		EarlyClaimHigh:          3 * 24 * time.Hour,
		StorageTimeout:          DefaultStorageTimeout,
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "claimguard",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Storage = StorageConfig{
		Type:          "minio",
		MinIOEndpoint: "localhost:9000",
		MinIOBucket:   "claimguard-documents",
	}
	cfg.Notification.Deliverer = "smtp"
	cfg.Tracing.Enabled = true
	return cfg
}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Outbox       OutboxConfig
	Inventory    InventoryConfig
	Kafka        KafkaConfig
	Cron         CronConfig
	Webhooks     WebhooksConfig
	API          APIConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("%s is required when kafka is enabled", EnvKafkaBrokers)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RETAILOPS_APP_ENV" required:"true"`
	Port         string `envconfig:"RETAILOPS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"RETAILOPS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RETAILOPS_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"RETAILOPS_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"RETAILOPS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RETAILOPS_DB_DSN"`
	Driver string `envconfig:"RETAILOPS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RETAILOPS_DB_HOST"`
	LegacyPort     int    `envconfig:"RETAILOPS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RETAILOPS_DB_USER"`
	LegacyPassword string `envconfig:"RETAILOPS_DB_PASSWORD"`
	LegacyName     string `envconfig:"RETAILOPS_DB_NAME"`
	LegacySSLMode  string `envconfig:"RETAILOPS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RETAILOPS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RETAILOPS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RETAILOPS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RETAILOPS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	LockTimeout     time.Duration `envconfig:"RETAILOPS_DB_LOCK_TIMEOUT" default:"3s"`
	SlowQuery       time.Duration `envconfig:"RETAILOPS_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RETAILOPS_REDIS_URL"`
	Address      string        `envconfig:"RETAILOPS_REDIS_ADDR"`
	Password     string        `envconfig:"RETAILOPS_REDIS_PASSWORD"`
	DB           int           `envconfig:"RETAILOPS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RETAILOPS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RETAILOPS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RETAILOPS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RETAILOPS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RETAILOPS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RETAILOPS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RETAILOPS_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"RETAILOPS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"RETAILOPS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"RETAILOPS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"RETAILOPS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Mode           string `envconfig:"RETAILOPS_OUTBOX_MODE" default:"dispatch"`
}

// UsesKafka reports whether outbox rows are handed to the broker instead of in-process handlers.
func (o OutboxConfig) UsesKafka() bool {
	return strings.EqualFold(strings.TrimSpace(o.Mode), OutboxModeKafka)
}

func (o OutboxConfig) validate() error {
	mode := strings.ToLower(strings.TrimSpace(o.Mode))
	if mode == "" || mode == OutboxModeDispatch || mode == OutboxModeKafka {
		return nil
	}
	return fmt.Errorf("%s must be %q or %q, got %q", EnvOutboxMode, OutboxModeDispatch, OutboxModeKafka, o.Mode)
}

// InventoryConfig controls the stock ledger policy and handler retries.
type InventoryConfig struct {
	AllowBackorder bool          `envconfig:"RETAILOPS_INVENTORY_ALLOW_BACKORDER" default:"false"`
	MaxAttempts    int           `envconfig:"RETAILOPS_INVENTORY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"RETAILOPS_INVENTORY_RETRY_BASE_DELAY" default:"50ms"`
	RetryMaxDelay  time.Duration `envconfig:"RETAILOPS_INVENTORY_RETRY_MAX_DELAY" default:"2s"`
}

type KafkaConfig struct {
	Enabled      bool          `envconfig:"RETAILOPS_KAFKA_ENABLED" default:"false"`
	Brokers      []string      `envconfig:"RETAILOPS_KAFKA_BROKERS"`
	Topic        string        `envconfig:"RETAILOPS_KAFKA_TOPIC" default:"retailops.inventory-events"`
	GroupID      string        `envconfig:"RETAILOPS_KAFKA_GROUP_ID" default:"inventory-worker"`
	BatchTimeout time.Duration `envconfig:"RETAILOPS_KAFKA_BATCH_TIMEOUT" default:"10ms"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"RETAILOPS_CRON_INTERVAL" default:"1h"`
	LockTTL             time.Duration `envconfig:"RETAILOPS_CRON_LOCK_TTL" default:"55m"`
	OutboxRetentionDays int           `envconfig:"RETAILOPS_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"RETAILOPS_CRON_DLQ_RETENTION_DAYS" default:"90"`
}

type WebhooksConfig struct {
	ShopifySecret   string        `envconfig:"RETAILOPS_SHOPIFY_WEBHOOK_SECRET"`
	DefaultLocation string        `envconfig:"RETAILOPS_WEBHOOK_DEFAULT_LOCATION"`
	DedupeTTL       time.Duration `envconfig:"RETAILOPS_WEBHOOK_DEDUPE_TTL" default:"72h"`
	RateLimitWindow time.Duration `envconfig:"RETAILOPS_WEBHOOK_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP  int           `envconfig:"RETAILOPS_WEBHOOK_RATE_LIMIT_PER_IP" default:"600"`
}

// APIConfig holds HTTP surface settings for cmd/api.
type APIConfig struct {
	CORSOrigins     []string      `envconfig:"RETAILOPS_API_CORS_ORIGINS" default:"http://localhost:3000"`
	ReadTimeout     time.Duration `envconfig:"RETAILOPS_API_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"RETAILOPS_API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"RETAILOPS_API_SHUTDOWN_TIMEOUT" default:"10s"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:retailops.db?cache=shared&_busy_timeout=5000"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

package config

const EnvPrefix = "RETAILOPS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	OutboxModeDispatch = "dispatch"
	OutboxModeKafka    = "kafka"
)

const (
	EnvAppEnv         = "RETAILOPS_APP_ENV"
	EnvPort           = "RETAILOPS_APP_PORT"
	EnvLogLevel       = "RETAILOPS_LOG_LEVEL"
	EnvDBDSN          = "RETAILOPS_DB_DSN"
	EnvDBHost         = "RETAILOPS_DB_HOST"
	EnvDBUser         = "RETAILOPS_DB_USER"
	EnvDBName         = "RETAILOPS_DB_NAME"
	EnvDBPassword     = "RETAILOPS_DB_PASSWORD"
	EnvUseSQLite      = "RETAILOPS_USE_SQLITE"
	EnvRedisURL       = "RETAILOPS_REDIS_URL"
	EnvOutboxMode     = "RETAILOPS_OUTBOX_MODE"
	EnvAllowBackorder = "RETAILOPS_INVENTORY_ALLOW_BACKORDER"
	EnvKafkaEnabled   = "RETAILOPS_KAFKA_ENABLED"
	EnvKafkaBrokers   = "RETAILOPS_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

const (
	EnvPrefix = "BILLING"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "BILLING_APP_ENV"
	EnvPort     = "BILLING_APP_PORT"
	EnvLogLevel = "BILLING_LOG_LEVEL"

	EnvDBDSN  = "BILLING_DB_DSN"
	EnvDBHost = "BILLING_DB_HOST"
	EnvDBUser = "BILLING_DB_USER"
	EnvDBName = "BILLING_DB_NAME"

	EnvRedisURL  = "BILLING_REDIS_URL"
	EnvUseSQLite = "BILLING_USE_SQLITE"

	EnvGCPProjectID         = "BILLING_GCP_PROJECT_ID"
	EnvPubSubBillingTopic   = "BILLING_PUBSUB_BILLING_TOPIC"
	EnvPubSubProjectionSub  = "BILLING_PUBSUB_PROJECTION_SUBSCRIPTION"
	EnvSquareAccessToken    = "BILLING_SQUARE_ACCESS_TOKEN"
	EnvSquareLocationID     = "BILLING_SQUARE_LOCATION_ID"
	EnvFarePerMile          = "BILLING_FARE_PER_MILE"
	EnvFareDeadMiles        = "BILLING_FARE_DEAD_MILES"
	EnvBillingTimeZone      = "BILLING_TIME_ZONE"
	EnvBillableStatuses     = "BILLING_BILLABLE_STATUSES"
	EnvCORSAllowedOrigins   = "BILLING_CORS_ALLOWED_ORIGINS"
	EnvCronInterval         = "BILLING_CRON_INTERVAL"
	EnvHTTPIdempotencyTTL   = "BILLING_HTTP_IDEMPOTENCY_TTL"
	EnvOutboxIdempotencyTTL = "BILLING_EVENTING_IDEMPOTENCY_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/jasskhinda/facility-billing/pkg/enums"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Square       SquareConfig
	Fare         FareConfig
	Billing      BillingConfig
	CORS         CORSConfig
	Cron         CronConfig
	Metrics      MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	} else if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Billing.Location(); err != nil {
		return nil, err
	}
	if _, err := cfg.Billing.TripStatuses(); err != nil {
		return nil, err
	}
	// payment submissions hold the invoice lock across the square call
	if cfg.Billing.LockTTL <= cfg.Square.Timeout {
		return nil, fmt.Errorf("BILLING_INVOICE_LOCK_TTL (%s) must exceed BILLING_SQUARE_TIMEOUT (%s)", cfg.Billing.LockTTL, cfg.Square.Timeout)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BILLING_APP_ENV" required:"true"`
	Port         string `envconfig:"BILLING_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BILLING_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BILLING_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BILLING_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BILLING_DB_DSN"`
	Driver string `envconfig:"BILLING_DB_DRIVER" default:"postgres"`

	SQLitePath string `envconfig:"BILLING_DB_SQLITE_PATH" default:"file:billing.db?cache=shared"`

	LegacyHost     string `envconfig:"BILLING_DB_HOST"`
	LegacyPort     int    `envconfig:"BILLING_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BILLING_DB_USER"`
	LegacyPassword string `envconfig:"BILLING_DB_PASSWORD"`
	LegacyName     string `envconfig:"BILLING_DB_NAME"`
	LegacySSLMode  string `envconfig:"BILLING_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BILLING_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BILLING_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BILLING_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BILLING_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery is the threshold above which statements are logged at warn.
	SlowQuery time.Duration `envconfig:"BILLING_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BILLING_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BILLING_REDIS_ADDR"`
	Password     string        `envconfig:"BILLING_REDIS_PASSWORD"`
	DB           int           `envconfig:"BILLING_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BILLING_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BILLING_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BILLING_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BILLING_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BILLING_REDIS_WRITE_TIMEOUT" default:"5s"`
	// KeyPrefix namespaces every key so environments can share one instance.
	KeyPrefix string `envconfig:"BILLING_REDIS_KEY_PREFIX" default:"fb"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BILLING_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BILLING_AUTO_MIGRATE" default:"false"`
	AllowACH    bool `envconfig:"BILLING_FEATURE_ALLOW_ACH" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"BILLING_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	HTTPIdempotencyTTL   time.Duration `envconfig:"BILLING_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BILLING_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BILLING_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BILLING_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BillingTopic           string `envconfig:"BILLING_PUBSUB_BILLING_TOPIC" default:"fb-billing-events"`
	ProjectionSubscription string `envconfig:"BILLING_PUBSUB_PROJECTION_SUBSCRIPTION" default:"fb-invoice-projection"`
	MaxOutstanding         int    `envconfig:"BILLING_PUBSUB_MAX_OUTSTANDING" default:"100"`
	ReceiveGoroutines      int    `envconfig:"BILLING_PUBSUB_RECEIVE_GOROUTINES" default:"2"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BILLING_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BILLING_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BILLING_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type SquareConfig struct {
	AccessToken   string        `envconfig:"BILLING_SQUARE_ACCESS_TOKEN"`
	Env           string        `envconfig:"BILLING_SQUARE_ENV" default:"sandbox"`
	LocationID    string        `envconfig:"BILLING_SQUARE_LOCATION_ID"`
	WebhookSecret string        `envconfig:"BILLING_SQUARE_WEBHOOK_SECRET"`
	WebhookURL    string        `envconfig:"BILLING_SQUARE_WEBHOOK_URL"`
	Timeout       time.Duration `envconfig:"BILLING_SQUARE_TIMEOUT" default:"15s"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// FareConfig carries the published rate card. Amounts are parsed as decimals
// so rates never pass through float arithmetic.
type FareConfig struct {
	BaseOneWay             decimal.Decimal    `envconfig:"BILLING_FARE_BASE_ONE_WAY" default:"50"`
	BaseRoundTrip          decimal.Decimal    `envconfig:"BILLING_FARE_BASE_ROUND_TRIP" default:"100"`
	BariatricOneWay        decimal.Decimal    `envconfig:"BILLING_FARE_BARIATRIC_ONE_WAY" default:"150"`
	BariatricRoundTrip     decimal.Decimal    `envconfig:"BILLING_FARE_BARIATRIC_ROUND_TRIP" default:"300"`
	PerMile                decimal.Decimal    `envconfig:"BILLING_FARE_PER_MILE" default:"3"`
	IndividualDiscountPct  decimal.Decimal    `envconfig:"BILLING_FARE_INDIVIDUAL_DISCOUNT_PCT" default:"10"`
	WeekendPremium         decimal.Decimal    `envconfig:"BILLING_FARE_WEEKEND_PREMIUM" default:"40"`
	OffHoursPremium        decimal.Decimal    `envconfig:"BILLING_FARE_OFF_HOURS_PREMIUM" default:"40"`
	WheelchairRentalFee    decimal.Decimal    `envconfig:"BILLING_FARE_WHEELCHAIR_RENTAL_FEE" default:"25"`
	HolidaySurcharge       decimal.Decimal    `envconfig:"BILLING_FARE_HOLIDAY_SURCHARGE" default:"100"`
	DeadMileRate           decimal.Decimal    `envconfig:"BILLING_FARE_DEAD_MILE_RATE" default:"4"`
	AdditionalPassengerFee decimal.Decimal    `envconfig:"BILLING_FARE_ADDITIONAL_PASSENGER_FEE" default:"0"`
	PrimaryCounty          string             `envconfig:"BILLING_FARE_PRIMARY_COUNTY" default:"franklin"`
	DeadMiles              map[string]float64 `envconfig:"BILLING_FARE_DEAD_MILES" default:"delaware:10,licking:12,fairfield:15,madison:14,pickaway:16,union:18"`
	HolidayExtraDates      []string           `envconfig:"BILLING_FARE_HOLIDAY_EXTRA_DATES"`
	ServiceAreaPath        string             `envconfig:"BILLING_FARE_SERVICE_AREA_PATH"`
}

type BillingConfig struct {
	BillableStatuses []string      `envconfig:"BILLING_BILLABLE_STATUSES" default:"completed"`
	TimeZone         string        `envconfig:"BILLING_TIME_ZONE" default:"America/New_York"`
	LockTTL          time.Duration `envconfig:"BILLING_INVOICE_LOCK_TTL" default:"30s"`
	ReconcileWindow  int           `envconfig:"BILLING_RECONCILE_WINDOW_MONTHS" default:"2"`
	IssuerName       string        `envconfig:"BILLING_INVOICE_ISSUER"`
}

// TripStatuses parses the statuses that make a trip billable.
func (b BillingConfig) TripStatuses() ([]enums.TripStatus, error) {
	statuses := make([]enums.TripStatus, 0, len(b.BillableStatuses))
	for _, raw := range b.BillableStatuses {
		status, err := enums.ParseTripStatus(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid BILLING_BILLABLE_STATUSES: %w", err)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Location resolves the configured billing time zone.
func (b BillingConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(b.TimeZone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", EnvBillingTimeZone, name, err)
	}
	return loc, nil
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"BILLING_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// MetricsConfig controls the scrape listener the background workers open.
// The api serves /metrics on its own router and ignores it.
type MetricsConfig struct {
	Addr string `envconfig:"BILLING_METRICS_ADDR" default:":9090"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"BILLING_CRON_INTERVAL" default:"15m"`
	ReconcileLookback   time.Duration `envconfig:"BILLING_CRON_RECONCILE_LOOKBACK" default:"1h"`
	OutboxRetention     time.Duration `envconfig:"BILLING_CRON_OUTBOX_RETENTION" default:"720h"`
	DLQRetention        time.Duration `envconfig:"BILLING_CRON_DLQ_RETENTION" default:"2160h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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

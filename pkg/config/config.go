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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Storefront   StorefrontConfig
	Sync         SyncConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Storefront.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CATALOGSYNC_APP_ENV" required:"true"`
	Port         string `envconfig:"CATALOGSYNC_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CATALOGSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CATALOGSYNC_LOG_WARN_STACK" default:"false"`
	// LogFormat is "json" or "console".
	LogFormat string `envconfig:"CATALOGSYNC_LOG_FORMAT" default:"json"`
	// CORSOrigins lists the admin console origins allowed to call the API.
	CORSOrigins []string `envconfig:"CATALOGSYNC_CORS_ORIGINS" default:"http://localhost:3000"`
	// MetricsAddr is where worker binaries serve /metrics. Empty disables it.
	MetricsAddr string `envconfig:"CATALOGSYNC_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CATALOGSYNC_SERVICE_KIND" default:"api"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBConfig struct {
	DSN    string `envconfig:"CATALOGSYNC_DB_DSN"`
	Driver string `envconfig:"CATALOGSYNC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CATALOGSYNC_DB_HOST"`
	LegacyPort     int    `envconfig:"CATALOGSYNC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CATALOGSYNC_DB_USER"`
	LegacyPassword string `envconfig:"CATALOGSYNC_DB_PASSWORD"`
	LegacyName     string `envconfig:"CATALOGSYNC_DB_NAME"`
	LegacySSLMode  string `envconfig:"CATALOGSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CATALOGSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CATALOGSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CATALOGSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CATALOGSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CATALOGSYNC_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CATALOGSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"CATALOGSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"CATALOGSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CATALOGSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CATALOGSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CATALOGSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CATALOGSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CATALOGSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig guards the admin API. Tokens are minted by the admin console.
type JWTConfig struct {
	Secret            string `envconfig:"CATALOGSYNC_JWT_SECRET"`
	Issuer            string `envconfig:"CATALOGSYNC_JWT_ISSUER" default:"catalogsync"`
	ExpirationMinutes int    `envconfig:"CATALOGSYNC_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CATALOGSYNC_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CATALOGSYNC_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"CATALOGSYNC_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CATALOGSYNC_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CATALOGSYNC_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CATALOGSYNC_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	CatalogTopic             string `envconfig:"CATALOGSYNC_PUBSUB_CATALOG_TOPIC" default:"catalog-events"`
	PriceHistorySubscription string `envconfig:"CATALOGSYNC_PUBSUB_PRICE_HISTORY_SUBSCRIPTION" default:"catalog-events-price-history"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"CATALOGSYNC_BIGQUERY_DATASET" default:"catalog"`
	PriceHistoryTable string `envconfig:"CATALOGSYNC_BIGQUERY_PRICE_HISTORY_TABLE" default:"price_history"`
	// APIReads serves price history from the admin API.
	APIReads bool `envconfig:"CATALOGSYNC_BIGQUERY_API_READS" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CATALOGSYNC_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CATALOGSYNC_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CATALOGSYNC_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"CATALOGSYNC_OUTBOX_RETENTION_DAYS" default:"14"`
}

// StorefrontConfig describes the upstream catalog API and how politely to call it.
type StorefrontConfig struct {
	BaseURL        string        `envconfig:"CATALOGSYNC_STOREFRONT_BASE_URL" default:"https://www.costco.co.kr"`
	Site           string        `envconfig:"CATALOGSYNC_STOREFRONT_SITE" default:"korea"`
	UserAgent      string        `envconfig:"CATALOGSYNC_STOREFRONT_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"`
	Cookie         string        `envconfig:"CATALOGSYNC_STOREFRONT_COOKIE"`
	AcceptLanguage string        `envconfig:"CATALOGSYNC_STOREFRONT_ACCEPT_LANGUAGE" default:"ko-KR,ko;q=0.9,en-US;q=0.8"`
	Timeout        time.Duration `envconfig:"CATALOGSYNC_STOREFRONT_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"CATALOGSYNC_STOREFRONT_MAX_RETRIES" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"CATALOGSYNC_STOREFRONT_RETRY_BASE_DELAY" default:"500ms"`
	RetryMaxDelay  time.Duration `envconfig:"CATALOGSYNC_STOREFRONT_RETRY_MAX_DELAY" default:"10s"`
	PageSize       int           `envconfig:"CATALOGSYNC_STOREFRONT_PAGE_SIZE" default:"100"`
	PageDelay      time.Duration `envconfig:"CATALOGSYNC_STOREFRONT_PAGE_DELAY" default:"500ms"`
	MaxPages       int           `envconfig:"CATALOGSYNC_STOREFRONT_MAX_PAGES" default:"100"`
}

func (s StorefrontConfig) validate() error {
	u, err := url.Parse(strings.TrimSpace(s.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute url", EnvStorefrontBaseURL)
	}
	if s.MaxPages <= 0 {
		return fmt.Errorf("%s must be positive", EnvStorefrontMaxPages)
	}
	if s.PageDelay < 0 {
		return fmt.Errorf("%s must not be negative", EnvStorefrontPageDelay)
	}
	return nil
}

// SyncConfig tunes the reconciliation jobs.
type SyncConfig struct {
	TargetsFile      string        `envconfig:"CATALOGSYNC_SYNC_TARGETS_FILE"`
	TagBatchSize     int           `envconfig:"CATALOGSYNC_SYNC_TAG_BATCH_SIZE" default:"400"`
	ZeroPriceLimit   int           `envconfig:"CATALOGSYNC_SYNC_ZERO_PRICE_LIMIT" default:"50"`
	PendingReviewCap int           `envconfig:"CATALOGSYNC_SYNC_PENDING_REVIEW_CAP" default:"400"`
	StatusTTL        time.Duration `envconfig:"CATALOGSYNC_SYNC_STATUS_TTL" default:"72h"`
	PriceSyncEnabled bool          `envconfig:"CATALOGSYNC_SYNC_PRICE_PASS_ENABLED" default:"true"`
	// CronInterval is the worker tick; each job below runs once its own
	// cadence has elapsed.
	CronInterval   time.Duration `envconfig:"CATALOGSYNC_SYNC_CRON_INTERVAL" default:"15m"`
	FullSyncEvery  time.Duration `envconfig:"CATALOGSYNC_SYNC_FULL_EVERY" default:"24h"`
	PriceSyncEvery time.Duration `envconfig:"CATALOGSYNC_SYNC_PRICE_EVERY" default:"4h"`
	AuditEvery     time.Duration `envconfig:"CATALOGSYNC_SYNC_AUDIT_EVERY" default:"24h"`
	RetentionEvery time.Duration `envconfig:"CATALOGSYNC_OUTBOX_RETENTION_EVERY" default:"24h"`
	// Manual triggers through the admin API, per operator and route.
	TriggerLimit  int           `envconfig:"CATALOGSYNC_SYNC_TRIGGER_LIMIT" default:"6"`
	TriggerWindow time.Duration `envconfig:"CATALOGSYNC_SYNC_TRIGGER_WINDOW" default:"1h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Driver == DriverSQLite {
		db.DSN = "file:catalogsync.db?cache=shared"
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

package config

const (
	EnvPrefix = "CATALOGSYNC"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "CATALOGSYNC_APP_ENV"
	EnvPort     = "CATALOGSYNC_APP_PORT"
	EnvLogLevel = "CATALOGSYNC_LOG_LEVEL"

	EnvDBDSN  = "CATALOGSYNC_DB_DSN"
	EnvDBHost = "CATALOGSYNC_DB_HOST"
	EnvDBUser = "CATALOGSYNC_DB_USER"
	EnvDBName = "CATALOGSYNC_DB_NAME"

	EnvRedisURL = "CATALOGSYNC_REDIS_URL"

	EnvJWTSecret  = "CATALOGSYNC_JWT_SECRET"
	EnvJWTIssuer  = "CATALOGSYNC_JWT_ISSUER"
	EnvJWTExpMins = "CATALOGSYNC_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "CATALOGSYNC_GCP_PROJECT_ID"

	EnvPubSubCatalogTopic        = "CATALOGSYNC_PUBSUB_CATALOG_TOPIC"
	EnvPubSubPriceHistorySub     = "CATALOGSYNC_PUBSUB_PRICE_HISTORY_SUBSCRIPTION"
	EnvBigQueryDataset           = "CATALOGSYNC_BIGQUERY_DATASET"
	EnvBigQueryPriceHistoryTable = "CATALOGSYNC_BIGQUERY_PRICE_HISTORY_TABLE"

	EnvStorefrontBaseURL   = "CATALOGSYNC_STOREFRONT_BASE_URL"
	EnvStorefrontCookie    = "CATALOGSYNC_STOREFRONT_COOKIE"
	EnvStorefrontUserAgent = "CATALOGSYNC_STOREFRONT_USER_AGENT"
	EnvStorefrontPageDelay = "CATALOGSYNC_STOREFRONT_PAGE_DELAY"
	EnvStorefrontMaxPages  = "CATALOGSYNC_STOREFRONT_MAX_PAGES"

	EnvSyncTargetsFile  = "CATALOGSYNC_SYNC_TARGETS_FILE"
	EnvSyncTagBatchSize = "CATALOGSYNC_SYNC_TAG_BATCH_SIZE"
	EnvSyncZeroLimit    = "CATALOGSYNC_SYNC_ZERO_PRICE_LIMIT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

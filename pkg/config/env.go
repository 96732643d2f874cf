package config

const (
	EnvPrefix = "STAMPCARD"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	MaxCodeLength = 10
)

const (
	EnvAppEnv                 = "STAMPCARD_APP_ENV"
	EnvPort                   = "STAMPCARD_APP_PORT"
	EnvDBDSN                  = "STAMPCARD_DB_DSN"
	EnvDBHost                 = "STAMPCARD_DB_HOST"
	EnvDBUser                 = "STAMPCARD_DB_USER"
	EnvDBName                 = "STAMPCARD_DB_NAME"
	EnvRedisURL               = "STAMPCARD_REDIS_URL"
	EnvJWTSecret              = "STAMPCARD_JWT_SECRET"
	EnvJWTIssuer              = "STAMPCARD_JWT_ISSUER"
	EnvJWTExpMins             = "STAMPCARD_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "STAMPCARD_REFRESH_TOKEN_TTL_MINUTES"
	EnvGCPProjectID           = "STAMPCARD_GCP_PROJECT_ID"
	EnvPubSubDomainTopic      = "STAMPCARD_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubAnalyticsSub     = "STAMPCARD_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvCORSAllowedOrigins     = "STAMPCARD_CORS_ALLOWED_ORIGINS"

	EnvLoyaltyMaxStamps    = "STAMPCARD_LOYALTY_MAX_STAMPS"
	EnvLoyaltyCodeTTL      = "STAMPCARD_LOYALTY_CODE_TTL"
	EnvLoyaltyCodeLength   = "STAMPCARD_LOYALTY_CODE_LENGTH"
	EnvLoyaltyCodeAlphabet = "STAMPCARD_LOYALTY_CODE_ALPHABET"
	EnvLoyaltyTimezone     = "STAMPCARD_LOYALTY_TIMEZONE"
	EnvLoyaltyMasterCodes  = "STAMPCARD_LOYALTY_MASTER_CODES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

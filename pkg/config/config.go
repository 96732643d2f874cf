package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	CORS          CORSConfig
	Loyalty       LoyaltyConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Loyalty.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STAMPCARD_APP_ENV" required:"true"`
	Port         string `envconfig:"STAMPCARD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STAMPCARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STAMPCARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STAMPCARD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STAMPCARD_DB_DSN"`
	Driver string `envconfig:"STAMPCARD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STAMPCARD_DB_HOST"`
	LegacyPort     int    `envconfig:"STAMPCARD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STAMPCARD_DB_USER"`
	LegacyPassword string `envconfig:"STAMPCARD_DB_PASSWORD"`
	LegacyName     string `envconfig:"STAMPCARD_DB_NAME"`
	LegacySSLMode  string `envconfig:"STAMPCARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STAMPCARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STAMPCARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STAMPCARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STAMPCARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STAMPCARD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STAMPCARD_REDIS_ADDR"`
	Password     string        `envconfig:"STAMPCARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"STAMPCARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STAMPCARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STAMPCARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STAMPCARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STAMPCARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STAMPCARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"STAMPCARD_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"STAMPCARD_JWT_ISSUER" default:"stampcard"`
	ExpirationMinutes      int    `envconfig:"STAMPCARD_JWT_EXPIRATION_MINUTES" default:"720"`
	RefreshTokenTTLMinutes int    `envconfig:"STAMPCARD_REFRESH_TOKEN_TTL_MINUTES" default:"10080"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STAMPCARD_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STAMPCARD_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STAMPCARD_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STAMPCARD_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STAMPCARD_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow           time.Duration `envconfig:"STAMPCARD_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginUsernameLimit    int           `envconfig:"STAMPCARD_AUTH_RATE_LIMIT_LOGIN_USERNAME_LIMIT" default:"5"`
	LoginIPLimit          int           `envconfig:"STAMPCARD_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow        time.Duration `envconfig:"STAMPCARD_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterUsernameLimit int           `envconfig:"STAMPCARD_AUTH_RATE_LIMIT_REGISTER_USERNAME_LIMIT" default:"3"`
	RegisterIPLimit       int           `envconfig:"STAMPCARD_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STAMPCARD_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STAMPCARD_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STAMPCARD_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://127.0.0.1:3000"`
	MaxAge         int      `envconfig:"STAMPCARD_CORS_MAX_AGE" default:"300"`
}

// LoyaltyConfig drives stamp limits, code issuance and stats windows.
type LoyaltyConfig struct {
	MaxStamps    int           `envconfig:"STAMPCARD_LOYALTY_MAX_STAMPS" default:"6"`
	CodeTTL      time.Duration `envconfig:"STAMPCARD_LOYALTY_CODE_TTL" default:"15m"`
	CodeLength   int           `envconfig:"STAMPCARD_LOYALTY_CODE_LENGTH" default:"6"`
	CodeAlphabet string        `envconfig:"STAMPCARD_LOYALTY_CODE_ALPHABET" default:"0123456789"`
	Timezone     string        `envconfig:"STAMPCARD_LOYALTY_TIMEZONE" default:"Europe/Moscow"`
	MasterCodes  []string      `envconfig:"STAMPCARD_LOYALTY_MASTER_CODES"`
	HistoryLimit int           `envconfig:"STAMPCARD_LOYALTY_HISTORY_LIMIT" default:"10"`
}

// Location resolves the configured timezone, falling back to UTC.
func (l LoyaltyConfig) Location() *time.Location {
	if strings.TrimSpace(l.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (l LoyaltyConfig) validate() error {
	if l.MaxStamps <= 0 {
		return fmt.Errorf("%s must be positive", EnvLoyaltyMaxStamps)
	}
	if l.CodeTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvLoyaltyCodeTTL)
	}
	if l.CodeLength <= 0 || l.CodeLength > MaxCodeLength {
		return fmt.Errorf("%s must be between 1 and %d", EnvLoyaltyCodeLength, MaxCodeLength)
	}
	if len([]rune(l.CodeAlphabet)) < 2 {
		return fmt.Errorf("%s needs at least two characters", EnvLoyaltyCodeAlphabet)
	}
	if _, err := time.LoadLocation(l.Timezone); err != nil {
		return fmt.Errorf("%s: %w", EnvLoyaltyTimezone, err)
	}
	return nil
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"STAMPCARD_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STAMPCARD_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STAMPCARD_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STAMPCARD_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic           string `envconfig:"STAMPCARD_PUBSUB_DOMAIN_TOPIC" default:"sc-loyalty-events"`
	AnalyticsSubscription string `envconfig:"STAMPCARD_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"sc-loyalty-analytics"`
}

type BigQueryConfig struct {
	Dataset            string `envconfig:"STAMPCARD_BIGQUERY_DATASET" default:"stampcard"`
	LoyaltyEventsTable string `envconfig:"STAMPCARD_BIGQUERY_LOYALTY_TABLE" default:"loyalty_events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"STAMPCARD_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"STAMPCARD_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"STAMPCARD_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"STAMPCARD_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STAMPCARD_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"STAMPCARD_CRON_LOCK_TTL" default:"30m"`
}

// RequireGCP reports an error when the worker binaries start without a project.
func (c *Config) RequireGCP() error {
	if strings.TrimSpace(c.GCP.ProjectID) == "" {
		return fmt.Errorf("%s is required", EnvGCPProjectID)
	}
	return nil
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

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
	Dispatch     DispatchConfig
	Channel      ChannelConfig
	Scheduler    SchedulerConfig
	API          APIConfig
	GCP          GCPConfig
	BigQuery     BigQueryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks each section and the settings that depend on one another.
// A channel call must end before its lease can expire.
func (c Config) Validate() error {
	if err := c.Dispatch.Validate(); err != nil {
		return err
	}
	if err := c.Channel.Validate(); err != nil {
		return err
	}
	if c.Channel.Timeout >= c.Dispatch.LeaseDuration() {
		return fmt.Errorf("%s (%s) must be shorter than %s (%s)",
			EnvChannelTimeout, c.Channel.Timeout, EnvDispatchLeaseSeconds, c.Dispatch.LeaseDuration())
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"OUTBOUND_APP_ENV" required:"true"`
	Port         string `envconfig:"OUTBOUND_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"OUTBOUND_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"OUTBOUND_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"OUTBOUND_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"OUTBOUND_DB_DSN"`
	Driver string `envconfig:"OUTBOUND_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"OUTBOUND_DB_HOST"`
	LegacyPort     int    `envconfig:"OUTBOUND_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"OUTBOUND_DB_USER"`
	LegacyPassword string `envconfig:"OUTBOUND_DB_PASSWORD"`
	LegacyName     string `envconfig:"OUTBOUND_DB_NAME"`
	LegacySSLMode  string `envconfig:"OUTBOUND_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"OUTBOUND_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"OUTBOUND_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"OUTBOUND_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"OUTBOUND_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL           string        `envconfig:"OUTBOUND_REDIS_URL"`
	Address       string        `envconfig:"OUTBOUND_REDIS_ADDR" default:"localhost:6379"`
	Password      string        `envconfig:"OUTBOUND_REDIS_PASSWORD"`
	DB            int           `envconfig:"OUTBOUND_REDIS_DB" default:"0"`
	PoolSize      int           `envconfig:"OUTBOUND_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns  int           `envconfig:"OUTBOUND_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout   time.Duration `envconfig:"OUTBOUND_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout   time.Duration `envconfig:"OUTBOUND_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout  time.Duration `envconfig:"OUTBOUND_REDIS_WRITE_TIMEOUT" default:"5s"`
	OwnerCacheTTL time.Duration `envconfig:"OUTBOUND_REDIS_OWNER_CACHE_TTL" default:"5m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"OUTBOUND_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"OUTBOUND_AUTO_MIGRATE" default:"false"`
}

// DispatchConfig holds the defaults applied to every dispatch run.
type DispatchConfig struct {
	BatchSize           int `envconfig:"OUTBOUND_DISPATCH_BATCH_SIZE" default:"50"`
	Concurrency         int `envconfig:"OUTBOUND_DISPATCH_CONCURRENCY" default:"5"`
	GlobalRatePerMinute int `envconfig:"OUTBOUND_DISPATCH_GLOBAL_RATE_PER_MINUTE" default:"60"`
	OwnerRatePerMinute  int `envconfig:"OUTBOUND_DISPATCH_OWNER_RATE_PER_MINUTE" default:"20"`
	LeaseSeconds        int `envconfig:"OUTBOUND_DISPATCH_LEASE_SECONDS" default:"120"`
	MaxRetries          int `envconfig:"OUTBOUND_DISPATCH_MAX_RETRIES" default:"3"`
	RunLogRetentionDays int `envconfig:"OUTBOUND_DISPATCH_RUN_LOG_RETENTION_DAYS" default:"30"`
}

// LeaseDuration returns the configured lease length.
func (d DispatchConfig) LeaseDuration() time.Duration {
	return time.Duration(d.LeaseSeconds) * time.Second
}

// Validate rejects values outside the ranges the worker supports.
func (d DispatchConfig) Validate() error {
	if d.BatchSize < 1 || d.BatchSize > MaxBatchSize {
		return fmt.Errorf("%s must be between 1 and %d", EnvDispatchBatchSize, MaxBatchSize)
	}
	if d.Concurrency < 1 || d.Concurrency > MaxConcurrency {
		return fmt.Errorf("%s must be between 1 and %d", EnvDispatchConcurrency, MaxConcurrency)
	}
	if d.GlobalRatePerMinute < 0 {
		return fmt.Errorf("%s must be non-negative", EnvDispatchGlobalRate)
	}
	if d.OwnerRatePerMinute < 0 {
		return fmt.Errorf("%s must be non-negative", EnvDispatchOwnerRate)
	}
	if d.LeaseSeconds <= 0 {
		return fmt.Errorf("%s must be positive", EnvDispatchLeaseSeconds)
	}
	if d.MaxRetries <= 0 {
		return fmt.Errorf("%s must be positive", EnvDispatchMaxRetries)
	}
	return nil
}

// ChannelConfig selects the external delivery sink.
type ChannelConfig struct {
	Kind         string        `envconfig:"OUTBOUND_CHANNEL_KIND" default:"noop"`
	WebhookURL   string        `envconfig:"OUTBOUND_CHANNEL_WEBHOOK_URL"`
	WebhookToken string        `envconfig:"OUTBOUND_CHANNEL_WEBHOOK_TOKEN"`
	Timeout      time.Duration `envconfig:"OUTBOUND_CHANNEL_TIMEOUT" default:"15s"`
	PubSubTopic  string        `envconfig:"OUTBOUND_CHANNEL_PUBSUB_TOPIC"`
}

// Validate checks that the selected channel kind has its endpoint settings.
func (c ChannelConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Kind)) {
	case "", ChannelKindNoop:
		return nil
	case ChannelKindWebhook:
		if strings.TrimSpace(c.WebhookURL) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvChannelWebhookURL, EnvChannelKind, ChannelKindWebhook)
		}
		if _, err := url.ParseRequestURI(c.WebhookURL); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvChannelWebhookURL, err)
		}
	case ChannelKindPubSub:
		if strings.TrimSpace(c.PubSubTopic) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvChannelPubSubTopic, EnvChannelKind, ChannelKindPubSub)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvChannelKind, c.Kind)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvChannelTimeout)
	}
	return nil
}

// NormalizedKind returns the lower-cased channel kind, defaulting to noop.
func (c ChannelConfig) NormalizedKind() string {
	kind := strings.ToLower(strings.TrimSpace(c.Kind))
	if kind == "" {
		return ChannelKindNoop
	}
	return kind
}

type SchedulerConfig struct {
	Interval time.Duration `envconfig:"OUTBOUND_SCHEDULER_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"OUTBOUND_SCHEDULER_LOCK_TTL" default:"5m"`
}

// APIConfig holds the HTTP surface settings: run trigger throttling and CORS.
type APIConfig struct {
	RunRateLimit  int           `envconfig:"OUTBOUND_API_RUN_RATE_LIMIT" default:"30"`
	RunRateWindow time.Duration `envconfig:"OUTBOUND_API_RUN_RATE_WINDOW" default:"1m"`
	CORSOrigins   []string      `envconfig:"OUTBOUND_API_CORS_ORIGINS"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"OUTBOUND_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"OUTBOUND_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"OUTBOUND_GOOGLE_APPLICATION_CREDENTIALS"`
}

type BigQueryConfig struct {
	Enabled          bool   `envconfig:"OUTBOUND_BIGQUERY_ENABLED" default:"false"`
	Dataset          string `envconfig:"OUTBOUND_BIGQUERY_DATASET" default:"outbound"`
	RunOutcomesTable string `envconfig:"OUTBOUND_BIGQUERY_RUN_OUTCOMES_TABLE" default:"dispatch_run_outcomes"`
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

package config

// EnvPrefix is passed to envconfig; every field declares its full name explicitly.
const EnvPrefix = "OUTBOUND"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	MaxBatchSize   = 200
	MaxConcurrency = 20
)

const (
	ChannelKindNoop    = "noop"
	ChannelKindWebhook = "webhook"
	ChannelKindPubSub  = "pubsub"
)

const (
	EnvAppEnv = "OUTBOUND_APP_ENV"
	EnvPort   = "OUTBOUND_APP_PORT"

	EnvDBDSN  = "OUTBOUND_DB_DSN"
	EnvDBHost = "OUTBOUND_DB_HOST"
	EnvDBUser = "OUTBOUND_DB_USER"
	EnvDBName = "OUTBOUND_DB_NAME"

	EnvRedisURL = "OUTBOUND_REDIS_URL"

	EnvDispatchBatchSize    = "OUTBOUND_DISPATCH_BATCH_SIZE"
	EnvDispatchConcurrency  = "OUTBOUND_DISPATCH_CONCURRENCY"
	EnvDispatchGlobalRate   = "OUTBOUND_DISPATCH_GLOBAL_RATE_PER_MINUTE"
	EnvDispatchOwnerRate    = "OUTBOUND_DISPATCH_OWNER_RATE_PER_MINUTE"
	EnvDispatchLeaseSeconds = "OUTBOUND_DISPATCH_LEASE_SECONDS"
	EnvDispatchMaxRetries   = "OUTBOUND_DISPATCH_MAX_RETRIES"

	EnvChannelKind        = "OUTBOUND_CHANNEL_KIND"
	EnvChannelWebhookURL  = "OUTBOUND_CHANNEL_WEBHOOK_URL"
	EnvChannelTimeout     = "OUTBOUND_CHANNEL_TIMEOUT"
	EnvChannelPubSubTopic = "OUTBOUND_CHANNEL_PUBSUB_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

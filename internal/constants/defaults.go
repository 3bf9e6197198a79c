package constants

// Default server configuration values
const (
	DefaultServerPort            = 8080
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 45
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Default provider engine configuration values
const (
	DefaultProviderTimeoutSec      = 30
	DefaultStreamReconnectDelayMs  = 1000
	DefaultStreamMaxReconnectDelay = 60000
)

// Default webhook dispatch configuration values
const (
	DefaultWebhookTimeoutSec = 30
	WebhookUserAgent         = "wabridge"
	WebhookEventTypeHeader   = "X-Event-Type"
)

// Default rate limit configuration values
const (
	DefaultRateLimitRequests  = 100
	DefaultRateLimitWindowSec = 60
)

// Default database configuration values
const (
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultRetentionDays         = 30
)

// Default API surface values
const (
	DefaultMessagePageSize = 50
	MaxMessagePageSize     = 500
	RecentWebhookLogCount  = 10
	WebhookStatsWindowHrs  = 24
)

// Phone number handling
const (
	MinPhoneNumberLength    = 8
	MaxPhoneNumberLength    = 20
	DefaultCountryCode      = "62"
	UserJIDSuffix           = "@s.whatsapp.net"
	GroupJIDSuffix          = "@g.us"
)

// Input validation bounds
const (
	MaxDeviceNameLength = 100
	MaxSessionIDLength  = 64
	MaxWebhookURLLength = 2048
	MaxContentLength    = 65536
	MaxRequestBodySize  = 1 << 20
)

// Identifier generation
const (
	SessionIDPrefix   = "wa"
	APIKeyPrefix      = "wa_"
	DeviceTokenPrefix = "dev_"
	APIKeyRandomBytes = 20
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
)

// Encryption settings
const (
	EncryptionSalt       = "wabridge-db-salt-v1"
	EncryptionLookupSalt = "wabridge-lookup-salt-v1"
)

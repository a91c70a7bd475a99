package constants

// Queue defaults
const (
	DefaultWaitUnitMinutes     = 15
	DefaultWaitSpreadMinutes   = 5
	DefaultSnapshotIntervalSec = 30
	MaxServiceTypeLength       = 64
	MaxEstimatedMinutes        = 24 * 60
	NoWaitLabel                = "No wait"
)

// Business hours defaults
const (
	DefaultTimezone  = "Europe/Amsterdam"
	DefaultOpenHour  = 10
	DefaultCloseHour = 19
)

// DefaultOpenDays is Monday through Saturday.
var DefaultOpenDays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// Hub defaults
const (
	DefaultHubSendBufferSize  = 32
	DefaultHubWriteTimeoutSec = 10
	DefaultHubPingIntervalSec = 30
	DefaultHubReadLimitBytes  = 4096
)

// Client sync agent defaults
const (
	DefaultReconnectDelaySec = 3
	DefaultPullIntervalSec   = 30
	DefaultDialTimeoutSec    = 10
)

// Chat defaults
const (
	DefaultChatAdminUserID  = "admin"
	MaxChatMessageLength    = 4000
	MaxUserIDLength         = 128
	WebhookSignatureHeader  = "X-Webhook-Signature"
	MinWebhookSecretLength  = 32
	DefaultChatHistoryLimit = 500
)

// Server defaults
const (
	DefaultServerPort            = 8080
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultRateLimitPerMinute    = 60
	DefaultRateLimitBurst        = 10
	ServerErrorChannelSize       = 1
	MaxRequestBodyBytes          = 64 << 10
)

// Database defaults
const (
	DefaultDatabasePath          = "queuesync.db"
	DefaultBusyTimeoutMs         = 5000
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 100
	DefaultMaxBackoffMs          = 2000
	DefaultInitialBackoffMs      = 500
	DefaultStartupMaxBackoffMs   = 10000
	DefaultStartupMaxAttempts    = 5
)

// Config watcher
const (
	DefaultConfigPollIntervalSec = 5
)

// Privacy settings
const (
	DefaultUserIDVisibleChars = 4
)

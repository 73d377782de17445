package constants

// Relay timing values
const (
	// Messages observed more than this many seconds after their WhatsApp
	// timestamp are historical backfill and are not relayed.
	MessageStalenessSec = 60

	// Minimum interval between full topic verification sweeps.
	TopicVerifyCooldownSec = 300

	// Delay between per-topic probe calls during verification, to stay
	// under Telegram rate limits.
	TopicProbeDelayMs = 100

	// How long a per-participant in-flight lease is held after the event
	// finishes processing.
	InFlightLeaseTTLMs = 1000

	// Presence updates to the same chat are dropped inside this window.
	PresenceThrottleMs = 1000

	// A composing presence auto-reverts to paused after this delay.
	ComposingAutoPauseSec = 3

	// Read receipts are batched per chat over this window before one
	// acknowledgement call is issued.
	ReadReceiptBatchWindowSec = 2

	// Duplicate call events from the same caller and call ID are
	// suppressed inside this window.
	CallDedupWindowSec = 30

	// Relayed status messages are remembered for reply routing up to
	// this many entries, oldest first out.
	MaxTrackedStatusMessages = 500
)

// Default polling and retry configuration values
const (
	DefaultTelegramPollTimeoutSec = 10
	DefaultTelegramPollLimit      = 100
	DefaultRetryBackoffMs         = 1000
	DefaultMaxBackoffMs           = 60000
	DefaultMaxAttempts            = 5
	DefaultServerPort             = 8084
	DefaultRateLimitPerMinute     = 120
	MaxWebhookBodyBytes           = 10 * 1024 * 1024

	CleanupSchedulerIntervalHours = 24
	TopicVerifyIntervalMin        = 30
	ContactSyncIntervalHours      = 12
)

// Default media configuration values
const (
	DefaultMaxImageSizeMB    = 5
	DefaultMaxVideoSizeMB    = 100
	DefaultMaxDocumentSizeMB = 100
	DefaultMaxVoiceSizeMB    = 16

	// Telegram video notes are square and capped at one minute.
	VideoNoteEdgePx         = 240
	VideoNoteMaxDurationSec = 60
)

// Default allowed media extensions
var (
	DefaultImageTypes    = []string{"jpg", "jpeg", "png", "gif", "webp"}
	DefaultVideoTypes    = []string{"mp4", "mov", "avi", "webm"}
	DefaultDocumentTypes = []string{"pdf", "doc", "docx", "txt", "zip", "xls", "xlsx"}
	DefaultVoiceTypes    = []string{"ogg", "opus", "mp3", "m4a", "aac", "wav"}
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultDatabaseRetryAttempts = 3
	DefaultGracefulShutdownSec   = 30
	DefaultBackoffInitialMs      = 500
	DefaultContactSyncDelayMs    = 100
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	ServerErrorChannelSize       = 1
)

// Key derivation salts for optional at-rest column encryption
const (
	EncryptionSalt       = "watgbridge-db-encryption-v1"
	EncryptionLookupSalt = "watgbridge-lookup-v1"
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultMessageIDLength = 8
)

// Input validation bounds
const (
	MinPhoneNumberLength = 7
	MaxPhoneNumberLength = 20
	MaxMessageIDLength   = 255
	MaxSessionNameLength = 64
	BytesPerMegabyte     = 1024 * 1024
)

// Reserved pseudo-chats that get synthetic topics
const (
	StatusBroadcastJID = "status@broadcast"
	CallBroadcastJID   = "call@broadcast"

	StatusTopicName = "📊 Status Updates"
	CallTopicName   = "📞 Call Logs"

	StatusTopicIconColor = 0xFF6B35
	CallTopicIconColor   = 0xFF4757
	GroupTopicIconColor  = 0x6FB9F0
	ChatTopicIconColor   = 0x7ABA3C
)

// JID domain suffixes
const (
	UserJIDSuffix  = "@s.whatsapp.net"
	GroupJIDSuffix = "@g.us"
)

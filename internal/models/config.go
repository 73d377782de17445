package models

import "time"

// Config holds the application configuration
type Config struct {
	WhatsApp      WhatsAppConfig `json:"whatsapp"`
	Telegram      TelegramConfig `json:"telegram"`
	Database      DatabaseConfig `json:"database"`
	Media         MediaConfig    `json:"media"`
	Retry         RetryConfig    `json:"retry"`
	Tracing       TracingConfig  `json:"tracing"`
	Features      FeatureConfig  `json:"features"`
	Server        ServerConfig   `json:"server"`
	LogLevel      string         `json:"log_level"`
	RetentionDays int            `json:"retentionDays"`
}

// ServerConfig holds settings for the webhook HTTP server
type ServerConfig struct {
	Host                 string `json:"host"`
	Port                 int    `json:"port"`
	CleanupIntervalHours int    `json:"cleanupIntervalHours"`
	// RateLimitPerMinute caps webhook requests per client IP. Zero uses the
	// built-in default.
	RateLimitPerMinute int `json:"rateLimitPerMinute"`
}

// WhatsAppConfig holds settings for the WhatsApp gateway client
type WhatsAppConfig struct {
	APIBaseURL    string        `json:"api_base_url"`
	APIKey        string        `json:"api_key"`
	SessionName   string        `json:"session_name"`
	Timeout       time.Duration `json:"timeout_ms"`
	RetryCount    int           `json:"retry_count"`
	WebhookSecret string        `json:"webhook_secret"`
	// EventStreamEnabled switches from webhook delivery to the gateway's
	// websocket event feed.
	EventStreamEnabled bool `json:"eventStreamEnabled"`
}

// TelegramConfig holds settings for the Telegram bot client
type TelegramConfig struct {
	APIBaseURL string `json:"api_base_url"`
	BotToken   string `json:"bot_token"`
	// SupergroupID is the forum-enabled supergroup all topics live in.
	SupergroupID int64 `json:"supergroupId"`
	// OwnerID is the operator's private chat for the command console.
	OwnerID         int64 `json:"ownerId"`
	PollTimeoutSec  int   `json:"pollTimeoutSec"`
	PollLimit       int   `json:"pollLimit"`
	PollingEnabled  bool  `json:"pollingEnabled"`
	HTTPTimeoutSec  int   `json:"httpTimeoutSec"`
}

// FeatureConfig holds the startup state of the runtime feature toggles.
type FeatureConfig struct {
	StatusSync           *bool `json:"statusSync,omitempty"`
	CallLogs             *bool `json:"callLogs,omitempty"`
	ProfilePicSync       *bool `json:"profilePicSync,omitempty"`
	ReadReceipts         *bool `json:"readReceipts,omitempty"`
	PresenceUpdates      *bool `json:"presenceUpdates,omitempty"`
	AutoUpdateTopicNames *bool `json:"autoUpdateTopicNames,omitempty"`
	SendWelcome          *bool `json:"sendWelcome,omitempty"`
	BiDirectional        *bool `json:"biDirectional,omitempty"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// MediaConfig holds media related configurations
type MediaConfig struct {
	TempDir      string            `json:"temp_dir"`
	FFmpegPath   string            `json:"ffmpeg_path"`
	MaxSizeMB    MediaSizeLimits   `json:"maxSizeMB"`
	AllowedTypes MediaAllowedTypes `json:"allowedTypes"`
}

// MediaSizeLimits defines size limits for different media types in MB
type MediaSizeLimits struct {
	Image    int `json:"image"`
	Video    int `json:"video"`
	Document int `json:"document"`
	Voice    int `json:"voice"`
}

// MediaAllowedTypes defines allowed file extensions for different media types
type MediaAllowedTypes struct {
	Image    []string `json:"image"`
	Video    []string `json:"video"`
	Document []string `json:"document"`
	Voice    []string `json:"voice"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate"`
	UseStdout      bool    `json:"useStdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

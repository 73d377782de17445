package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"watgbridge/internal/constants"
	"watgbridge/internal/models"
	"watgbridge/internal/security"
)

var (
	ErrMissingWhatsAppURL  = models.ConfigError{Message: "missing WhatsApp gateway URL"}
	ErrMissingBotToken     = models.ConfigError{Message: "missing Telegram bot token"}
	ErrMissingSupergroupID = models.ConfigError{Message: "missing Telegram supergroup ID"}
	ErrMissingDBPath       = models.ConfigError{Message: "missing database path"}
	ErrMissingTempDir      = models.ConfigError{Message: "missing media temp directory"}
)

func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.WhatsApp.APIBaseURL == "" {
		return ErrMissingWhatsAppURL
	}
	if c.Telegram.BotToken == "" {
		return ErrMissingBotToken
	}
	if c.Telegram.SupergroupID == 0 {
		return ErrMissingSupergroupID
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Media.TempDir == "" {
		return ErrMissingTempDir
	}

	if c.WhatsApp.SessionName == "" {
		c.WhatsApp.SessionName = "default"
	}
	if c.WhatsApp.Timeout <= 0 {
		c.WhatsApp.Timeout = time.Duration(constants.DefaultHTTPTimeoutSec) * time.Second
	}
	if c.WhatsApp.RetryCount <= 0 {
		c.WhatsApp.RetryCount = constants.DefaultDatabaseRetryAttempts
	}

	if c.Telegram.PollTimeoutSec <= 0 {
		c.Telegram.PollTimeoutSec = constants.DefaultTelegramPollTimeoutSec
	}
	if c.Telegram.PollLimit <= 0 || c.Telegram.PollLimit > 100 {
		c.Telegram.PollLimit = constants.DefaultTelegramPollLimit
	}
	if c.Telegram.HTTPTimeoutSec <= 0 {
		c.Telegram.HTTPTimeoutSec = constants.DefaultHTTPTimeoutSec
	}

	if c.Media.MaxSizeMB.Image == 0 {
		c.Media.MaxSizeMB.Image = constants.DefaultMaxImageSizeMB
	}
	if c.Media.MaxSizeMB.Video == 0 {
		c.Media.MaxSizeMB.Video = constants.DefaultMaxVideoSizeMB
	}
	if c.Media.MaxSizeMB.Document == 0 {
		c.Media.MaxSizeMB.Document = constants.DefaultMaxDocumentSizeMB
	}
	if c.Media.MaxSizeMB.Voice == 0 {
		c.Media.MaxSizeMB.Voice = constants.DefaultMaxVoiceSizeMB
	}

	if len(c.Media.AllowedTypes.Image) == 0 {
		c.Media.AllowedTypes.Image = constants.DefaultImageTypes
	}
	if len(c.Media.AllowedTypes.Video) == 0 {
		c.Media.AllowedTypes.Video = constants.DefaultVideoTypes
	}
	if len(c.Media.AllowedTypes.Document) == 0 {
		c.Media.AllowedTypes.Document = constants.DefaultDocumentTypes
	}
	if len(c.Media.AllowedTypes.Voice) == 0 {
		c.Media.AllowedTypes.Voice = constants.DefaultVoiceTypes
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.CleanupIntervalHours <= 0 {
		c.Server.CleanupIntervalHours = constants.CleanupSchedulerIntervalHours
	}
	if c.Server.RateLimitPerMinute <= 0 {
		c.Server.RateLimitPerMinute = constants.DefaultRateLimitPerMinute
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("WHATSAPP_API_URL"); url != "" {
		c.WhatsApp.APIBaseURL = url
	}
	if key := os.Getenv("WHATSAPP_API_KEY"); key != "" {
		c.WhatsApp.APIKey = key
	}
	if secret := os.Getenv("WATGBRIDGE_WEBHOOK_SECRET"); secret != "" {
		c.WhatsApp.WebhookSecret = secret
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		c.Telegram.BotToken = token
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("MEDIA_TEMP_DIR"); dir != "" {
		c.Media.TempDir = dir
	}
}

// validateSecurity enforces production hardening rules.
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("WATGBRIDGE_ENV") == "production"

	if isProduction {
		if c.WhatsApp.WebhookSecret == "" && !c.WhatsApp.EventStreamEnabled {
			return models.ConfigError{Message: "webhook secret is required in production (set WATGBRIDGE_WEBHOOK_SECRET environment variable)"}
		}
		if c.WhatsApp.WebhookSecret != "" && len(c.WhatsApp.WebhookSecret) < 32 {
			return models.ConfigError{Message: "webhook secret must be at least 32 characters long"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.WhatsApp.WebhookSecret == "" && !c.WhatsApp.EventStreamEnabled {
		fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set WATGBRIDGE_WEBHOOK_SECRET environment variable for security.\n")
	}

	return nil
}

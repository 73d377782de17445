package config

import (
	"os"
	"path/filepath"
	"testing"

	"watgbridge/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const validConfig = `{
	"whatsapp": {
		"api_base_url": "http://localhost:3000",
		"session_name": "default"
	},
	"telegram": {
		"bot_token": "123456:test-token",
		"supergroupId": -1001234567890,
		"ownerId": 99,
		"pollingEnabled": true
	},
	"database": {"path": "bridge.db"},
	"media": {"temp_dir": "media-tmp"}
}`

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.WhatsApp.APIBaseURL)
	assert.Equal(t, int64(-1001234567890), cfg.Telegram.SupergroupID)
	assert.Equal(t, int64(99), cfg.Telegram.OwnerID)

	// Defaults applied
	assert.Equal(t, constants.DefaultTelegramPollTimeoutSec, cfg.Telegram.PollTimeoutSec)
	assert.Equal(t, constants.DefaultTelegramPollLimit, cfg.Telegram.PollLimit)
	assert.Equal(t, constants.DefaultMaxImageSizeMB, cfg.Media.MaxSizeMB.Image)
	assert.Equal(t, constants.DefaultImageTypes, cfg.Media.AllowedTypes.Image)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, constants.DefaultMaxAttempts, cfg.Retry.MaxAttempts)
}

func TestLoadConfig_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr error
	}{
		{
			"missing whatsapp url",
			`{"telegram": {"bot_token": "t", "supergroupId": 1}, "database": {"path": "x.db"}, "media": {"temp_dir": "tmp"}}`,
			ErrMissingWhatsAppURL,
		},
		{
			"missing bot token",
			`{"whatsapp": {"api_base_url": "http://x"}, "telegram": {"supergroupId": 1}, "database": {"path": "x.db"}, "media": {"temp_dir": "tmp"}}`,
			ErrMissingBotToken,
		},
		{
			"missing supergroup",
			`{"whatsapp": {"api_base_url": "http://x"}, "telegram": {"bot_token": "t"}, "database": {"path": "x.db"}, "media": {"temp_dir": "tmp"}}`,
			ErrMissingSupergroupID,
		},
		{
			"missing db path",
			`{"whatsapp": {"api_base_url": "http://x"}, "telegram": {"bot_token": "t", "supergroupId": 1}, "media": {"temp_dir": "tmp"}}`,
			ErrMissingDBPath,
		},
		{
			"missing temp dir",
			`{"whatsapp": {"api_base_url": "http://x"}, "telegram": {"bot_token": "t", "supergroupId": 1}, "database": {"path": "x.db"}}`,
			ErrMissingTempDir,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.config)
			_, err := LoadConfig(path)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("WHATSAPP_API_URL", "http://gateway:3000")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("DB_PATH", "env.db")

	path := writeConfig(t, validConfig)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://gateway:3000", cfg.WhatsApp.APIBaseURL)
	assert.Equal(t, "env-token", cfg.Telegram.BotToken)
	assert.Equal(t, "env.db", cfg.Database.Path)
}

func TestLoadConfig_ProductionRequiresWebhookSecret(t *testing.T) {
	t.Setenv("WATGBRIDGE_ENV", "production")

	path := writeConfig(t, validConfig)
	_, err := LoadConfig(path)
	assert.Error(t, err)

	t.Setenv("WATGBRIDGE_WEBHOOK_SECRET", "this-secret-is-at-least-32-characters-long")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "this-secret-is-at-least-32-characters-long", cfg.WhatsApp.WebhookSecret)
}

func TestLoadConfig_ProductionRejectsShortSecret(t *testing.T) {
	t.Setenv("WATGBRIDGE_ENV", "production")
	t.Setenv("WATGBRIDGE_WEBHOOK_SECRET", "short")

	path := writeConfig(t, validConfig)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_ProductionRejectsDebugLogging(t *testing.T) {
	t.Setenv("WATGBRIDGE_ENV", "production")
	t.Setenv("WATGBRIDGE_WEBHOOK_SECRET", "this-secret-is-at-least-32-characters-long")

	path := writeConfig(t, `{
		"whatsapp": {"api_base_url": "http://x"},
		"telegram": {"bot_token": "t", "supergroupId": 1},
		"database": {"path": "x.db"},
		"media": {"temp_dir": "tmp"},
		"log_level": "debug"
	}`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_FileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := writeConfig(t, "{not json")
	_, err = LoadConfig(path)
	assert.Error(t, err)

	_, err = LoadConfig("../../../etc/passwd")
	assert.Error(t, err)
}

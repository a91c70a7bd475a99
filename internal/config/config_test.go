package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"queuesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_JSONWithComments(t *testing.T) {
	path := writeConfig(t, "config.jsonc", `{
		// listener
		"server": {"port": 9000, "allowed_origins": ["https://shop.example.com"]},
		"database": {"path": "/var/lib/queuesync/queue.db"},
		"queue": {"wait_unit_minutes": 20},
		/* schedule */
		"business_hours": {"timezone": "UTC", "open_days": ["mon", "Tue"], "open_hour": 9, "close_hour": 17},
	}`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, []string{"https://shop.example.com"}, config.Server.AllowedOrigins)
	assert.Equal(t, "/var/lib/queuesync/queue.db", config.Database.Path)
	assert.Equal(t, 20, config.Queue.WaitUnitMinutes)
	assert.Equal(t, 5, config.Queue.WaitSpreadMinutes)
	assert.Equal(t, "UTC", config.BusinessHours.Timezone)
	assert.Equal(t, []string{"mon", "Tue"}, config.BusinessHours.OpenDays)
	assert.Equal(t, "admin", config.Chat.AdminUserID)
	assert.Equal(t, "info", config.LogLevel)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  port: 8081
  trust_proxy_headers: true
hub:
  send_buffer_size: 8
business_hours:
  open_days: []
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, config.Server.Port)
	assert.True(t, config.Server.TrustProxyHeaders)
	assert.Equal(t, 8, config.Hub.SendBufferSize)
	assert.Equal(t, int64(4096), config.Hub.ReadLimitBytes)
	assert.NotNil(t, config.BusinessHours.OpenDays)
	assert.Empty(t, config.BusinessHours.OpenDays, "an explicit empty list means always closed")
	assert.Equal(t, 10, config.BusinessHours.OpenHour)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    error
	}{
		{"unsupported extension", "config.toml", `port = 1`, ErrUnsupportedFormat},
		{"bad port", "config.yaml", "server:\n  port: 70000\n", ErrInvalidPort},
		{"inverted hours", "config.yaml", "business_hours:\n  open_hour: 18\n  close_hour: 9\n", ErrInvalidHours},
		{"bad sample rate", "config.yaml", "tracing:\n  sample_rate: 2\n", ErrInvalidSampleRate},
		{"negative wait unit", "config.yaml", "queue:\n  wait_unit_minutes: -1\n", ErrInvalidWaitUnit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.file, tt.content))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfig_UnknownWeekday(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "config.yaml", "business_hours:\n  open_days: [funday]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "funday")
}

func TestLoadConfig_RejectsTraversal(t *testing.T) {
	_, err := LoadConfig("../../etc/queuesync.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("QUEUESYNC_DB_PATH", "/tmp/override.db")
	t.Setenv("QUEUESYNC_ADMIN_TOKEN_HASH", "$2a$10$abcdefghijklmnopqrstuv")
	t.Setenv("QUEUESYNC_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("QUEUESYNC_TIMEZONE", "America/New_York")

	config, err := LoadConfig(writeConfig(t, "config.yaml", "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "/tmp/override.db", config.Database.Path)
	assert.Equal(t, "$2a$10$abcdefghijklmnopqrstuv", config.Admin.TokenHash)
	assert.Equal(t, "hook-secret", config.Chat.WebhookSecret)
	assert.Equal(t, "America/New_York", config.BusinessHours.Timezone)
}

func TestValidateSecurity_Production(t *testing.T) {
	t.Setenv("QUEUESYNC_ENV", "production")

	base := func() *models.Config {
		c := Default()
		c.Admin.TokenHash = "$2a$10$hash"
		c.Chat.WebhookSecret = "0123456789abcdef0123456789abcdef"
		return c
	}

	assert.NoError(t, validateSecurity(base()))

	c := base()
	c.Admin.TokenHash = ""
	assert.ErrorIs(t, validateSecurity(c), ErrMissingAdminHash)

	c = base()
	c.Chat.WebhookSecret = "short"
	assert.ErrorIs(t, validateSecurity(c), ErrWeakWebhookSecret)

	c = base()
	c.LogLevel = "DEBUG"
	assert.ErrorIs(t, validateSecurity(c), ErrDebugInProduction)
}

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "queuesync.db", c.Database.Path)
	assert.Equal(t, 15, c.Queue.WaitUnitMinutes)
	assert.Equal(t, 30, c.Queue.SnapshotIntervalSec)
	assert.Equal(t, "Europe/Amsterdam", c.BusinessHours.Timezone)
	assert.Len(t, c.BusinessHours.OpenDays, 6)
	assert.Equal(t, 10, c.BusinessHours.OpenHour)
	assert.Equal(t, 19, c.BusinessHours.CloseHour)
	assert.Equal(t, 32, c.Hub.SendBufferSize)
	assert.Equal(t, 3, c.Retry.MaxAttempts)
}

func TestParseWeekday(t *testing.T) {
	tests := map[string]time.Weekday{
		"monday": time.Monday,
		"Tue":    time.Tuesday,
		" SAT ":  time.Saturday,
		"sun":    time.Sunday,
	}
	for in, want := range tests {
		got, ok := ParseWeekday(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseWeekday("someday")
	assert.False(t, ok)
}

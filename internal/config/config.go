package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"queuesync/internal/constants"
	"queuesync/internal/models"
	"queuesync/internal/security"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidPort        = models.ConfigError{Message: "server port must be between 1 and 65535"}
	ErrInvalidHours       = models.ConfigError{Message: "business hours require 0 <= open_hour < close_hour <= 24"}
	ErrUnsupportedFormat  = models.ConfigError{Message: "unsupported config format (use .json, .jsonc, .yaml or .yml)"}
	ErrInvalidWaitUnit    = models.ConfigError{Message: "queue wait unit must be positive"}
	ErrInvalidSampleRate  = models.ConfigError{Message: "tracing sample rate must be between 0 and 1"}
	ErrMissingAdminHash   = models.ConfigError{Message: "admin token hash is required in production (set QUEUESYNC_ADMIN_TOKEN_HASH)"}
	ErrWeakWebhookSecret  = models.ConfigError{Message: fmt.Sprintf("webhook secret must be at least %d characters long", constants.MinWebhookSecretLength)}
	ErrDebugInProduction  = models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	ErrUnknownOpenWeekday = models.ConfigError{Message: "unknown weekday in business_hours.open_days"}
)

// LoadConfig reads a JSON (comments allowed) or YAML config file, fills
// defaults, applies environment overrides and validates the result.
func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	config, err := Parse(file, filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(config)

	if err := validate(config); err != nil {
		return nil, err
	}

	if err := validateSecurity(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Parse decodes raw config bytes. ext selects the format and includes
// the leading dot.
func Parse(data []byte, ext string) (*models.Config, error) {
	var config models.Config
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &config); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnsupportedFormat
	}
	return &config, nil
}

// Default returns a config with every default filled in.
func Default() *models.Config {
	c := &models.Config{}
	_ = validate(c)
	return c
}

func validate(c *models.Config) error {
	if c.Server.Port == 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.RateLimitPerMinute <= 0 {
		c.Server.RateLimitPerMinute = constants.DefaultRateLimitPerMinute
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = constants.DefaultRateLimitBurst
	}

	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}
	if err := security.ValidateFilePath(c.Database.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid database path: %v", err)}
	}
	if c.Database.BusyTimeoutMs <= 0 {
		c.Database.BusyTimeoutMs = constants.DefaultBusyTimeoutMs
	}

	if c.Queue.WaitUnitMinutes == 0 {
		c.Queue.WaitUnitMinutes = constants.DefaultWaitUnitMinutes
	}
	if c.Queue.WaitUnitMinutes < 0 {
		return ErrInvalidWaitUnit
	}
	if c.Queue.WaitSpreadMinutes <= 0 {
		c.Queue.WaitSpreadMinutes = constants.DefaultWaitSpreadMinutes
	}
	if c.Queue.SnapshotIntervalSec <= 0 {
		c.Queue.SnapshotIntervalSec = constants.DefaultSnapshotIntervalSec
	}

	if err := validateBusinessHours(&c.BusinessHours); err != nil {
		return err
	}

	if c.Hub.SendBufferSize <= 0 {
		c.Hub.SendBufferSize = constants.DefaultHubSendBufferSize
	}
	if c.Hub.WriteTimeoutSec <= 0 {
		c.Hub.WriteTimeoutSec = constants.DefaultHubWriteTimeoutSec
	}
	if c.Hub.PingIntervalSec <= 0 {
		c.Hub.PingIntervalSec = constants.DefaultHubPingIntervalSec
	}
	if c.Hub.ReadLimitBytes <= 0 {
		c.Hub.ReadLimitBytes = constants.DefaultHubReadLimitBytes
	}

	if c.Chat.AdminUserID == "" {
		c.Chat.AdminUserID = constants.DefaultChatAdminUserID
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "queuesync"
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return ErrInvalidSampleRate
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func validateBusinessHours(h *models.BusinessHoursConfig) error {
	if h.Timezone == "" {
		h.Timezone = constants.DefaultTimezone
	}
	if h.OpenDays == nil {
		h.OpenDays = append([]string(nil), constants.DefaultOpenDays...)
	}
	if h.OpenHour == 0 && h.CloseHour == 0 {
		h.OpenHour = constants.DefaultOpenHour
		h.CloseHour = constants.DefaultCloseHour
	}
	if h.OpenHour < 0 || h.CloseHour > 24 || h.OpenHour >= h.CloseHour {
		return ErrInvalidHours
	}
	for _, day := range h.OpenDays {
		if _, ok := ParseWeekday(day); !ok {
			return models.ConfigError{Message: fmt.Sprintf("%s: %q", ErrUnknownOpenWeekday.Message, day)}
		}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if path := os.Getenv("QUEUESYNC_DB_PATH"); path != "" {
		c.Database.Path = path
	}

	// SECURITY: credentials should come from the environment
	if hash := os.Getenv("QUEUESYNC_ADMIN_TOKEN_HASH"); hash != "" {
		c.Admin.TokenHash = hash
	}
	if secret := os.Getenv("QUEUESYNC_WEBHOOK_SECRET"); secret != "" {
		c.Chat.WebhookSecret = secret
	}

	if tz := os.Getenv("QUEUESYNC_TIMEZONE"); tz != "" {
		c.BusinessHours.Timezone = tz
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("QUEUESYNC_ENV") == "production"

	if isProduction {
		if c.Admin.TokenHash == "" {
			return ErrMissingAdminHash
		}
		if len(c.Chat.WebhookSecret) < constants.MinWebhookSecretLength {
			return ErrWeakWebhookSecret
		}
		if strings.EqualFold(c.LogLevel, "debug") {
			return ErrDebugInProduction
		}
	} else {
		if c.Admin.TokenHash == "" {
			fmt.Fprintf(os.Stderr, "WARNING: admin token hash not set. Admin endpoints will reject every request until QUEUESYNC_ADMIN_TOKEN_HASH is set.\n")
		}
		if c.Chat.WebhookSecret == "" {
			fmt.Fprintf(os.Stderr, "WARNING: webhook secret not set. Set QUEUESYNC_WEBHOOK_SECRET to sign AI responses.\n")
		}
	}

	return nil
}

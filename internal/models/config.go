package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	Queue         QueueConfig         `json:"queue" yaml:"queue"`
	BusinessHours BusinessHoursConfig `json:"business_hours" yaml:"business_hours"`
	Hub           HubConfig           `json:"hub" yaml:"hub"`
	Admin         AdminConfig         `json:"admin" yaml:"admin"`
	Chat          ChatConfig          `json:"chat" yaml:"chat"`
	Retry         RetryConfig         `json:"retry" yaml:"retry"`
	Tracing       TracingConfig       `json:"tracing" yaml:"tracing"`
	LogLevel      string              `json:"log_level" yaml:"log_level"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port               int      `json:"port" yaml:"port"`
	ReadTimeoutSec     int      `json:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec    int      `json:"write_timeout_sec" yaml:"write_timeout_sec"`
	IdleTimeoutSec     int      `json:"idle_timeout_sec" yaml:"idle_timeout_sec"`
	AllowedOrigins     []string `json:"allowed_origins" yaml:"allowed_origins"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	RateLimitBurst     int      `json:"rate_limit_burst" yaml:"rate_limit_burst"`
	TrustProxyHeaders  bool     `json:"trust_proxy_headers" yaml:"trust_proxy_headers"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path          string `json:"path" yaml:"path"`
	BusyTimeoutMs int    `json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// QueueConfig tunes the wait estimate and the periodic snapshot broadcast
type QueueConfig struct {
	WaitUnitMinutes     int  `json:"wait_unit_minutes" yaml:"wait_unit_minutes"`
	WaitSpreadMinutes   int  `json:"wait_spread_minutes" yaml:"wait_spread_minutes"`
	SnapshotIntervalSec int  `json:"snapshot_interval_sec" yaml:"snapshot_interval_sec"`
	AnalyticsEnabled    bool `json:"analytics_enabled" yaml:"analytics_enabled"`
}

// BusinessHoursConfig is the weekly opening schedule. OpenDays holds
// English weekday names ("monday", "Tue", ...).
type BusinessHoursConfig struct {
	Timezone  string   `json:"timezone" yaml:"timezone"`
	OpenDays  []string `json:"open_days" yaml:"open_days"`
	OpenHour  int      `json:"open_hour" yaml:"open_hour"`
	CloseHour int      `json:"close_hour" yaml:"close_hour"`
}

// HubConfig holds WebSocket fan-out settings
type HubConfig struct {
	SendBufferSize  int      `json:"send_buffer_size" yaml:"send_buffer_size"`
	WriteTimeoutSec int      `json:"write_timeout_sec" yaml:"write_timeout_sec"`
	PingIntervalSec int      `json:"ping_interval_sec" yaml:"ping_interval_sec"`
	ReadLimitBytes  int64    `json:"read_limit_bytes" yaml:"read_limit_bytes"`
	OriginPatterns  []string `json:"origin_patterns" yaml:"origin_patterns"`
}

// AdminConfig holds the bcrypt hash of the admin console token
type AdminConfig struct {
	TokenHash string `json:"token_hash" yaml:"token_hash"`
}

// ChatConfig holds chat relay settings
type ChatConfig struct {
	AdminUserID   string `json:"admin_user_id" yaml:"admin_user_id"`
	WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms" yaml:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms" yaml:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts" yaml:"max_attempts"`
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
	UseStdout      bool    `json:"use_stdout" yaml:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

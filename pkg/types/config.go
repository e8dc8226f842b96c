package types

// ProjectConfig represents the top-level wastecal.yaml configuration.
type ProjectConfig struct {
	Provider      StoreBackend     `yaml:"provider"`
	SQLite        *SQLiteConfig    `yaml:"sqlite,omitempty"`
	Postgres      *PostgresConfig  `yaml:"postgres,omitempty"`
	Redis         *RedisConfig     `yaml:"redis,omitempty"`
	Calendar      *CalendarConfig  `yaml:"calendar,omitempty"`
	Engine        *EngineConfig    `yaml:"engine,omitempty"`
	Watcher       *WatcherConfig   `yaml:"watcher,omitempty"`
	Server        *ServerConfig    `yaml:"server,omitempty"`
	Alerts        []AlertConfig    `yaml:"alerts,omitempty"`
	WasteTypeDirs []string         `yaml:"wasteTypeDirs,omitempty"`
	Telemetry     *TelemetryConfig `yaml:"telemetry,omitempty"`
	Log           *LogConfig       `yaml:"log,omitempty"`
}

// SQLiteConfig holds the on-disk database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds the Postgres connection string.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds Redis/Valkey settings for the worker lock.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix"`
	LockTTL   string `yaml:"lockTtl,omitempty"` // default "10m"
}

// CalendarConfig configures the external calendar provider and event layout.
type CalendarConfig struct {
	Backend        CalendarBackend       `yaml:"backend"`
	TimeZone       string                `yaml:"timeZone,omitempty"`       // default "Europe/Vilnius"
	EventStartHour *int                  `yaml:"eventStartHour,omitempty"` // default 7; 0 is midnight
	EventEndHour   *int                  `yaml:"eventEndHour,omitempty"`   // default 9
	Reminders      []ReminderConfig      `yaml:"reminders,omitempty"`
	DefaultArea    string                `yaml:"defaultArea,omitempty"`
	Google         *GoogleCalendarConfig `yaml:"google,omitempty"`
	ICSFeed        *ICSFeedConfig        `yaml:"icsfeed,omitempty"`
	Throttle       *ThrottleConfig       `yaml:"throttle,omitempty"`
	Breaker        *BreakerConfig        `yaml:"breaker,omitempty"`
}

// ReminderConfig is one popup/email reminder override applied to pickup events.
type ReminderConfig struct {
	Method  string `yaml:"method" json:"method"`
	Minutes int64  `yaml:"minutes" json:"minutes"`
}

// GoogleCalendarConfig configures the Google Calendar client. Credentials are
// read from CredentialsFile, or from an AWS Secrets Manager secret when
// CredentialsSecret is set.
type GoogleCalendarConfig struct {
	CredentialsFile   string `yaml:"credentialsFile,omitempty"`
	CredentialsSecret string `yaml:"credentialsSecret,omitempty"`
	SecretRegion      string `yaml:"secretRegion,omitempty"`
}

// ICSFeedConfig configures the self-hosted ICS feed calendar backend.
type ICSFeedConfig struct {
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix,omitempty"`
	BaseURL string `yaml:"baseUrl"`
	Region  string `yaml:"region,omitempty"`
}

// ThrottleConfig controls the process-wide call-spacing gate.
type ThrottleConfig struct {
	Disabled   bool   `yaml:"disabled,omitempty"`
	MinDelay   string `yaml:"minDelay,omitempty"`   // default "500ms"
	MaxDelay   string `yaml:"maxDelay,omitempty"`   // default "1s"
	BackoffMin string `yaml:"backoffMin,omitempty"` // default "30s"
	BackoffMax string `yaml:"backoffMax,omitempty"` // default "60s"
}

// BreakerConfig controls the circuit breaker around provider calls.
type BreakerConfig struct {
	FailThreshold uint32 `yaml:"failThreshold,omitempty"` // default 5
	Cooldown      string `yaml:"cooldown,omitempty"`      // default "30s"
}

// EngineConfig holds reconciliation settings.
type EngineConfig struct {
	PendingCleanGrace string `yaml:"pendingCleanGrace,omitempty"` // default "96h"
}

// WatcherConfig configures the background sync worker.
type WatcherConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Interval        string `yaml:"interval,omitempty"`        // default "5m"
	CleanupSchedule string `yaml:"cleanupSchedule,omitempty"` // cron spec, default "@every 1h"
	Concurrency     int    `yaml:"concurrency,omitempty"`     // per-date workers, default 4
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	APIKey         string `yaml:"apiKey,omitempty"`
	MaxRequestBody int64  `yaml:"maxRequestBody,omitempty"`
}

// AlertConfig defines an alert sink configuration.
type AlertConfig struct {
	Type       AlertType `yaml:"type" json:"type"`
	URL        string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path       string    `yaml:"path,omitempty" json:"path,omitempty"`
	TopicARN   string    `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
	BucketName string    `yaml:"bucketName,omitempty" json:"bucketName,omitempty"`
	Prefix     string    `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	ProjectID  string    `yaml:"projectId,omitempty" json:"projectId,omitempty"`
	TopicID    string    `yaml:"topicId,omitempty" json:"topicId,omitempty"`
}

// TelemetryConfig enables OTLP export of metrics and traces.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"serviceName,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
}

// LogConfig sets the slog level ("debug", "info", "warn", "error").
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Package config handles loading and validation of wastecal.yaml project configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/wastecal/pkg/types"
)

// FileName is the project configuration file looked up by Load.
const FileName = "wastecal.yaml"

// Load reads and parses wastecal.yaml from the given directory. Environment
// variables in the file are expanded before parsing so secrets such as the
// Postgres DSN can stay out of the file.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Relative paths resolve against the config directory.
	if cfg.SQLite != nil && cfg.SQLite.Path != "" && !filepath.IsAbs(cfg.SQLite.Path) {
		cfg.SQLite.Path = filepath.Join(dir, cfg.SQLite.Path)
	}
	for i, d := range cfg.WasteTypeDirs {
		if !filepath.IsAbs(d) {
			cfg.WasteTypeDirs[i] = filepath.Join(dir, d)
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *types.ProjectConfig) error {
	var errs []error
	switch cfg.Provider {
	case "":
		errs = append(errs, fmt.Errorf("provider is required"))
	case types.StoreSQLite:
		if cfg.SQLite == nil || cfg.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("sqlite.path is required when provider is sqlite"))
		}
	case types.StorePostgres:
		if cfg.Postgres == nil || cfg.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("postgres.dsn is required when provider is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", cfg.Provider))
	}

	if cfg.Redis != nil {
		if cfg.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("redis.addr is required"))
		}
		errs = append(errs, checkDuration("redis.lockTtl", cfg.Redis.LockTTL))
	}
	if cfg.Calendar != nil {
		errs = append(errs, validateCalendar(cfg.Calendar))
	}
	if cfg.Engine != nil {
		errs = append(errs, checkDuration("engine.pendingCleanGrace", cfg.Engine.PendingCleanGrace))
	}
	if w := cfg.Watcher; w != nil {
		errs = append(errs, checkDuration("watcher.interval", w.Interval))
		if w.CleanupSchedule != "" {
			if _, err := cron.ParseStandard(w.CleanupSchedule); err != nil {
				errs = append(errs, fmt.Errorf("watcher.cleanupSchedule: %w", err))
			}
		}
		if w.Concurrency < 0 {
			errs = append(errs, fmt.Errorf("watcher.concurrency must not be negative"))
		}
	}
	for i, a := range cfg.Alerts {
		if a.Type == "" {
			errs = append(errs, fmt.Errorf("alerts[%d].type is required", i))
		}
	}
	if cfg.Telemetry != nil && cfg.Telemetry.Endpoint == "" {
		errs = append(errs, fmt.Errorf("telemetry.endpoint is required when telemetry is set"))
	}
	if cfg.Log != nil && cfg.Log.Level != "" {
		if _, err := ParseLevel(cfg.Log.Level); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateCalendar(c *types.CalendarConfig) error {
	var errs []error
	switch c.Backend {
	case types.CalendarGoogle:
		if c.Google == nil || (c.Google.CredentialsFile == "" && c.Google.CredentialsSecret == "") {
			errs = append(errs, fmt.Errorf("calendar.google needs credentialsFile or credentialsSecret"))
		}
	case types.CalendarICSFeed:
		if c.ICSFeed == nil || c.ICSFeed.Bucket == "" || c.ICSFeed.BaseURL == "" {
			errs = append(errs, fmt.Errorf("calendar.icsfeed needs bucket and baseUrl"))
		}
	case "":
		errs = append(errs, fmt.Errorf("calendar.backend is required"))
	default:
		errs = append(errs, fmt.Errorf("unknown calendar backend %q", c.Backend))
	}
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			errs = append(errs, fmt.Errorf("calendar.timeZone: %w", err))
		}
	}
	if h := c.EventStartHour; h != nil && (*h < 0 || *h > 23) {
		errs = append(errs, fmt.Errorf("calendar.eventStartHour %d must be within 0-23", *h))
	}
	if h := c.EventEndHour; h != nil && (*h < 1 || *h > 24) {
		errs = append(errs, fmt.Errorf("calendar.eventEndHour %d must be within 1-24", *h))
	}
	if c.EventStartHour != nil && c.EventEndHour != nil && *c.EventStartHour >= *c.EventEndHour {
		errs = append(errs, fmt.Errorf("calendar event hours %d-%d are out of order", *c.EventStartHour, *c.EventEndHour))
	}
	for i, r := range c.Reminders {
		if r.Method != "popup" && r.Method != "email" {
			errs = append(errs, fmt.Errorf("calendar.reminders[%d].method %q must be popup or email", i, r.Method))
		}
	}
	if t := c.Throttle; t != nil {
		errs = append(errs,
			checkDuration("calendar.throttle.minDelay", t.MinDelay),
			checkDuration("calendar.throttle.maxDelay", t.MaxDelay),
			checkDuration("calendar.throttle.backoffMin", t.BackoffMin),
			checkDuration("calendar.throttle.backoffMax", t.BackoffMax),
		)
	}
	if c.Breaker != nil {
		errs = append(errs, checkDuration("calendar.breaker.cooldown", c.Breaker.Cooldown))
	}
	return errors.Join(errs...)
}

func checkDuration(field, s string) error {
	if _, err := Duration(s, 0); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// Duration parses s, returning def when s is empty.
func Duration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}

// ParseLevel maps a config log level to slog.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

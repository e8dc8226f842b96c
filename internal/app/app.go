// Package app wires the store, locker, alerting, engine, calendar client and
// syncer from a wastecal.yaml project configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dwsmith1983/wastecal/internal/alert"
	"github.com/dwsmith1983/wastecal/internal/calendar"
	"github.com/dwsmith1983/wastecal/internal/calendar/google"
	"github.com/dwsmith1983/wastecal/internal/calendar/icsfeed"
	"github.com/dwsmith1983/wastecal/internal/calsync"
	"github.com/dwsmith1983/wastecal/internal/config"
	"github.com/dwsmith1983/wastecal/internal/engine"
	"github.com/dwsmith1983/wastecal/internal/provider/postgres"
	"github.com/dwsmith1983/wastecal/internal/provider/redis"
	"github.com/dwsmith1983/wastecal/internal/provider/sqlite"
	"github.com/dwsmith1983/wastecal/internal/provider/sqlstore"
	"github.com/dwsmith1983/wastecal/internal/server/handlers"
	"github.com/dwsmith1983/wastecal/internal/telemetry"
	"github.com/dwsmith1983/wastecal/internal/throttle"
	"github.com/dwsmith1983/wastecal/internal/wastetype"
	"github.com/dwsmith1983/wastecal/internal/watcher"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

const defaultRedisLockTTL = 10 * time.Minute

// ErrNoCalendar is returned by callers that need the calendar provider when
// wastecal.yaml has no calendar section.
var ErrNoCalendar = errors.New("wastecal.yaml has no calendar section")

// App holds every wired component built from one wastecal.yaml.
type App struct {
	Config     *types.ProjectConfig
	Logger     *slog.Logger
	Store      *sqlstore.Store
	Locker     *redis.Locker
	Dispatcher *alert.Dispatcher
	Registry   *wastetype.Registry
	Engine     *engine.Engine

	// Set only when a calendar section is configured.
	Client *calendar.Guarded
	Feeds  handlers.FeedSource
	Syncer *calsync.Syncer

	shutdownTelemetry telemetry.Shutdown
}

// Option configures Load.
type Option func(*options)

type options struct {
	jsonLogs bool
}

// WithJSONLogs logs JSON lines instead of text.
func WithJSONLogs() Option {
	return func(o *options) { o.jsonLogs = true }
}

// Load reads wastecal.yaml from dir and wires the store, locker, alerting,
// engine and, when configured, the calendar client and syncer.
func Load(ctx context.Context, dir string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a := &App{Config: cfg, Logger: NewLogger(cfg, o.jsonLogs)}

	a.shutdownTelemetry, err = telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	a.Store, err = openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis != nil {
		a.Locker = redis.New(cfg.Redis)
		if err := a.Locker.Ping(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Dispatcher, err = alert.NewDispatcher(cfg.Alerts, a.Logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}

	a.Registry, err = loadWasteTypes(cfg.WasteTypeDirs)
	if err != nil {
		a.Close()
		return nil, err
	}

	engOpts := []engine.Option{engine.WithLogger(a.Logger)}
	if a.Locker != nil {
		ttl, err := config.Duration(cfg.Redis.LockTTL, defaultRedisLockTTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		engOpts = append(engOpts, engine.WithLocker(a.Locker, ttl))
	}
	if cfg.Engine != nil {
		grace, err := config.Duration(cfg.Engine.PendingCleanGrace, engine.DefaultGrace)
		if err != nil {
			a.Close()
			return nil, err
		}
		engOpts = append(engOpts, engine.WithGrace(grace))
	}

	if cfg.Calendar != nil {
		if err := a.wireCalendar(ctx); err != nil {
			a.Close()
			return nil, err
		}
		engOpts = append(engOpts, engine.WithSubscriptionLinks(a.Client.SubscriptionLink))
	}
	a.Engine = engine.New(a.Store, a.Registry, a.Dispatcher.AlertFunc(), engOpts...)
	return a, nil
}

func (a *App) wireCalendar(ctx context.Context) error {
	cc := a.Config.Calendar
	syncCfg, err := calsync.ConfigFrom(cc, a.Config.Watcher)
	if err != nil {
		return err
	}
	tz := syncCfg.Location.String()

	var backend calendar.Client
	switch cc.Backend {
	case types.CalendarGoogle:
		backend, err = google.New(ctx, cc.Google, tz)
	case types.CalendarICSFeed:
		var feed *icsfeed.Client
		feed, err = icsfeed.New(ctx, cc.ICSFeed, tz)
		backend, a.Feeds = feed, feed
	default:
		err = fmt.Errorf("unknown calendar backend %q", cc.Backend)
	}
	if err != nil {
		return fmt.Errorf("creating calendar client: %w", err)
	}

	gate, err := newGate(cc.Throttle)
	if err != nil {
		return err
	}
	var bc calendar.BreakerConfig
	if cc.Breaker != nil {
		bc.FailThreshold = cc.Breaker.FailThreshold
		if bc.Cooldown, err = config.Duration(cc.Breaker.Cooldown, 0); err != nil {
			return err
		}
	}
	a.Client = calendar.NewGuarded(backend, gate, bc,
		calendar.WithLogger(a.Logger),
		calendar.WithAlertFunc(a.Dispatcher.AlertFunc()),
	)
	a.Syncer = calsync.New(a.Store, a.Client, a.Registry, syncCfg, a.Dispatcher.AlertFunc(),
		calsync.WithLogger(a.Logger))
	return nil
}

// RequireCalendar fails when no calendar provider is configured.
func (a *App) RequireCalendar() error {
	if a.Syncer == nil {
		return ErrNoCalendar
	}
	return nil
}

// NewWatcher builds the background worker around the syncer.
func (a *App) NewWatcher() *watcher.Watcher {
	var wc types.WatcherConfig
	if a.Config.Watcher != nil {
		wc = *a.Config.Watcher
	}
	var opts []watcher.Option
	if a.Locker != nil {
		// Load already rejected an unparseable lockTtl.
		ttl, _ := config.Duration(a.Config.Redis.LockTTL, defaultRedisLockTTL)
		opts = append(opts, watcher.WithLocker(a.Locker, ttl))
	}
	return watcher.New(a.Store, a.Syncer, a.Dispatcher.AlertFunc(), a.Logger, wc, opts...)
}

// Close releases connections. Safe on a partially built app.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.Store != nil {
		_ = a.Store.Close()
	}
	if a.Locker != nil {
		_ = a.Locker.Close()
	}
	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(ctx); err != nil {
			a.Logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
}

// NewLogger builds a stderr logger at the configured level.
func NewLogger(cfg *types.ProjectConfig, jsonLogs bool) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Log != nil {
		level, _ = config.ParseLevel(cfg.Log.Level)
	}
	hopts := &slog.HandlerOptions{Level: level}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(os.Stderr, hopts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, hopts))
}

// openStore opens the configured storage backend.
func openStore(ctx context.Context, cfg *types.ProjectConfig) (*sqlstore.Store, error) {
	switch cfg.Provider {
	case types.StoreSQLite:
		if cfg.SQLite == nil {
			return nil, fmt.Errorf("sqlite config is required when provider is sqlite")
		}
		return sqlite.Open(ctx, cfg.SQLite.Path)
	case types.StorePostgres:
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("postgres config is required when provider is postgres")
		}
		return postgres.New(ctx, cfg.Postgres.DSN)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func newGate(tc *types.ThrottleConfig) (*throttle.Gate, error) {
	var c throttle.Config
	if tc != nil {
		var err error
		c.Disabled = tc.Disabled
		if c.MinDelay, err = config.Duration(tc.MinDelay, 0); err != nil {
			return nil, err
		}
		if c.MaxDelay, err = config.Duration(tc.MaxDelay, 0); err != nil {
			return nil, err
		}
		if c.BackoffMin, err = config.Duration(tc.BackoffMin, 0); err != nil {
			return nil, err
		}
		if c.BackoffMax, err = config.Duration(tc.BackoffMax, 0); err != nil {
			return nil, err
		}
	}
	return throttle.New(c), nil
}

func loadWasteTypes(dirs []string) (*wastetype.Registry, error) {
	reg := wastetype.NewRegistry()
	for _, dir := range dirs {
		if err := reg.LoadDir(dir); err != nil {
			return nil, fmt.Errorf("loading waste types from %s: %w", dir, err)
		}
	}
	return reg, nil
}

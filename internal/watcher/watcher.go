// Package watcher implements the background worker that materializes
// calendar streams on the external provider and retires abandoned ones.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dwsmith1983/wastecal/internal/calsync"
	"github.com/dwsmith1983/wastecal/internal/engine"
	"github.com/dwsmith1983/wastecal/internal/metrics"
	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// Defaults applied when the watcher config leaves a field empty.
const (
	DefaultInterval        = 5 * time.Minute
	DefaultCleanupSchedule = "@every 1h"
)

// SyncLockKey keeps concurrent worker instances from syncing the same pass.
const SyncLockKey = "calendar-sync"

// PassReport summarizes one sync pass.
type PassReport struct {
	Streams int  `json:"streams"`
	Synced  int  `json:"synced"`
	Failed  int  `json:"failed"`
	Skipped bool `json:"skipped,omitempty"`
}

// Watcher periodically syncs streams that need it and runs the deprecation
// sweep on a cron schedule.
type Watcher struct {
	provider provider.Provider
	syncer   *calsync.Syncer
	locker   provider.Locker
	lockTTL  time.Duration
	alertFn  func(types.Alert)
	logger   *slog.Logger
	interval time.Duration
	schedule cron.Schedule

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLocker coordinates passes across processes through l. A zero ttl
// keeps DefaultLockTTL.
func WithLocker(l provider.Locker, ttl time.Duration) Option {
	return func(w *Watcher) {
		w.locker = l
		if ttl > 0 {
			w.lockTTL = ttl
		}
	}
}

// New creates a new Watcher. An unparseable interval or cleanup schedule
// falls back to the default with a warning.
func New(prov provider.Provider, syncer *calsync.Syncer, alertFn func(types.Alert), logger *slog.Logger, cfg types.WatcherConfig, opts ...Option) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		provider: prov,
		syncer:   syncer,
		alertFn:  alertFn,
		logger:   logger,
		interval: DefaultInterval,
		lockTTL:  DefaultLockTTL,
	}

	if cfg.Interval != "" {
		d, err := time.ParseDuration(cfg.Interval)
		if err != nil || d <= 0 {
			logger.Warn("invalid watcher interval, using default", "interval", cfg.Interval, "default", DefaultInterval)
		} else {
			w.interval = d
		}
	}

	spec := cfg.CleanupSchedule
	if spec == "" {
		spec = DefaultCleanupSchedule
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		logger.Warn("invalid cleanup schedule, using default", "schedule", spec, "error", err)
		sched, _ = cron.ParseStandard(DefaultCleanupSchedule)
	}
	w.schedule = sched

	for _, o := range opts {
		o(w)
	}
	return w
}

// Interval returns the sync pass interval.
func (w *Watcher) Interval() time.Duration { return w.interval }

// Start begins the sync loop and the cleanup schedule.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{w.logger})))
	w.cron.Schedule(w.schedule, cron.FuncJob(func() {
		if _, err := w.Cleanup(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("cleanup sweep failed", "error", err)
		}
	}))
	w.cron.Start()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Info("watcher started", "interval", w.interval)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		// Run immediately on start
		w.pass(ctx)

		for {
			select {
			case <-ctx.Done():
				w.logger.Info("watcher stopping")
				return
			case <-ticker.C:
				w.pass(ctx)
			}
		}
	}()
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		if w.cron != nil {
			<-w.cron.Stop().Done()
		}
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("watcher stopped")
	case <-ctx.Done():
		w.logger.Warn("watcher stop timed out")
	}
}

func (w *Watcher) pass(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("sync pass failed", "error", err)
	}
}

// RunOnce runs Phase 1 then Phase 2 for every stream without a calendar or
// with unreconciled events. A failing stream is logged and left for the next
// pass. The pass is skipped when another worker holds the sync lock, and
// stops with ErrLockLost if the lock is taken over mid-pass.
func (w *Watcher) RunOnce(ctx context.Context) (PassReport, error) {
	var rep PassReport
	ctx, release, ok, err := w.hold(ctx, SyncLockKey)
	if err != nil {
		return rep, err
	}
	if !ok {
		w.logger.Info("sync pass skipped, lock held elsewhere")
		rep.Skipped = true
		return rep, nil
	}
	defer release()

	streams, err := w.pending(ctx)
	if err != nil {
		return rep, err
	}
	rep.Streams = len(streams)

	for _, cs := range streams {
		if ctx.Err() != nil {
			return rep, context.Cause(ctx)
		}
		if err := w.syncStream(ctx, cs.ID); err != nil {
			if ctx.Err() != nil {
				return rep, context.Cause(ctx)
			}
			rep.Failed++
			metrics.SyncFailures.Add(ctx, 1)
			w.logger.Error("stream sync failed", "stream", cs.ID, "error", err)
			w.fireAlert(types.Alert{
				Level:     types.AlertLevelWarning,
				Category:  types.AlertCategorySyncFailed,
				StreamID:  cs.ID,
				Message:   fmt.Sprintf("sync of stream %s failed: %v", cs.ID, err),
				Timestamp: time.Now(),
			})
			continue
		}
		rep.Synced++
		metrics.SyncPasses.Add(ctx, 1)
	}

	if rep.Streams > 0 {
		w.logger.Info("sync pass complete", "streams", rep.Streams, "synced", rep.Synced, "failed", rep.Failed)
	}
	return rep, nil
}

// pending reads the streams needing sync under the reconcile lock, so the
// list never reflects a stream that is mid-split.
func (w *Watcher) pending(ctx context.Context) ([]types.CalendarStream, error) {
	ctx, release, ok, err := w.hold(ctx, engine.LockKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("listing streams: %w", engine.ErrLocked)
	}
	defer release()

	streams, err := w.provider.ListStreamsNeedingSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing streams: %w", err)
	}
	return streams, nil
}

func (w *Watcher) syncStream(ctx context.Context, streamID string) error {
	res, err := w.syncer.CreateCalendarForStream(ctx, streamID)
	if err != nil {
		return fmt.Errorf("phase 1: %w", err)
	}
	if res.Warning != "" {
		return errors.New(res.Warning)
	}
	if _, err := w.syncer.SyncCalendarStream(ctx, streamID); err != nil {
		return fmt.Errorf("phase 2: %w", err)
	}
	return nil
}

// Cleanup runs one deprecation sweep. It holds the reconcile lock so a
// retiring stream cannot regain members while it is being deleted.
func (w *Watcher) Cleanup(ctx context.Context) (calsync.CleanupReport, error) {
	ctx, release, ok, err := w.hold(ctx, engine.LockKey)
	if err != nil {
		return calsync.CleanupReport{}, err
	}
	if !ok {
		w.logger.Info("cleanup sweep skipped, lock held elsewhere")
		return calsync.CleanupReport{}, nil
	}
	defer release()

	rep, err := w.syncer.RunCleanup(ctx)
	if err != nil {
		return rep, err
	}
	if rep.Notices > 0 || len(rep.Deleted) > 0 || rep.Failed > 0 {
		w.logger.Info("cleanup sweep complete",
			"notices", rep.Notices,
			"deleted", len(rep.Deleted),
			"kept", len(rep.Kept),
			"failed", rep.Failed,
		)
	}
	return rep, nil
}

func (w *Watcher) fireAlert(alert types.Alert) {
	if w.alertFn != nil {
		w.alertFn(alert)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}

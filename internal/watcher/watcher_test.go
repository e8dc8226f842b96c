package watcher_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/wastecal/internal/calendar"
	"github.com/dwsmith1983/wastecal/internal/calsync"
	"github.com/dwsmith1983/wastecal/internal/engine"
	"github.com/dwsmith1983/wastecal/internal/provider/sqlstore"
	"github.com/dwsmith1983/wastecal/internal/testutil"
	"github.com/dwsmith1983/wastecal/internal/watcher"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	store  *sqlstore.Store
	cal    *testutil.FakeCalendar
	eng    *engine.Engine
	sync   *calsync.Syncer
	locker *testutil.MockLocker
	alerts *testutil.AlertSink

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  testutil.NewStore(t),
		cal:    testutil.NewFakeCalendar(),
		locker: testutil.NewMockLocker(),
		alerts: testutil.NewAlertSink(),
		now:    time.Date(2026, 2, 2, 6, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.DiscardHandler)
	f.eng = engine.New(f.store, nil, f.alerts.Func(),
		engine.WithClock(f.clock),
		engine.WithLogger(logger),
		engine.WithLocker(f.locker, time.Minute),
		engine.WithLockWait(0),
	)
	f.sync = calsync.New(f.store, f.cal, nil, calsync.Config{Location: time.UTC, StartHour: 7, EndHour: 9, Concurrency: 2},
		f.alerts.Func(),
		calsync.WithClock(f.clock),
		calsync.WithLogger(logger),
	)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) watcher(cfg types.WatcherConfig) *watcher.Watcher {
	return watcher.New(f.store, f.sync, f.alerts.Func(), slog.New(slog.DiscardHandler), cfg, watcher.WithLocker(f.locker, 0))
}

func (f *fixture) ingest(t *testing.T, recs ...types.Record) {
	t.Helper()
	_, err := f.eng.Ingest(context.Background(), types.Batch{SourceURL: "test", Records: recs})
	require.NoError(t, err)
}

func rec(raw string, dates ...string) types.Record {
	return types.Record{
		AdminArea:  "Nemenčinė",
		Settlement: raw,
		RawSource:  raw,
		Dates:      testutil.Days(dates...),
		WasteType:  types.WasteGeneral,
	}
}

func (f *fixture) needingSync(t *testing.T) int {
	t.Helper()
	streams, err := f.store.ListStreamsNeedingSync(context.Background())
	require.NoError(t, err)
	return len(streams)
}

func TestNew_Defaults(t *testing.T) {
	f := newFixture(t)

	w := f.watcher(types.WatcherConfig{})
	assert.Equal(t, watcher.DefaultInterval, w.Interval())

	w = f.watcher(types.WatcherConfig{Interval: "not-a-duration", CleanupSchedule: "every tuesday"})
	assert.Equal(t, watcher.DefaultInterval, w.Interval())

	w = f.watcher(types.WatcherConfig{Interval: "90s"})
	assert.Equal(t, 90*time.Second, w.Interval())
}

func TestRunOnce_SyncsPendingStreams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t,
		rec("Pikeliškės", "2026-02-10", "2026-02-24"),
		rec("Sudervė", "2026-02-11"),
	)
	require.Equal(t, 2, f.needingSync(t))

	w := f.watcher(types.WatcherConfig{})
	rep, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, watcher.PassReport{Streams: 2, Synced: 2}, rep)
	assert.Equal(t, 2, f.cal.Calls("Create"))
	assert.Equal(t, 3, f.cal.Calls("InsertEvent"))
	assert.Zero(t, f.needingSync(t))

	rep, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, watcher.PassReport{}, rep)
}

func TestRunOnce_FailuresAreRetriedNextPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, rec("Pikeliškės", "2026-02-10"), rec("Sudervė", "2026-02-11"))
	f.cal.CreateErr = errors.New("connection reset")

	w := f.watcher(types.WatcherConfig{})
	rep, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Failed)
	assert.Zero(t, rep.Synced)

	alerts := f.alerts.Drain()
	require.Len(t, alerts, 2)
	for _, a := range alerts {
		assert.Equal(t, types.AlertCategorySyncFailed, a.Category)
		assert.NotEmpty(t, a.StreamID)
	}

	f.cal.CreateErr = nil
	rep, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Synced)
	assert.Zero(t, f.needingSync(t))
}

func TestRunOnce_ResyncsAfterDateChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, rec("Pikeliškės", "2026-02-10", "2026-02-24"))

	w := f.watcher(types.WatcherConfig{})
	_, err := w.RunOnce(ctx)
	require.NoError(t, err)

	f.ingest(t, rec("Pikeliškės", "2026-02-10", "2026-02-25"))
	require.Equal(t, 1, f.needingSync(t))
	f.cal.ResetCalls()

	rep, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Synced)
	assert.Equal(t, 0, f.cal.Calls("Create"), "existing calendar is reused")
	assert.Equal(t, []string{"2026-02-25"}, f.cal.InsertedDates())
	assert.Equal(t, 1, f.cal.Calls("DeleteEvent"))
}

func TestRunOnce_SkipsWhenSyncLockHeld(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, rec("Pikeliškės", "2026-02-10"))
	f.locker.Hold(watcher.SyncLockKey)

	rep, err := f.watcher(types.WatcherConfig{}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
	assert.Equal(t, 0, f.cal.Calls("Create"))
}

func TestRunOnce_WaitsForReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, rec("Pikeliškės", "2026-02-10"))
	f.locker.Hold(engine.LockKey)

	w := f.watcher(types.WatcherConfig{})
	_, err := w.RunOnce(ctx)
	assert.ErrorIs(t, err, engine.ErrLocked)
	assert.Equal(t, 0, f.cal.Calls("Create"))

	// The sync lock was released despite the failure.
	f.locker.Expire(engine.LockKey)
	rep, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Synced)
}

func TestCleanup_DeletesRetiredStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, rec("Pikeliškės", "2026-02-10"), rec("Sudervė", "2026-02-10"))
	w := f.watcher(types.WatcherConfig{})
	_, err := w.RunOnce(ctx)
	require.NoError(t, err)
	calendars, err := f.cal.List(ctx)
	require.NoError(t, err)
	require.Len(t, calendars, 1)
	shared := calendars[0].ID

	f.ingest(t, rec("Sudervė", "2026-02-12"))
	pending, err := f.store.ListStreamsPendingCleanup(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	rep, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Notices)
	assert.Empty(t, rep.Deleted)

	f.advance(engine.DefaultGrace)
	rep, err = w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{pending[0].ID}, rep.Deleted)
	assert.False(t, f.cal.Has(shared))
}

func TestCleanup_SkipsWhenReconcileLockHeld(t *testing.T) {
	f := newFixture(t)
	f.locker.Hold(engine.LockKey)

	rep, err := f.watcher(types.WatcherConfig{}).Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calsync.CleanupReport{}, rep)
	assert.Equal(t, 0, f.cal.Calls("List"))
}

func TestWatcher_StartStop(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, rec("Pikeliškės", "2026-02-10"), rec("Sudervė", "2026-02-11"))

	w := f.watcher(types.WatcherConfig{Interval: "20ms", CleanupSchedule: "@every 1s"})
	w.Start(context.Background())
	testutil.WaitFor(t, 5*time.Second, func() bool {
		streams, err := f.store.ListStreamsNeedingSync(context.Background())
		return err == nil && len(streams) == 0
	}, "streams synced by the loop")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.Stop(ctx)
	assert.Equal(t, 2, f.cal.Calls("Create"))
}

func TestWatcher_CronRunsCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, rec("Pikeliškės", "2026-02-10"), rec("Sudervė", "2026-02-10"))
	f.ingest(t, rec("Sudervė", "2026-02-12"))
	pending, err := f.store.ListStreamsPendingCleanup(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	f.advance(engine.DefaultGrace)

	w := f.watcher(types.WatcherConfig{Interval: "1h", CleanupSchedule: "@every 1s"})
	w.Start(ctx)
	testutil.WaitFor(t, 5*time.Second, func() bool {
		left, err := f.store.ListStreamsPendingCleanup(ctx)
		return err == nil && len(left) == 0
	}, "retired stream deleted by the cleanup schedule")

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	w.Stop(stopCtx)
}

func TestRunOnce_RenewsSyncLock(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, rec("Pikeliškės", "2026-02-10"))
	f.cal.InsertErr = func(string, calendar.Event) error {
		time.Sleep(60 * time.Millisecond)
		return nil
	}

	w := watcher.New(f.store, f.sync, f.alerts.Func(), slog.New(slog.DiscardHandler), types.WatcherConfig{},
		watcher.WithLocker(f.locker, 30*time.Millisecond))
	rep, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Synced)
	assert.Positive(t, f.locker.Extends())

	ok, err := f.locker.AcquireLock(context.Background(), watcher.SyncLockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock released after the pass")
}

func TestRunOnce_StopsWhenSyncLockTakenOver(t *testing.T) {
	f := newFixture(t)
	dates := []string{"2026-02-10", "2026-02-11", "2026-02-12", "2026-02-13", "2026-02-14", "2026-02-15", "2026-02-16", "2026-02-17"}
	f.ingest(t, rec("Pikeliškės", dates...))

	var once sync.Once
	f.cal.InsertErr = func(string, calendar.Event) error {
		once.Do(func() {
			// The TTL lapses and another worker takes the lock.
			f.locker.Expire(watcher.SyncLockKey)
			f.locker.Hold(watcher.SyncLockKey)
			time.Sleep(60 * time.Millisecond)
		})
		return nil
	}

	w := watcher.New(f.store, f.sync, f.alerts.Func(), slog.New(slog.DiscardHandler), types.WatcherConfig{},
		watcher.WithLocker(f.locker, 30*time.Millisecond))
	_, err := w.RunOnce(context.Background())
	require.ErrorIs(t, err, watcher.ErrLockLost)

	assert.True(t, f.locker.HeldElsewhere(watcher.SyncLockKey), "the new owner's lock survives our release")
	assert.Less(t, f.cal.Calls("InsertEvent"), len(dates))

	streams, err := f.store.ListCalendarStreams(context.Background())
	require.NoError(t, err)
	require.Len(t, streams, 1)
	rows, err := f.store.ListStreamEvents(context.Background(), streams[0].ID)
	require.NoError(t, err)
	assert.Len(t, rows, f.cal.Calls("InsertEvent"), "every created event has a local row")
	assert.Nil(t, streams[0].CalendarSyncedAt)
}

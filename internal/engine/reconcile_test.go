package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/wastecal/internal/fingerprint"
	"github.com/dwsmith1983/wastecal/internal/testutil"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

func (f *fixture) group(t *testing.T, contentHash string, dates ...string) string {
	t.Helper()
	id, err := f.eng.FindOrCreateScheduleGroup(context.Background(), testutil.Days(dates...), types.WasteGeneral, contentHash)
	require.NoError(t, err)
	return id
}

func (f *fixture) reconcile(t *testing.T) ReconcileReport {
	t.Helper()
	rep, err := f.eng.ReconcileCalendarStreams(context.Background())
	require.NoError(t, err)
	return rep
}

func TestReconcile_SharedPatternConverges(t *testing.T) {
	f := newFixture(t)

	a := f.group(t, "k1_aaa", "2026-01-08", "2026-01-22")
	b := f.group(t, "k1_bbb", "2026-01-22", "2026-01-08")

	rep := f.reconcile(t)
	assert.Equal(t, 2, rep.Linked)
	assert.Equal(t, 1, rep.Created)
	assert.Empty(t, rep.Orphaned)

	assert.Equal(t, f.linked(t, a), f.linked(t, b))

	streams, err := f.store.ListCalendarStreams(context.Background())
	require.NoError(t, err)
	assert.Len(t, streams, 1)
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.group(t, "k1_aaa", "2026-01-08")
	f.reconcile(t)

	rep := f.reconcile(t)
	assert.Equal(t, ReconcileReport{}, rep)
}

func TestReconcile_DateChangeKeepsCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := f.group(t, "k1_aaa", "2026-01-08", "2026-01-22")
	f.reconcile(t)
	sid := f.linked(t, g)
	require.NoError(t, f.store.SetStreamCalendarID(ctx, sid, "cal-1", f.now))
	require.NoError(t, f.store.MarkStreamSynced(ctx, sid, f.now))

	f.advance(time.Hour)
	again := f.group(t, "k1_aaa", "2026-02-05", "2026-02-19")
	assert.Equal(t, g, again)

	rep := f.reconcile(t)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, 1, rep.Invalidated)

	cs := f.stream(t, sid)
	assert.Equal(t, sid, f.linked(t, g))
	assert.Equal(t, "cal-1", cs.CalendarID)
	assert.Nil(t, cs.CalendarSyncedAt)
	assert.Equal(t, fingerprint.DatesHash(testutil.Days("2026-02-05", "2026-02-19")), cs.DatesHash)
	assert.Equal(t, []string{"2026-02-05", "2026-02-19"}, cs.Dates)
}

func TestReconcile_UnchangedHashKeepsSyncStamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := f.group(t, "k1_aaa", "2026-01-08")
	f.reconcile(t)
	sid := f.linked(t, g)
	require.NoError(t, f.store.SetStreamCalendarID(ctx, sid, "cal-1", f.now))
	require.NoError(t, f.store.MarkStreamSynced(ctx, sid, f.now))

	f.group(t, "k1_aaa", "2026-01-08")
	f.reconcile(t)

	assert.NotNil(t, f.stream(t, sid).CalendarSyncedAt)
}

func TestReconcile_SplitAbandonsOriginal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.group(t, "k1_aaa", "2026-01-08", "2026-01-22")
	b := f.group(t, "k1_bbb", "2026-01-08", "2026-01-22")
	f.reconcile(t)
	s := f.linked(t, a)
	require.Equal(t, s, f.linked(t, b))
	require.NoError(t, f.store.SetStreamCalendarID(ctx, s, "cal-1", f.now))

	f.advance(time.Hour)
	f.group(t, "k1_aaa", "2026-02-05", "2026-02-19")
	rep := f.reconcile(t)

	assert.Equal(t, []string{s}, rep.Split)
	assert.Equal(t, 2, rep.Created)

	sa, sb := f.linked(t, a), f.linked(t, b)
	assert.NotEqual(t, s, sa)
	assert.NotEqual(t, s, sb)
	assert.NotEqual(t, sa, sb)

	orig := f.stream(t, s)
	require.NotNil(t, orig.PendingCleanStartedAt)
	require.NotNil(t, orig.PendingCleanUntil)
	assert.True(t, orig.PendingCleanStartedAt.Equal(f.now))
	assert.True(t, orig.PendingCleanUntil.Equal(f.now.Add(4*24*time.Hour)))
	assert.Nil(t, orig.PendingCleanNoticeSentAt)
	assert.Equal(t, "cal-1", orig.CalendarID, "retired stream keeps its calendar until deletion")

	assert.Equal(t, fingerprint.DatesHash(testutil.Days("2026-02-05", "2026-02-19")), f.stream(t, sa).DatesHash)
	assert.Equal(t, fingerprint.DatesHash(testutil.Days("2026-01-08", "2026-01-22")), f.stream(t, sb).DatesHash)

	alerts := f.alerts.Drain()
	require.Len(t, alerts, 1)
	assert.Equal(t, types.AlertCategoryStreamSplit, alerts[0].Category)
	assert.Equal(t, s, alerts[0].StreamID)
}

func TestReconcile_SplitIntoK(t *testing.T) {
	f := newFixture(t)

	groups := []string{
		f.group(t, "k1_aaa", "2026-01-08"),
		f.group(t, "k1_bbb", "2026-01-08"),
		f.group(t, "k1_ccc", "2026-01-08"),
		f.group(t, "k1_ddd", "2026-01-08"),
	}
	f.reconcile(t)
	s := f.linked(t, groups[0])

	f.group(t, "k1_bbb", "2026-01-15")
	f.group(t, "k1_ccc", "2026-01-29")
	rep := f.reconcile(t)
	require.Equal(t, []string{s}, rep.Split)

	assigned := map[string]bool{}
	for _, g := range groups {
		sid := f.linked(t, g)
		assert.NotEqual(t, s, sid)
		assigned[sid] = true
	}
	assert.Len(t, assigned, 3)
	assert.Equal(t, f.linked(t, groups[0]), f.linked(t, groups[3]))
	assert.True(t, f.stream(t, s).PendingClean())
}

func TestReconcile_SplitReusesLiveStream(t *testing.T) {
	f := newFixture(t)

	a := f.group(t, "k1_aaa", "2026-01-08")
	b := f.group(t, "k1_bbb", "2026-01-08")
	c := f.group(t, "k1_ccc", "2026-01-15")
	f.reconcile(t)
	existing := f.linked(t, c)

	f.group(t, "k1_bbb", "2026-01-15")
	rep := f.reconcile(t)

	assert.Equal(t, existing, f.linked(t, b))
	assert.Equal(t, existing, f.linked(t, c))
	assert.Equal(t, 1, rep.Created, "only the bucket without a live match allocates")
	assert.NotEqual(t, rep.Split[0], f.linked(t, a))
}

func TestReconcile_MergesDuplicatePattern(t *testing.T) {
	f := newFixture(t)

	a := f.group(t, "k1_aaa", "2026-01-08")
	f.reconcile(t)
	older := f.linked(t, a)

	f.advance(time.Hour)
	b := f.group(t, "k1_bbb", "2026-01-15")
	f.reconcile(t)
	newer := f.linked(t, b)
	require.NotEqual(t, older, newer)

	f.advance(time.Hour)
	f.group(t, "k1_bbb", "2026-01-08")
	rep := f.reconcile(t)

	assert.Equal(t, []string{newer}, rep.Merged)
	assert.Equal(t, []string{newer}, rep.Orphaned)
	assert.Equal(t, older, f.linked(t, a))
	assert.Equal(t, older, f.linked(t, b))
	assert.False(t, f.stream(t, older).PendingClean())
	assert.True(t, f.stream(t, newer).PendingClean())
}

func TestReconcile_OrphanSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orphan, err := f.eng.FindOrCreateCalendarStream(ctx, StreamRequest{Dates: testutil.Days("2026-03-01"), WasteType: types.WasteGlass})
	require.NoError(t, err)

	rep := f.reconcile(t)
	assert.Equal(t, []string{orphan}, rep.Orphaned)
	cs := f.stream(t, orphan)
	require.NotNil(t, cs.PendingCleanUntil)
	assert.True(t, cs.PendingCleanUntil.Equal(f.now.Add(DefaultGrace)))

	// A second pass leaves the running timer alone.
	f.advance(time.Hour)
	rep = f.reconcile(t)
	assert.Empty(t, rep.Orphaned)
	assert.True(t, f.stream(t, orphan).PendingCleanStartedAt.Equal(f.now.Add(-time.Hour)))
}

func TestReconcile_RevivesStreamThatRegainedMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := f.group(t, "k1_aaa", "2026-01-08")
	sid, err := f.eng.FindOrCreateCalendarStream(ctx, StreamRequest{Dates: testutil.Days("2026-01-08"), WasteType: types.WasteGeneral})
	require.NoError(t, err)
	require.NoError(t, f.store.MarkStreamPendingClean(ctx, sid, f.now, f.now.Add(DefaultGrace)))
	require.NoError(t, f.store.UpsertLink(ctx, g, sid, f.now))

	rep := f.reconcile(t)
	assert.Equal(t, 1, rep.Revived)
	assert.Equal(t, 0, rep.Invalidated)

	cs := f.stream(t, sid)
	assert.False(t, cs.PendingClean())
	assert.Nil(t, cs.PendingCleanUntil)
}

func TestReconcile_Retired(t *testing.T) {
	rep := ReconcileReport{Split: []string{"a"}, Orphaned: []string{"b", "c"}}
	assert.Equal(t, []string{"a", "b", "c"}, rep.Retired())
}

func TestReconcile_LockHeld(t *testing.T) {
	locker := testutil.NewMockLocker()
	locker.Hold(LockKey)
	f := newFixture(t, WithLocker(locker, time.Minute), WithLockWait(0))

	_, err := f.eng.ReconcileCalendarStreams(context.Background())
	assert.ErrorIs(t, err, ErrLocked)
}

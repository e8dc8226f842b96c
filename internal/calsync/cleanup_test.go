package calsync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/wastecal/internal/calendar"
	"github.com/dwsmith1983/wastecal/internal/calsync"
	"github.com/dwsmith1983/wastecal/internal/engine"
	"github.com/dwsmith1983/wastecal/internal/fingerprint"
	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// retire builds a shared stream for two settlements, optionally gives it a
// calendar, then splits it so the shared stream is left pending clean.
func (e *env) retire(t *testing.T, withCalendar bool) (streamID, calendarID string) {
	t.Helper()
	e.ingest(t,
		rec("Pikeliškės", "2026-01-08", "2026-01-22"),
		rec("Sudervė", "2026-01-08", "2026-01-22"),
	)
	streamID = e.streamOf(t, "Pikeliškės")
	require.Equal(t, streamID, e.streamOf(t, "Sudervė"))
	if withCalendar {
		calendarID = e.createAndSync(t, streamID)
	}

	e.advance(time.Hour)
	e.ingest(t, rec("Sudervė", "2026-01-09", "2026-01-23"))
	cs := e.stream(t, streamID)
	require.True(t, cs.PendingClean())
	require.NotNil(t, cs.PendingCleanUntil)
	e.alerts.Drain()
	return streamID, calendarID
}

func TestRunCleanup_NoticeThenDelete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sid, calID := e.retire(t, true)
	e.cal.ResetCalls()

	rep, err := e.sync.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Notices)
	assert.Empty(t, rep.Deleted)
	assert.NotNil(t, e.stream(t, sid).PendingCleanNoticeSentAt)

	var notices []calendar.Event
	for _, ev := range e.cal.Events(calID) {
		if ev.Summary != "Buitinių atliekų surinkimas" {
			notices = append(notices, ev)
		}
	}
	require.Len(t, notices, 3)
	for i, ev := range notices {
		assert.Equal(t, time.Date(2026, 1, 5+i, 9, 0, 0, 0, vilnius), ev.Start)
		assert.Equal(t, time.Date(2026, 1, 5+i, 11, 0, 0, 0, vilnius), ev.End)
		assert.Contains(t, ev.Description, "po 4 dienų")
	}

	// The notice is posted once.
	rep, err = e.sync.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Notices)
	assert.Equal(t, 3, e.cal.Calls("InsertEvent"))

	e.advance(engine.DefaultGrace - time.Minute)
	rep, err = e.sync.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Deleted)
	assert.True(t, e.cal.Has(calID))

	e.advance(time.Minute)
	rep, err = e.sync.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{sid}, rep.Deleted)
	assert.False(t, e.cal.Has(calID))

	_, err = e.store.GetCalendarStream(ctx, sid)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	assert.Empty(t, e.events(t, sid))
}

func TestRunCleanup_StreamWithoutCalendar(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sid, _ := e.retire(t, false)

	rep, err := e.sync.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Notices)

	e.advance(engine.DefaultGrace)
	rep, err = e.sync.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{sid}, rep.Deleted)
	assert.Equal(t, 0, e.cal.Calls("Delete"))
	assert.Equal(t, 0, e.cal.Calls("InsertEvent"))
}

func TestRunCleanup_FailedNoticeDoesNotBlockDeletion(t *testing.T) {
	e := newEnv(t)
	sid, calID := e.retire(t, true)
	e.cal.InsertErr = func(string, calendar.Event) error { return errors.New("backend error") }

	e.advance(engine.DefaultGrace)
	rep, err := e.sync.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, []string{sid}, rep.Deleted)
	assert.False(t, e.cal.Has(calID))

	alerts := e.alerts.Drain()
	require.Len(t, alerts, 1)
	assert.Equal(t, types.AlertCategoryCleanupFailed, alerts[0].Category)
	assert.Equal(t, sid, alerts[0].StreamID)
}

func TestRunCleanup_DeleteFailureIsRetried(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sid, calID := e.retire(t, true)
	e.cal.DeleteErr = errors.New("backend error")

	e.advance(engine.DefaultGrace)
	rep, err := e.sync.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Empty(t, rep.Deleted)
	assert.True(t, e.stream(t, sid).PendingClean())

	e.cal.DeleteErr = nil
	rep, err = e.sync.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{sid}, rep.Deleted)
	assert.False(t, e.cal.Has(calID))
}

func TestDeleteCalendarForStream_KeepsLinkedStream(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sid, calID := e.retire(t, true)

	gid := fingerprint.ScheduleGroupID(fingerprint.ContentHash("Pikeliškės"), types.WasteGeneral)
	require.NoError(t, e.store.UpsertLink(ctx, gid, sid, e.now))

	deleted, err := e.sync.DeleteCalendarForStream(ctx, sid)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, e.cal.Has(calID))
	assert.Equal(t, calID, e.stream(t, sid).CalendarID)
}

func TestDeleteCalendarForStream_RequiresPendingClean(t *testing.T) {
	e := newEnv(t)
	e.ingest(t, rec("Pikeliškės", "2026-01-08"))
	sid := e.streamOf(t, "Pikeliškės")

	deleted, err := e.sync.DeleteCalendarForStream(context.Background(), sid)
	assert.ErrorIs(t, err, calsync.ErrNotPendingClean)
	assert.False(t, deleted)
}

func TestDeleteCalendarForStream_CalendarAlreadyGone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	sid, calID := e.retire(t, true)
	e.cal.Remove(calID)

	deleted, err := e.sync.DeleteCalendarForStream(ctx, sid)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestPostCleanupNotice_RequiresPendingClean(t *testing.T) {
	e := newEnv(t)
	e.ingest(t, rec("Pikeliškės", "2026-01-08"))
	sid := e.streamOf(t, "Pikeliškės")

	err := e.sync.PostCleanupNotice(context.Background(), sid)
	assert.ErrorIs(t, err, calsync.ErrNotPendingClean)
}

func TestPendingCleanStreamsAreNotSynced(t *testing.T) {
	e := newEnv(t)
	sid, _ := e.retire(t, true)

	_, err := e.sync.SyncCalendarStream(context.Background(), sid)
	assert.ErrorIs(t, err, calsync.ErrPendingClean)
}

func TestCleanupOrphanedCalendars(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.ingest(t, rec("Pikeliškės", "2026-01-08"))
	tracked := e.createAndSync(t, e.streamOf(t, "Pikeliškės"))

	e.cal.Seed(calendar.Calendar{ID: "primary", Summary: "owner@example.com", Primary: true})
	e.cal.Seed(calendar.Calendar{ID: "stray", Summary: "Nemenčinė - Bendros atliekos - abc123"})

	rep, err := e.sync.CleanupOrphanedCalendars(ctx, false)
	require.NoError(t, err)
	require.Len(t, rep.Orphans, 1)
	assert.Equal(t, "stray", rep.Orphans[0].ID)
	assert.Equal(t, 1, rep.Deleted)
	assert.False(t, rep.DryRun)

	assert.False(t, e.cal.Has("stray"))
	assert.True(t, e.cal.Has("primary"))
	assert.True(t, e.cal.Has(tracked))
}

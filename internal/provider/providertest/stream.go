package providertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// TestStreamPatternLookup verifies the oldest live stream wins, exclusion
// skips a stream and pending-clean streams are never reused.
func TestStreamPatternLookup(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	r := dateRange("2026-01-08", ns(t, "x"))
	older := stream(t, "older", types.WasteGeneral, r, epoch)
	newer := stream(t, "newer", types.WasteGeneral, r, epoch.Add(time.Second))
	glass := stream(t, "glass", types.WasteGlass, r, epoch.Add(-time.Hour))
	for _, cs := range []types.CalendarStream{newer, older, glass} {
		require.NoError(t, prov.InsertCalendarStream(ctx, cs))
	}

	q := provider.PatternQuery{WasteType: types.WasteGeneral, DatesHash: r.DatesHash}
	got, err := prov.FindStreamByPattern(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)
	assert.Equal(t, r.Dates, got.Dates)

	q.ExcludeStreamID = older.ID
	got, err = prov.FindStreamByPattern(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	require.NoError(t, prov.MarkStreamPendingClean(ctx, newer.ID, epoch, epoch.Add(96*time.Hour)))
	_, err = prov.FindStreamByPattern(ctx, q)
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

// TestStreamSyncLifecycle walks a stream from uncreated to synced.
func TestStreamSyncLifecycle(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	cs := stream(t, "s", types.WasteGeneral, dateRange("2026-01-08"), epoch)
	require.NoError(t, prov.InsertCalendarStream(ctx, cs))

	needsSync := func() bool {
		list, err := prov.ListStreamsNeedingSync(ctx)
		require.NoError(t, err)
		return containsStream(list, cs.ID)
	}
	assert.True(t, needsSync(), "uncreated")

	calID := ns(t, "cal")
	require.NoError(t, prov.SetStreamCalendarID(ctx, cs.ID, calID, epoch.Add(time.Minute)))
	assert.True(t, needsSync(), "created but unsynced")

	tracked, err := prov.ListTrackedCalendarIDs(ctx)
	require.NoError(t, err)
	assert.True(t, tracked[calID])

	syncedAt := epoch.Add(2 * time.Minute)
	require.NoError(t, prov.MarkStreamSynced(ctx, cs.ID, syncedAt))
	assert.False(t, needsSync(), "synced")

	got, err := prov.GetCalendarStream(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, calID, got.CalendarID)
	require.NotNil(t, got.CalendarSyncedAt)
	assert.True(t, syncedAt.Equal(*got.CalendarSyncedAt))

	r := dateRange("2026-01-08", "2026-01-22")
	require.NoError(t, prov.UpdateStreamPattern(ctx, provider.PatternUpdate{StreamID: cs.ID, Range: r}, epoch.Add(3*time.Minute)))
	got, err = prov.GetCalendarStream(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Dates, got.Dates)
	assert.NotNil(t, got.CalendarSyncedAt, "kept unless ClearSynced")

	require.NoError(t, prov.UpdateStreamPattern(ctx, provider.PatternUpdate{StreamID: cs.ID, Range: r, ClearSynced: true}, epoch.Add(4*time.Minute)))
	assert.True(t, needsSync())

	assert.ErrorIs(t, prov.MarkStreamSynced(ctx, ns(t, "missing"), epoch), provider.ErrNotFound)
	assert.ErrorIs(t, prov.SetStreamCalendarID(ctx, ns(t, "missing"), "c", epoch), provider.ErrNotFound)
}

// TestStreamPendingClean verifies the grace period timers and that a pattern
// rewrite revives the stream.
func TestStreamPendingClean(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	cs := stream(t, "s", types.WasteGeneral, dateRange("2026-01-08"), epoch)
	require.NoError(t, prov.InsertCalendarStream(ctx, cs))

	orphan := func() bool {
		ids, err := prov.ListOrphanStreamIDs(ctx)
		require.NoError(t, err)
		for _, id := range ids {
			if id == cs.ID {
				return true
			}
		}
		return false
	}
	pending := func() bool {
		list, err := prov.ListStreamsPendingCleanup(ctx)
		require.NoError(t, err)
		return containsStream(list, cs.ID)
	}
	assert.True(t, orphan())
	assert.False(t, pending())

	until := epoch.Add(96 * time.Hour)
	require.NoError(t, prov.MarkStreamPendingClean(ctx, cs.ID, epoch, until))
	require.NoError(t, prov.MarkStreamNoticeSent(ctx, cs.ID, epoch.Add(time.Hour)))
	assert.False(t, orphan(), "already retiring")
	assert.True(t, pending())

	needs, err := prov.ListStreamsNeedingSync(ctx)
	require.NoError(t, err)
	assert.False(t, containsStream(needs, cs.ID))

	got, err := prov.GetCalendarStream(ctx, cs.ID)
	require.NoError(t, err)
	assert.True(t, got.PendingClean())
	require.NotNil(t, got.PendingCleanUntil)
	assert.True(t, until.Equal(*got.PendingCleanUntil))
	assert.NotNil(t, got.PendingCleanNoticeSentAt)

	require.NoError(t, prov.MarkStreamPendingClean(ctx, cs.ID, epoch.Add(time.Hour), until.Add(time.Hour)))
	got, err = prov.GetCalendarStream(ctx, cs.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PendingCleanNoticeSentAt, "restarting the period resets the notice")

	require.NoError(t, prov.UpdateStreamPattern(ctx, provider.PatternUpdate{StreamID: cs.ID, Range: cs.DateRange}, epoch.Add(2*time.Hour)))
	got, err = prov.GetCalendarStream(ctx, cs.ID)
	require.NoError(t, err)
	assert.False(t, got.PendingClean())
	assert.Nil(t, got.PendingCleanUntil)
	assert.False(t, pending())
}

// TestStreamDelete verifies a stream is removed with its events and links.
func TestStreamDelete(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	g := group(t, "g", dateRange("2026-01-08"))
	cs := stream(t, "s", g.WasteType, g.DateRange, epoch)
	require.NoError(t, prov.InsertScheduleGroup(ctx, g))
	require.NoError(t, prov.InsertCalendarStream(ctx, cs))
	require.NoError(t, prov.UpsertLink(ctx, g.ID, cs.ID, epoch))
	require.NoError(t, prov.PutStreamEvent(ctx, types.StreamEvent{
		CalendarStreamID: cs.ID, Date: "2026-01-08", EventID: "ev1", Status: types.EventCreated,
	}))

	require.NoError(t, prov.DeleteCalendarStream(ctx, cs.ID))

	_, err := prov.GetCalendarStream(ctx, cs.ID)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	_, err = prov.GetLinkedStreamID(ctx, g.ID)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	evs, err := prov.ListStreamEvents(ctx, cs.ID)
	require.NoError(t, err)
	assert.Empty(t, evs)

	assert.ErrorIs(t, prov.DeleteCalendarStream(ctx, cs.ID), provider.ErrNotFound)
}

// TestCalendarRebindDropsEvents verifies event rows belong to one external
// calendar: rebinding drops them, re-setting the same id keeps them.
func TestCalendarRebindDropsEvents(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	cs := stream(t, "s", types.WasteGeneral, dateRange("2026-01-08"), epoch)
	require.NoError(t, prov.InsertCalendarStream(ctx, cs))
	require.NoError(t, prov.SetStreamCalendarID(ctx, cs.ID, "cal-a", epoch))
	require.NoError(t, prov.PutStreamEvent(ctx, types.StreamEvent{
		CalendarStreamID: cs.ID, Date: "2026-01-08", EventID: "ev1", Status: types.EventCreated,
	}))
	require.NoError(t, prov.MarkStreamSynced(ctx, cs.ID, epoch.Add(time.Minute)))

	require.NoError(t, prov.SetStreamCalendarID(ctx, cs.ID, "cal-a", epoch.Add(2*time.Minute)))
	evs, err := prov.ListStreamEvents(ctx, cs.ID)
	require.NoError(t, err)
	assert.Len(t, evs, 1)
	got, err := prov.GetCalendarStream(ctx, cs.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.CalendarSyncedAt)

	require.NoError(t, prov.SetStreamCalendarID(ctx, cs.ID, "cal-b", epoch.Add(3*time.Minute)))
	evs, err = prov.ListStreamEvents(ctx, cs.ID)
	require.NoError(t, err)
	assert.Empty(t, evs)
	got, err = prov.GetCalendarStream(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, "cal-b", got.CalendarID)
	assert.Nil(t, got.CalendarSyncedAt)
}

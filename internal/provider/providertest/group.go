package providertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/wastecal/internal/provider"
)

// TestScheduleGroupCRUD verifies insert, get and date replacement.
func TestScheduleGroupCRUD(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	synced := epoch.Add(time.Hour)
	g := group(t, "g", dateRange("2026-01-08", "2026-01-22"))
	g.CalendarSyncedAt = &synced
	require.NoError(t, prov.InsertScheduleGroup(ctx, g))

	got, err := prov.GetScheduleGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Dates, got.Dates)
	assert.Equal(t, g.DatesHash, got.DatesHash)
	assert.Equal(t, "2026-01-08", got.FirstDate)
	assert.Equal(t, "2026-01-22", got.LastDate)
	assert.Equal(t, 2, got.DateCount)
	require.NotNil(t, got.CalendarSyncedAt)
	assert.True(t, synced.Equal(*got.CalendarSyncedAt))

	dup := g
	assert.Error(t, prov.InsertScheduleGroup(ctx, dup), "content hash and waste type are unique")

	r := dateRange("2026-02-05")
	require.NoError(t, prov.UpdateScheduleGroupDates(ctx, g.ID, r, epoch.Add(2*time.Hour)))
	got, err = prov.GetScheduleGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-05"}, got.Dates)
	assert.Equal(t, r.DatesHash, got.DatesHash)
	assert.Nil(t, got.CalendarSyncedAt)

	empty := dateRange()
	require.NoError(t, prov.UpdateScheduleGroupDates(ctx, g.ID, empty, epoch.Add(3*time.Hour)))
	got, err = prov.GetScheduleGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Dates)
	assert.NotNil(t, got.Dates)
	assert.Empty(t, got.FirstDate)

	_, err = prov.GetScheduleGroup(ctx, ns(t, "missing"))
	assert.ErrorIs(t, err, provider.ErrNotFound)
	assert.ErrorIs(t, prov.UpdateScheduleGroupDates(ctx, ns(t, "missing"), r, epoch), provider.ErrNotFound)
}

// TestUnlinkedGroups verifies that linking removes a group from the
// unlinked listing.
func TestUnlinkedGroups(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	g := group(t, "g", dateRange("2026-01-08"))
	cs := stream(t, "s", g.WasteType, g.DateRange, epoch)
	require.NoError(t, prov.InsertScheduleGroup(ctx, g))
	require.NoError(t, prov.InsertCalendarStream(ctx, cs))

	unlinked := func() bool {
		groups, err := prov.ListUnlinkedScheduleGroups(ctx)
		require.NoError(t, err)
		for _, x := range groups {
			if x.ID == g.ID {
				return true
			}
		}
		return false
	}
	assert.True(t, unlinked())

	require.NoError(t, prov.UpsertLink(ctx, g.ID, cs.ID, epoch))
	assert.False(t, unlinked())
}

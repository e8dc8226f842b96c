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

// TestLinks verifies a group has at most one link and that relinking moves it.
func TestLinks(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	g1 := group(t, "g1", dateRange("2026-01-08"))
	g2 := group(t, "g2", dateRange("2026-01-08"))
	a := stream(t, "a", types.WasteGeneral, g1.DateRange, epoch)
	b := stream(t, "b", types.WasteGeneral, dateRange("2026-01-15"), epoch)
	require.NoError(t, prov.InsertScheduleGroup(ctx, g1))
	require.NoError(t, prov.InsertScheduleGroup(ctx, g2))
	require.NoError(t, prov.InsertCalendarStream(ctx, a))
	require.NoError(t, prov.InsertCalendarStream(ctx, b))

	_, err := prov.GetLinkedStreamID(ctx, g1.ID)
	assert.ErrorIs(t, err, provider.ErrNotFound)

	require.NoError(t, prov.UpsertLink(ctx, g1.ID, a.ID, epoch))
	require.NoError(t, prov.UpsertLink(ctx, g2.ID, a.ID, epoch))
	n, err := prov.CountLinks(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, prov.UpsertLink(ctx, g2.ID, b.ID, epoch.Add(time.Minute)))
	id, err := prov.GetLinkedStreamID(ctx, g2.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, id)

	n, err = prov.CountLinks(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	links, err := prov.ListLinks(ctx)
	require.NoError(t, err)
	var mine []types.GroupLink
	for _, l := range links {
		if l.ScheduleGroupID == g1.ID || l.ScheduleGroupID == g2.ID {
			mine = append(mine, l)
		}
	}
	require.Len(t, mine, 2)
	for _, l := range mine {
		assert.Equal(t, types.WasteGeneral, l.WasteType)
		assert.Equal(t, g1.DatesHash, l.DatesHash, "links carry the group's pattern, not the stream's")
		assert.Equal(t, []string{"2026-01-08"}, l.Dates)
	}

	n, err = prov.CountLinks(ctx, ns(t, "none"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

package providertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// TestLocationUpsert verifies address dedup and content hash refresh.
func TestLocationUpsert(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	loc := types.Location{
		AdminArea:   ns(t, "Vilniaus r."),
		Settlement:  "Nemenčinė",
		Street:      "Vilniaus g.",
		ContentHash: "h1",
		UpdatedAt:   epoch,
	}

	id, err := prov.UpsertLocation(ctx, loc)
	require.NoError(t, err)
	assert.Positive(t, id)

	loc.ContentHash = "h2"
	again, err := prov.UpsertLocation(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	got, err := prov.GetLocation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "h2", got.ContentHash)
	assert.Equal(t, "Nemenčinė", got.Settlement)
	assert.Empty(t, got.HouseNumbers)

	loc.HouseNumbers = "1-15"
	other, err := prov.UpsertLocation(ctx, loc)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	_, err = prov.GetLocation(ctx, -1)
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

// TestAdminAreaForStream verifies the stream-to-location join used for
// calendar titles.
func TestAdminAreaForStream(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	g := group(t, "g", dateRange("2026-01-08"))
	cs := stream(t, "s", g.WasteType, g.DateRange, epoch)
	require.NoError(t, prov.InsertScheduleGroup(ctx, g))
	require.NoError(t, prov.InsertCalendarStream(ctx, cs))

	area, err := prov.AdminAreaForStream(ctx, cs.ID)
	require.NoError(t, err)
	assert.Empty(t, area, "unlinked stream has no area")

	_, err = prov.UpsertLocation(ctx, types.Location{
		AdminArea: "Švenčionių r.", Settlement: ns(t, "Pabradė"), Street: "Vilniaus g.", ContentHash: g.ContentHash,
	})
	require.NoError(t, err)
	require.NoError(t, prov.UpsertLink(ctx, g.ID, cs.ID, epoch))

	area, err = prov.AdminAreaForStream(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, "Švenčionių r.", area)
}

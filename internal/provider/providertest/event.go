package providertest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// TestStreamEvents verifies per-date event rows are replaced in place and
// listed in date order.
func TestStreamEvents(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	cs := stream(t, "s", types.WasteGeneral, dateRange("2026-01-08", "2026-01-22"), epoch)
	require.NoError(t, prov.InsertCalendarStream(ctx, cs))

	require.NoError(t, prov.PutStreamEvent(ctx, types.StreamEvent{
		CalendarStreamID: cs.ID, Date: "2026-01-22", Status: types.EventError, ErrorMessage: "rate limited",
	}))
	require.NoError(t, prov.PutStreamEvent(ctx, types.StreamEvent{
		CalendarStreamID: cs.ID, Date: "2026-01-08", EventID: "ev1", Status: types.EventCreated,
	}))

	evs, err := prov.ListStreamEvents(ctx, cs.ID)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "2026-01-08", evs[0].Date)
	assert.Equal(t, "ev1", evs[0].EventID)
	assert.Equal(t, types.EventError, evs[1].Status)
	assert.Equal(t, "rate limited", evs[1].ErrorMessage)
	assert.Empty(t, evs[1].EventID)

	require.NoError(t, prov.PutStreamEvent(ctx, types.StreamEvent{
		CalendarStreamID: cs.ID, Date: "2026-01-22", EventID: "ev2", Status: types.EventCreated,
	}))
	evs, err = prov.ListStreamEvents(ctx, cs.ID)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, types.EventCreated, evs[1].Status)
	assert.Empty(t, evs[1].ErrorMessage)

	require.NoError(t, prov.DeleteStreamEvent(ctx, cs.ID, "2026-01-08"))
	require.NoError(t, prov.DeleteStreamEvent(ctx, cs.ID, "2026-01-08"), "missing rows are not an error")
	evs, err = prov.ListStreamEvents(ctx, cs.ID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "ev2", evs[0].EventID)
}

// TestFetches verifies the ingest audit log keeps validation problems and
// lists newest first.
func TestFetches(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	// Far-future stamps keep these rows ahead of anything else in a shared store.
	base := time.Date(2999, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, prov.RecordFetch(ctx, types.FetchRecord{
		ID: ns(t, "f1"), SourceURL: "https://example.test/a.xlsx", Status: types.FetchSuccess,
		RecordCount: 12, FetchedAt: base,
	}))
	require.NoError(t, prov.RecordFetch(ctx, types.FetchRecord{
		ID: ns(t, "f2"), SourceURL: "https://example.test/b.xlsx", Status: types.FetchValidationError,
		ValidationErrors: []string{"record 0: empty admin area", "record 3: no dates"}, FetchedAt: base.Add(time.Hour),
	}))

	got, err := prov.ListFetches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ns(t, "f2"), got[0].ID)
	assert.Equal(t, types.FetchValidationError, got[0].Status)
	assert.Equal(t, []string{"record 0: empty admin area", "record 3: no dates"}, got[0].ValidationErrors)
	assert.Equal(t, 12, got[1].RecordCount)
	assert.Empty(t, got[1].ValidationErrors)
}

// TestTxRollback verifies a failing WithTx leaves no writes behind and a
// succeeding one commits.
func TestTxRollback(t *testing.T, prov provider.Provider) {
	ctx := context.Background()
	boom := errors.New("boom")
	rolled := stream(t, "rolled", types.WasteGeneral, dateRange("2026-01-08"), epoch)
	kept := stream(t, "kept", types.WasteGeneral, dateRange("2026-01-08"), epoch)

	err := prov.WithTx(ctx, func(tx provider.Provider) error {
		if err := tx.InsertCalendarStream(ctx, rolled); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = prov.GetCalendarStream(ctx, rolled.ID)
	assert.ErrorIs(t, err, provider.ErrNotFound)

	require.NoError(t, prov.WithTx(ctx, func(tx provider.Provider) error {
		return tx.WithTx(ctx, func(inner provider.Provider) error {
			return inner.InsertCalendarStream(ctx, kept)
		})
	}))
	_, err = prov.GetCalendarStream(ctx, kept.ID)
	assert.NoError(t, err)
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/wastecal/internal/fingerprint"
	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/internal/testutil"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

func record(raw, settlement string, dates ...string) types.Record {
	return types.Record{
		AdminArea:  "Nemenčinė",
		Settlement: settlement,
		RawSource:  raw,
		Dates:      testutil.Days(dates...),
		WasteType:  types.WasteGeneral,
	}
}

func TestIngest_WritesAndReconciles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rep, err := f.eng.Ingest(ctx, types.Batch{
		SourceURL: "https://example.test/grafikas.xlsx",
		Records: []types.Record{
			record("Pikeliškės", "Pikeliškės", "2026-01-08", "2026-01-22"),
			record("Kalviškės (Ąžuolų g.)", "Kalviškės", "2026-01-08", "2026-01-22"),
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rep.FetchID)
	assert.Equal(t, 2, rep.Records)
	assert.Len(t, rep.LocationIDs, 2)
	assert.Equal(t, 2, rep.Reconcile.Linked)
	assert.Equal(t, 1, rep.Reconcile.Created)

	a := fingerprint.ScheduleGroupID(fingerprint.ContentHash("Pikeliškės"), types.WasteGeneral)
	b := fingerprint.ScheduleGroupID(fingerprint.ContentHash("Kalviškės (Ąžuolų g.)"), types.WasteGeneral)
	assert.Equal(t, f.linked(t, a), f.linked(t, b))

	fetches, err := f.store.ListFetches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, fetches, 1)
	assert.Equal(t, types.FetchSuccess, fetches[0].Status)
	assert.Equal(t, rep.FetchID, fetches[0].ID)
	assert.Equal(t, 2, fetches[0].RecordCount)
}

func TestIngest_ReingestSameKeyKeepsGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.Ingest(ctx, types.Batch{Records: []types.Record{record("Pikeliškės", "Pikeliškės", "2026-01-08", "2026-01-22")}})
	require.NoError(t, err)
	g := fingerprint.ScheduleGroupID(fingerprint.ContentHash("Pikeliškės"), types.WasteGeneral)
	f.markGroupSynced(t, g)

	f.advance(time.Hour)
	rep, err := f.eng.Ingest(ctx, types.Batch{Records: []types.Record{record("Pikeliškės", "Pikeliškės", "2026-02-05", "2026-02-19")}})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Reconcile.Invalidated)

	grp, err := f.store.GetScheduleGroup(ctx, g)
	require.NoError(t, err)
	assert.Nil(t, grp.CalendarSyncedAt)
	assert.Equal(t, []string{"2026-02-05", "2026-02-19"}, grp.Dates)
}

func TestIngest_ValidationRejectsWholeBatch(t *testing.T) {
	tests := []struct {
		name  string
		batch types.Batch
		want  string
	}{
		{
			name: "empty settlement",
			batch: types.Batch{Records: []types.Record{
				record("ok", "Pikeliškės", "2026-01-08"),
				record("bad", "", "2026-01-08"),
			}},
			want: "record 1: empty settlement",
		},
		{
			name: "missing raw source",
			batch: types.Batch{Records: []types.Record{
				record("", "Pikeliškės", "2026-01-08"),
			}},
			want: "record 0: missing raw source string",
		},
		{
			name: "unknown waste type",
			batch: types.Batch{Records: []types.Record{
				{AdminArea: "Nemenčinė", Settlement: "Pikeliškės", RawSource: "x", WasteType: "popierius"},
			}},
			want: `record 0: unknown waste type "popierius"`,
		},
		{
			name: "zero date",
			batch: types.Batch{Records: []types.Record{
				{AdminArea: "Nemenčinė", Settlement: "Pikeliškės", RawSource: "x", Dates: []time.Time{{}}},
			}},
			want: "record 0: zero pickup date",
		},
		{
			name: "upstream parse error",
			batch: types.Batch{
				Records:     []types.Record{record("ok", "Pikeliškės", "2026-01-08")},
				ParseErrors: []string{"row 12: invalid village format"},
			},
			want: "row 12: invalid village format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			_, err := f.eng.Ingest(ctx, tt.batch)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Problems, tt.want)

			groups, err := f.store.ListUnlinkedScheduleGroups(ctx)
			require.NoError(t, err)
			assert.Empty(t, groups)
			links, err := f.store.ListLinks(ctx)
			require.NoError(t, err)
			assert.Empty(t, links)

			fetches, err := f.store.ListFetches(ctx, 10)
			require.NoError(t, err)
			require.Len(t, fetches, 1)
			assert.Equal(t, types.FetchValidationError, fetches[0].Status)
			assert.Contains(t, fetches[0].ValidationErrors, tt.want)

			alerts := f.alerts.Drain()
			require.Len(t, alerts, 1)
			assert.Equal(t, types.AlertCategoryIngestRejected, alerts[0].Category)
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Problems: []string{"a", "b", "c", "d"}}
	assert.Equal(t, "ingest rejected: 4 problem(s): a; b; c; ...", err.Error())

	err = &ValidationError{Problems: []string{"a"}}
	assert.Equal(t, "ingest rejected: 1 problem(s): a", err.Error())
}

func TestIngest_LockHeldRecordsFailure(t *testing.T) {
	locker := testutil.NewMockLocker()
	locker.Hold(LockKey)
	f := newFixture(t, WithLocker(locker, time.Minute), WithLockWait(0))
	ctx := context.Background()

	_, err := f.eng.Ingest(ctx, types.Batch{Records: []types.Record{record("x", "Pikeliškės", "2026-01-08")}})
	require.ErrorIs(t, err, ErrLocked)

	fetches, err := f.store.ListFetches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, fetches, 1)
	assert.Equal(t, types.FetchFailed, fetches[0].Status)

	groups, err := f.store.ListUnlinkedScheduleGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups, "nothing written without the lock")
}

func TestIngest_ReleasesLock(t *testing.T) {
	locker := testutil.NewMockLocker()
	f := newFixture(t, WithLocker(locker, time.Minute))
	ctx := context.Background()

	_, err := f.eng.Ingest(ctx, types.Batch{Records: []types.Record{record("x", "Pikeliškės", "2026-01-08")}})
	require.NoError(t, err)

	ok, err := locker.AcquireLock(ctx, LockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWriteLocationSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := record("Pikeliškės", "Pikeliškės", "2026-01-08")
	rec.Street = "Ąžuolų g."
	rec.HouseNumbers = "1-15"

	id, err := f.eng.WriteLocationSchedule(ctx, rec)
	require.NoError(t, err)
	again, err := f.eng.WriteLocationSchedule(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, id, again, "location rows are upserted by address")

	loc, err := f.store.GetLocation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.ContentHash("Pikeliškės"), loc.ContentHash)
	assert.Equal(t, "1-15", loc.HouseNumbers)

	groups, err := f.store.ListUnlinkedScheduleGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1, "linking waits for reconciliation")

	_, err = f.eng.WriteLocationSchedule(ctx, types.Record{Settlement: "x"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLocationCalendar_Status(t *testing.T) {
	f := newFixture(t, WithSubscriptionLinks(func(id string) string { return "https://calendar.example/subscribe?cid=" + id }))
	ctx := context.Background()

	rep, err := f.eng.Ingest(ctx, types.Batch{Records: []types.Record{record("Pikeliškės", "Pikeliškės", "2026-01-08", "2026-01-22")}})
	require.NoError(t, err)
	loc := rep.LocationIDs[0]

	lc, err := f.eng.LocationCalendar(ctx, loc, "")
	require.NoError(t, err)
	assert.Equal(t, types.CalendarPending, lc.CalendarStatus.Status)
	assert.Nil(t, lc.CalendarID)
	assert.Nil(t, lc.SubscriptionLink)
	assert.Equal(t, []string{"2026-01-08", "2026-01-22"}, lc.Dates)
	require.NotEmpty(t, lc.CalendarStreamID)

	require.NoError(t, f.store.SetStreamCalendarID(ctx, lc.CalendarStreamID, "cal-1", f.now))
	lc, err = f.eng.LocationCalendar(ctx, loc, types.WasteGeneral)
	require.NoError(t, err)
	assert.Equal(t, types.CalendarNeedsUpdate, lc.CalendarStatus.Status)
	require.NotNil(t, lc.CalendarID)
	assert.Equal(t, "cal-1", *lc.CalendarID)
	require.NotNil(t, lc.SubscriptionLink)
	assert.Equal(t, "https://calendar.example/subscribe?cid=cal-1", *lc.SubscriptionLink)

	require.NoError(t, f.store.MarkStreamSynced(ctx, lc.CalendarStreamID, f.now))
	lc, err = f.eng.LocationCalendar(ctx, loc, types.WasteGeneral)
	require.NoError(t, err)
	assert.Equal(t, types.CalendarSynced, lc.CalendarStatus.Status)
	assert.Equal(t, "cal-1", *lc.CalendarStatus.CalendarID)
}

func TestLocationCalendar_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.LocationCalendar(ctx, 42, "")
	assert.ErrorIs(t, err, provider.ErrNotFound)

	id, err := f.eng.WriteLocationSchedule(ctx, record("x", "Pikeliškės", "2026-01-08"))
	require.NoError(t, err)

	_, err = f.eng.LocationCalendar(ctx, id, types.WastePlastic)
	assert.ErrorIs(t, err, provider.ErrNotFound, "no plastic schedule for this address")

	lc, err := f.eng.LocationCalendar(ctx, id, types.WasteGeneral)
	require.NoError(t, err)
	assert.Empty(t, lc.CalendarStreamID, "unreconciled group has no stream yet")
	assert.Equal(t, types.CalendarPending, lc.CalendarStatus.Status)
}

// Package providertest provides shared conformance tests for provider.Provider
// implementations. Call RunAll from a test function to verify a provider
// satisfies the full behavioral contract.
package providertest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/dwsmith1983/wastecal/internal/provider"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

// RunAll runs the complete provider conformance suite as subtests. Every
// subtest namespaces its ids, so prov may be shared and need not be empty.
func RunAll(t *testing.T, prov provider.Provider) {
	t.Helper()

	t.Run("LocationUpsert", func(t *testing.T) { TestLocationUpsert(t, prov) })
	t.Run("ScheduleGroupCRUD", func(t *testing.T) { TestScheduleGroupCRUD(t, prov) })
	t.Run("UnlinkedGroups", func(t *testing.T) { TestUnlinkedGroups(t, prov) })
	t.Run("StreamPatternLookup", func(t *testing.T) { TestStreamPatternLookup(t, prov) })
	t.Run("StreamSyncLifecycle", func(t *testing.T) { TestStreamSyncLifecycle(t, prov) })
	t.Run("StreamPendingClean", func(t *testing.T) { TestStreamPendingClean(t, prov) })
	t.Run("StreamDelete", func(t *testing.T) { TestStreamDelete(t, prov) })
	t.Run("CalendarRebindDropsEvents", func(t *testing.T) { TestCalendarRebindDropsEvents(t, prov) })
	t.Run("Links", func(t *testing.T) { TestLinks(t, prov) })
	t.Run("AdminAreaForStream", func(t *testing.T) { TestAdminAreaForStream(t, prov) })
	t.Run("StreamEvents", func(t *testing.T) { TestStreamEvents(t, prov) })
	t.Run("Fetches", func(t *testing.T) { TestFetches(t, prov) })
	t.Run("TxRollback", func(t *testing.T) { TestTxRollback(t, prov) })
}

// ns returns an id unique to the running subtest.
func ns(t *testing.T, id string) string {
	sum := sha256.Sum256([]byte(t.Name()))
	return hex.EncodeToString(sum[:4]) + "-" + id
}

func dateRange(dates ...string) types.DateRange {
	r := types.DateRange{Dates: dates, DateCount: len(dates)}
	if len(dates) > 0 {
		r.FirstDate, r.LastDate = dates[0], dates[len(dates)-1]
	}
	sum := sha256.Sum256([]byte(strings.Join(dates, ",")))
	r.DatesHash = hex.EncodeToString(sum[:])
	return r
}

var epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func group(t *testing.T, id string, r types.DateRange) types.ScheduleGroup {
	return types.ScheduleGroup{
		ID:          ns(t, id),
		WasteType:   types.WasteGeneral,
		ContentHash: ns(t, "hash-"+id),
		DateRange:   r,
		CreatedAt:   epoch,
		UpdatedAt:   epoch,
	}
}

func stream(t *testing.T, id string, wt types.WasteType, r types.DateRange, created time.Time) types.CalendarStream {
	return types.CalendarStream{
		ID:        ns(t, id),
		WasteType: wt,
		DateRange: r,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func containsStream(list []types.CalendarStream, id string) bool {
	for _, s := range list {
		if s.ID == id {
			return true
		}
	}
	return false
}

package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/wastecal/pkg/types"
)

func day(s string) time.Time {
	t, err := time.Parse(types.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestContentHash(t *testing.T) {
	h := ContentHash("Nemenčinė: Pušų g.")
	assert.True(t, strings.HasPrefix(h, "k1_"))
	assert.Len(t, h, 15)
	assert.Equal(t, h, ContentHash("Nemenčinė: Pušų g."))
	assert.NotEqual(t, h, ContentHash("Nemenčinė: Liepų g."))
}

func TestScheduleGroupID_MatchesDefinition(t *testing.T) {
	sum := sha256.Sum256([]byte("bendros:k1_abc"))
	want := "sg_" + hex.EncodeToString(sum[:])[:12]
	assert.Equal(t, want, ScheduleGroupID("k1_abc", types.WasteGeneral))
}

func TestScheduleGroupID_PartitionsByWasteType(t *testing.T) {
	assert.NotEqual(t,
		ScheduleGroupID("k1_abc", types.WasteGeneral),
		ScheduleGroupID("k1_abc", types.WastePlastic))
}

func TestDatesHash(t *testing.T) {
	tests := []struct {
		name string
		a, b []time.Time
		same bool
	}{
		{"order independent", []time.Time{day("2026-01-22"), day("2026-01-08")}, []time.Time{day("2026-01-08"), day("2026-01-22")}, true},
		{"duplicates ignored", []time.Time{day("2026-01-08"), day("2026-01-08"), day("2026-01-22")}, []time.Time{day("2026-01-08"), day("2026-01-22")}, true},
		{"different sets", []time.Time{day("2026-01-08")}, []time.Time{day("2026-02-05")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.same, DatesHash(tt.a) == DatesHash(tt.b))
			assert.Len(t, DatesHash(tt.a), 16)
		})
	}
}

func TestDatesHash_EmptyIsEmptyString(t *testing.T) {
	assert.Equal(t, "", DatesHash(nil))
	assert.Equal(t, "", DatesHash([]time.Time{}))
}

func TestRange(t *testing.T) {
	r := Range([]time.Time{day("2026-02-19"), day("2026-01-08"), day("2026-01-08")})
	assert.Equal(t, []string{"2026-01-08", "2026-02-19"}, r.Dates)
	assert.Equal(t, "2026-01-08", r.FirstDate)
	assert.Equal(t, "2026-02-19", r.LastDate)
	assert.Equal(t, 2, r.DateCount)
	assert.Equal(t, HashNormalized(r.Dates), r.DatesHash)

	empty := Range(nil)
	assert.Empty(t, empty.FirstDate)
	assert.Zero(t, empty.DateCount)
	assert.Empty(t, empty.DatesHash)
}

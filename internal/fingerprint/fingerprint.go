// Package fingerprint derives the stable identifiers used for deduplication
// and change detection. Everything here is pure.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/dwsmith1983/wastecal/pkg/types"
)

// Identifier prefixes namespace the different hash kinds.
const (
	ContentHashPrefix   = "k1_"
	ScheduleGroupPrefix = "sg_"
)

func sum(s string, n int) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:n]
}

// ContentHash fingerprints a raw source address string.
func ContentHash(raw string) string {
	return ContentHashPrefix + sum(raw, 12)
}

// ScheduleGroupID returns the stable group id for a (content hash, waste type)
// pair. It deliberately ignores dates.
func ScheduleGroupID(contentHash string, wasteType types.WasteType) string {
	return ScheduleGroupPrefix + sum(string(wasteType)+":"+contentHash, 12)
}

// NormalizeDates returns the sorted, deduplicated civil dates in DateLayout.
func NormalizeDates(dates []time.Time) []string {
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		s := d.Format(types.DateLayout)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// DatesHash fingerprints a date set. An empty set hashes to "" rather than
// to the digest of empty input.
func DatesHash(dates []time.Time) string {
	return HashNormalized(NormalizeDates(dates))
}

// HashNormalized hashes dates that are already sorted, unique and in DateLayout.
func HashNormalized(dates []string) string {
	if len(dates) == 0 {
		return ""
	}
	return sum(strings.Join(dates, ","), 16)
}

// Range builds the denormalized range fields for a date set.
func Range(dates []time.Time) types.DateRange {
	return RangeOf(NormalizeDates(dates))
}

// RangeOf builds range fields from already-normalized dates.
func RangeOf(norm []string) types.DateRange {
	r := types.DateRange{
		Dates:     norm,
		DatesHash: HashNormalized(norm),
		DateCount: len(norm),
	}
	if len(norm) > 0 {
		r.FirstDate = norm[0]
		r.LastDate = norm[len(norm)-1]
	}
	return r
}

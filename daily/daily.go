// Package daily maps civil dates to stable per-day choices.
//
// The hash is pinned to XXH64 (seed 0) over the UTF-8 bytes of the ISO 8601
// date ("2006-01-02"). Changing it changes which candidate is picked on a
// given day, so it must not be swapped for a runtime-provided hash.
package daily

import (
	"math/rand/v2"
	"time"

	"cloud.google.com/go/civil"
	"github.com/cespare/xxhash/v2"
)

// NoSelection is returned by Index when there is nothing to choose from.
const NoSelection = -1

// istFixed is used when the tz database has no entry for Asia/Kolkata.
var istFixed = time.FixedZone("IST", 5*60*60+30*60)

// Location returns the timezone used to discretize days.
func Location() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return istFixed
	}
	return loc
}

func hash(d civil.Date) uint64 {
	return xxhash.Sum64String(d.String())
}

// Index returns a stable index in [0, count) for d, or NoSelection if count < 1.
func Index(d civil.Date, count int) int {
	if count < 1 {
		return NoSelection
	}
	return int((hash(d) & 0x7FFFFFFF) % uint64(count))
}

// Pick returns the item selected for d.
func Pick[T any](d civil.Date, items []T) (T, bool) {
	i := Index(d, len(items))
	if i == NoSelection {
		var zero T
		return zero, false
	}
	return items[i], true
}

// Sample returns up to n items in a stable per-day order. The input is not modified.
func Sample[T any](d civil.Date, items []T, n int) []T {
	if n <= 0 || len(items) == 0 {
		return nil
	}
	out := make([]T, len(items))
	copy(out, items)
	seed := hash(d)
	r := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// DayBoundsUTC returns the first and last instant of d in loc, expressed in UTC.
func DayBoundsUTC(d civil.Date, loc *time.Location) (start, end time.Time) {
	start = d.In(loc)
	end = d.AddDays(1).In(loc).Add(-time.Nanosecond)
	return start.UTC(), end.UTC()
}

// TimeOfDay names the part of the day t falls in.
func TimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 11:
		return "Morning"
	case h >= 11 && h < 15:
		return "Noon"
	case h >= 15 && h < 18:
		return "Afternoon"
	case h >= 18 && h < 21:
		return "Evening"
	default:
		return "Night"
	}
}

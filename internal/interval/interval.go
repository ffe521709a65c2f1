// Package interval implements validation, window clipping, and merging of
// time intervals (stop records).
package interval

import (
	"sort"
	"time"
)

// Interval is a half-open-agnostic time span; it is valid iff End > Start.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval has positive length.
func (iv Interval) Valid() bool {
	return iv.End.After(iv.Start)
}

// Clip intersects the interval with [windowStart, windowEnd]. The second
// return is false when the interval lies entirely before windowStart or
// entirely at/after windowEnd, or when the intersection degenerates to
// zero length.
func (iv Interval) Clip(windowStart, windowEnd time.Time) (Interval, bool) {
	if !iv.End.After(windowStart) || !iv.Start.Before(windowEnd) {
		return Interval{}, false
	}
	clipped := Interval{Start: maxTime(iv.Start, windowStart), End: minTime(iv.End, windowEnd)}
	if !clipped.Valid() {
		return Interval{}, false
	}
	return clipped, true
}

// Merge discards invalid intervals, sorts the remainder by start, and
// folds overlapping or touching neighbors (an interval ending exactly when
// the next begins merges into one). The result is minimal, sorted, and
// pairwise non-overlapping; the operation is idempotent and independent of
// input order.
func Merge(intervals []Interval) []Interval {
	valid := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Valid() {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].Start.Before(valid[j].Start) })

	merged := []Interval{valid[0]}
	for _, cur := range valid[1:] {
		last := &merged[len(merged)-1]
		if !cur.Start.After(last.End) {
			last.End = maxTime(last.End, cur.End)
		} else {
			merged = append(merged, cur)
		}
	}
	return merged
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

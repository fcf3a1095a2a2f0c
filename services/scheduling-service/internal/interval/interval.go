// Package interval implements arithmetic on half-open time intervals [Start, End).
//
// Touching intervals (a.End == b.Start) do not overlap. Every adjacency decision in
// the scheduling engine goes through Overlaps, so a booking ending at 10:00 and one
// starting at 10:00 are always compatible.
package interval

import (
	"sort"
	"time"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

func New(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Empty reports whether the interval contains no instant.
func (i Interval) Empty() bool {
	return !i.End.After(i.Start)
}

func (i Interval) Duration() time.Duration {
	if i.Empty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Overlaps reports whether i and o share at least one instant.
func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i, o)
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

func (i Interval) String() string {
	return "[" + i.Start.Format(time.RFC3339) + ", " + i.End.Format(time.RFC3339) + ")"
}

func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// OverlapsAny returns the index of the first interval in set overlapping i, or -1.
func OverlapsAny(i Interval, set []Interval) int {
	for idx, s := range set {
		if Overlaps(i, s) {
			return idx
		}
	}
	return -1
}

// ContainedInAny reports whether some interval of set fully contains i.
func ContainedInAny(i Interval, set []Interval) bool {
	for _, s := range set {
		if s.Contains(i) {
			return true
		}
	}
	return false
}

// Merge sorts the intervals and coalesces overlapping or adjacent ones. Empty
// intervals are dropped. The input slice is not modified.
func Merge(in []Interval) []Interval {
	sorted := make([]Interval, 0, len(in))
	for _, i := range in {
		if !i.Empty() {
			sorted = append(sorted, i)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].Start.Equal(sorted[b].Start) {
			return sorted[a].End.Before(sorted[b].End)
		}
		return sorted[a].Start.Before(sorted[b].Start)
	})

	out := []Interval{sorted[0]}
	for _, next := range sorted[1:] {
		last := &out[len(out)-1]
		if !next.Start.After(last.End) {
			if next.End.After(last.End) {
				last.End = next.End
			}
			continue
		}
		out = append(out, next)
	}
	return out
}

// Subtract removes every excluded interval from base and returns the remaining
// pieces in ascending order. Zero-length remainders are never returned.
func Subtract(base Interval, excluded []Interval) []Interval {
	if base.Empty() {
		return nil
	}

	var out []Interval
	cursor := base.Start
	for _, ex := range Merge(excluded) {
		if !ex.End.After(cursor) {
			continue
		}
		if !ex.Start.Before(base.End) {
			break
		}
		if ex.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: ex.Start})
		}
		cursor = ex.End
		if !cursor.Before(base.End) {
			return out
		}
	}
	if cursor.Before(base.End) {
		out = append(out, Interval{Start: cursor, End: base.End})
	}
	return out
}

// SubtractAll applies Subtract to each base interval, which must already be
// ascending and disjoint, and concatenates the results.
func SubtractAll(bases []Interval, excluded []Interval) []Interval {
	merged := Merge(excluded)
	var out []Interval
	for _, b := range bases {
		out = append(out, Subtract(b, merged)...)
	}
	return out
}

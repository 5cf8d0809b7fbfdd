package scheduling

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"startTime"`
	End   time.Time `json:"endTime"`
}

// Valid reports whether Start is strictly before End.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps is the single overlap predicate used for availability windows,
// confirmed reservations and candidate slots alike. Touching intervals do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner Interval) bool {
	return !inner.Start.Before(outer.Start) && !inner.End.After(outer.End)
}

// OverlapsAny reports whether candidate intersects any of the given intervals.
func OverlapsAny(candidate Interval, others []Interval) bool {
	for _, other := range others {
		if Overlaps(candidate, other) {
			return true
		}
	}
	return false
}

package reservation

import (
	"time"

	"github.com/wolfman30/medpractice-booking/internal/scheduling"
)

// FreeSlots tiles every window into back-to-back slots of length duration, starting at the
// window start and dropping a trailing remainder shorter than duration, then removes slots
// that overlap an occupied interval. Output follows window order, then time within a window.
// The result depends only on the arguments.
func FreeSlots(windows []scheduling.Interval, occupied []scheduling.Interval, duration time.Duration) []scheduling.Interval {
	slots := make([]scheduling.Interval, 0)
	if duration <= 0 {
		return slots
	}
	for _, w := range windows {
		for start := w.Start; !start.Add(duration).After(w.End); start = start.Add(duration) {
			slot := scheduling.Interval{Start: start, End: start.Add(duration)}
			if scheduling.OverlapsAny(slot, occupied) {
				continue
			}
			slots = append(slots, slot)
		}
	}
	return slots
}

package availability

import (
	"iter"
	"slices"
	"time"
)

// GenerateSlots yields the free fixed-length slots of day's operating window in ascending
// order. Slots are laid end to end from opening time; a trailing period shorter than
// slot is never offered. The sequence holds no state, so ranging it again recomputes
// the same slots.
func GenerateSlots(day time.Time, hours OperatingHours, slot time.Duration, blocking []Block) iter.Seq[Interval] {
	return func(yield func(Interval) bool) {
		if slot <= 0 {
			return
		}
		window := hours.Window(day)
		if !window.End.After(window.Start) {
			return
		}
		for start := window.Start; !start.Add(slot).After(window.End); start = start.Add(slot) {
			candidate := IntervalFor(start, slot)
			if !DetectConflict(candidate, blocking).Available {
				continue
			}
			if !yield(candidate) {
				return
			}
		}
	}
}

func CollectSlots(seq iter.Seq[Interval]) []Interval {
	out := slices.Collect(seq)
	if out == nil {
		return []Interval{}
	}
	return out
}

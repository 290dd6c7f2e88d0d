package availability

import "time"

// Interval is the half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

func IntervalFor(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

// Valid is false for empty or inverted intervals. Callers drop invalid intervals
// instead of passing them to the resolver.
func (i Interval) Valid() bool {
	return !i.Start.IsZero() && i.End.After(i.Start)
}

// Overlaps uses half-open semantics: an interval ending at 10:00 does not overlap one
// starting at 10:00.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Within reports whether i lies entirely inside outer.
func (i Interval) Within(outer Interval) bool {
	return !i.Start.Before(outer.Start) && !i.End.After(outer.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// OperatingHours is a daily opening window in minutes after local midnight.
type OperatingHours struct {
	OpenMinute  int
	CloseMinute int
}

// Window returns the opening window on the calendar day of day, in day's location.
func (h OperatingHours) Window(day time.Time) Interval {
	y, m, d := day.Date()
	loc := day.Location()
	return Interval{
		Start: time.Date(y, m, d, h.OpenMinute/60, h.OpenMinute%60, 0, 0, loc),
		End:   time.Date(y, m, d, h.CloseMinute/60, h.CloseMinute%60, 0, 0, loc),
	}
}

package consumer

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	TopicBookingChanged = "clinic.booking.changed.v1"
	TopicOffHourChanged = "clinic.offhour.changed.v1"
)

// maxEventDays bounds how many cached days one off-hour event may invalidate.
const maxEventDays = 366

// ChangeEvent is the payload of a booking or off-hour change. Booking events carry
// appointment_at (and previous_appointment_at on reschedule); off-hour events carry start/end.
type ChangeEvent struct {
	RecordID              string     `json:"record_id,omitempty"`
	DentistID             string     `json:"dentist_id,omitempty"`
	AppointmentAt         *time.Time `json:"appointment_at,omitempty"`
	PreviousAppointmentAt *time.Time `json:"previous_appointment_at,omitempty"`
	DurationMinutes       int        `json:"duration_minutes,omitempty"`
	Start                 *time.Time `json:"start,omitempty"`
	End                   *time.Time `json:"end,omitempty"`
}

func DecodeChangeEvent(raw []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	return ev, nil
}

// AffectedDays returns the midnight, in loc, of every clinic day the event touches.
// Bookings without a duration are assumed to last defaultDuration.
func (ev ChangeEvent) AffectedDays(loc *time.Location, defaultDuration time.Duration) []time.Time {
	var days []time.Time
	seen := map[time.Time]struct{}{}
	add := func(start, end time.Time) {
		if !end.After(start) {
			end = start.Add(time.Nanosecond)
		}
		day := midnight(start, loc)
		for i := 0; day.Before(end) && i < maxEventDays; i++ {
			if _, ok := seen[day]; !ok {
				seen[day] = struct{}{}
				days = append(days, day)
			}
			day = day.AddDate(0, 0, 1)
		}
	}

	d := time.Duration(ev.DurationMinutes) * time.Minute
	if d <= 0 {
		d = defaultDuration
	}
	if ev.AppointmentAt != nil {
		add(*ev.AppointmentAt, ev.AppointmentAt.Add(d))
	}
	if ev.PreviousAppointmentAt != nil {
		add(*ev.PreviousAppointmentAt, ev.PreviousAppointmentAt.Add(d))
	}
	switch {
	case ev.Start != nil && ev.End != nil:
		add(*ev.Start, *ev.End)
	case ev.Start != nil:
		add(*ev.Start, *ev.Start)
	case ev.End != nil:
		add(*ev.End, *ev.End)
	}
	return days
}

func midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

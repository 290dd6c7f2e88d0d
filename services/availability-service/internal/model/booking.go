package model

import (
	"fmt"
	"strings"
	"time"
)

type BookingStatus int

const (
	BookingBooked BookingStatus = iota + 1
	BookingCancelled
)

func (s BookingStatus) String() string {
	switch s {
	case BookingBooked:
		return "booked"
	case BookingCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseBookingStatus normalises the backend's status strings ("booked", "Booked", "cancel",
// "Cancel", "cancelled", "canceled").
func ParseBookingStatus(raw string) (BookingStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "booked":
		return BookingBooked, nil
	case "cancel", "cancelled", "canceled":
		return BookingCancelled, nil
	default:
		return 0, fmt.Errorf("unknown booking status %q", raw)
	}
}

func (s BookingStatus) MarshalText() ([]byte, error) {
	if s != BookingBooked && s != BookingCancelled {
		return nil, fmt.Errorf("invalid booking status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *BookingStatus) UnmarshalText(b []byte) error {
	v, err := ParseBookingStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type Booking struct {
	ID            string        `json:"id"`
	DentistID     string        `json:"dentist_id"`
	PatientID     string        `json:"patient_id"`
	AppointmentAt time.Time     `json:"appointment_at"`
	Duration      time.Duration `json:"duration"`
	Status        BookingStatus `json:"status"`
}

// End uses fallback when the booking carries no duration of its own.
func (b Booking) End(fallback time.Duration) time.Time {
	d := b.Duration
	if d <= 0 {
		d = fallback
	}
	return b.AppointmentAt.Add(d)
}

package model

import "time"

type Dentist struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Snapshot is everything the resolver needs for one query, fetched ahead of time.
type Snapshot struct {
	Dentists []Dentist `json:"dentists"`
	Bookings []Booking `json:"bookings"`
	OffHours []OffHour `json:"off_hours"`
	// FetchedAt is informational; the resolver never compares it with the clock.
	FetchedAt time.Time `json:"fetched_at"`
}

// Dentist returns the active dentist with id.
func (s Snapshot) Dentist(id string) (Dentist, bool) {
	for _, d := range s.Dentists {
		if d.ID == id && d.Active {
			return d, true
		}
	}
	return Dentist{}, false
}

// ActiveDentists returns active dentists in snapshot order.
func (s Snapshot) ActiveDentists() []Dentist {
	out := make([]Dentist, 0, len(s.Dentists))
	for _, d := range s.Dentists {
		if d.Active {
			out = append(out, d)
		}
	}
	return out
}

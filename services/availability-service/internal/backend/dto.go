package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/brightsmile/dentalbook/services/availability-service/internal/model"
)

// DentistDTO, BookingDTO and OffHourDTO mirror the clinic backend's JSON documents.
type DentistDTO struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Active *bool  `json:"active,omitempty"`
}

type BookingDTO struct {
	ID      string `json:"_id"`
	Dentist string `json:"dentist"`
	Patient string `json:"patient,omitempty"`
	Date    string `json:"date"`
	Status  string `json:"status"`
	// DurationMinutes is optional; zero means the clinic default.
	DurationMinutes int `json:"duration,omitempty"`
}

type OffHourDTO struct {
	ID              string `json:"_id"`
	Dentist         string `json:"dentist,omitempty"`
	Start           string `json:"start"`
	End             string `json:"end"`
	IsForAllDentist bool   `json:"isForAllDentist"`
	Description     string `json:"description,omitempty"`
}

// Reject is a record dropped at the ingestion boundary.
type Reject struct {
	Kind   string
	ID     string
	Reason string
}

func (r Reject) String() string {
	return fmt.Sprintf("%s %q: %s", r.Kind, r.ID, r.Reason)
}

const (
	KindDentist = "dentist"
	KindBooking = "booking"
	KindOffHour = "off-hour"
)

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
	}
	return t, nil
}

func (d DentistDTO) Model() (model.Dentist, error) {
	if strings.TrimSpace(d.ID) == "" {
		return model.Dentist{}, fmt.Errorf("missing id")
	}
	active := true
	if d.Active != nil {
		active = *d.Active
	}
	return model.Dentist{ID: d.ID, Name: d.Name, Active: active}, nil
}

func (b BookingDTO) Model() (model.Booking, error) {
	if strings.TrimSpace(b.ID) == "" {
		return model.Booking{}, fmt.Errorf("missing id")
	}
	if strings.TrimSpace(b.Dentist) == "" {
		return model.Booking{}, fmt.Errorf("missing dentist")
	}
	at, err := parseTime(b.Date)
	if err != nil {
		return model.Booking{}, err
	}
	status, err := model.ParseBookingStatus(b.Status)
	if err != nil {
		return model.Booking{}, err
	}
	if b.DurationMinutes < 0 {
		return model.Booking{}, fmt.Errorf("negative duration")
	}
	return model.Booking{
		ID:            b.ID,
		DentistID:     b.Dentist,
		PatientID:     b.Patient,
		AppointmentAt: at,
		Duration:      time.Duration(b.DurationMinutes) * time.Minute,
		Status:        status,
	}, nil
}

func (o OffHourDTO) Model() (model.OffHour, error) {
	if strings.TrimSpace(o.ID) == "" {
		return model.OffHour{}, fmt.Errorf("missing id")
	}
	if !o.IsForAllDentist && strings.TrimSpace(o.Dentist) == "" {
		return model.OffHour{}, fmt.Errorf("missing dentist")
	}
	start, err := parseTime(o.Start)
	if err != nil {
		return model.OffHour{}, err
	}
	end, err := parseTime(o.End)
	if err != nil {
		return model.OffHour{}, err
	}
	if !end.After(start) {
		return model.OffHour{}, fmt.Errorf("end not after start")
	}
	return model.OffHour{
		ID:          o.ID,
		DentistID:   o.Dentist,
		AllDentists: o.IsForAllDentist,
		Start:       start,
		End:         end,
		Description: o.Description,
	}, nil
}

func ConvertDentists(in []DentistDTO) ([]model.Dentist, []Reject) {
	out := make([]model.Dentist, 0, len(in))
	var rejects []Reject
	for _, d := range in {
		m, err := d.Model()
		if err != nil {
			rejects = append(rejects, Reject{Kind: KindDentist, ID: d.ID, Reason: err.Error()})
			continue
		}
		out = append(out, m)
	}
	return out, rejects
}

func ConvertBookings(in []BookingDTO) ([]model.Booking, []Reject) {
	out := make([]model.Booking, 0, len(in))
	var rejects []Reject
	for _, b := range in {
		m, err := b.Model()
		if err != nil {
			rejects = append(rejects, Reject{Kind: KindBooking, ID: b.ID, Reason: err.Error()})
			continue
		}
		out = append(out, m)
	}
	return out, rejects
}

func ConvertOffHours(in []OffHourDTO) ([]model.OffHour, []Reject) {
	out := make([]model.OffHour, 0, len(in))
	var rejects []Reject
	for _, o := range in {
		m, err := o.Model()
		if err != nil {
			rejects = append(rejects, Reject{Kind: KindOffHour, ID: o.ID, Reason: err.Error()})
			continue
		}
		out = append(out, m)
	}
	return out, rejects
}

// Document is a full snapshot in backend wire format, as exported for offline checks.
type Document struct {
	Dentists []DentistDTO `json:"dentists"`
	Bookings []BookingDTO `json:"bookings"`
	OffHours []OffHourDTO `json:"offHours"`
}

// DecodeSnapshot reads a Document and converts it. Rejected records are returned, not fatal.
func DecodeSnapshot(r io.Reader) (model.Snapshot, []Reject, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return model.Snapshot{}, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	dentists, rd := ConvertDentists(doc.Dentists)
	bookings, rb := ConvertBookings(doc.Bookings)
	offHours, ro := ConvertOffHours(doc.OffHours)

	rejects := append(append(rd, rb...), ro...)
	return model.Snapshot{Dentists: dentists, Bookings: bookings, OffHours: offHours}, rejects, nil
}

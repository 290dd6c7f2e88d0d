package availability

import (
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/brightsmile/dentalbook/services/availability-service/internal/model"
)

var ErrInvalidInterval = errors.New("availability: candidate interval must end after it starts")

type Config struct {
	Hours        OperatingHours
	SlotDuration time.Duration
	// BookingDuration applies to bookings that carry no duration of their own.
	BookingDuration time.Duration
	Location        *time.Location
}

func DefaultConfig() Config {
	return Config{
		Hours:           OperatingHours{OpenMinute: 9 * 60, CloseMinute: 17 * 60},
		SlotDuration:    time.Hour,
		BookingDuration: time.Hour,
		Location:        time.UTC,
	}
}

// Observer is told about records dropped from a query because they are malformed.
type Observer interface {
	MalformedRecord(kind BlockKind, id string, reason string)
}

// DentistSlots is one dentist's share of the all-dentists view.
type DentistSlots struct {
	DentistID string
	Slots     []Interval
}

// Resolver answers slot and availability queries over a snapshot supplied per call.
// It keeps no per-query state and is safe for concurrent use.
type Resolver struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer
}

type Option func(*Resolver)

func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

func NewResolver(cfg Config, logger *slog.Logger, opts ...Option) *Resolver {
	def := DefaultConfig()
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = def.SlotDuration
	}
	if cfg.BookingDuration <= 0 {
		cfg.BookingDuration = def.BookingDuration
	}
	if cfg.Hours == (OperatingHours{}) {
		cfg.Hours = def.Hours
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Config() Config {
	return r.cfg
}

// ParseDate parses YYYY-MM-DD as a calendar day in the clinic's location.
func (r *Resolver) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, r.cfg.Location)
}

// Day returns the clinic calendar day containing t as [midnight, next midnight).
func (r *Resolver) Day(t time.Time) Interval {
	y, m, d := t.In(r.cfg.Location).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, r.cfg.Location)
	return Interval{Start: start, End: start.AddDate(0, 0, 1)}
}

// Window returns the operating-hours window of the clinic day containing t.
func (r *Resolver) Window(t time.Time) Interval {
	return r.cfg.Hours.Window(r.Day(t).Start)
}

// Blocking returns the blocking intervals of dentistID on the clinic day containing day:
// off-hours (personal or clinic-wide) first, then active bookings, each group in
// snapshot order. Malformed records are reported and skipped.
func (r *Resolver) Blocking(snap model.Snapshot, dentistID string, day time.Time) []Block {
	return r.blocking(r.wellFormed(snap), dentistID, day)
}

// blocking expects a snapshot already passed through wellFormed.
func (r *Resolver) blocking(snap model.Snapshot, dentistID string, day time.Time) []Block {
	dayRange := r.Day(day)
	var blocks []Block

	for _, o := range snap.OffHours {
		if !o.AppliesTo(dentistID) {
			continue
		}
		iv := NewInterval(o.Start, o.End)
		if !iv.Overlaps(dayRange) {
			continue
		}
		blocks = append(blocks, Block{
			Interval:    iv,
			Kind:        BlockOffHour,
			RecordID:    o.ID,
			OwnerID:     o.DentistID,
			Description: o.Description,
		})
	}

	for _, b := range snap.Bookings {
		if b.Status != model.BookingBooked || b.DentistID != dentistID {
			continue
		}
		iv := NewInterval(b.AppointmentAt, b.End(r.cfg.BookingDuration))
		if !iv.Overlaps(dayRange) {
			continue
		}
		blocks = append(blocks, Block{
			Interval: iv,
			Kind:     BlockBooking,
			RecordID: b.ID,
			OwnerID:  b.DentistID,
		})
	}
	return blocks
}

// wellFormed returns snap without its malformed off-hours and bookings, reporting each
// dropped record once.
func (r *Resolver) wellFormed(snap model.Snapshot) model.Snapshot {
	out := snap
	out.OffHours = make([]model.OffHour, 0, len(snap.OffHours))
	for _, o := range snap.OffHours {
		if reason := offHourProblem(o); reason != "" {
			r.malformed(BlockOffHour, o.ID, reason)
			continue
		}
		out.OffHours = append(out.OffHours, o)
	}
	out.Bookings = make([]model.Booking, 0, len(snap.Bookings))
	for _, b := range snap.Bookings {
		if reason := bookingProblem(b); reason != "" {
			r.malformed(BlockBooking, b.ID, reason)
			continue
		}
		out.Bookings = append(out.Bookings, b)
	}
	return out
}

// Slots lazily yields the free slots of dentistID on the clinic day containing day.
// Unknown or inactive dentists yield nothing.
func (r *Resolver) Slots(snap model.Snapshot, dentistID string, day time.Time) iter.Seq[Interval] {
	if _, ok := snap.Dentist(dentistID); !ok {
		return func(func(Interval) bool) {}
	}
	return r.slots(r.wellFormed(snap), dentistID, day)
}

func (r *Resolver) slots(snap model.Snapshot, dentistID string, day time.Time) iter.Seq[Interval] {
	dayStart := r.Day(day).Start
	return GenerateSlots(dayStart, r.cfg.Hours, r.cfg.SlotDuration, r.blocking(snap, dentistID, dayStart))
}

func (r *Resolver) ListAvailableSlots(snap model.Snapshot, dentistID string, day time.Time) []Interval {
	return CollectSlots(r.Slots(snap, dentistID, day))
}

// ListAllAvailableSlots evaluates every active dentist independently. Malformed records
// are reported once per call, not once per dentist.
func (r *Resolver) ListAllAvailableSlots(snap model.Snapshot, day time.Time) []DentistSlots {
	dentists := snap.ActiveDentists()
	out := make([]DentistSlots, 0, len(dentists))
	if len(dentists) == 0 {
		return out
	}
	clean := r.wellFormed(snap)
	for _, d := range dentists {
		out = append(out, DentistSlots{DentistID: d.ID, Slots: CollectSlots(r.slots(clean, d.ID, day))})
	}
	return out
}

// CheckAvailability decides whether candidate can be booked with dentistID. An invalid
// candidate is a caller bug and returns ErrInvalidInterval; every data condition is
// reported through the verdict.
func (r *Resolver) CheckAvailability(snap model.Snapshot, dentistID string, candidate Interval) (Verdict, error) {
	if !candidate.Valid() {
		return Verdict{}, ErrInvalidInterval
	}
	if _, ok := snap.Dentist(dentistID); !ok {
		return Verdict{Reason: ReasonUnknownDentist}, nil
	}
	if !candidate.Within(r.Window(candidate.Start)) {
		return Verdict{Reason: ReasonOutsideOperatingHours}, nil
	}
	return DetectConflict(candidate, r.Blocking(snap, dentistID, candidate.Start)), nil
}

func (r *Resolver) malformed(kind BlockKind, id, reason string) {
	r.logger.Warn("skipping malformed record", "kind", kind.String(), "record_id", id, "reason", reason)
	if r.observer != nil {
		r.observer.MalformedRecord(kind, id, reason)
	}
}

func offHourProblem(o model.OffHour) string {
	switch {
	case o.ID == "":
		return "missing id"
	case !o.AllDentists && o.DentistID == "":
		return "missing owner"
	case !NewInterval(o.Start, o.End).Valid():
		return "end not after start"
	default:
		return ""
	}
}

func bookingProblem(b model.Booking) string {
	switch {
	case b.ID == "":
		return "missing id"
	case b.DentistID == "":
		return "missing dentist"
	case b.AppointmentAt.IsZero():
		return "missing appointment time"
	case b.Duration < 0:
		return "end not after start"
	case b.Status != model.BookingBooked && b.Status != model.BookingCancelled:
		return "unknown status"
	default:
		return ""
	}
}

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brightsmile/dentalbook/libs/db"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/model"
)

// Repository reads the clinic backend's tables directly. It never writes.
type Repository struct {
	pool   db.Querier
	logger *slog.Logger
}

func NewRepository(pool db.Querier, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{pool: pool, logger: logger}
}

func (r *Repository) ListDentists(ctx context.Context) ([]model.Dentist, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, is_active
		FROM dentists
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Dentist{}
	for rows.Next() {
		var d model.Dentist
		if err := rows.Scan(&d.ID, &d.Name, &d.Active); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListBookings returns bookings whose appointment starts in [from-1d, to). The extra day
// catches long appointments that spill over midnight; the resolver clips by interval.
func (r *Repository) ListBookings(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, dentist_id::text, COALESCE(patient_id::text, ''), appointment_at,
			COALESCE(duration_minutes, 0), status
		FROM bookings
		WHERE appointment_at >= $1 AND appointment_at < $2
		ORDER BY appointment_at, id
	`, from.AddDate(0, 0, -1), to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Booking{}
	for rows.Next() {
		var (
			b       model.Booking
			minutes int
			status  string
		)
		if err := rows.Scan(&b.ID, &b.DentistID, &b.PatientID, &b.AppointmentAt, &minutes, &status); err != nil {
			return nil, err
		}
		parsed, err := model.ParseBookingStatus(status)
		if err != nil {
			r.logger.Warn("skipping booking row", "record_id", b.ID, "err", err)
			continue
		}
		b.Status = parsed
		b.Duration = time.Duration(minutes) * time.Minute
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListOffHours returns off-hours overlapping [from, to).
func (r *Repository) ListOffHours(ctx context.Context, from, to time.Time) ([]model.OffHour, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, COALESCE(dentist_id::text, ''), is_for_all_dentists, start_at, end_at,
			COALESCE(description, '')
		FROM off_hours
		WHERE start_at < $2 AND end_at > $1
		ORDER BY start_at, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.OffHour{}
	for rows.Next() {
		var o model.OffHour
		if err := rows.Scan(&o.ID, &o.DentistID, &o.AllDentists, &o.Start, &o.End, &o.Description); err != nil {
			return nil, fmt.Errorf("scan off_hours: %w", err)
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

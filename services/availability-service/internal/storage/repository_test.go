package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brightsmile/dentalbook/services/availability-service/internal/model"
	"github.com/pashagolub/pgxmock/v4"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Repository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock, NewRepository(mock, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestListDentists(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery(`FROM dentists`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "is_active"}).
			AddRow("D", "Dr. Dee", true).
			AddRow("E", "Dr. Eve", false))

	got, err := repo.ListDentists(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "D" || got[1].Active {
		t.Fatalf("unexpected dentists %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListBookingsSkipsUnknownStatus(t *testing.T) {
	mock, repo := newMock(t)
	from := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(`FROM bookings`).
		WithArgs(from.AddDate(0, 0, -1), to).
		WillReturnRows(pgxmock.NewRows([]string{"id", "dentist_id", "patient_id", "appointment_at", "duration_minutes", "status"}).
			AddRow("b1", "D", "p1", from.Add(10*time.Hour), 45, "Booked").
			AddRow("b2", "D", "", from.Add(11*time.Hour), 0, "pending").
			AddRow("b3", "D", "p2", from.Add(12*time.Hour), 0, "cancel"))

	got, err := repo.ListBookings(context.Background(), from, to)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(got))
	}
	if got[0].Duration != 45*time.Minute || got[0].Status != model.BookingBooked {
		t.Fatalf("unexpected first booking %+v", got[0])
	}
	if got[1].ID != "b3" || got[1].Status != model.BookingCancelled {
		t.Fatalf("unexpected second booking %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListOffHours(t *testing.T) {
	mock, repo := newMock(t)
	from := time.Date(2025, 4, 13, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(`FROM off_hours`).
		WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"id", "dentist_id", "is_for_all_dentists", "start_at", "end_at", "description"}).
			AddRow("h1", "", true, from, to, "Holiday"))

	got, err := repo.ListOffHours(context.Background(), from, to)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || !got[0].AllDentists || got[0].Description != "Holiday" {
		t.Fatalf("unexpected off-hours %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

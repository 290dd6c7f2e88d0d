package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brightsmile/dentalbook/libs/httpx"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDecodeSnapshotRejectsBadRecords(t *testing.T) {
	doc := `{
		"dentists": [{"_id": "D", "name": "Dr. Dee"}, {"_id": "X", "active": false}, {"name": "no id"}],
		"bookings": [
			{"_id": "b1", "dentist": "D", "date": "2025-04-10T10:00:00Z", "status": "Booked"},
			{"_id": "b2", "dentist": "D", "date": "2025-04-10T11:00:00Z", "status": "Cancel"},
			{"_id": "b3", "dentist": "D", "date": "yesterday", "status": "booked"},
			{"_id": "b4", "dentist": "D", "date": "2025-04-10T12:00:00Z", "status": "pending"}
		],
		"offHours": [
			{"_id": "h1", "start": "2025-04-13T00:00:00Z", "end": "2025-04-14T00:00:00Z", "isForAllDentist": true, "description": "Holiday"},
			{"_id": "o1", "start": "2025-04-10T12:00:00Z", "end": "2025-04-10T13:00:00Z"},
			{"_id": "o2", "dentist": "D", "start": "2025-04-10T13:00:00Z", "end": "2025-04-10T12:00:00Z"}
		]
	}`

	snap, rejects, err := DecodeSnapshot(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Dentists) != 2 || snap.Dentists[1].Active {
		t.Fatalf("unexpected dentists %+v", snap.Dentists)
	}
	if len(snap.Bookings) != 2 || snap.Bookings[1].Status != model.BookingCancelled {
		t.Fatalf("unexpected bookings %+v", snap.Bookings)
	}
	if len(snap.OffHours) != 1 || !snap.OffHours[0].AllDentists {
		t.Fatalf("unexpected off-hours %+v", snap.OffHours)
	}
	if len(rejects) != 5 {
		t.Fatalf("expected 5 rejects, got %d: %v", len(rejects), rejects)
	}
	if rejects[0].Kind != KindDentist || rejects[0].Reason != "missing id" {
		t.Fatalf("unexpected first reject %v", rejects[0])
	}
	if rejects[3].Kind != KindOffHour || rejects[3].ID != "o1" || rejects[3].Reason != "missing dentist" {
		t.Fatalf("unexpected off-hour reject %v", rejects[3])
	}
}

func TestDecodeSnapshotInvalidJSON(t *testing.T) {
	if _, _, err := DecodeSnapshot(strings.NewReader("{")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestBookingDTODuration(t *testing.T) {
	b, err := BookingDTO{ID: "b", Dentist: "D", Date: "2025-04-10T10:00:00+02:00", Status: "booked", DurationMinutes: 30}.Model()
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	if b.Duration != 30*time.Minute {
		t.Fatalf("unexpected duration %s", b.Duration)
	}
	if !b.AppointmentAt.Equal(time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected appointment time %s", b.AppointmentAt)
	}
}

func TestClientFetches(t *testing.T) {
	var gotAuth, gotRequestID, gotRange, gotOffHourRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get(httpx.RequestIDHeader)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/dentists":
			_, _ = io.WriteString(w, `[{"_id":"D","name":"Dr. Dee"},{"name":"broken"}]`)
		case "/bookings":
			gotRange = r.URL.Query().Get("from") + "|" + r.URL.Query().Get("to")
			_, _ = io.WriteString(w, `[{"_id":"b0","dentist":"D","date":"2025-04-09T23:30:00Z","status":"booked","duration":90},{"_id":"b1","dentist":"D","date":"2025-04-10T10:00:00Z","status":"booked"}]`)
		case "/offhours":
			gotOffHourRange = r.URL.Query().Get("from") + "|" + r.URL.Query().Get("to")
			_, _ = io.WriteString(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var rejected []Reject
	c := NewClient(srv.URL+"/", "secret", discardLogger(),
		WithHTTPClient(srv.Client()),
		WithRejectHandler(func(r Reject) { rejected = append(rejected, r) }),
	)
	ctx := httpx.ContextWithRequestID(context.Background(), "req-1")

	dentists, err := c.ListDentists(ctx)
	if err != nil {
		t.Fatalf("dentists: %v", err)
	}
	if len(dentists) != 1 || len(rejected) != 1 {
		t.Fatalf("expected 1 dentist and 1 reject, got %d and %d", len(dentists), len(rejected))
	}
	if gotAuth != "Bearer secret" || gotRequestID != "req-1" {
		t.Fatalf("unexpected headers auth=%q request_id=%q", gotAuth, gotRequestID)
	}

	from := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	bookings, err := c.ListBookings(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("bookings: %v", err)
	}
	if len(bookings) != 2 || bookings[0].ID != "b0" || bookings[1].DentistID != "D" {
		t.Fatalf("unexpected bookings %+v", bookings)
	}
	if gotRange != "2025-04-09T00:00:00Z|2025-04-11T00:00:00Z" {
		t.Fatalf("expected bookings from the previous day, got range %q", gotRange)
	}

	offHours, err := c.ListOffHours(ctx, from, from.AddDate(0, 0, 1))
	if err != nil || len(offHours) != 0 {
		t.Fatalf("unexpected off-hours %+v, %v", offHours, err)
	}
	if gotOffHourRange != "2025-04-10T00:00:00Z|2025-04-11T00:00:00Z" {
		t.Fatalf("unexpected off-hour range %q", gotOffHourRange)
	}
}

func TestClientUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", discardLogger(), WithHTTPClient(srv.Client()))
	_, err := c.ListDentists(context.Background())
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
	if err := c.Ready(context.Background()); err == nil {
		t.Fatal("expected ready check to fail")
	}
}

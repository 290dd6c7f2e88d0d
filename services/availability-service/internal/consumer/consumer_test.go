package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeInvalidator struct {
	days []time.Time
	err  error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, days ...time.Time) error {
	f.days = append(f.days, days...)
	return f.err
}

type fakeInbox struct {
	seen map[string]bool
}

func (f *fakeInbox) Record(_ context.Context, id, _ string) (bool, error) {
	if f.seen[id] {
		return false, nil
	}
	f.seen[id] = true
	return true, nil
}

type fakeObserver struct {
	total int
}

func (f *fakeObserver) ObserveInvalidation(_ string, days int) {
	f.total += days
}

func testConsumer(inv Invalidator, inbox Inbox, obs InvalidationObserver) *Consumer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newConsumer(logger, nil, Config{Location: time.UTC, BookingDuration: time.Hour}, inv, inbox, obs)
}

func TestAffectedDays(t *testing.T) {
	at := time.Date(2025, 4, 10, 23, 30, 0, 0, time.UTC)
	prev := time.Date(2025, 4, 8, 9, 0, 0, 0, time.UTC)
	ev := ChangeEvent{AppointmentAt: &at, PreviousAppointmentAt: &prev}

	days := ev.AffectedDays(time.UTC, time.Hour)
	want := []string{"2025-04-10", "2025-04-11", "2025-04-08"}
	if len(days) != len(want) {
		t.Fatalf("expected %d days, got %v", len(want), days)
	}
	for i, d := range days {
		if got := d.Format(time.DateOnly); got != want[i] {
			t.Fatalf("day %d = %s, want %s", i, got, want[i])
		}
	}
}

func TestAffectedDaysOffHourRange(t *testing.T) {
	start := time.Date(2025, 4, 13, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	days := ChangeEvent{Start: &start, End: &end}.AffectedDays(time.UTC, time.Hour)
	if len(days) != 2 {
		t.Fatalf("expected 13th and 14th, got %v", days)
	}

	if got := (ChangeEvent{}).AffectedDays(time.UTC, time.Hour); len(got) != 0 {
		t.Fatalf("expected no days, got %v", got)
	}
}

func TestAffectedDaysUsesClinicLocation(t *testing.T) {
	loc := time.FixedZone("clinic", -5*60*60)
	at := time.Date(2025, 4, 11, 2, 0, 0, 0, time.UTC)
	days := ChangeEvent{AppointmentAt: &at, DurationMinutes: 30}.AffectedDays(loc, time.Hour)
	if len(days) != 1 || days[0].Format(time.DateOnly) != "2025-04-10" {
		t.Fatalf("expected clinic day 2025-04-10, got %v", days)
	}
}

func TestHandleInvalidatesAndDedupes(t *testing.T) {
	inv := &fakeInvalidator{}
	obs := &fakeObserver{}
	c := testConsumer(inv, &fakeInbox{seen: map[string]bool{}}, obs)

	msg := kafka.Message{
		Topic:   TopicBookingChanged,
		Headers: []kafka.Header{{Key: "event_id", Value: []byte("evt-1")}},
		Value:   []byte(`{"record_id":"b1","dentist_id":"D","appointment_at":"2025-04-10T10:00:00Z"}`),
	}
	if err := c.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := c.Handle(context.Background(), msg); err != nil {
		t.Fatalf("duplicate handle: %v", err)
	}
	if len(inv.days) != 1 || inv.days[0].Format(time.DateOnly) != "2025-04-10" {
		t.Fatalf("expected a single invalidation of 2025-04-10, got %v", inv.days)
	}
	if obs.total != 1 {
		t.Fatalf("expected 1 observed invalidation, got %d", obs.total)
	}
}

func TestHandleErrors(t *testing.T) {
	inv := &fakeInvalidator{err: errors.New("redis down")}
	c := testConsumer(inv, nil, nil)

	bad := kafka.Message{Topic: TopicOffHourChanged, Value: []byte(`not json`)}
	if err := c.Handle(context.Background(), bad); err == nil {
		t.Fatal("expected decode error")
	}

	ok := kafka.Message{Topic: TopicOffHourChanged, Value: []byte(`{"start":"2025-04-13T00:00:00Z","end":"2025-04-14T00:00:00Z"}`)}
	if err := c.Handle(context.Background(), ok); err == nil {
		t.Fatal("expected invalidation error to surface")
	}

	empty := kafka.Message{Topic: TopicOffHourChanged, Value: []byte(`{}`)}
	if err := c.Handle(context.Background(), empty); err != nil {
		t.Fatalf("event without timestamps must be skipped, got %v", err)
	}
}

func TestRunWithoutBrokersReturns(t *testing.T) {
	c := New(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{}, &fakeInvalidator{}, nil, nil)
	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run must return when no brokers are configured")
	}
}

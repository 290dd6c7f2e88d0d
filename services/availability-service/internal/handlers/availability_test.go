package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brightsmile/dentalbook/libs/auth"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/availability"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/metrics"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	snap        model.Snapshot
	err         error
	loadedDays  []string
	invalidated []string
}

func (f *fakeLoader) Load(_ context.Context, day time.Time) (model.Snapshot, error) {
	f.loadedDays = append(f.loadedDays, day.Format(time.DateOnly))
	return f.snap, f.err
}

func (f *fakeLoader) Invalidate(_ context.Context, days ...time.Time) error {
	for _, d := range days {
		f.invalidated = append(f.invalidated, d.Format(time.DateOnly))
	}
	return f.err
}

func clinicSnapshot() model.Snapshot {
	return model.Snapshot{
		Dentists: []model.Dentist{
			{ID: "D", Name: "Dr. Dee", Active: true},
			{ID: "E", Name: "Dr. Eve", Active: true},
		},
		Bookings: []model.Booking{
			{ID: "b1", DentistID: "D", AppointmentAt: time.Date(2025, 4, 10, 10, 0, 0, 0, time.UTC), Duration: time.Hour, Status: model.BookingBooked},
		},
		OffHours: []model.OffHour{
			{ID: "h1", AllDentists: true, Start: time.Date(2025, 4, 13, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 14, 0, 0, 0, 0, time.UTC), Description: "Holiday"},
		},
	}
}

func newHandler(t *testing.T, loader SnapshotLoader) *AvailabilityHandler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := availability.NewResolver(availability.DefaultConfig(), logger)
	return NewAvailabilityHandler(resolver, loader, logger, metrics.New(prometheus.NewRegistry()))
}

func TestSlots(t *testing.T) {
	loader := &fakeLoader{snap: clinicSnapshot()}
	h := newHandler(t, loader)

	rw := httptest.NewRecorder()
	h.Slots(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?dentist_id=D&date=2025-04-10", nil))
	require.Equal(t, http.StatusOK, rw.Code)

	var slots []slotItem
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &slots))
	require.Len(t, slots, 7)
	require.Equal(t, "2025-04-10T09:00:00Z", slots[0].StartTime)
	require.Equal(t, "2025-04-10T11:00:00Z", slots[1].StartTime)
	require.Equal(t, []string{"2025-04-10"}, loader.loadedDays)
}

func TestSlotsHolidayIsEmptyArray(t *testing.T) {
	h := newHandler(t, &fakeLoader{snap: clinicSnapshot()})

	rw := httptest.NewRecorder()
	h.Slots(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?dentist_id=D&date=2025-04-13", nil))
	require.Equal(t, http.StatusOK, rw.Code)
	require.JSONEq(t, `[]`, rw.Body.String())
}

func TestSlotsAllDentists(t *testing.T) {
	h := newHandler(t, &fakeLoader{snap: clinicSnapshot()})

	rw := httptest.NewRecorder()
	h.Slots(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?dentist_id=all&date=2025-04-10", nil))
	require.Equal(t, http.StatusOK, rw.Code)

	var all []dentistSlotsItem
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &all))
	require.Len(t, all, 2)
	require.Equal(t, "D", all[0].DentistID)
	require.Len(t, all[0].Slots, 7)
	require.Len(t, all[1].Slots, 8)
}

func TestSlotsBadRequests(t *testing.T) {
	h := newHandler(t, &fakeLoader{snap: clinicSnapshot()})

	for _, target := range []string{
		"/api/v1/public/slots?date=2025-04-10",
		"/api/v1/public/slots?dentist_id=D",
		"/api/v1/public/slots?dentist_id=D&date=10/04/2025",
	} {
		rw := httptest.NewRecorder()
		h.Slots(rw, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rw.Code, target)
	}

	rw := httptest.NewRecorder()
	h.Slots(rw, httptest.NewRequest(http.MethodPost, "/api/v1/public/slots", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rw.Code)
}

func TestSlotsLoadFailure(t *testing.T) {
	h := newHandler(t, &fakeLoader{err: errors.New("backend down")})

	rw := httptest.NewRecorder()
	h.Slots(rw, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?dentist_id=D&date=2025-04-10", nil))
	require.Equal(t, http.StatusBadGateway, rw.Code)
}

func TestCheck(t *testing.T) {
	h := newHandler(t, &fakeLoader{snap: clinicSnapshot()})

	cases := []struct {
		name   string
		body   string
		status int
		want   checkResponse
	}{
		{
			name:   "available",
			body:   `{"dentist_id":"D","start_time":"2025-04-10T11:00:00Z","end_time":"2025-04-10T12:00:00Z"}`,
			status: http.StatusOK,
			want:   checkResponse{Available: true},
		},
		{
			name:   "booking conflict",
			body:   `{"dentist_id":"D","start_time":"2025-04-10T10:15:00Z","end_time":"2025-04-10T10:45:00Z"}`,
			status: http.StatusOK,
			want:   checkResponse{Reason: "booking-conflict", RecordID: "b1"},
		},
		{
			name:   "holiday",
			body:   `{"dentist_id":"E","start_time":"2025-04-13T10:00:00Z","end_time":"2025-04-13T11:00:00Z"}`,
			status: http.StatusOK,
			want:   checkResponse{Reason: "off-hour-conflict", RecordID: "h1"},
		},
		{
			name:   "outside hours",
			body:   `{"dentist_id":"D","start_time":"2025-04-10T08:00:00Z","end_time":"2025-04-10T09:00:00Z"}`,
			status: http.StatusOK,
			want:   checkResponse{Reason: "outside-operating-hours"},
		},
		{
			name:   "unknown dentist",
			body:   `{"dentist_id":"Z","start_time":"2025-04-10T11:00:00Z","end_time":"2025-04-10T12:00:00Z"}`,
			status: http.StatusOK,
			want:   checkResponse{Reason: "unknown-dentist"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rw := httptest.NewRecorder()
			h.Check(rw, httptest.NewRequest(http.MethodPost, "/api/v1/public/availability/check", strings.NewReader(tc.body)))
			require.Equal(t, tc.status, rw.Code)

			var got checkResponse
			require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCheckRejectsInvalidInput(t *testing.T) {
	loader := &fakeLoader{snap: clinicSnapshot()}
	h := newHandler(t, loader)

	for _, body := range []string{
		`{`,
		`{"start_time":"2025-04-10T11:00:00Z","end_time":"2025-04-10T12:00:00Z"}`,
		`{"dentist_id":"D","start_time":"soon","end_time":"2025-04-10T12:00:00Z"}`,
		`{"dentist_id":"D","start_time":"2025-04-10T12:00:00Z","end_time":"2025-04-10T11:00:00Z"}`,
		`{"dentist_id":"D","start_time":"2025-04-10T12:00:00Z","end_time":"2025-04-10T12:00:00Z"}`,
	} {
		rw := httptest.NewRecorder()
		h.Check(rw, httptest.NewRequest(http.MethodPost, "/api/v1/public/availability/check", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rw.Code, body)
	}
	require.Empty(t, loader.loadedDays)
}

func TestSchedule(t *testing.T) {
	h := newHandler(t, &fakeLoader{snap: clinicSnapshot()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedule?date=2025-04-10", nil)
	req = req.WithContext(auth.ContextWithClaims(req.Context(), &auth.Claims{Role: auth.RoleDentist, DentistID: "D"}))
	rw := httptest.NewRecorder()
	h.Schedule(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)

	var resp scheduleResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.Equal(t, "D", resp.DentistID)
	require.Len(t, resp.Blocks, 1)
	require.Equal(t, "booking", resp.Blocks[0].Kind)
	require.Equal(t, "b1", resp.Blocks[0].RecordID)
	require.Len(t, resp.Slots, 7)
}

func TestScheduleHolidayIsClinicWide(t *testing.T) {
	h := newHandler(t, &fakeLoader{snap: clinicSnapshot()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedule?dentist_id=E&date=2025-04-13", nil)
	req = req.WithContext(auth.ContextWithClaims(req.Context(), &auth.Claims{Role: auth.RoleAdmin}))
	rw := httptest.NewRecorder()
	h.Schedule(rw, req)
	require.Equal(t, http.StatusOK, rw.Code)

	var resp scheduleResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.Len(t, resp.Blocks, 1)
	require.True(t, resp.Blocks[0].ClinicWide)
	require.Equal(t, "Holiday", resp.Blocks[0].Description)
	require.Empty(t, resp.Slots)
}

func TestScheduleForbidsOtherDentists(t *testing.T) {
	h := newHandler(t, &fakeLoader{snap: clinicSnapshot()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedule?dentist_id=E&date=2025-04-10", nil)
	req = req.WithContext(auth.ContextWithClaims(req.Context(), &auth.Claims{Role: auth.RoleDentist, DentistID: "D"}))
	rw := httptest.NewRecorder()
	h.Schedule(rw, req)
	require.Equal(t, http.StatusForbidden, rw.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/schedule?dentist_id=Z&date=2025-04-10", nil)
	req = req.WithContext(auth.ContextWithClaims(req.Context(), &auth.Claims{Role: auth.RoleAdmin}))
	rw = httptest.NewRecorder()
	h.Schedule(rw, req)
	require.Equal(t, http.StatusNotFound, rw.Code)
}

func TestAdminSlotsAndInvalidate(t *testing.T) {
	loader := &fakeLoader{snap: clinicSnapshot()}
	h := newHandler(t, loader)

	rw := httptest.NewRecorder()
	h.AdminSlots(rw, httptest.NewRequest(http.MethodGet, "/api/v1/admin/slots?date=2025-04-10", nil))
	require.Equal(t, http.StatusOK, rw.Code)
	var all []dentistSlotsItem
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &all))
	require.Len(t, all, 2)

	rw = httptest.NewRecorder()
	h.Invalidate(rw, httptest.NewRequest(http.MethodPost, "/api/v1/admin/snapshots/invalidate?date=2025-04-10", nil))
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, []string{"2025-04-10"}, loader.invalidated)

	rw = httptest.NewRecorder()
	h.Invalidate(rw, httptest.NewRequest(http.MethodPost, "/api/v1/admin/snapshots/invalidate", nil))
	require.Equal(t, http.StatusBadRequest, rw.Code)

	loader.err = errors.New("redis down")
	rw = httptest.NewRecorder()
	h.Invalidate(rw, httptest.NewRequest(http.MethodPost, "/api/v1/admin/snapshots/invalidate?date=2025-04-10", nil))
	require.Equal(t, http.StatusServiceUnavailable, rw.Code)
}

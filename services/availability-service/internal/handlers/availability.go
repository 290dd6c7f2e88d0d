package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brightsmile/dentalbook/libs/auth"
	"github.com/brightsmile/dentalbook/libs/httpx"
	otelx "github.com/brightsmile/dentalbook/libs/otel"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/availability"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/metrics"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
)

// AllDentists selects the per-dentist view in the slots endpoint.
const AllDentists = "all"

// SnapshotLoader is the part of snapshot.Loader the handlers need.
type SnapshotLoader interface {
	Load(ctx context.Context, day time.Time) (model.Snapshot, error)
	Invalidate(ctx context.Context, days ...time.Time) error
}

type AvailabilityHandler struct {
	resolver *availability.Resolver
	loader   SnapshotLoader
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewAvailabilityHandler(resolver *availability.Resolver, loader SnapshotLoader, logger *slog.Logger, m *metrics.Metrics) *AvailabilityHandler {
	return &AvailabilityHandler{
		resolver: resolver,
		loader:   loader,
		logger:   logger,
		metrics:  m,
	}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type dentistSlotsItem struct {
	DentistID string     `json:"dentist_id"`
	Slots     []slotItem `json:"slots"`
}

type checkRequest struct {
	DentistID string `json:"dentist_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type checkResponse struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	RecordID  string `json:"record_id,omitempty"`
}

type blockItem struct {
	Kind        string `json:"kind"`
	RecordID    string `json:"record_id"`
	ClinicWide  bool   `json:"clinic_wide,omitempty"`
	Description string `json:"description,omitempty"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type scheduleResponse struct {
	DentistID string      `json:"dentist_id"`
	Date      string      `json:"date"`
	Blocks    []blockItem `json:"blocks"`
	Slots     []slotItem  `json:"slots"`
}

type invalidateResponse struct {
	Date        string `json:"date"`
	Invalidated bool   `json:"invalidated"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toSlotItems(slots []availability.Interval) []slotItem {
	out := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotItem{StartTime: formatTime(s.Start), EndTime: formatTime(s.End)})
	}
	return out
}

// Slots lists the free slots of one dentist, or of every dentist with dentist_id=all.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dentistID := strings.TrimSpace(r.URL.Query().Get("dentist_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dentistID == "" || dateStr == "" {
		http.Error(w, "dentist_id and date are required", http.StatusBadRequest)
		return
	}
	day, err := h.resolver.ParseDate(dateStr)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	snap, ok := h.load(w, r, day)
	if !ok {
		return
	}

	if dentistID == AllDentists {
		httpx.WriteJSON(w, http.StatusOK, h.allSlots(snap, day))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSlotItems(h.resolver.ListAvailableSlots(snap, dentistID, day)))
}

// AdminSlots is the all-dentists view for the administrative dashboard.
func (h *AvailabilityHandler) AdminSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	day, err := h.resolver.ParseDate(strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		http.Error(w, "date is required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	snap, ok := h.load(w, r, day)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.allSlots(snap, day))
}

func (h *AvailabilityHandler) allSlots(snap model.Snapshot, day time.Time) []dentistSlotsItem {
	all := h.resolver.ListAllAvailableSlots(snap, day)
	out := make([]dentistSlotsItem, 0, len(all))
	for _, d := range all {
		out = append(out, dentistSlotsItem{DentistID: d.DentistID, Slots: toSlotItems(d.Slots)})
	}
	return out
}

// Check answers whether a candidate interval can be booked. Data conditions are reported
// as reasons with 200; only malformed requests are 4xx.
func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.DentistID = strings.TrimSpace(req.DentistID)
	if req.DentistID == "" {
		http.Error(w, "dentist_id is required", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	candidate := availability.NewInterval(start, end)
	if !candidate.Valid() {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	snap, ok := h.load(w, r, start)
	if !ok {
		return
	}

	verdict, err := h.resolver.CheckAvailability(snap, req.DentistID, candidate)
	if errors.Is(err, availability.ErrInvalidInterval) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "availability check failed", http.StatusInternalServerError)
		return
	}
	h.metrics.ObserveVerdict(verdict)

	httpx.WriteJSON(w, http.StatusOK, checkResponse{
		Available: verdict.Available,
		Reason:    string(verdict.Reason),
		RecordID:  verdict.RecordID,
	})
}

// Schedule returns a dentist's blocking intervals and free slots for the dashboard.
// Dentists may only read their own schedule; admins may read any.
func (h *AvailabilityHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dentistID := strings.TrimSpace(r.URL.Query().Get("dentist_id"))
	claims, _ := auth.ClaimsFromContext(r.Context())
	if claims != nil && claims.Role == auth.RoleDentist {
		if dentistID == "" {
			dentistID = claims.DentistID
		}
		if dentistID != claims.DentistID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dentistID == "" || dateStr == "" {
		http.Error(w, "dentist_id and date are required", http.StatusBadRequest)
		return
	}
	day, err := h.resolver.ParseDate(dateStr)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	snap, ok := h.load(w, r, day)
	if !ok {
		return
	}
	if _, known := snap.Dentist(dentistID); !known {
		http.Error(w, "unknown dentist", http.StatusNotFound)
		return
	}

	blocks := h.resolver.Blocking(snap, dentistID, day)
	resp := scheduleResponse{
		DentistID: dentistID,
		Date:      dateStr,
		Blocks:    make([]blockItem, 0, len(blocks)),
		Slots:     toSlotItems(h.resolver.ListAvailableSlots(snap, dentistID, day)),
	}
	for _, b := range blocks {
		resp.Blocks = append(resp.Blocks, blockItem{
			Kind:        b.Kind.String(),
			RecordID:    b.RecordID,
			ClinicWide:  b.Kind == availability.BlockOffHour && b.OwnerID == "",
			Description: b.Description,
			StartTime:   formatTime(b.Start),
			EndTime:     formatTime(b.End),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Invalidate drops the cached snapshot of one day so the next query refetches it.
func (h *AvailabilityHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	day, err := h.resolver.ParseDate(dateStr)
	if err != nil {
		http.Error(w, "date is required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	if err := h.loader.Invalidate(r.Context(), day); err != nil {
		h.logger.Error("snapshot invalidation failed", "err", err, "date", dateStr)
		http.Error(w, "failed to invalidate snapshot", http.StatusServiceUnavailable)
		return
	}
	h.metrics.ObserveInvalidation("admin", 1)
	httpx.WriteJSON(w, http.StatusOK, invalidateResponse{Date: dateStr, Invalidated: true})
}

func (h *AvailabilityHandler) load(w http.ResponseWriter, r *http.Request, day time.Time) (model.Snapshot, bool) {
	ctx, span := otelx.Start(r.Context(), "availability.load_snapshot")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.day", day.Format(time.DateOnly)))

	snap, err := h.loader.Load(ctx, day)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("snapshot load failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		http.Error(w, "failed to load availability data", http.StatusBadGateway)
		return model.Snapshot{}, false
	}
	return snap, true
}

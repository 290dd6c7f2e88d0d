package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/brightsmile/dentalbook/services/availability-service/internal/availability"
	"github.com/prometheus/client_golang/prometheus"
)

// value returns the counter value, or histogram sample count, of the series of name
// carrying every label in labels.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	series:
		for _, m := range f.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue series
				}
			}
			if h := m.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveVerdict(availability.Verdict{Available: true})
	m.ObserveVerdict(availability.Verdict{Reason: availability.ReasonBookingConflict})
	m.ObserveVerdict(availability.Verdict{Reason: availability.ReasonBookingConflict})
	m.MalformedRecord(availability.BlockOffHour, "o1", "missing owner")
	m.RejectedRecord("booking")
	m.CacheResult("hit")
	m.SourceLoad(120*time.Millisecond, nil)
	m.SourceLoad(time.Second, errors.New("down"))
	m.ObserveInvalidation("kafka", 2)
	m.ObserveInvalidation("admin", 0)

	cases := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"dentalbook_availability_verdicts_total", map[string]string{"reason": "booking-conflict"}, 2},
		{"dentalbook_availability_verdicts_total", map[string]string{"reason": "available"}, 1},
		{"dentalbook_availability_malformed_records_total", map[string]string{"kind": "off-hour", "reason": "missing owner"}, 1},
		{"dentalbook_backend_rejected_records_total", map[string]string{"kind": "booking"}, 1},
		{"dentalbook_snapshot_cache_total", map[string]string{"result": "hit"}, 1},
		{"dentalbook_snapshot_load_seconds", map[string]string{"status": "error"}, 1},
		{"dentalbook_snapshot_invalidations_total", map[string]string{"trigger": "kafka"}, 2},
		{"dentalbook_snapshot_invalidations_total", map[string]string{"trigger": "admin"}, 0},
	}
	for _, tc := range cases {
		if got := value(t, reg, tc.name, tc.labels); got != tc.want {
			t.Fatalf("%s%v = %v, want %v", tc.name, tc.labels, got, tc.want)
		}
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveVerdict(availability.Verdict{})
	m.MalformedRecord(availability.BlockBooking, "b", "missing id")
	m.RejectedRecord("dentist")
	m.CacheResult("miss")
	m.SourceLoad(time.Millisecond, nil)
	m.ObserveInvalidation("cron", 1)
}

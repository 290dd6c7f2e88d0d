package metrics

import (
	"time"

	"github.com/brightsmile/dentalbook/services/availability-service/internal/availability"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters and histograms for availability queries and snapshot loading.
type Metrics struct {
	verdicts      *prometheus.CounterVec
	malformed     *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	cache         *prometheus.CounterVec
	loadLatency   *prometheus.HistogramVec
	invalidations *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalbook",
			Subsystem: "availability",
			Name:      "verdicts_total",
			Help:      "Availability checks by outcome reason",
		}, []string{"reason"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalbook",
			Subsystem: "availability",
			Name:      "malformed_records_total",
			Help:      "Records skipped by the resolver because they are malformed",
		}, []string{"kind", "reason"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalbook",
			Subsystem: "backend",
			Name:      "rejected_records_total",
			Help:      "Backend records dropped during conversion",
		}, []string{"kind"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalbook",
			Subsystem: "snapshot",
			Name:      "cache_total",
			Help:      "Snapshot cache lookups by result",
		}, []string{"result"}),
		loadLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dentalbook",
			Subsystem: "snapshot",
			Name:      "load_seconds",
			Help:      "Latency of snapshot loads from the source",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalbook",
			Subsystem: "snapshot",
			Name:      "invalidations_total",
			Help:      "Cached days dropped, by trigger",
		}, []string{"trigger"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.verdicts, m.malformed, m.rejected, m.cache, m.loadLatency, m.invalidations)
	return m
}

func (m *Metrics) ObserveVerdict(v availability.Verdict) {
	if m == nil {
		return
	}
	reason := string(v.Reason)
	if v.Available {
		reason = "available"
	}
	m.verdicts.WithLabelValues(reason).Inc()
}

func (m *Metrics) MalformedRecord(kind availability.BlockKind, _ string, reason string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(kind.String(), reason).Inc()
}

func (m *Metrics) RejectedRecord(kind string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(kind).Inc()
}

func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.cache.WithLabelValues(result).Inc()
}

func (m *Metrics) SourceLoad(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.loadLatency.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveInvalidation(trigger string, days int) {
	if m == nil || days <= 0 {
		return
	}
	m.invalidations.WithLabelValues(trigger).Add(float64(days))
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the repository's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	VersionsCreated   *prometheus.CounterVec
	Retirements       *prometheus.CounterVec
	ReferencesAdded   prometheus.Counter
	ReferencesDeleted prometheus.Counter
	ReferenceErrors   *prometheus.CounterVec
	BulkAddDuration   prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VersionsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termrepo_versions_created_total",
			Help: "Versions created, by resource kind",
		}, []string{"kind"}),
		Retirements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termrepo_retirement_transitions_total",
			Help: "Retire and un-retire transitions, by resource kind and direction",
		}, []string{"kind", "direction"}),
		ReferencesAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "termrepo_references_added_total",
			Help: "Collection references accepted by bulk add",
		}),
		ReferencesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "termrepo_references_deleted_total",
			Help: "Collection references removed",
		}),
		ReferenceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "termrepo_reference_errors_total",
			Help: "Expressions rejected by bulk add, by error code",
		}, []string{"code"}),
		BulkAddDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "termrepo_bulk_add_duration_seconds",
			Help:    "Latency of bulk reference additions",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncVersionsCreated(kind string) {
	if m == nil {
		return
	}
	m.VersionsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncRetirement(kind string, retired bool) {
	if m == nil {
		return
	}
	direction := "unretire"
	if retired {
		direction = "retire"
	}
	m.Retirements.WithLabelValues(kind, direction).Inc()
}

func (m *Metrics) AddReferencesAdded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReferencesAdded.Add(float64(n))
}

func (m *Metrics) AddReferencesDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReferencesDeleted.Add(float64(n))
}

func (m *Metrics) IncReferenceError(code string) {
	if m == nil {
		return
	}
	m.ReferenceErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveBulkAdd(start time.Time) {
	if m == nil {
		return
	}
	m.BulkAddDuration.Observe(time.Since(start).Seconds())
}

package dupes

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"dupegraph/internal/models"
	"dupegraph/internal/store"
)

const metricsNamespace = "dupegraph"

// Metrics collects processor and queue counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	decisions   *prometheus.CounterVec
	needsSearch prometheus.Counter
	enqueued    prometheus.Counter
	batchFiles  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decisions_total",
			Help:      "Decisions applied by the duplicate action processor, by action and outcome.",
		}, []string{"action", "outcome"}),
		needsSearch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "needs_search_flagged_total",
			Help:      "Files flagged needs-search by committed decisions.",
		}),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "potential_pairs_enqueued_total",
			Help:      "New potential pairs accepted into the queue.",
		}),
		batchFiles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "decision_batch_files",
			Help:      "Number of files named by each decision.",
			Buckets:   []float64{2, 5, 10, 25, 50, 100, 250, 1000},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.needsSearch, m.enqueued, m.batchFiles)
	}
	return m
}

func (m *Metrics) observeDecision(action models.Action, files int, result models.Result, err error) {
	if m == nil {
		return
	}
	label := string(action)
	if label == "" {
		label = "unknown"
	}
	m.decisions.WithLabelValues(label, outcome(err)).Inc()
	if err != nil {
		return
	}
	m.batchFiles.Observe(float64(files))
	m.needsSearch.Add(float64(len(result.NeedsSearch)))
	for _, change := range result.Changes {
		if change.Kind == models.ChangePotentialQueued {
			m.enqueued.Add(float64(change.Count))
		}
	}
}

func (m *Metrics) observeEnqueue(added int) {
	if m == nil || added <= 0 {
		return
	}
	m.enqueued.Add(float64(added))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrInvalidDecision):
		return "invalid"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrInvalidRelationship):
		return "invalid_relationship"
	case errors.Is(err, store.ErrCorrupt):
		return "corrupt"
	default:
		return "error"
	}
}

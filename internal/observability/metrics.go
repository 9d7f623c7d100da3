package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	viewsServed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "studyplanner",
		Subsystem: "reconcile",
		Name:      "views_total",
		Help:      "Merged day views computed.",
	})
	sweepRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyplanner",
		Subsystem: "cleanup",
		Name:      "sweeps_total",
		Help:      "Cleanup sweeps by outcome (clean, rewritten, skipped, failed).",
	}, []string{"outcome"})
	sweepChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyplanner",
		Subsystem: "cleanup",
		Name:      "records_total",
		Help:      "Activities patched or removed by cleanup.",
	}, []string{"action"})
	undoTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyplanner",
		Subsystem: "undo",
		Name:      "transitions_total",
		Help:      "Undo buffer transitions by kind and state.",
	}, []string{"kind", "state"})
	persistFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyplanner",
		Subsystem: "persistence",
		Name:      "failures_total",
		Help:      "Writes rejected by the persistence layer, by collection.",
	}, []string{"collection"})
	persistLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "studyplanner",
		Subsystem: "persistence",
		Name:      "write_seconds",
		Help:      "Latency of collection writes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"collection"})
	bufferDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "studyplanner",
		Subsystem: "buffer",
		Name:      "pending_writes",
		Help:      "Writes waiting in the offline buffer.",
	})
	backendUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "studyplanner",
		Subsystem: "monitor",
		Name:      "backend_up",
		Help:      "1 when the last probe of the backend succeeded.",
	}, []string{"backend"})
	httpRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "studyplanner",
		Subsystem: "http",
		Name:      "request_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})
)

func init() {
	prometheus.MustRegister(
		viewsServed, sweepRuns, sweepChanges, undoTransitions, persistFailures, persistLatency,
		bufferDepth, backendUp, httpRequests,
	)
}

func RecordView() {
	viewsServed.Inc()
}

// RecordSweep counts a sweep outcome together with the records it touched.
func RecordSweep(outcome string, patched, removed int) {
	sweepRuns.WithLabelValues(outcome).Inc()
	if patched > 0 {
		sweepChanges.WithLabelValues("patched").Add(float64(patched))
	}
	if removed > 0 {
		sweepChanges.WithLabelValues("removed").Add(float64(removed))
	}
}

func RecordUndo(kind, state string) {
	undoTransitions.WithLabelValues(kind, state).Inc()
}

func RecordPersist(collection string, seconds float64, err error) {
	persistLatency.WithLabelValues(collection).Observe(seconds)
	if err != nil {
		persistFailures.WithLabelValues(collection).Inc()
	}
}

// RecordBackends publishes the monitor's view of each backend and the buffer depth.
func RecordBackends(backends map[string]bool, buffered int) {
	for name, up := range backends {
		value := 0.0
		if up {
			value = 1
		}
		backendUp.WithLabelValues(name).Set(value)
	}
	bufferDepth.Set(float64(buffered))
}

func RecordRequest(route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

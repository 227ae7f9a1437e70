package spindex

import (
	"errors"
	"time"

	"github.com/drpcorg/spindex/spindex_errors"
	"github.com/prometheus/client_golang/prometheus"
)

var OperationCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "spindex",
	Subsystem: "index",
	Name:      "operations",
}, []string{"dir", "op", "result"})

var OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "spindex",
	Subsystem: "index",
	Name:      "operation_duration_ms",
	Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
}, []string{"dir", "op"})

var IndexedEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "spindex",
	Subsystem: "index",
	Name:      "entries",
}, []string{"dir"})

var TreeHeight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "spindex",
	Subsystem: "tree",
	Name:      "height",
}, []string{"dir"})

var NodeSplits = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "spindex",
	Subsystem: "tree",
	Name:      "splits",
}, []string{"dir"})

var ReinsertedEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "spindex",
	Subsystem: "tree",
	Name:      "reinserted_entries",
}, []string{"dir"})

var TreeCases = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "spindex",
	Subsystem: "tree",
	Name:      "cases",
}, []string{"dir", "case"})

var VisitedNodes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "spindex",
	Subsystem: "tree",
	Name:      "visited_nodes",
}, []string{"dir", "kind"})

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, spindex_errors.ErrEntryNotFound):
		return "not_found"
	case errors.Is(err, spindex_errors.ErrInvalidEnvelope):
		return "invalid"
	case errors.Is(err, spindex_errors.ErrReadOnlyIndex):
		return "read_only"
	case errors.Is(err, spindex_errors.ErrCorruptIndex):
		return "corrupt"
	default:
		return "error"
	}
}

func observe(dir, op string, start time.Time, err error) {
	OperationCount.WithLabelValues(dir, op, result(err)).Inc()
	OperationDuration.WithLabelValues(dir, op).Observe(float64(time.Since(start).Microseconds()) / 1000)
}

// metricsMonitor reports tree events of one index directory.
type metricsMonitor struct {
	splits     prometheus.Counter
	reinserted prometheus.Counter
	leaves     prometheus.Counter
	internal   prometheus.Counter
	height     prometheus.Gauge
	dir        string
}

func newMetricsMonitor(dir string) *metricsMonitor {
	return &metricsMonitor{
		splits:     NodeSplits.WithLabelValues(dir),
		reinserted: ReinsertedEntries.WithLabelValues(dir),
		leaves:     VisitedNodes.WithLabelValues(dir, "leaf"),
		internal:   VisitedNodes.WithLabelValues(dir, "internal"),
		height:     TreeHeight.WithLabelValues(dir),
		dir:        dir,
	}
}

func (m *metricsMonitor) AddSplit() {
	m.splits.Inc()
}

func (m *metricsMonitor) AddReinserted(n int) {
	m.reinserted.Add(float64(n))
}

func (m *metricsMonitor) AddCase(name string) {
	TreeCases.WithLabelValues(m.dir, name).Inc()
}

func (m *metricsMonitor) NodeVisited(leaf bool) {
	if leaf {
		m.leaves.Inc()
	} else {
		m.internal.Inc()
	}
}

func (m *metricsMonitor) HeightChanged(height int) {
	m.height.Set(float64(height))
}

// Collectors lists what to register to export this index's metrics.
// The package-level vectors are shared by every open index.
func (ix *Index) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		OperationCount,
		OperationDuration,
		IndexedEntries,
		TreeHeight,
		NodeSplits,
		ReinsertedEntries,
		TreeCases,
		VisitedNodes,
		NewPebbleCollector(ix.db, ix.dir),
	}
}

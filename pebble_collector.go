package spindex

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

// PebbleCollector exports storage engine metrics of one index directory.
type PebbleCollector struct {
	db *pebble.DB

	compactionCount         *prometheus.Desc
	compactionEstimatedDebt *prometheus.Desc

	memtableSize  *prometheus.Desc
	memtableCount *prometheus.Desc

	walFiles        *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesIn      *prometheus.Desc
	walBytesWritten *prometheus.Desc
}

func NewPebbleCollector(db *pebble.DB, dir string) *PebbleCollector {
	labels := prometheus.Labels{"dir": dir}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("spindex_pebble_"+name, help, nil, labels)
	}
	return &PebbleCollector{
		db: db,

		compactionCount:         desc("compaction_count_total", "Total number of compactions performed"),
		compactionEstimatedDebt: desc("compaction_estimated_debt_bytes", "Estimated number of bytes that need to be compacted to reach a stable state"),

		memtableSize:  desc("memtable_size_bytes", "Current size of the memtable in bytes"),
		memtableCount: desc("memtable_count", "Current count of memtables"),

		walFiles:        desc("wal_files", "Number of live WAL files"),
		walSize:         desc("wal_size_bytes", "Size of live WAL data in bytes"),
		walBytesIn:      desc("wal_bytes_in_total", "Total logical bytes written to the WAL"),
		walBytesWritten: desc("wal_bytes_written_total", "Total physical bytes written to the WAL"),
	}
}

func (pc *PebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pc.compactionCount
	ch <- pc.compactionEstimatedDebt
	ch <- pc.memtableSize
	ch <- pc.memtableCount
	ch <- pc.walFiles
	ch <- pc.walSize
	ch <- pc.walBytesIn
	ch <- pc.walBytesWritten
}

func (pc *PebbleCollector) Collect(ch chan<- prometheus.Metric) {
	m := pc.db.Metrics()
	emit := func(d *prometheus.Desc, t prometheus.ValueType, v float64) {
		ch <- prometheus.MustNewConstMetric(d, t, v)
	}
	emit(pc.compactionCount, prometheus.CounterValue, float64(m.Compact.Count))
	emit(pc.compactionEstimatedDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt))
	emit(pc.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size))
	emit(pc.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count))
	emit(pc.walFiles, prometheus.GaugeValue, float64(m.WAL.Files))
	emit(pc.walSize, prometheus.GaugeValue, float64(m.WAL.Size))
	emit(pc.walBytesIn, prometheus.CounterValue, float64(m.WAL.BytesIn))
	emit(pc.walBytesWritten, prometheus.CounterValue, float64(m.WAL.BytesWritten))
}

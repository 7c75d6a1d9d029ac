package indexstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the in-memory Pebble instance backing one table's
// indexes as Prometheus metrics. The indexes themselves hold nothing
// durable, but the embedded LSM engine's compaction/memtable/WAL
// counters are still meaningful operational signal about how much
// churn the builder and update path are putting through the store —
// the same metrics the teacher surfaces for its on-disk replica.
type Collector struct {
	store *Store
	table string

	compactionCount         *prometheus.Desc
	compactionEstimatedDebt *prometheus.Desc
	compactionInProgress    *prometheus.Desc

	memtableSize        *prometheus.Desc
	memtableCount       *prometheus.Desc
	memtableZombieSize  *prometheus.Desc
	memtableZombieCount *prometheus.Desc

	walFiles        *prometheus.Desc
	walSize         *prometheus.Desc
	walBytesIn      *prometheus.Desc
	walBytesWritten *prometheus.Desc
}

// NewCollector builds a Collector for store, labeled with the owning
// table's id so a process managing many tables can distinguish them in
// one Prometheus registry.
func NewCollector(store *Store, table string) *Collector {
	labels := []string{"table"}
	return &Collector{
		store: store,
		table: table,

		compactionCount: prometheus.NewDesc(
			"indextuner_indexstore_compaction_count_total",
			"Total number of compactions performed against an index store",
			labels, nil,
		),
		compactionEstimatedDebt: prometheus.NewDesc(
			"indextuner_indexstore_compaction_estimated_debt_bytes",
			"Estimated bytes remaining to compact to a stable state",
			labels, nil,
		),
		compactionInProgress: prometheus.NewDesc(
			"indextuner_indexstore_compaction_in_progress_bytes",
			"Bytes currently being compacted",
			labels, nil,
		),
		memtableSize: prometheus.NewDesc(
			"indextuner_indexstore_memtable_size_bytes",
			"Current memtable size",
			labels, nil,
		),
		memtableCount: prometheus.NewDesc(
			"indextuner_indexstore_memtable_count",
			"Current memtable count",
			labels, nil,
		),
		memtableZombieSize: prometheus.NewDesc(
			"indextuner_indexstore_memtable_zombie_size_bytes",
			"Size of memtables pending reclamation",
			labels, nil,
		),
		memtableZombieCount: prometheus.NewDesc(
			"indextuner_indexstore_memtable_zombie_count",
			"Count of memtables pending reclamation",
			labels, nil,
		),
		walFiles: prometheus.NewDesc(
			"indextuner_indexstore_wal_files",
			"Live WAL file count",
			labels, nil,
		),
		walSize: prometheus.NewDesc(
			"indextuner_indexstore_wal_size_bytes",
			"Live WAL data size",
			labels, nil,
		),
		walBytesIn: prometheus.NewDesc(
			"indextuner_indexstore_wal_bytes_in_total",
			"Logical bytes written to the WAL",
			labels, nil,
		),
		walBytesWritten: prometheus.NewDesc(
			"indextuner_indexstore_wal_bytes_written_total",
			"Physical bytes written to the WAL",
			labels, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.compactionCount
	ch <- c.compactionEstimatedDebt
	ch <- c.compactionInProgress
	ch <- c.memtableSize
	ch <- c.memtableCount
	ch <- c.memtableZombieSize
	ch <- c.memtableZombieCount
	ch <- c.walFiles
	ch <- c.walSize
	ch <- c.walBytesIn
	ch <- c.walBytesWritten
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.store.db.Metrics()

	ch <- prometheus.MustNewConstMetric(c.compactionCount, prometheus.CounterValue, float64(m.Compact.Count), c.table)
	ch <- prometheus.MustNewConstMetric(c.compactionEstimatedDebt, prometheus.GaugeValue, float64(m.Compact.EstimatedDebt), c.table)
	ch <- prometheus.MustNewConstMetric(c.compactionInProgress, prometheus.GaugeValue, float64(m.Compact.InProgressBytes), c.table)

	ch <- prometheus.MustNewConstMetric(c.memtableSize, prometheus.GaugeValue, float64(m.MemTable.Size), c.table)
	ch <- prometheus.MustNewConstMetric(c.memtableCount, prometheus.GaugeValue, float64(m.MemTable.Count), c.table)
	ch <- prometheus.MustNewConstMetric(c.memtableZombieSize, prometheus.GaugeValue, float64(m.MemTable.ZombieSize), c.table)
	ch <- prometheus.MustNewConstMetric(c.memtableZombieCount, prometheus.GaugeValue, float64(m.MemTable.ZombieCount), c.table)

	ch <- prometheus.MustNewConstMetric(c.walFiles, prometheus.GaugeValue, float64(m.WAL.Files), c.table)
	ch <- prometheus.MustNewConstMetric(c.walSize, prometheus.GaugeValue, float64(m.WAL.Size), c.table)
	ch <- prometheus.MustNewConstMetric(c.walBytesIn, prometheus.CounterValue, float64(m.WAL.BytesIn), c.table)
	ch <- prometheus.MustNewConstMetric(c.walBytesWritten, prometheus.CounterValue, float64(m.WAL.BytesWritten), c.table)
}

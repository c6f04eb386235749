package metric

import "github.com/prometheus/client_golang/prometheus"

// KeyspaceStats is the slice of the storage engine the collector reads.
type KeyspaceStats interface {
	Size() int
	MemoryUsage() int64
	Evictions() uint64
}

// keyspaceCollector reports live keyspace figures at scrape time instead
// of tracking them on every mutation.
type keyspaceCollector struct {
	stats KeyspaceStats

	keys      *prometheus.Desc
	memory    *prometheus.Desc
	evictions *prometheus.Desc
}

func newKeyspaceCollector(stats KeyspaceStats) *keyspaceCollector {
	return &keyspaceCollector{
		stats: stats,
		keys: prometheus.NewDesc(
			"emberdb_keyspace_keys",
			"Number of live keys",
			nil, nil),
		memory: prometheus.NewDesc(
			"emberdb_keyspace_memory_bytes",
			"Estimated keyspace memory footprint in bytes",
			nil, nil),
		evictions: prometheus.NewDesc(
			"emberdb_keyspace_evictions_total",
			"Keys removed by memory budget enforcement",
			nil, nil),
	}
}

func (c *keyspaceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keys
	ch <- c.memory
	ch <- c.evictions
}

func (c *keyspaceCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(c.stats.Size()))
	ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(c.stats.MemoryUsage()))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(c.stats.Evictions()))
}

package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Registry holds all application metrics behind a private prometheus
// registry, so tests can create as many instances as they like without
// colliding on the global default.
type Registry struct {
	registry *prometheus.Registry

	// Command metrics
	CommandsTotal *prometheus.CounterVec

	// Connection metrics
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	// Pub/sub metrics
	PubSubDeliveries prometheus.Counter

	// Persistence metrics
	SnapshotDuration prometheus.Histogram
	SnapshotsTotal   *prometheus.CounterVec
}

// NewRegistry creates and registers all application metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,

		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emberdb",
			Subsystem: "server",
			Name:      "commands_total",
			Help:      "Commands processed, by command name and outcome",
		}, []string{"command", "status"}),

		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "emberdb",
			Subsystem: "server",
			Name:      "connections_active",
			Help:      "Currently open client connections",
		}),

		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emberdb",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Client connections accepted since start",
		}),

		PubSubDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emberdb",
			Subsystem: "pubsub",
			Name:      "deliveries_total",
			Help:      "Messages queued to subscribers",
		}),

		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "emberdb",
			Subsystem: "storage",
			Name:      "snapshot_duration_seconds",
			Help:      "Wall time of snapshot saves",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),

		SnapshotsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emberdb",
			Subsystem: "storage",
			Name:      "snapshots_total",
			Help:      "Snapshot saves, by outcome",
		}, []string{"status"}),
	}

	reg.MustRegister(
		r.CommandsTotal,
		r.ConnectionsActive,
		r.ConnectionsTotal,
		r.PubSubDeliveries,
		r.SnapshotDuration,
		r.SnapshotsTotal,
	)
	return r
}

// RegisterKeyspace adds a collector that reads live keyspace figures on
// every scrape.
func (r *Registry) RegisterKeyspace(stats KeyspaceStats) {
	r.registry.MustRegister(newKeyspaceCollector(stats))
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gather exposes the underlying registry's gather for tests.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.registry.Gather()
}

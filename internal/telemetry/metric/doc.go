// Package metric provides Prometheus metrics.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: metric registry and HTTP handler
//   - collector.go: scrape-time collector for keyspace figures
//
// Metrics are exposed at /metrics in Prometheus format.
package metric

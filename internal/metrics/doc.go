// Package metrics exposes Prometheus instrumentation for the unicast
// service: tap ingest counters, buncher flush statistics, the best-effort
// transmit accounting, session lifecycle gauges and control API metrics.
package metrics

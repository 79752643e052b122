// Package prometheus exposes engine counters and latency histograms as a
// client_golang Collector.
//
// [NewPrometheusExporter] builds the collector over an engine. Mount
// [PrometheusExporter.Handler] directly, or call [PrometheusExporter.Register]
// to add it to an existing registry. Counter names follow gosession_*_total;
// latency histograms are gosession_verify_latency_seconds and
// gosession_refresh_latency_seconds.
//
// The package never touches the global default registry.
package prometheus

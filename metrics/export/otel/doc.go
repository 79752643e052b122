// Package otel publishes engine metrics through an OpenTelemetry meter.
//
// [NewOTelExporter] registers an observable counter per engine counter and a
// cumulative gauge per latency bucket, all fed by one callback that reads
// [goSession.Engine.MetricsSnapshot] at collection time. The caller owns the
// MeterProvider.
package otel

// Package otel publishes session manager metrics through an OpenTelemetry
// meter.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per cumulative latency bucket. A single callback
// reads the manager's MetricsSnapshot at every collection. The caller owns
// the MeterProvider.
package otel

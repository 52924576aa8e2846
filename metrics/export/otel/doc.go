// Package otel provides OpenTelemetry metric bindings for lscauth counters and
// histograms.
//
// [NewOTelExporter] registers an Int64ObservableCounter for each engine counter and
// gauges per histogram bucket, count and sum. A single callback reads
// [lscauth.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel

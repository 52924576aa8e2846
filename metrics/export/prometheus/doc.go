// Package prometheus exports lscauth metrics through client_golang.
//
// [Collector] turns engine snapshots into const metrics: counters named lscauth_*_total
// and the lscauth_validate_latency_seconds histogram. [PrometheusExporter] wraps it in a
// private registry together with the Go runtime and process collectors and can instrument
// an HTTP handler.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus

// Package prometheus provides Prometheus collectors for teamgate metrics.
//
// [NewPrometheusExporter] accepts a [teamgate.Engine] and exposes an [net/http.Handler]
// that renders all teamgate counters and histograms in Prometheus text exposition
// format. Counter names are prefixed teamgate_*_total; the single histogram is
// teamgate_dispatch_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus

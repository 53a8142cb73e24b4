// Package prometheus renders session manager metrics in the Prometheus
// text exposition format.
//
// Counters are named goauth_client_*_total; backend latency is the
// goauth_client_backend_latency_seconds histogram. The exporter has no
// global registry: mount [Exporter.Handler] where metrics are scraped.
package prometheus

// Package prometheus exposes engine counters through client_golang.
//
// [NewCollector] returns a prometheus.Collector that reads
// [goIdentity.Engine.MetricsSnapshot] on every scrape. Register it on your own
// registry, or use [Collector.Handler] for a private one. Counter names are
// goidentity_*_total; the single histogram is
// goidentity_verify_token_latency_seconds.
package prometheus

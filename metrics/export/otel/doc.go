// Package otel publishes engine counters on an OpenTelemetry meter.
//
// Counters become Int64ObservableCounters named like their Prometheus
// equivalents. Each latency histogram becomes a _bucket gauge with one data
// point per "le" attribute plus a _count gauge. A single callback reads
// [goIdentity.Engine.MetricsSnapshot] per collection; callers own the
// MeterProvider.
package otel

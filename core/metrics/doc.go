// Package metrics defines the sinks recording control cycle outcomes.
// Sinks like PromSink and InfluxSink live in infra/metrics and register
// themselves by name; NewMetricsSink returns a MultiSink automatically when
// several sinks are configured.
package metrics

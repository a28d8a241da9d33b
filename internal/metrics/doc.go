// Package metrics provides the observability hooks for docgen builds.
// Components receive a Recorder at construction; NoopRecorder is the
// default when metrics are not configured.
//
// PrometheusRecorder registers histograms and counters under the docgen
// namespace (tool run durations, builder and target results, convert cache
// hits, session outcomes). HTTPHandler serves a registry; watch mode
// mounts it on the metrics listener.
package metrics

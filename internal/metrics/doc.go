// Package metrics records run and stage metrics for meshpack.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder. When a text file is configured the orchestrator swaps in a
// PrometheusRecorder backed by a private registry and, at the end of the run,
// writes the registry in the node_exporter text-file format with WriteTextFile.
// A one-shot build has no long-lived process to scrape, so there is no HTTP
// handler.
package metrics

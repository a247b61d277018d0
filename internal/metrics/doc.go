// Package metrics exposes stream engine, ingest and API counters to
// Prometheus. Metrics implements mediastream.Recorder and ingest.Recorder.
package metrics

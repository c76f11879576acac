/*
Package metrics exposes Prometheus instrumentation for the storage engine.

Collectors are package-level and registered at init, following the usual
client_golang pattern: counters for read/write/scan task volume, commit
outcomes (success, conflict, double-commit), document and graph modality
traffic, and histograms for the latency of batched operations, commit
critical sections, and durability flushes.

Handler returns the standard promhttp handler for embedders that want to
serve /metrics; the engine itself opens no sockets.
*/
package metrics

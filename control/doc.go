// Package control
// Author: momentics <momentics@gmail.com>
//
// Hot-reload, runtime metrics, configuration control, and debug introspection
// layer for a snio channel pool.
//
// Provides concurrent-safe state handling primitives including:
//   - Immutable snapshot config reads and atomic updates
//   - Runtime observers for hot-reload
//   - Metrics telemetry contracts, exported to Prometheus via Exporter
//   - State export, debug hooks, and platform probe registration
//
// This package is cross-platform and build-tag-partitioned as needed.
package control

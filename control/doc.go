// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime configuration, metrics and debug introspection of a link pair.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads with validated, synchronously propagated updates
//   - A metrics registry and a Prometheus collector for endpoint counters
//   - Debug probe registration and state export
//   - Loading of HuJSON (JSON with comments) configuration files
package control

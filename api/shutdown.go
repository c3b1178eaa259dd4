// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown unifies the teardown of runtime components.
type GracefulShutdown interface {
	// Shutdown quiesces every internal service and releases its
	// resources. It returns an error on failure.
	Shutdown() error
}

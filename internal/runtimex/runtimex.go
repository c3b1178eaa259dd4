// File: internal/runtimex/runtimex.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fail-fast assertions for resource-discipline violations. These are
// programming defects: they panic and are never turned into errors.

package runtimex

import "fmt"

// PanicOnError calls panic() if err is not nil.
func PanicOnError(err error, message string) {
	if err != nil {
		panic(fmt.Errorf("%s: %w", message, err))
	}
}

// Assert panics with the formatted message if cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

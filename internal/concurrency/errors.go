// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "github.com/pkg/errors"

var (
	// ErrSchedulerClosed indicates the scheduler has been shut down
	ErrSchedulerClosed = errors.New("scheduler is closed")

	// ErrTaskCanceled is reported by a task canceled before it ran
	ErrTaskCanceled = errors.New("task canceled")

	// ErrForeignTask indicates a Cancelable not minted by this scheduler
	ErrForeignTask = errors.New("task does not belong to this scheduler")
)

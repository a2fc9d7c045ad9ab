package taskqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound means neither the broker nor the lifecycle store knows
	// the task handle.
	ErrTaskNotFound = errors.New("taskqueue: task not found")

	// ErrBrokerUnavailable means the broker could not be reached. Submission
	// does not retry; retry policy lives in the broker client configuration.
	ErrBrokerUnavailable = errors.New("taskqueue: broker unavailable")

	// ErrWaitTimeout means a bounded wait elapsed before the task reached a
	// terminal state. The caller should fall back to polling by handle.
	ErrWaitTimeout = errors.New("taskqueue: wait timed out")
)

// TaskFailedError carries the worker-reported failure detail for a task that
// reached FAILURE.
type TaskFailedError struct {
	TaskID string
	Detail string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("taskqueue: task %s failed: %s", e.TaskID, e.Detail)
}

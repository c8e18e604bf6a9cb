package scheduler

import "errors"

// Sentinel errors for the scheduler's admission and dispatch paths, checked
// via errors.Is by callers that need to distinguish retryable conditions
// from terminal ones (spec §7 error taxonomy, scheduler subset).
var (
	// ErrQueueFull is returned by Submit when the global and per-task
	// semaphores cannot both be acquired immediately and the bounded wait
	// queue is already at queue_capacity.
	ErrQueueFull = errors.New("scheduler: queue at capacity")
	// ErrNotFound is returned by Cancel when the action id is unknown (never
	// submitted, or already reaped after completion).
	ErrNotFound = errors.New("scheduler: dispatch not found")
	// ErrResolveFailed wraps a RouteResolver failure. It terminates the
	// dispatch immediately without consuming a retry.
	ErrResolveFailed = errors.New("scheduler: route resolution failed")
)

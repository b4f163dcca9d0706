package reactor

import (
	"errors"
	"fmt"
)

// Standard sentinel and wrapped errors, following the cause-chain idiom
// used throughout this codebase's logging/error types: small exported
// structs implementing Unwrap so errors.Is/errors.As compose.
var (
	// ErrReactorClosed is returned for any operation attempted before
	// [Reactor.Open] or after [Reactor.Close].
	ErrReactorClosed = errors.New("reactor: closed")

	// ErrFiberTimeout is raised in a suspended fiber whose timeout fired
	// before it was resumed.
	ErrFiberTimeout = errors.New("reactor: fiber suspension timed out")

	// ErrFiberInterrupted is the sentinel delivered by Kill; the fiber
	// wrapper does not catch it, so it unwinds the fiber to completion.
	ErrFiberInterrupted = errors.New("reactor: fiber killed")

	// ErrTooFarAhead is returned by timer insertion when the requested
	// deadline exceeds the cascading time queue's total span.
	ErrTooFarAhead = errors.New("reactor: timer deadline exceeds ctq span")

	// ErrPoolDepleted is the underlying cause for SpawnFailed/TimerFull;
	// it means a fixed-size pool has no free slots.
	ErrPoolDepleted = errors.New("reactor: pool depleted")

	// ErrFDOutOfRange is returned by the I/O bridge for a descriptor
	// outside its direct-indexing range.
	ErrFDOutOfRange = errors.New("reactor: fd out of range")

	// ErrFDWaiterConflict is returned when a second fiber or callback
	// waiter is installed on a direction of a descriptor that already
	// has one (spec §4.4: "is asserted").
	ErrFDWaiterConflict = errors.New("reactor: fd already has a waiter on that direction")

	// ErrDuplexQueueFull is returned by DeferToThread when the request
	// ring has no free slot for a new task.
	ErrDuplexQueueFull = errors.New("reactor: duplex request queue full")

	// ErrThreadPoolDisabled is returned by DeferToThread when the
	// reactor was opened with zero thread-pool workers.
	ErrThreadPoolDisabled = errors.New("reactor: thread pool disabled (ThreadPoolWorkers == 0)")
)

// SpawnFailed wraps ErrPoolDepleted at the fiber-pool boundary.
type SpawnFailed struct {
	Cause error
}

func (e *SpawnFailed) Error() string { return fmt.Sprintf("reactor: spawn failed: %v", e.Cause) }
func (e *SpawnFailed) Unwrap() error { return e.Cause }

// TimerFull wraps ErrPoolDepleted at the timer-entry-pool boundary.
type TimerFull struct {
	Cause error
}

func (e *TimerFull) Error() string { return fmt.Sprintf("reactor: timer pool full: %v", e.Cause) }
func (e *TimerFull) Unwrap() error { return e.Cause }

// DeferredTaskFailed wraps the original error thrown on the worker
// thread running a DeferToThread call, per spec §7.
type DeferredTaskFailed struct {
	TypeName string
	Message  string
	File     string
	Line     int
	Cause    error
}

func (e *DeferredTaskFailed) Error() string {
	return fmt.Sprintf("reactor: deferred task failed: %s: %s (%s:%d)", e.TypeName, e.Message, e.File, e.Line)
}

func (e *DeferredTaskFailed) Unwrap() error { return e.Cause }

// WrapError wraps an error with a message, preserving the cause for
// errors.Is/errors.As.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}

// programmerError panics with a value that is never meant to be
// recovered from in normal operation; see diagnostic.go's abort path,
// which is what actually terminates the process for these conditions.
type programmerError struct {
	msg string
}

func (e *programmerError) Error() string { return e.msg }

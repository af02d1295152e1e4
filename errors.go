// Package asynctest failure taxonomy, with cause chain support.
package asynctest

import (
	"fmt"
	"time"
)

// LoopError wraps an uncaught error that surfaced through the event loop's
// error-handler path while the test body was still running. The wrapper
// marks the error as loop-originated, distinguishing it from a failure
// thrown by the body itself.
type LoopError struct {
	Cause error
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	if e.Cause == nil {
		return "unhandled event loop error"
	}
	return fmt.Sprintf("unhandled event loop error: %v", e.Cause)
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *LoopError) Unwrap() error {
	return e.Cause
}

// TimeoutError is the synthetic failure generated by the timeout watcher
// when the configured timeout elapses before the body finishes.
//
// Dump contains a snapshot of what was still scheduled at the moment the
// timeout fired, when the scheduler supports tracing (see [WatcherDumper]).
type TimeoutError struct {
	Dump    string
	Timeout time.Duration
	Traced  bool
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("test timed out after %dms", e.Timeout.Milliseconds())
	if e.Traced {
		return msg + "; pending watchers:\n" + e.Dump
	}
	return msg + "; watcher tracing is unavailable (scheduler does not implement WatcherDumper)"
}

// MinimumRuntimeError indicates the body completed faster than the declared
// minimum runtime, meaning it never genuinely awaited asynchronous work.
// Actual is the measured wall-clock runtime, rounded to 2 decimal places
// of a second and expressed in whole milliseconds.
type MinimumRuntimeError struct {
	Required time.Duration
	Actual   time.Duration
}

// Error implements the error interface.
func (e *MinimumRuntimeError) Error() string {
	return fmt.Sprintf("expected test to take at least %dms but instead took %dms",
		e.Required.Milliseconds(), e.Actual.Milliseconds())
}

// WatcherLeakError indicates the body completed but left disallowed
// scheduled work pending on the loop.
type WatcherLeakError struct {
	Test string
	Dump string
	Info WatcherInfo
}

// Error implements the error interface.
func (e *WatcherLeakError) Error() string {
	msg := fmt.Sprintf("test %q left watchers on the event loop: %d referenced, %d unreferenced",
		e.Test, e.Info.Referenced, e.Info.Unreferenced)
	if e.Dump != "" {
		return msg + "\n" + e.Dump
	}
	return msg
}

// PanicError wraps a panic recovered from the test body or its cleanup
// hook, so a panicking test is reported as that invocation's failure
// rather than crashing the process.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type,
// enabling [errors.Is] and [errors.As] through the cause chain.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// WrapError wraps an error with a message, preserving the cause chain.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}

package asynctest

import (
	"errors"
	"time"
)

// Standard errors.
var (
	// ErrHandleNotFound is returned when cancelling a timer handle that is
	// invalid, already fired, or already cancelled.
	ErrHandleNotFound = errors.New("asynctest: timer handle not found")

	// ErrSchedulerRequired is returned by NewRunner when no scheduler is
	// provided.
	ErrSchedulerRequired = errors.New("asynctest: scheduler is required")
)

// TimerHandle identifies a scheduled timer on a [Scheduler].
// The zero value is never a valid handle.
type TimerHandle uint64

// WatcherInfo is a snapshot of the scheduled work currently pending on the
// loop, partitioned into referenced watchers (which keep the loop alive and
// must be drained) and unreferenced watchers (advisory, ignored unless a
// test opts in via [Invocation.CheckUnreferencedWatchers]).
type WatcherInfo struct {
	Referenced   int
	Unreferenced int
}

// Total returns the watcher count relevant to the leak check.
func (w WatcherInfo) Total(includeUnreferenced bool) int {
	if includeUnreferenced {
		return w.Referenced + w.Unreferenced
	}
	return w.Referenced
}

// Scheduler is the event-loop collaborator consumed by the [Runner].
//
// The runner never owns the loop; it only schedules its timeout watcher,
// intercepts uncaught loop errors, inspects pending work after the body
// completes, and clears the loop between invocations. [LoopScheduler] is
// the production implementation; tests for the runner itself typically use
// a fake.
//
// Implementations must be safe for concurrent use: the body, the runner,
// and timer callbacks may call into the scheduler from different
// goroutines.
type Scheduler interface {
	// ScheduleTimer schedules fn to run once after delay, returning a
	// handle usable with CancelTimer. The returned handle is non-zero.
	ScheduleTimer(delay time.Duration, fn func()) (TimerHandle, error)

	// CancelTimer cancels a pending timer. Returns [ErrHandleNotFound] if
	// the handle is invalid or the timer already fired; callers performing
	// best-effort cleanup treat that as success.
	CancelTimer(handle TimerHandle) error

	// Unref marks a pending timer as unreferenced, so it neither keeps the
	// loop alive nor counts against the referenced-watcher leak check.
	// Unknown handles are ignored.
	Unref(handle TimerHandle)

	// SetErrorHandler installs handler to receive uncaught errors surfaced
	// by the loop. A nil handler disables interception.
	SetErrorHandler(handler func(error))

	// ClearScheduled cancels all scheduled work, leaving the loop pristine.
	ClearScheduled()

	// WatcherInfo returns a snapshot of the pending scheduled work.
	WatcherInfo() WatcherInfo
}

// WatcherDumper is an optional extension of [Scheduler] providing a
// human-readable dump of pending watcher identities, used to enrich
// timeout and leak diagnostics. Schedulers that cannot enumerate pending
// work simply don't implement it, and diagnostics fall back to a hint.
type WatcherDumper interface {
	DumpWatchers() string
}

// watcherDump returns the scheduler's watcher dump, or ok=false if the
// scheduler does not support tracing.
func watcherDump(s Scheduler) (string, bool) {
	if d, ok := s.(WatcherDumper); ok {
		return d.DumpWatchers(), true
	}
	return "", false
}

package asynctest

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// Body is a test body executed by [Runner.Run]. It receives the context
// passed to Run and the live [Invocation], whose policy toggles it may
// adjust while running.
//
// A Body reports failure by returning a non-nil error (or panicking). If
// the returned value is itself an [Awaitable], the runner waits for it to
// settle before treating the body as complete, and the settled outcome
// becomes the body's outcome.
type Body func(ctx context.Context, inv *Invocation) (any, error)

// Runner executes test bodies under concurrency, timeout, and
// loop-hygiene discipline, surfacing exactly one terminating outcome per
// invocation.
//
// A Runner is bound to one [Scheduler] for its lifetime. Options passed to
// [NewRunner] become defaults for every invocation; options passed to
// [Runner.Run] override them for that invocation only.
type Runner struct {
	sched    Scheduler
	logger   *logiface.Logger[logiface.Event]
	defaults runOptions
}

// NewRunner creates a Runner bound to the given scheduler.
func NewRunner(sched Scheduler, opts ...Option) (*Runner, error) {
	if sched == nil {
		return nil, ErrSchedulerRequired
	}
	cfg, err := resolveOptions(runOptions{}, opts)
	if err != nil {
		return nil, err
	}
	return &Runner{
		sched:    sched,
		logger:   cfg.logger,
		defaults: *cfg,
	}, nil
}

// Scheduler returns the scheduler this runner is bound to.
func (r *Runner) Scheduler() Scheduler {
	return r.sched
}

// Invocation is one execution attempt of a single test body. It carries
// the per-run configuration and exposes the policy toggles a body may
// flip while running. Toggles are read only at the runner's fixed decision
// points, never polled.
type Invocation struct {
	sched   Scheduler
	runner  *Runner
	sink    *CompletionSink
	cleanup func() error
	name    string
	args    []any
	start   time.Time

	timeout       time.Duration
	minRuntime    time.Duration
	timeoutHandle TimerHandle
	mu            sync.Mutex

	ignoreWatchers      atomic.Bool
	includeUnreferenced atomic.Bool
}

// Name returns the test identity this invocation was started with.
func (inv *Invocation) Name() string {
	return inv.name
}

// Args returns the arguments bound to this invocation via [WithArgs].
func (inv *Invocation) Args() []any {
	return inv.args
}

// SetTimeout arms (or re-arms) the invocation timeout. Any previously
// armed timeout watcher is cancelled first. The watcher is scheduled
// unreferenced, so it neither keeps the loop alive nor counts as a leaked
// watcher itself. A non-positive duration disarms the timeout.
//
// If the timeout elapses before the body finishes, the invocation fails
// with a [TimeoutError] and the loop's error handler is disabled.
func (inv *Invocation) SetTimeout(d time.Duration) error {
	inv.mu.Lock()
	if inv.timeoutHandle != 0 {
		_ = inv.sched.CancelTimer(inv.timeoutHandle)
		inv.timeoutHandle = 0
	}
	inv.timeout = d
	inv.mu.Unlock()

	if d <= 0 {
		return nil
	}

	handle, err := inv.sched.ScheduleTimer(d, inv.onTimeout)
	if err != nil {
		return err
	}
	inv.sched.Unref(handle)

	inv.mu.Lock()
	inv.timeoutHandle = handle
	inv.mu.Unlock()
	return nil
}

// SetMinimumRuntime declares the minimum wall-clock time this invocation
// must take. If the body completes in strictly less time, the invocation
// fails with a [MinimumRuntimeError]. A non-positive duration disables the
// check.
func (inv *Invocation) SetMinimumRuntime(d time.Duration) {
	inv.mu.Lock()
	inv.minRuntime = d
	inv.mu.Unlock()
}

// IgnoreWatchers disables the watcher-leak check for this invocation.
func (inv *Invocation) IgnoreWatchers() {
	inv.ignoreWatchers.Store(true)
}

// CheckUnreferencedWatchers includes (or excludes) unreferenced watchers
// in the leak check. The default is to ignore them.
func (inv *Invocation) CheckUnreferencedWatchers(include bool) {
	inv.includeUnreferenced.Store(include)
}

// SetCleanup replaces the cleanup hook invoked after this run, on every
// exit path, before the final result inspection.
func (inv *Invocation) SetCleanup(fn func() error) {
	inv.mu.Lock()
	inv.cleanup = fn
	inv.mu.Unlock()
}

// Run executes one test body and returns its result, or the single
// failure that terminated the invocation.
//
// The body runs on its own goroutine. Run suspends until the first of
// {body completion, uncaught loop error, timeout} settles the completion
// sink, then performs cleanup and teardown regardless of outcome:
// the cleanup hook runs on every exit path, and the loop is always
// cleared so the next invocation starts pristine.
//
// Failure precedence when multiple conditions apply: the race outcome
// (body/loop/timeout failure) outranks the minimum-runtime assertion,
// which outranks the watcher-leak check. Cancelling ctx fails the
// invocation with ctx.Err() unless the race was already decided.
//
// Note: a timed-out body is not cancelled; it keeps running on its
// goroutine, but its eventual result is discarded (first-write-wins).
func (r *Runner) Run(ctx context.Context, name string, body Body, opts ...Option) (any, error) {
	cfg, err := resolveOptions(r.defaults, opts)
	if err != nil {
		return nil, err
	}

	inv := &Invocation{
		sched:      r.sched,
		runner:     r,
		sink:       NewCompletionSink(),
		cleanup:    cfg.cleanup,
		name:       name,
		args:       cfg.args,
		minRuntime: cfg.minRuntime,
	}
	inv.ignoreWatchers.Store(cfg.ignoreWatchers)
	inv.includeUnreferenced.Store(cfg.includeUnreferenced)

	if err := r.setup(inv, cfg.timeout); err != nil {
		return nil, err
	}

	go inv.runBody(ctx, body)

	value, raceErr := inv.await(ctx)
	if raceErr != nil {
		// A mid-run failure leaves the loop in an indeterminate state that
		// must not additionally fail the test on watcher-leak grounds.
		inv.IgnoreWatchers()
	}

	cleanupErr := inv.runCleanup()
	if cleanupErr != nil {
		inv.IgnoreWatchers()
	}

	leakErr := r.teardown(inv)

	switch {
	case raceErr != nil:
		return nil, raceErr
	case cleanupErr != nil:
		return nil, cleanupErr
	}
	if err := inv.checkMinimumRuntime(); err != nil {
		r.logErr(categoryTeardown, name).Err(err).Log("minimum runtime not reached")
		return nil, err
	}
	if leakErr != nil {
		r.logErr(categoryTeardown, name).Err(leakErr).Log("watchers left on loop")
		return nil, leakErr
	}

	r.log(categoryBody, name).Log("invocation succeeded")
	return value, nil
}

// setup prepares the loop for one invocation: runs pending finalizers and
// clears all scheduled work (so leaked resources from a previous,
// unrelated execution context cannot register spurious watchers), installs
// the loop-wide error handler, records the start timestamp, and arms any
// preset timeout.
func (r *Runner) setup(inv *Invocation, timeout time.Duration) error {
	inv.sched.ClearScheduled()
	runtime.GC()

	inv.sched.SetErrorHandler(func(err error) {
		if inv.sink.Fail(&LoopError{Cause: err}) {
			r.logErr(categoryBody, inv.name).Err(err).Log("uncaught event loop error")
		}
	})

	inv.start = time.Now()
	r.log(categorySetup, inv.name).Log("loop cleared, error handler installed")

	if timeout > 0 {
		if err := inv.SetTimeout(timeout); err != nil {
			inv.sched.SetErrorHandler(nil)
			return err
		}
	}
	return nil
}

// runBody executes the body on its own goroutine, settling the sink with
// the body's outcome unless something else settled it first.
func (inv *Invocation) runBody(ctx context.Context, body Body) {
	defer func() {
		if rec := recover(); rec != nil {
			inv.sink.Fail(&PanicError{Value: rec})
		}
	}()

	value, err := body(ctx, inv)
	if err != nil {
		inv.sink.Fail(err)
		return
	}

	// An asynchronous result is awaited before the body counts as complete.
	if aw, ok := value.(Awaitable); ok {
		select {
		case <-aw.Done():
			value, err = aw.Outcome()
		case <-ctx.Done():
			inv.sink.Fail(ctx.Err())
			return
		}
		if err != nil {
			inv.sink.Fail(err)
			return
		}
	}

	inv.sink.Resolve(value)
}

// await suspends until the completion sink settles, failing the sink with
// ctx.Err() on context cancellation (first-write-wins, like any other
// resolver).
func (inv *Invocation) await(ctx context.Context) (any, error) {
	select {
	case <-inv.sink.Done():
	case <-ctx.Done():
		inv.sink.Fail(ctx.Err())
		<-inv.sink.Done()
	}
	return inv.sink.Outcome()
}

// onTimeout is the timeout watcher callback.
func (inv *Invocation) onTimeout() {
	// No more loop errors may be attributed once the timeout has fired.
	inv.sched.SetErrorHandler(nil)

	if inv.sink.Settled() {
		return // Race already decided.
	}

	inv.mu.Lock()
	d := inv.timeout
	inv.mu.Unlock()

	err := &TimeoutError{Timeout: d}
	if dump, ok := watcherDump(inv.sched); ok {
		err.Dump = dump
		err.Traced = true
	}
	if inv.sink.Fail(err) {
		inv.runner.logErr(categoryTimeout, inv.name).
			Dur("timeout", d).
			Log("timeout elapsed before test body completed")
	}
}

// runCleanup invokes the user-declared cleanup hook, converting a panic
// into this phase's failure.
func (inv *Invocation) runCleanup() (err error) {
	inv.mu.Lock()
	fn := inv.cleanup
	inv.mu.Unlock()
	if fn == nil {
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec}
		}
	}()

	return fn()
}

// teardown is the single exit point for loop hygiene. It cancels a
// pending timeout watcher, performs the watcher-leak inspection when
// policy allows, and unconditionally clears the loop so the next
// invocation starts clean.
func (r *Runner) teardown(inv *Invocation) error {
	defer func() {
		// Scoped-cleanup guarantee: the loop is always left pristine, even
		// when the count check fails.
		inv.sched.SetErrorHandler(nil)
		inv.sched.ClearScheduled()
		r.log(categoryTeardown, inv.name).Log("loop cleared")
	}()

	inv.mu.Lock()
	handle := inv.timeoutHandle
	inv.timeoutHandle = 0
	inv.mu.Unlock()

	if handle != 0 {
		// A just-cancelled (or just-fired) timeout handle is not itself a
		// leak; the cancellation path skips watcher inspection entirely.
		if err := inv.sched.CancelTimer(handle); err != nil && !errors.Is(err, ErrHandleNotFound) {
			return err
		}
		return nil
	}

	if inv.ignoreWatchers.Load() {
		return nil
	}

	info := inv.sched.WatcherInfo()
	if info.Total(inv.includeUnreferenced.Load()) > 0 {
		leak := &WatcherLeakError{Test: inv.name, Info: info}
		if dump, ok := watcherDump(inv.sched); ok {
			leak.Dump = dump
		}
		return leak
	}
	return nil
}

// checkMinimumRuntime fails the invocation if it completed faster than
// the declared minimum. Elapsed time is rounded to 2 decimal places of a
// second and compared as whole milliseconds.
func (inv *Invocation) checkMinimumRuntime() error {
	inv.mu.Lock()
	minRuntime := inv.minRuntime
	inv.mu.Unlock()
	if minRuntime <= 0 {
		return nil
	}

	elapsed := time.Since(inv.start)
	actual := time.Duration(math.Round(elapsed.Seconds()*100)) * 10 * time.Millisecond
	if actual < minRuntime {
		return &MinimumRuntimeError{Required: minRuntime, Actual: actual}
	}
	return nil
}

// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package asynctest runs a single asynchronous test body against a shared
// event loop, enforcing timeout, minimum-runtime, and loop-hygiene
// discipline, and surfacing exactly one failure per invocation.
//
// # Architecture
//
// The core is the [Runner], a per-invocation state machine. Each call to
// [Runner.Run] wraps one test body with:
//
//   - a fresh [CompletionSink], a single-assignment outcome cell shared
//     between the body, the loop's error handler, and the timeout watcher;
//   - a race between "body finished", "timeout elapsed", and "the loop
//     raised an unhandled error", decided first-write-wins;
//   - post-run inspection of the loop's pending scheduled work, so a test
//     cannot leak timers or watchers into the next invocation.
//
// The event loop itself is an injected collaborator behind the [Scheduler]
// interface. [LoopScheduler] adapts [github.com/joeycumines/go-eventloop]
// for production use; runner tests typically supply a fake.
//
// # Outcome Model
//
// Whichever of {body completion, loop error, timeout} settles the sink
// first determines the invocation's outcome; everything after that point
// is cleanup-only. Exactly one failure category is ever reported:
//
//   - body failure (error, rejection, or recovered panic)
//   - [LoopError]: an uncaught error surfaced through the loop while the
//     body was still running
//   - [TimeoutError]: the configured timeout elapsed first
//   - [MinimumRuntimeError]: the body completed faster than the declared
//     minimum runtime (it never genuinely awaited asynchronous work)
//   - [WatcherLeakError]: the body completed but left disallowed scheduled
//     work pending on the loop
//
// Failures from the race outrank the minimum-runtime assertion, which
// outranks the watcher-leak check. Teardown always clears the loop, on
// every exit path, so consecutive invocations are strictly isolated.
//
// # Usage
//
//	loop, err := eventloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go loop.Run(ctx)
//	defer loop.Shutdown(context.Background())
//
//	sched, err := asynctest.NewLoopScheduler(loop)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	runner, err := asynctest.NewRunner(sched)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	value, err := runner.Run(ctx, "fetches eventually", func(ctx context.Context, inv *asynctest.Invocation) (any, error) {
//	    inv.SetTimeout(100 * time.Millisecond)
//	    return fetchSomething(ctx)
//	})
//
// # Thread Safety
//
// [Runner.Run] is safe to call from any goroutine, but invocations must be
// strictly sequential per scheduler: teardown fully clears the loop, and
// exactly one invocation may own it at a time. The [CompletionSink] and
// the per-invocation policy toggles are safe for concurrent use between
// the body and the runner.
package asynctest

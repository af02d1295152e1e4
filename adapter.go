// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package asynctest

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
)

// LoopScheduler is the production [Scheduler], backed by a
// [github.com/joeycumines/go-eventloop] loop via its JS timer adapter.
//
// The raw loop exposes neither cancel-all nor watcher accounting, so the
// scheduler keeps its own registry of outstanding timers: every handle it
// issues maps to a live JS timer until the timer fires, is cancelled, or
// the registry is cleared. Referenced/unreferenced classification is pure
// bookkeeping on that registry.
//
// Uncaught errors surfacing from the loop (unhandled promise rejections)
// are forwarded to the handler installed via
// [LoopScheduler.SetErrorHandler].
//
// The loop must be running (see eventloop.Loop.Run) for timers to fire.
type LoopScheduler struct {
	js         *eventloop.JS
	handler    func(error)
	timers     map[TimerHandle]*loopTimer
	nextHandle atomic.Uint64
	mu         sync.Mutex
	handlerMu  sync.Mutex
}

// loopTimer tracks one outstanding timer in the registry.
type loopTimer struct {
	delay time.Duration
	jsID  uint64
	unref bool
}

var _ Scheduler = (*LoopScheduler)(nil)
var _ WatcherDumper = (*LoopScheduler)(nil)

// NewLoopScheduler creates a scheduler over the given event loop.
//
// It installs an unhandled-rejection hook on its JS adapter; errors
// surfacing there are routed to the runner's loop error handler.
func NewLoopScheduler(loop *eventloop.Loop) (*LoopScheduler, error) {
	s := &LoopScheduler{
		timers: make(map[TimerHandle]*loopTimer),
	}

	js, err := eventloop.NewJS(loop, eventloop.WithUnhandledRejection(func(reason any) {
		s.dispatchError(asError(reason))
	}))
	if err != nil {
		return nil, err
	}
	s.js = js

	return s, nil
}

// ScheduleTimer implements [Scheduler].
func (s *LoopScheduler) ScheduleTimer(delay time.Duration, fn func()) (TimerHandle, error) {
	handle := TimerHandle(s.nextHandle.Add(1))
	entry := &loopTimer{delay: delay}

	// Register BEFORE scheduling so a zero-delay fire still finds (and
	// removes) its entry.
	s.mu.Lock()
	s.timers[handle] = entry
	s.mu.Unlock()

	jsID, err := s.js.SetTimeout(func() {
		s.mu.Lock()
		delete(s.timers, handle)
		s.mu.Unlock()
		fn()
	}, int(delay/time.Millisecond))
	if err != nil {
		s.mu.Lock()
		delete(s.timers, handle)
		s.mu.Unlock()
		return 0, err
	}

	s.mu.Lock()
	if e, ok := s.timers[handle]; ok {
		e.jsID = jsID
	}
	s.mu.Unlock()

	return handle, nil
}

// CancelTimer implements [Scheduler]. An underlying timer that already
// fired is treated as not found.
func (s *LoopScheduler) CancelTimer(handle TimerHandle) error {
	s.mu.Lock()
	entry, ok := s.timers[handle]
	if ok {
		delete(s.timers, handle)
	}
	s.mu.Unlock()

	if !ok {
		return ErrHandleNotFound
	}
	return s.clearTimeout(entry)
}

// Unref implements [Scheduler]. Unknown handles are ignored.
func (s *LoopScheduler) Unref(handle TimerHandle) {
	s.mu.Lock()
	if entry, ok := s.timers[handle]; ok {
		entry.unref = true
	}
	s.mu.Unlock()
}

// SetErrorHandler implements [Scheduler].
func (s *LoopScheduler) SetErrorHandler(handler func(error)) {
	s.handlerMu.Lock()
	s.handler = handler
	s.handlerMu.Unlock()
}

// ClearScheduled implements [Scheduler]. All outstanding timers are
// cancelled and the registry is emptied.
func (s *LoopScheduler) ClearScheduled() {
	s.mu.Lock()
	entries := s.timers
	s.timers = make(map[TimerHandle]*loopTimer)
	s.mu.Unlock()

	for _, entry := range entries {
		_ = s.clearTimeout(entry)
	}
}

// WatcherInfo implements [Scheduler].
func (s *LoopScheduler) WatcherInfo() WatcherInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var info WatcherInfo
	for _, entry := range s.timers {
		if entry.unref {
			info.Unreferenced++
		} else {
			info.Referenced++
		}
	}
	return info
}

// DumpWatchers implements [WatcherDumper], listing outstanding timers by
// handle.
func (s *LoopScheduler) DumpWatchers() string {
	s.mu.Lock()
	handles := make([]TimerHandle, 0, len(s.timers))
	for handle := range s.timers {
		handles = append(handles, handle)
	}
	slices.Sort(handles)

	var b strings.Builder
	for _, handle := range handles {
		entry := s.timers[handle]
		class := "referenced"
		if entry.unref {
			class = "unreferenced"
		}
		fmt.Fprintf(&b, "#%d timer %s (%s)\n", handle, entry.delay, class)
	}
	s.mu.Unlock()

	return strings.TrimSuffix(b.String(), "\n")
}

// clearTimeout cancels the underlying JS timer, tolerating timers that
// already fired.
func (s *LoopScheduler) clearTimeout(entry *loopTimer) error {
	if entry.jsID == 0 {
		return nil
	}
	if err := s.js.ClearTimeout(entry.jsID); err != nil && !errors.Is(err, eventloop.ErrTimerNotFound) {
		return err
	}
	return nil
}

// dispatchError forwards a loop-originated error to the installed
// handler, if any.
func (s *LoopScheduler) dispatchError(err error) {
	s.handlerMu.Lock()
	handler := s.handler
	s.handlerMu.Unlock()

	if handler != nil {
		handler(err)
	}
}

// asError converts an arbitrary rejection reason into an error.
func asError(reason any) error {
	if err, ok := reason.(error); ok {
		return err
	}
	return fmt.Errorf("%v", reason)
}

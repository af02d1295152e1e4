package asynctest

import (
	"sync"
	"time"
)

// fakeScheduler is an in-package Scheduler fake backed by plain
// time.AfterFunc timers, with manual error injection and call accounting.
// It stands in for the event loop in runner tests.
type fakeScheduler struct {
	timers     map[TimerHandle]*fakeTimer
	handler    func(error)
	handlerLog []string
	next       TimerHandle
	clearCalls int
	mu         sync.Mutex
}

type fakeTimer struct {
	timer *time.Timer
	delay time.Duration
	unref bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{timers: make(map[TimerHandle]*fakeTimer)}
}

func (s *fakeScheduler) ScheduleTimer(delay time.Duration, fn func()) (TimerHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	handle := s.next
	ft := &fakeTimer{delay: delay}
	s.timers[handle] = ft
	ft.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, handle)
		s.mu.Unlock()
		fn()
	})
	return handle, nil
}

func (s *fakeScheduler) CancelTimer(handle TimerHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ft, ok := s.timers[handle]
	if !ok {
		return ErrHandleNotFound
	}
	ft.timer.Stop()
	delete(s.timers, handle)
	return nil
}

func (s *fakeScheduler) Unref(handle TimerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ft, ok := s.timers[handle]; ok {
		ft.unref = true
	}
}

func (s *fakeScheduler) SetErrorHandler(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
	if handler == nil {
		s.handlerLog = append(s.handlerLog, "clear")
	} else {
		s.handlerLog = append(s.handlerLog, "install")
	}
}

func (s *fakeScheduler) ClearScheduled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for handle, ft := range s.timers {
		ft.timer.Stop()
		delete(s.timers, handle)
	}
	s.clearCalls++
}

func (s *fakeScheduler) WatcherInfo() WatcherInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var info WatcherInfo
	for _, ft := range s.timers {
		if ft.unref {
			info.Unreferenced++
		} else {
			info.Referenced++
		}
	}
	return info
}

// raise injects an out-of-band loop error, as the event loop's error
// handler path would.
func (s *fakeScheduler) raise(err error) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

func (s *fakeScheduler) clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearCalls
}

func (s *fakeScheduler) handlerHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.handlerLog...)
}

// dumpingScheduler is a fakeScheduler that additionally supports watcher
// tracing with a canned dump.
type dumpingScheduler struct {
	*fakeScheduler
	dump string
}

func (s *dumpingScheduler) DumpWatchers() string {
	return s.dump
}

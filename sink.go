package asynctest

import (
	"sync"
)

// Outcome is the settled value of a [CompletionSink]: either a success
// value or a failure, never both.
type Outcome struct {
	Value any
	Err   error
}

// Awaitable is a result that settles asynchronously. A test body may
// return an Awaitable (for example a [CompletionSink]) instead of a final
// value; the runner then waits for it to settle before treating the body
// as complete.
type Awaitable interface {
	// Done returns a channel closed once the result has settled.
	Done() <-chan struct{}

	// Outcome returns the settled result. Only meaningful after Done is
	// closed.
	Outcome() (any, error)
}

// CompletionSink is a single-assignment outcome signal shared between the
// test body's wrapper, the loop's error handler, and the timeout watcher.
//
// Resolution is first-write-wins: once settled, later attempts to resolve
// or fail are no-ops, so a late timeout or stray loop error can never
// overwrite a result already delivered. The sink is observable by multiple
// waiters via [CompletionSink.Done] or [CompletionSink.ToChannel].
type CompletionSink struct {
	value       any
	err         error
	done        chan struct{}
	subscribers []chan Outcome // Channels waiting for settlement
	settled     bool
	mu          sync.Mutex
}

var _ Awaitable = (*CompletionSink)(nil)

// NewCompletionSink returns a new, unsettled sink.
func NewCompletionSink() *CompletionSink {
	return &CompletionSink{
		done: make(chan struct{}),
	}
}

// Resolve settles the sink with a success value. Returns true if this call
// performed the settlement, false if the sink was already settled.
func (s *CompletionSink) Resolve(value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settled {
		return false
	}

	s.settled = true
	s.value = value
	s.fanOut()
	return true
}

// Fail settles the sink with a failure. Returns true if this call
// performed the settlement, false if the sink was already settled.
func (s *CompletionSink) Fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settled {
		return false
	}

	s.settled = true
	s.err = err
	s.fanOut()
	return true
}

// Settled reports whether the sink has been resolved or failed.
func (s *CompletionSink) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled
}

// Done returns a channel closed once the sink settles.
func (s *CompletionSink) Done() <-chan struct{} {
	return s.done
}

// Outcome returns the settled value and failure. Before settlement both
// are zero.
func (s *CompletionSink) Outcome() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.err
}

// ToChannel returns a channel that receives the outcome when the sink
// settles. The channel is buffered (capacity 1) and closed after sending.
// If the sink is already settled, returns a pre-filled channel.
func (s *CompletionSink) ToChannel() <-chan Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settled {
		ch := make(chan Outcome, 1)
		ch <- Outcome{Value: s.value, Err: s.err}
		close(ch)
		return ch
	}

	ch := make(chan Outcome, 1)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// fanOut notifies all subscribers of the outcome and closes their
// channels. Must be called with s.mu held, exactly once.
func (s *CompletionSink) fanOut() {
	close(s.done)
	out := Outcome{Value: s.value, Err: s.err}
	for _, ch := range s.subscribers {
		ch <- out // Buffered, never blocks
		close(ch)
	}
	s.subscribers = nil // Release memory
}

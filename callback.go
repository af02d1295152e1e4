package asynctest

import (
	"github.com/stretchr/testify/mock"
)

// CountedCallback is an invocation-counted callable for wiring into
// asynchronous code under test: hand out [CountedCallback.Fn] (or call
// [CountedCallback.Invoke] directly), then verify the expected invocation
// count with [CountedCallback.Assert] once the test body completes.
//
// Recording and verification delegate to testify's mock package.
type CountedCallback struct {
	expected int
	mock     mock.Mock
}

// NewCountedCallback returns a callback expected to be invoked exactly
// count times.
func NewCountedCallback(count int) *CountedCallback {
	c := &CountedCallback{expected: count}
	c.mock.On("Invoke", mock.Anything)
	return c
}

// Invoke records one invocation. The value is retained for testify's call
// log.
func (c *CountedCallback) Invoke(value any) {
	c.mock.MethodCalled("Invoke", value)
}

// Fn returns Invoke as a plain func, convenient as a completion or event
// handler.
func (c *CountedCallback) Fn() func(any) {
	return c.Invoke
}

// Calls returns the number of invocations recorded so far.
func (c *CountedCallback) Calls() int {
	return len(c.mock.Calls)
}

// Assert verifies the callback was invoked exactly the expected number of
// times, reporting failure through t.
func (c *CountedCallback) Assert(t mock.TestingT) bool {
	return c.mock.AssertNumberOfCalls(t, "Invoke", c.expected)
}

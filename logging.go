// logging.go - structured logging wiring for the runner.
//
// Logging is delegated to logiface. A nil *logiface.Logger[logiface.Event]
// is a safe no-op receiver, so the runner carries the logger directly and
// chains builder calls without nil checks. Events are category-tagged so
// the runner's phases can be filtered downstream.

package asynctest

import (
	"github.com/joeycumines/logiface"
)

// Log event categories.
const (
	categorySetup    = "setup"
	categoryBody     = "body"
	categoryTimeout  = "timeout"
	categoryTeardown = "teardown"
)

// log starts a debug-level event tagged with a category and the test name.
// Returns nil (a no-op builder) when logging is disabled.
func (r *Runner) log(category, test string) *logiface.Builder[logiface.Event] {
	return r.logger.Debug().
		Str("category", category).
		Str("test", test)
}

// logErr starts an error-level event tagged with a category and the test
// name.
func (r *Runner) logErr(category, test string) *logiface.Builder[logiface.Event] {
	return r.logger.Err().
		Str("category", category).
		Str("test", test)
}

package asynctest

// ResetScheduler restores a scheduler to a pristine state: the error
// handler is removed and all scheduled work is cancelled.
//
// Suites sharing one process-wide loop call this between test groups (for
// example from a TestMain or per-suite teardown) so work leaked outside a
// runner-managed invocation cannot bleed into the next one. [Runner.Run]
// performs the same reset itself around every invocation.
func ResetScheduler(s Scheduler) {
	s.SetErrorHandler(nil)
	s.ClearScheduled()
}

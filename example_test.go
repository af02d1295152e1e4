package asynctest

import (
	"context"
	"fmt"
	"time"
)

func Example() {
	sched := newFakeScheduler()

	runner, err := NewRunner(sched)
	if err != nil {
		fmt.Println(err)
		return
	}

	value, err := runner.Run(context.Background(), "resolves eventually", func(ctx context.Context, inv *Invocation) (any, error) {
		if err := inv.SetTimeout(time.Second); err != nil {
			return nil, err
		}

		sink := NewCompletionSink()
		if _, err := sched.ScheduleTimer(10*time.Millisecond, func() {
			sink.Resolve(42)
		}); err != nil {
			return nil, err
		}
		return sink, nil
	})

	fmt.Println(value, err)
	// Output: 42 <nil>
}

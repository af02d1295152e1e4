package asynctest

import (
	"errors"
	"testing"
	"time"
)

func TestCompletionSinkFirstWriteWins(t *testing.T) {
	sink := NewCompletionSink()

	if !sink.Resolve("A") {
		t.Fatal("first Resolve should settle the sink")
	}
	if sink.Resolve("B") {
		t.Error("second Resolve should be a no-op")
	}
	if sink.Fail(errors.New("late failure")) {
		t.Error("Fail after Resolve should be a no-op")
	}

	value, err := sink.Outcome()
	if err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if value != "A" {
		t.Fatalf("expected first value %q, got %q", "A", value)
	}
}

func TestCompletionSinkFailBeforeResolve(t *testing.T) {
	sink := NewCompletionSink()
	boom := errors.New("boom")

	if !sink.Fail(boom) {
		t.Fatal("first Fail should settle the sink")
	}
	if sink.Resolve("too late") {
		t.Error("Resolve after Fail should be a no-op")
	}

	value, err := sink.Outcome()
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if value != nil {
		t.Fatalf("expected nil value, got %v", value)
	}
}

func TestCompletionSinkDoneCloses(t *testing.T) {
	sink := NewCompletionSink()

	select {
	case <-sink.Done():
		t.Fatal("Done should not be closed before settlement")
	default:
	}

	sink.Resolve(1)

	select {
	case <-sink.Done():
	case <-time.After(time.Second):
		t.Fatal("Done should be closed after settlement")
	}

	if !sink.Settled() {
		t.Error("Settled should report true after settlement")
	}
}

func TestCompletionSinkMultipleObserversSeeFirstValue(t *testing.T) {
	sink := NewCompletionSink()

	ch1 := sink.ToChannel()
	ch2 := sink.ToChannel()

	sink.Resolve("A")
	sink.Resolve("B")

	for i, ch := range []<-chan Outcome{ch1, ch2} {
		select {
		case out := <-ch:
			if out.Value != "A" || out.Err != nil {
				t.Errorf("observer %d: expected {A <nil>}, got {%v %v}", i, out.Value, out.Err)
			}
		case <-time.After(time.Second):
			t.Fatalf("observer %d: no outcome delivered", i)
		}
	}
}

func TestCompletionSinkToChannelAfterSettlement(t *testing.T) {
	sink := NewCompletionSink()
	sink.Resolve(42)

	select {
	case out := <-sink.ToChannel():
		if out.Value != 42 {
			t.Fatalf("expected 42, got %v", out.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("pre-settled ToChannel should be pre-filled")
	}
}

func TestCompletionSinkConcurrentSettlement(t *testing.T) {
	sink := NewCompletionSink()

	start := make(chan struct{})
	results := make(chan bool, 2)
	go func() {
		<-start
		results <- sink.Resolve("winner")
	}()
	go func() {
		<-start
		results <- sink.Fail(errors.New("loser"))
	}()
	close(start)

	a, b := <-results, <-results
	if a == b {
		t.Fatalf("exactly one settlement must win: got %v and %v", a, b)
	}
}

package eventloop_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clktmr/sam3x/eventloop"
)

func TestTrigger(t *testing.T) {
	loop := eventloop.New()
	calls := 0
	ev := loop.NewEvent(func() { calls++ })

	if n := loop.Step(); n != 0 || calls != 0 {
		t.Fatalf("untriggered event ran: n=%v calls=%v", n, calls)
	}

	ev.Trigger()
	ev.Trigger()
	if !ev.Pending() {
		t.Fatal("triggered event not pending")
	}
	if n := loop.Step(); n != 1 || calls != 1 {
		t.Fatalf("expected one run, got n=%v calls=%v", n, calls)
	}
	if !loop.Idle() {
		t.Fatal("loop not idle after pass")
	}
}

func TestReset(t *testing.T) {
	loop := eventloop.New()
	calls := 0
	ev := loop.NewEvent(func() { calls++ })

	ev.Trigger()
	ev.Reset()
	loop.Step()
	if calls != 0 {
		t.Fatal("reset event ran")
	}

	// Reset of an event that isn't pending is harmless
	ev.Reset()
	if ev.Pending() {
		t.Fatal("pending after reset")
	}
}

func TestRetriggerRunsNextPass(t *testing.T) {
	loop := eventloop.New()
	calls := 0
	var ev *eventloop.Event
	ev = loop.NewEvent(func() {
		calls++
		if calls < 3 {
			ev.Trigger()
		}
	})

	ev.Trigger()
	for pass := 1; pass <= 3; pass++ {
		loop.Step()
		if calls != pass {
			t.Fatalf("pass %v: %v calls", pass, calls)
		}
	}
	if loop.Step() != 0 {
		t.Fatal("event ran after it stopped retriggering")
	}
}

func TestResetDuringPass(t *testing.T) {
	loop := eventloop.New()
	var second *eventloop.Event
	secondCalls := 0
	first := loop.NewEvent(func() { second.Reset() })
	second = loop.NewEvent(func() { secondCalls++ })

	first.Trigger()
	second.Trigger()
	if n := loop.Step(); n != 1 {
		t.Fatalf("expected one handler to run, got %v", n)
	}
	if secondCalls != 0 {
		t.Fatal("event ran although it was reset earlier in the pass")
	}
}

func TestRelease(t *testing.T) {
	loop := eventloop.New()
	calls := 0
	ev := loop.NewEvent(func() { calls++ })
	other := loop.NewEvent(func() {})

	ev.Trigger()
	ev.Release()
	ev.Release()
	other.Trigger()
	loop.Step()
	if calls != 0 {
		t.Fatal("released event ran")
	}
}

func TestRunUntil(t *testing.T) {
	loop := eventloop.New()
	calls := 0
	var ev *eventloop.Event
	ev = loop.NewEvent(func() {
		calls++
		ev.Trigger()
	})
	ev.Trigger()

	err := loop.RunUntil(context.Background(), func() bool { return calls >= 10 })
	if err != nil {
		t.Fatal(err)
	}
	if calls != 10 {
		t.Fatalf("expected 10 calls, got %v", calls)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = loop.RunUntil(ctx, func() bool { return false })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

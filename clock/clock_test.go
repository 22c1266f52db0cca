package clock_test

import (
	"testing"
	"time"

	"github.com/clktmr/sam3x/clock"
)

func TestPollTimer(t *testing.T) {
	var clk clock.Manual
	clk.Advance(3 * time.Second)

	var timer clock.PollTimer
	timer.SetAfter(&clk, 500*time.Millisecond)
	if timer.Deadline() != 3500*time.Millisecond {
		t.Fatalf("deadline %v", timer.Deadline())
	}

	if timer.Expired(&clk) {
		t.Fatal("expired immediately")
	}
	clk.Advance(499 * time.Millisecond)
	if timer.Expired(&clk) {
		t.Fatal("expired early")
	}
	clk.Advance(time.Millisecond)
	if !timer.Expired(&clk) {
		t.Fatal("not expired at deadline")
	}
}

func TestManualMonotonic(t *testing.T) {
	var clk clock.Manual
	clk.Advance(time.Second)
	clk.Advance(-time.Hour)
	if clk.Now() != time.Second {
		t.Fatalf("clock went backwards: %v", clk.Now())
	}
}

func TestSystem(t *testing.T) {
	a := clock.System.Now()
	b := clock.System.Now()
	if b < a {
		t.Fatalf("system clock not monotonic: %v < %v", b, a)
	}
}

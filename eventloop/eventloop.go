// Package eventloop implements a single threaded, cooperative scheduler.
//
// Handlers are registered as events and run to completion when triggered.
// There is no preemption: a handler that wants to wait for hardware returns
// and triggers itself again, so it is polled on the next pass.
package eventloop

import (
	"context"
	"runtime"

	"github.com/clktmr/sam3x/debug"
)

// Loop dispatches triggered events. A Loop and all its events must only be
// used from a single goroutine.
type Loop struct {
	events []*Event
	ready  []*Event
}

// Event is a handler slot that can be triggered to run on the next pass of the
// loop.
type Event struct {
	loop    *Loop
	handler func()
	pending bool
}

func New() *Loop {
	return &Loop{}
}

// NewEvent registers handler with the loop. Events run in registration order
// within a pass.
func (l *Loop) NewEvent(handler func()) *Event {
	debug.Assert(handler != nil, "nil event handler")
	e := &Event{loop: l, handler: handler}
	l.events = append(l.events, e)
	return e
}

// Trigger schedules the handler to run on the next pass. Triggering a pending
// event has no effect.
func (e *Event) Trigger() {
	debug.Assert(e.loop != nil, "trigger of released event")
	e.pending = true
}

// Reset cancels a pending trigger.
func (e *Event) Reset() {
	e.pending = false
}

func (e *Event) Pending() bool {
	return e.pending
}

// Release cancels the event and removes it from its loop.
func (e *Event) Release() {
	l := e.loop
	if l == nil {
		return
	}
	e.pending = false
	e.loop = nil
	for i, v := range l.events {
		if v == e {
			l.events = append(l.events[:i], l.events[i+1:]...)
			break
		}
	}
}

// Step runs every event that was pending at the start of the pass once and
// returns how many ran. Events triggered by a handler during the pass run on
// the next pass, even the handler's own event.
func (l *Loop) Step() (n int) {
	l.ready = l.ready[:0]
	for _, e := range l.events {
		if e.pending {
			l.ready = append(l.ready, e)
		}
	}
	for i, e := range l.ready {
		l.ready[i] = nil
		if !e.pending { // reset by a previous handler in this pass
			continue
		}
		e.pending = false
		e.handler()
		n++
	}
	return n
}

// Idle reports whether no event is pending.
func (l *Loop) Idle() bool {
	for _, e := range l.events {
		if e.pending {
			return false
		}
	}
	return true
}

// Run dispatches events until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.Step() == 0 {
			runtime.Gosched()
		}
	}
}

// RunUntil dispatches events until cond returns true, which is checked after
// every pass, or ctx is done.
func (l *Loop) RunUntil(ctx context.Context, cond func() bool) error {
	for !cond() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.Step() == 0 {
			runtime.Gosched()
		}
	}
	return nil
}

// Package task spawns labeled long-running units of work and aggregates them
// into a single fail-fast supervised group.
package task

import (
	"context"
	"log/slog"
)

// Outcome is the terminal result of one task, labeled with its origin so a
// failure is attributable without inspecting global state.
type Outcome struct {
	Chain string
	Event string
	Err   error
}

// Handle is a running task.
type Handle struct {
	chain string
	event string
	done  chan Outcome
}

func (h *Handle) Chain() string { return h.chain }
func (h *Handle) Event() string { return h.event }

// Done delivers the task's outcome exactly once.
func (h *Handle) Done() <-chan Outcome { return h.done }

// Spawn starts run on its own goroutine. Every task here is expected to run
// until process shutdown; returning at all, with or without an error, is
// anomalous and surfaces through the handle.
func Spawn(ctx context.Context, chain, event string, run func(context.Context) error) *Handle {
	h := &Handle{
		chain: chain,
		event: event,
		done:  make(chan Outcome, 1),
	}
	go func() {
		err := run(ctx)
		if err != nil {
			slog.Error("task exited", "chain", chain, "event", event, "error", err)
		} else {
			slog.Warn("task exited without error", "chain", chain, "event", event)
		}
		h.done <- Outcome{Chain: chain, Event: event, Err: err}
	}()
	return h
}

// Group supervises a set of running handles with any-exit-is-terminal
// semantics: the first member to finish determines the group's outcome.
type Group struct {
	size  int
	first chan Outcome
}

// RunAll aggregates handles of any origin into one supervised group.
func RunAll(handles []*Handle) *Group {
	g := &Group{
		size:  len(handles),
		first: make(chan Outcome, 1),
	}
	for _, h := range handles {
		go func(h *Handle) {
			o := <-h.Done()
			select {
			case g.first <- o:
			default:
			}
		}(h)
	}
	return g
}

// Size returns the number of supervised tasks.
func (g *Group) Size() int { return g.size }

// Wait blocks until the first member task finishes and returns its outcome.
// The remaining tasks are abandoned, not cancelled: the caller is expected to
// treat any group resolution as fatal and exit the process, which tears the
// survivors down. Context cancellation resolves the group the same way.
func (g *Group) Wait(ctx context.Context) Outcome {
	select {
	case <-ctx.Done():
		return Outcome{Err: ctx.Err()}
	case o := <-g.first:
		return o
	}
}

// Package dispatch correlates HTTP requests with their eventual function
// results. Every request gets a fresh correlation id and a pending entry;
// each entry is resolved exactly once, whether by a worker result, a crash,
// or an immediate routing miss.
package dispatch

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"funcgate/pkg/event"
	"funcgate/pkg/ipc"
	"funcgate/pkg/router"
)

// Invoker runs one invocation against a function. *worker.Supervisor is the
// production implementation.
type Invoker interface {
	Invoke(id string, evt *event.Event) (*ipc.Result, error)
}

// Function is one routed function registration.
type Function struct {
	Pattern string
	Name    string
	Invoker Invoker
}

// Outcome is the terminal resolution of a pending entry.
type Outcome struct {
	Result *ipc.Result
	Err    error
}

// Dispatcher routes events and tracks pending requests. The pending map is
// mutex-guarded: requests are served on OS threads, and the exactly-one-
// resolution-per-id invariant must hold across all of them.
type Dispatcher struct {
	funcs    []Function
	patterns []string

	mu      sync.Mutex
	pending map[string]chan Outcome
}

// New builds a Dispatcher over the registered functions, preserving
// registration order for routing.
func New(funcs []Function) *Dispatcher {
	patterns := make([]string, len(funcs))
	for i, f := range funcs {
		patterns[i] = f.Pattern
	}
	return &Dispatcher{funcs: funcs, patterns: patterns, pending: map[string]chan Outcome{}}
}

// Dispatch assigns a correlation id, records the pending entry, routes the
// event and blocks until the entry resolves. An unmatched path resolves
// immediately with 403 Forbidden; no worker process is created for it.
// The returned id identifies the invocation in logs and the journal; the
// returned name is the matched function's, "" on a routing miss.
func (d *Dispatcher) Dispatch(evt *event.Event) (string, string, *ipc.Result, error) {
	id := uuid.NewString()
	ch := d.register(id)

	var name string
	if i := router.Match(d.patterns, evt.Path); i < 0 {
		d.Resolve(id, Outcome{Result: routingMiss()})
	} else {
		fn := d.funcs[i]
		name = fn.Name
		go func() {
			res, err := fn.Invoker.Invoke(id, evt)
			d.Resolve(id, Outcome{Result: res, Err: err})
		}()
	}

	out := <-ch
	return id, name, out.Result, out.Err
}

func (d *Dispatcher) register(id string) chan Outcome {
	ch := make(chan Outcome, 1)
	d.mu.Lock()
	d.pending[id] = ch
	d.mu.Unlock()
	return ch
}

// Resolve applies a terminal outcome to the pending entry for id and
// removes it. Delivering a result for an id with no pending entry is a
// programming error and panics; it must never be silently swallowed.
func (d *Dispatcher) Resolve(id string, out Outcome) {
	d.mu.Lock()
	ch, ok := d.pending[id]
	delete(d.pending, id)
	d.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("dispatch: result delivered for unknown correlation id %s", id))
	}
	ch <- out
}

// PendingCount reports the number of in-flight entries.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func routingMiss() *ipc.Result {
	return &ipc.Result{
		StatusCode: 403,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       `{"message":"Forbidden"}`,
	}
}

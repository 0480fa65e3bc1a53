package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"

	"funcgate/pkg/event"
	"funcgate/pkg/ipc"
)

type stubInvoker struct {
	calls int32
	fn    func(id string, evt *event.Event) (*ipc.Result, error)
}

func (s *stubInvoker) Invoke(id string, evt *event.Event) (*ipc.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.fn(id, evt)
}

func TestDispatchRoutesToMatchingFunction(t *testing.T) {
	inv := &stubInvoker{fn: func(id string, evt *event.Event) (*ipc.Result, error) {
		return &ipc.Result{StatusCode: 200, Body: "ok:" + evt.Path}, nil
	}}
	d := New([]Function{{Pattern: "/hello", Name: "hello", Invoker: inv}})

	id, name, res, err := d.Dispatch(&event.Event{Path: "/hello"})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a correlation id")
	}
	if name != "hello" {
		t.Fatalf("expected matched function name, got %q", name)
	}
	if res.StatusCode != 200 || res.Body != "ok:/hello" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if d.PendingCount() != 0 {
		t.Fatalf("pending entry leaked: %d", d.PendingCount())
	}
}

func TestDispatchRoutingMiss(t *testing.T) {
	inv := &stubInvoker{fn: func(string, *event.Event) (*ipc.Result, error) {
		t.Errorf("invoker must not be called on a routing miss")
		return nil, nil
	}}
	d := New([]Function{{Pattern: "/hello", Name: "hello", Invoker: inv}})

	_, name, res, err := d.Dispatch(&event.Event{Path: "/nope"})
	if err != nil {
		t.Fatalf("routing miss is not an error: %v", err)
	}
	if name != "" {
		t.Fatalf("no function name expected on a miss, got %q", name)
	}
	if res.StatusCode != 403 {
		t.Fatalf("expected 403, got %d", res.StatusCode)
	}
	if res.Body != `{"message":"Forbidden"}` {
		t.Fatalf("unexpected body: %s", res.Body)
	}
	if atomic.LoadInt32(&inv.calls) != 0 {
		t.Fatalf("no worker activity expected for unmatched path")
	}
}

func TestDispatchConcurrentRequestsGetDistinctIDs(t *testing.T) {
	inv := &stubInvoker{fn: func(id string, evt *event.Event) (*ipc.Result, error) {
		return &ipc.Result{StatusCode: 200, Body: id}, nil
	}}
	d := New([]Function{{Pattern: "/x/{proxy+}", Name: "x", Invoker: inv}})

	const n = 16
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _, res, err := d.Dispatch(&event.Event{Path: "/x/y"})
			if err != nil {
				t.Errorf("dispatch failed: %v", err)
				return
			}
			if res.Body != id {
				t.Errorf("result correlated to wrong request: id=%s body=%s", id, res.Body)
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate correlation id %s", id)
		}
		seen[id] = true
	}
	if d.PendingCount() != 0 {
		t.Fatalf("pending entries leaked: %d", d.PendingCount())
	}
}

func TestResolveUnknownIDPanics(t *testing.T) {
	d := New(nil)
	defer func() {
		if recover() == nil {
			t.Fatalf("resolving an unknown correlation id must panic")
		}
	}()
	d.Resolve("never-registered", Outcome{})
}

func TestDispatchNameFollowsRegistrationOrder(t *testing.T) {
	inv := &stubInvoker{fn: func(string, *event.Event) (*ipc.Result, error) {
		return &ipc.Result{StatusCode: 200}, nil
	}}
	d := New([]Function{
		{Pattern: "/a/{proxy+}", Name: "alpha", Invoker: inv},
		{Pattern: "/a/b", Name: "beta", Invoker: inv},
	})
	_, name, _, err := d.Dispatch(&event.Event{Path: "/a/b"})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if name != "alpha" {
		t.Fatalf("first registered match must win, got %q", name)
	}
}

package worker

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"funcgate/pkg/event"
	"funcgate/pkg/ipc"
)

// syncBuffer makes a bytes.Buffer safe for the concurrent relay goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeScript materializes a shell script standing in for a runtime worker.
// It receives the event on fd 3 and answers on fd 4, like the real bootstrap.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newTestSupervisor(script string, out, errSink *syncBuffer) *Supervisor {
	return New(Options{
		Executable: "/bin/sh",
		Bootstrap:  script,
		Entry:      "fn.js",
		Handler:    "handler",
		Stdout:     out,
		Stderr:     errSink,
	})
}

func TestInvokeDeliversResult(t *testing.T) {
	id := "req-success-1"
	script := writeScript(t, fmt.Sprintf(
		"read -r line <&3\n"+
			"echo '{\"type\":\"result\",\"id\":\"%s\",\"result\":{\"statusCode\":201,\"headers\":{\"X-From\":\"fn\"},\"body\":\"made\"},\"memoryUsedBytes\":2097152}' >&4\n"+
			"sleep 10\n", id))
	out := &syncBuffer{}
	s := newTestSupervisor(script, out, &syncBuffer{})

	start := time.Now()
	res, err := s.Invoke(id, &event.Event{HTTPMethod: "GET", Path: "/hello"})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if res.StatusCode != 201 || res.Body != "made" || res.Headers["X-From"] != "fn" {
		t.Fatalf("unexpected result: %+v", res)
	}
	// the trailing sleep must not delay the invocation: the worker is killed
	// as soon as the result is observed
	if time.Since(start) > 5*time.Second {
		t.Fatalf("worker was not terminated after delivering its result")
	}

	logs := out.String()
	if !strings.Contains(logs, "START RequestId: "+id) {
		t.Fatalf("missing START line in %q", logs)
	}
	if !strings.Contains(logs, "END RequestId: "+id) {
		t.Fatalf("missing END line in %q", logs)
	}
	if !strings.Contains(logs, "REPORT RequestId: "+id) || !strings.Contains(logs, "Memory Used: 2 MB") {
		t.Fatalf("missing or wrong REPORT line in %q", logs)
	}
}

func TestInvokeCrashCapturesStderr(t *testing.T) {
	script := writeScript(t,
		"read -r line <&3\n"+
			"echo 'Error: boom' >&2\n"+
			"echo '    at handler (fn.js:3:9)' >&2\n"+
			"exit 1\n")
	s := newTestSupervisor(script, &syncBuffer{}, &syncBuffer{})

	res, err := s.Invoke("req-crash-1", &event.Event{Path: "/hello"})
	if res != nil {
		t.Fatalf("crash must not produce a result, got %+v", res)
	}
	var crash *CrashError
	if !errors.As(err, &crash) {
		t.Fatalf("expected CrashError, got %v", err)
	}
	joined := strings.Join(crash.StackLines, "\n")
	if !strings.Contains(joined, "Error: boom") || !strings.Contains(joined, "at handler (fn.js:3:9)") {
		t.Fatalf("stack lines missing stderr capture: %q", joined)
	}
}

func TestInvokeZeroExitWithoutResultIsViolation(t *testing.T) {
	script := writeScript(t, "read -r line <&3\nexit 0\n")
	s := newTestSupervisor(script, &syncBuffer{}, &syncBuffer{})

	_, err := s.Invoke("req-silent-1", &event.Event{Path: "/hello"})
	var pv *ipc.ProtocolViolationError
	if !errors.As(err, &pv) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestInvokeMalformedResultIsViolation(t *testing.T) {
	script := writeScript(t,
		"read -r line <&3\n"+
			"echo 'this is not json' >&4\n"+
			"sleep 10\n")
	s := newTestSupervisor(script, &syncBuffer{}, &syncBuffer{})

	_, err := s.Invoke("req-garbage-1", &event.Event{Path: "/hello"})
	var pv *ipc.ProtocolViolationError
	if !errors.As(err, &pv) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestInvokeMismatchedIDIsViolation(t *testing.T) {
	script := writeScript(t,
		"read -r line <&3\n"+
			"echo '{\"type\":\"result\",\"id\":\"someone-else\",\"result\":{\"statusCode\":200}}' >&4\n"+
			"sleep 10\n")
	s := newTestSupervisor(script, &syncBuffer{}, &syncBuffer{})

	_, err := s.Invoke("req-mismatch-1", &event.Event{Path: "/hello"})
	var pv *ipc.ProtocolViolationError
	if !errors.As(err, &pv) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
	if !strings.Contains(pv.Reason, "someone-else") {
		t.Fatalf("violation should name the offending id: %q", pv.Reason)
	}
}

func TestCloseAllTerminatesInflightWorkers(t *testing.T) {
	script := writeScript(t, "read -r line <&3\nsleep 60\n")
	s := newTestSupervisor(script, &syncBuffer{}, &syncBuffer{})

	done := make(chan error, 1)
	go func() {
		_, err := s.Invoke("req-hung-1", &event.Event{Path: "/hello"})
		done <- err
	}()

	// give the worker time to spawn and block
	time.Sleep(300 * time.Millisecond)
	s.CloseAll()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("killed worker must not report success")
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("invoke did not return after CloseAll")
	}
}

func TestEnvListSortedAndExact(t *testing.T) {
	got := envList(map[string]string{"B": "2", "A": "1", "C": "3"})
	want := []string{"A=1", "B=2", "C=3"}
	if len(got) != len(want) {
		t.Fatalf("unexpected env length: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("env not sorted: %v", got)
		}
	}
}

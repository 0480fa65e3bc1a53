// Package worker owns the lifecycle of one function's backing processes.
// Every invocation spawns a fresh OS process; a process serves exactly one
// invocation and is terminated as soon as its single result (or failure) has
// been observed. There is no pooling or reuse: spawn latency is traded for
// invocation-level crash isolation.
package worker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"funcgate/pkg/event"
	"funcgate/pkg/ipc"
	"funcgate/pkg/logger"
)

// stderrCaptureLimit bounds the crash diagnostic taken from the first chunk
// a worker emits on stderr. Later stderr data is relayed but not retained.
const stderrCaptureLimit = 4096

// Options is the static configuration of one registered function.
type Options struct {
	Executable string            // runtime binary, e.g. "node"
	Bootstrap  string            // materialized bootstrap artifact path
	Entry      string            // function entry reference
	Handler    string            // handler identifier
	Env        map[string]string // exact child environment, not merged with ambient
	Stdout     io.Writer         // function log sink, defaults to os.Stdout
	Stderr     io.Writer         // function error sink, defaults to os.Stderr
	Silent     bool              // discard all relayed and lifecycle lines
}

// Supervisor spawns and tracks worker processes for a single function.
type Supervisor struct {
	opts   Options
	stdout io.Writer
	stderr io.Writer

	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// CrashError is the synthesized payload for a worker that exited non-zero
// before delivering a result.
type CrashError struct {
	Message    string
	StackLines []string
}

func (e *CrashError) Error() string { return e.Message }

// New builds a Supervisor for one function registration.
func New(opts Options) *Supervisor {
	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if opts.Silent {
		stdout, stderr = io.Discard, io.Discard
	}
	return &Supervisor{opts: opts, stdout: stdout, stderr: stderr, procs: map[int]*exec.Cmd{}}
}

// Invoke runs one invocation to completion: spawn, send the event message,
// await exactly one terminal signal. The returned result has already passed
// the shape contract. The worker process never survives this call.
func (s *Supervisor) Invoke(id string, evt *event.Event) (*ipc.Result, error) {
	// Dedicated structured channel, distinct from stdout/stderr:
	// child fd 3 carries the event in, child fd 4 carries the result out.
	evtR, evtW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("ipc pipe: %w", err)
	}
	resR, resW, err := os.Pipe()
	if err != nil {
		evtR.Close()
		evtW.Close()
		return nil, fmt.Errorf("ipc pipe: %w", err)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		for _, f := range []*os.File{evtR, evtW, resR, resW} {
			f.Close()
		}
		return nil, fmt.Errorf("stdio pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		for _, f := range []*os.File{evtR, evtW, resR, resW, outR, outW} {
			f.Close()
		}
		return nil, fmt.Errorf("stdio pipe: %w", err)
	}

	cmd := exec.Command(s.opts.Executable, s.opts.Bootstrap, s.opts.Entry, s.opts.Handler)
	cmd.Env = envList(s.opts.Env)
	cmd.ExtraFiles = []*os.File{evtR, resW}
	cmd.Stdout = outW
	cmd.Stderr = errW

	start := time.Now()
	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{evtR, evtW, resR, resW, outR, outW, errR, errW} {
			f.Close()
		}
		return nil, fmt.Errorf("spawn worker: %w", err)
	}
	// parent copies of the child's ends
	evtR.Close()
	resW.Close()
	outW.Close()
	errW.Close()
	s.track(cmd)
	defer func() {
		s.untrack(cmd)
		evtW.Close()
		resR.Close()
		outR.Close()
		errR.Close()
	}()

	s.lifecycle("START RequestId: %s Version: $LATEST", id)

	capture := &firstChunk{limit: stderrCaptureLimit}
	var relays sync.WaitGroup
	relays.Add(2)
	go func() {
		defer relays.Done()
		s.relay(outR, s.stdout, id, "INFO")
	}()
	go func() {
		defer relays.Done()
		s.relay(&captureReader{r: errR, cap: capture}, s.stderr, id, "ERROR")
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if err := json.NewEncoder(evtW).Encode(ipc.NewEventMessage(id, evt)); err != nil {
		s.kill(cmd)
		<-done
		return nil, fmt.Errorf("send event to worker: %w", err)
	}
	evtW.Close()

	type readOut struct {
		msg *ipc.ResultMessage
		err error
	}
	ipcCh := make(chan readOut, 1)
	go func() {
		line, err := bufio.NewReader(resR).ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err == nil {
				err = io.EOF
			}
			ipcCh <- readOut{nil, err}
			return
		}
		msg, perr := ipc.ParseResultMessage(line)
		ipcCh <- readOut{msg, perr}
	}()

	var exited, channelDrained bool
	var exitErr error
	for {
		select {
		case out := <-ipcCh:
			var pv *ipc.ProtocolViolationError
			switch {
			case out.err == nil && out.msg.ID != id:
				out.err = &ipc.ProtocolViolationError{
					Reason: fmt.Sprintf("result id %q does not match invocation %q", out.msg.ID, id),
				}
				fallthrough
			case errors.As(out.err, &pv) || out.err != nil && !isClosedStream(out.err):
				// Malformed message: abort this invocation loudly rather
				// than coercing whatever arrived.
				logger.Error("worker_protocol_violation", "id", id, "error", out.err)
				s.kill(cmd)
				if !exited {
					<-done
				}
				return nil, out.err
			case out.err != nil:
				// Channel closed without a message; the exit status decides
				// between crash and violation.
				channelDrained = true
				if exited {
					relays.Wait()
					return nil, s.exitFailure(id, exitErr, capture)
				}
				continue
			}

			// Exactly one valid result observed: terminate unconditionally.
			s.kill(cmd)
			if !exited {
				<-done
			}
			elapsed := time.Since(start)
			s.lifecycle("END RequestId: %s", id)
			s.lifecycle("REPORT RequestId: %s\tDuration: %.2f ms\tMemory Used: %d MB",
				id, float64(elapsed.Microseconds())/1000.0, out.msg.MemoryUsedBytes/(1024*1024))
			return out.msg.Result, nil

		case exitErr = <-done:
			exited = true
			if channelDrained {
				relays.Wait()
				return nil, s.exitFailure(id, exitErr, capture)
			}
			// A result may still be buffered in the pipe; the reader will
			// deliver it or EOF promptly now that the child is gone.
		}
	}
}

// exitFailure translates a worker exit that produced no result.
func (s *Supervisor) exitFailure(id string, exitErr error, capture *firstChunk) error {
	if exitErr != nil {
		msg := fmt.Sprintf("worker exited before result: %v", exitErr)
		logger.Warn("worker_crashed", "id", id, "error", exitErr)
		return &CrashError{Message: msg, StackLines: strings.Split(capture.String(), "\n")}
	}
	err := &ipc.ProtocolViolationError{Reason: "worker exited without sending a result"}
	logger.Error("worker_protocol_violation", "id", id, "error", err)
	return err
}

// CloseAll forcibly terminates every tracked process for this function,
// regardless of in-flight status, and clears the tracked set.
func (s *Supervisor) CloseAll() {
	s.mu.Lock()
	procs := s.procs
	s.procs = map[int]*exec.Cmd{}
	s.mu.Unlock()
	for _, cmd := range procs {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

func (s *Supervisor) track(cmd *exec.Cmd) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd.Process != nil {
		s.procs[cmd.Process.Pid] = cmd
	}
}

func (s *Supervisor) untrack(cmd *exec.Cmd) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd.Process != nil {
		delete(s.procs, cmd.Process.Pid)
	}
}

func (s *Supervisor) kill(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// relay copies a worker stream line by line onto a log sink, prefixing each
// line with a timestamp, the active correlation id and a severity tag.
func (s *Supervisor) relay(r io.Reader, sink io.Writer, id, level string) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fmt.Fprintf(sink, "%s\t%s\t%s\t%s\n", stamp(), id, level, sc.Text())
	}
}

func (s *Supervisor) lifecycle(format string, args ...any) {
	fmt.Fprintf(s.stdout, format+"\n", args...)
}

func stamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func isClosedStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed)
}

// firstChunk retains the first bounded chunk written through it.
type firstChunk struct {
	mu    sync.Mutex
	limit int
	buf   []byte
	set   bool
}

func (c *firstChunk) record(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		return
	}
	n := len(p)
	if n > c.limit {
		n = c.limit
	}
	c.buf = append([]byte(nil), p[:n]...)
	c.set = true
}

func (c *firstChunk) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.TrimRight(string(c.buf), "\n")
}

// captureReader tees the first chunk read from r into cap.
type captureReader struct {
	r   io.Reader
	cap *firstChunk
}

func (c *captureReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.cap.record(p[:n])
	}
	return n, err
}

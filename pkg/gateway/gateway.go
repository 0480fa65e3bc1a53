// Package gateway is the HTTP/HTTPS front door: it translates inbound
// requests into function events, hands them to the dispatcher and writes
// the eventual results back to the client.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"funcgate/pkg/dispatch"
	"funcgate/pkg/event"
	"funcgate/pkg/logger"
	"funcgate/pkg/metrics"
)

// ContextHook augments an event's request context before dispatch. The
// gateway waits for the returned value and assigns it into the event; a
// hook that needs to resolve asynchronously simply blocks.
type ContextHook func(ctx context.Context, evt *event.Event) (map[string]any, error)

// Closer is the supervisor shutdown surface the gateway drives on Close.
type Closer interface {
	CloseAll()
}

// InvocationRecord summarizes one completed request for observers
// (journal, extra logging).
type InvocationRecord struct {
	ID       string
	Method   string
	Path     string
	Function string
	Status   int
	Duration time.Duration
	When     time.Time
}

// Options configures a Gateway at construction time.
type Options struct {
	Address    string // listen host, default localhost
	Port       int
	TLSPort    int    // 0 disables the TLS listener
	TLSCert    string // pre-made certificate material
	TLSKey     string
	CORS       bool
	MaxBody    uint64 // request body cap in bytes, 0 = unbounded
	RateRPS    float64
	RateBurst  int
	Hook       ContextHook
	OnComplete func(InvocationRecord)
}

// Gateway owns the listeners and the per-request pipeline.
type Gateway struct {
	opts        Options
	dispatcher  *dispatch.Dispatcher
	supervisors []Closer
	limiters    *limiterPool

	mu      sync.Mutex
	port    int
	httpLn  net.Listener
	tlsLn   net.Listener
	httpSrv *http.Server
	tlsSrv  *http.Server
}

// New builds a Gateway over an already-assembled dispatcher and the
// supervisors it routes to.
func New(opts Options, d *dispatch.Dispatcher, supervisors []Closer) *Gateway {
	g := &Gateway{opts: opts, dispatcher: d, supervisors: supervisors, port: opts.Port}
	if opts.RateRPS > 0 {
		g.limiters = &limiterPool{rps: opts.RateRPS, burst: opts.RateBurst}
	}
	return g
}

// Start binds the non-TLS listener (and the TLS listener when configured)
// and begins serving. It returns the bound host:port of the non-TLS
// listener.
func (g *Gateway) Start() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startLocked()
}

func (g *Gateway) startLocked() (string, error) {
	host := g.opts.Address
	if host == "" {
		host = "localhost"
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, g.port))
	if err != nil {
		return "", fmt.Errorf("bind %s:%d: %w", host, g.port, err)
	}
	g.httpLn = ln
	g.httpSrv = &http.Server{Handler: g}
	go func(srv *http.Server, ln net.Listener) {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("http_serve_stopped", "error", err)
		}
	}(g.httpSrv, ln)

	if g.opts.TLSPort > 0 {
		tln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, g.opts.TLSPort))
		if err != nil {
			g.httpSrv.Close()
			return "", fmt.Errorf("bind tls %s:%d: %w", host, g.opts.TLSPort, err)
		}
		g.tlsLn = tln
		g.tlsSrv = &http.Server{Handler: g}
		go func(srv *http.Server, ln net.Listener) {
			if err := srv.ServeTLS(ln, g.opts.TLSCert, g.opts.TLSKey); err != nil && err != http.ErrServerClosed {
				logger.Error("https_serve_stopped", "error", err)
			}
		}(g.tlsSrv, tln)
	}

	addr := ln.Addr().String()
	logger.Info("gateway_listening", "addr", addr, "tls_port", g.opts.TLSPort)
	return addr, nil
}

// Addr returns the bound host:port of the non-TLS listener.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.httpLn == nil {
		return ""
	}
	return g.httpLn.Addr().String()
}

// ChangePort closes both listeners and rebinds them with the new non-TLS
// port. Tracked workers are unaffected.
func (g *Gateway) ChangePort(port int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopListenersLocked()
	g.port = port
	return g.startLocked()
}

// Close stops accepting new connections on both listeners, terminates every
// tracked worker process across every supervisor, and returns once all of
// that has completed. No worker process remains running afterwards.
func (g *Gateway) Close() error {
	g.mu.Lock()
	g.stopListenersLocked()
	g.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range g.supervisors {
		wg.Add(1)
		go func(s Closer) {
			defer wg.Done()
			s.CloseAll()
		}(s)
	}
	wg.Wait()
	logger.Info("gateway_closed")
	return nil
}

func (g *Gateway) stopListenersLocked() {
	if g.httpSrv != nil {
		_ = g.httpSrv.Close()
		g.httpSrv = nil
		g.httpLn = nil
	}
	if g.tlsSrv != nil {
		_ = g.tlsSrv.Close()
		g.tlsSrv = nil
		g.tlsLn = nil
	}
}

// ServeHTTP runs the per-request pipeline in the order the security model
// requires: CORS, Referer check, Host check, body buffering, event
// construction, context hook, dispatch, response writing.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if g.opts.CORS {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			metrics.ObserveRequest(http.StatusNoContent)
			return
		}
	} else if msg, ok := checkReferer(r); !ok {
		g.reject(w, r, msg)
		return
	}

	if msg, ok := checkHost(r); !ok {
		g.reject(w, r, msg)
		return
	}

	if g.limiters != nil && !g.limiters.Allow(clientIP(r)) {
		writeMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
		metrics.ObserveRequest(http.StatusTooManyRequests)
		return
	}

	// full body is buffered; streaming is out of scope
	var body []byte
	var err error
	if g.opts.MaxBody > 0 {
		body, err = io.ReadAll(io.LimitReader(r.Body, int64(g.opts.MaxBody)+1))
		if err == nil && uint64(len(body)) > g.opts.MaxBody {
			writeMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
			metrics.ObserveRequest(http.StatusRequestEntityTooLarge)
			return
		}
	} else {
		body, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "failed to read request body")
		metrics.ObserveRequest(http.StatusBadRequest)
		return
	}

	evt := event.Build(r, body)

	if g.opts.Hook != nil {
		rc, err := g.opts.Hook(r.Context(), evt)
		if err != nil {
			logger.Error("request_context_hook_failed", "path", evt.Path, "error", err)
			writeMessage(w, http.StatusInternalServerError, "request context hook failed")
			metrics.ObserveRequest(http.StatusInternalServerError)
			return
		}
		if rc != nil {
			evt.RequestContext = rc
		}
	}

	id, name, res, dispatchErr := g.dispatcher.Dispatch(evt)
	status := g.writeOutcome(w, res, dispatchErr)
	elapsed := time.Since(start)

	metrics.ObserveRequest(status)
	if name != "" {
		metrics.ObserveInvocation(name, outcomeLabel(dispatchErr), elapsed)
	}
	logger.Info("request_done", "id", id, "method", evt.HTTPMethod, "path", evt.Path,
		"function", name, "status", status, "duration_ms", elapsed.Milliseconds())

	if g.opts.OnComplete != nil {
		g.opts.OnComplete(InvocationRecord{
			ID:       id,
			Method:   evt.HTTPMethod,
			Path:     evt.Path,
			Function: name,
			Status:   status,
			Duration: elapsed,
			When:     start,
		})
	}
}

func (g *Gateway) reject(w http.ResponseWriter, r *http.Request, msg string) {
	logger.Warn("request_blocked", "reason", msg, "path", r.URL.Path, "remote", r.RemoteAddr)
	writeMessage(w, http.StatusForbidden, msg)
	metrics.ObserveRequest(http.StatusForbidden)
}

// Package app wires configuration into a running gateway: supervisors,
// dispatcher, listeners, journal, diagnostics and retention.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"funcgate/internal/diag"
	"funcgate/internal/retention"
	"funcgate/pkg/config"
	"funcgate/pkg/dispatch"
	"funcgate/pkg/gateway"
	"funcgate/pkg/journal"
	"funcgate/pkg/logger"
	"funcgate/pkg/worker"
)

// App encapsulates the emulator components and lifecycle.
type App struct {
	cfg     *config.Config
	hook    gateway.ContextHook
	gw      *gateway.Gateway
	diagSrv *diag.Server
	watcher *worker.Watcher

	retCancel context.CancelFunc
	sinks     []io.Closer
}

// Option customizes construction with values that cannot come from the
// config file.
type Option func(*App)

// WithContextHook installs the request-context augmentation hook.
func WithContextHook(h gateway.ContextHook) Option {
	return func(a *App) { a.hook = h }
}

// New validates the config and assembles all components. It does not bind
// any listener; call Run for that.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	_ = godotenv.Load(".env")

	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	maxBody, err := cfg.MaxBodyBytes()
	if err != nil {
		return nil, err
	}

	if cfg.Journal.Enabled {
		if err := journal.Open(cfg.Journal.Path); err != nil {
			return nil, fmt.Errorf("open journal at %s: %w", cfg.Journal.Path, err)
		}
	}

	bootstrap, err := worker.MaterializeBootstrap(cfg.TempDir())
	if err != nil {
		return nil, err
	}

	table := cfg.FunctionTable()
	funcs := make([]dispatch.Function, 0, len(table))
	closers := make([]gateway.Closer, 0, len(table))
	entries := make([]string, 0, len(table))
	executable := cfg.Gateway.Executable
	if executable == "" {
		executable = config.DefaultExecutable
	}
	for _, fc := range table {
		stdout, err := a.openSink(fc.Stdout)
		if err != nil {
			a.closeSinks()
			return nil, err
		}
		stderr, err := a.openSink(fc.Stderr)
		if err != nil {
			a.closeSinks()
			return nil, err
		}
		sup := worker.New(worker.Options{
			Executable: executable,
			Bootstrap:  bootstrap,
			Entry:      fc.Entry,
			Handler:    fc.Handler,
			Env:        mergeEnv(cfg.Gateway.Env, fc.Env),
			Stdout:     stdout,
			Stderr:     stderr,
			Silent:     cfg.Gateway.Silent,
		})
		funcs = append(funcs, dispatch.Function{Pattern: fc.Path, Name: fc.Entry, Invoker: sup})
		closers = append(closers, sup)
		entries = append(entries, fc.Entry)
	}

	d := dispatch.New(funcs)
	a.gw = gateway.New(gateway.Options{
		Address:    cfg.Server.Address,
		Port:       cfg.Server.Port,
		TLSPort:    cfg.Server.TLS.Port,
		TLSCert:    cfg.Server.TLS.CertFile,
		TLSKey:     cfg.Server.TLS.KeyFile,
		CORS:       cfg.Gateway.CORS,
		MaxBody:    maxBody,
		RateRPS:    cfg.Gateway.RateLimit.RPS,
		RateBurst:  cfg.Gateway.RateLimit.Burst,
		Hook:       a.hook,
		OnComplete: recordInvocation,
	}, d, closers)

	if cfg.Gateway.Watch && len(entries) > 0 {
		w, err := worker.WatchEntries(entries)
		if err != nil {
			logger.Warn("entry_watch_unavailable", "error", err)
		} else {
			a.watcher = w
		}
	}

	return a, nil
}

// Run starts the listeners, diagnostics and retention, then blocks until
// ctx is cancelled and tears everything down.
func (a *App) Run(ctx context.Context) error {
	addr, err := a.gw.Start()
	if err != nil {
		a.Close()
		return err
	}
	logger.Info("funcgate_ready", "addr", addr, "functions", len(a.cfg.FunctionTable()))

	if a.cfg.Diagnostics.Enabled {
		host := a.cfg.Diagnostics.Address
		if host == "" {
			host = "localhost"
		}
		a.diagSrv = diag.Start(fmt.Sprintf("%s:%d", host, a.cfg.Diagnostics.Port), a.cfg.Diagnostics.DocsDir)
	}

	cancel, err := retention.Start(ctx, a.cfg.Retention)
	if err != nil {
		a.Close()
		return err
	}
	a.retCancel = cancel

	<-ctx.Done()
	a.Close()
	return nil
}

// Gateway exposes the running gateway for lifecycle calls (ChangePort).
func (a *App) Gateway() *gateway.Gateway { return a.gw }

// Close tears down every component: listeners and workers first, then the
// background services and sinks.
func (a *App) Close() {
	if a.retCancel != nil {
		a.retCancel()
		a.retCancel = nil
	}
	if a.watcher != nil {
		_ = a.watcher.Close()
		a.watcher = nil
	}
	if a.gw != nil {
		_ = a.gw.Close()
	}
	_ = a.diagSrv.Close()
	a.diagSrv = nil
	if err := journal.Close(); err != nil {
		logger.Warn("journal_close_failed", "error", err)
	}
	a.closeSinks()
}

func (a *App) openSink(path string) (io.Writer, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log sink %s: %w", path, err)
	}
	a.sinks = append(a.sinks, f)
	return f, nil
}

func (a *App) closeSinks() {
	for _, c := range a.sinks {
		_ = c.Close()
	}
	a.sinks = nil
}

func recordInvocation(rec gateway.InvocationRecord) {
	if !journal.Ready() {
		return
	}
	err := journal.Append(journal.Record{
		ID:         rec.ID,
		Method:     rec.Method,
		Path:       rec.Path,
		Function:   rec.Function,
		Status:     rec.Status,
		DurationMs: rec.Duration.Milliseconds(),
		TS:         rec.When.UTC().UnixNano(),
	})
	if err != nil {
		logger.Warn("journal_append_failed", "error", err)
	}
}

func mergeEnv(base, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

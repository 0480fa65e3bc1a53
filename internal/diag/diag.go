// Package diag serves the optional diagnostics listener: liveness,
// prometheus metrics, the invocation journal and API docs. It binds
// separately from the gateway so diagnostics never shadow function routes.
package diag

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"funcgate/pkg/journal"
	"funcgate/pkg/logger"
)

// Handler builds the diagnostics route set. docsDir, when non-empty, must
// contain an openapi.yaml for the swagger UI.
func Handler(docsDir string) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/journal", journalHandler).Methods(http.MethodGet)
	if docsDir != "" {
		r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
		r.Path("/openapi.yaml").Handler(http.FileServer(http.Dir(docsDir)))
	}
	return r
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// journalHandler lists recent invocation records, newest first.
func journalHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !journal.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"journal disabled"}`))
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	recs, err := journal.Recent(limit)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"journal read failed"}`))
		return
	}
	writeRecords(w, recs)
}

func writeRecords(w http.ResponseWriter, recs []journal.Record) {
	_ = json.NewEncoder(w).Encode(struct {
		Records []journal.Record `json:"records"`
	}{Records: recs})
}

// Server is a running diagnostics listener.
type Server struct {
	srv *http.Server
}

// Start binds the diagnostics listener on addr and serves in the
// background.
func Start(addr, docsDir string) *Server {
	srv := &http.Server{Addr: addr, Handler: Handler(docsDir), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("diag_serve_stopped", "error", err)
		}
	}()
	logger.Info("diagnostics_listening", "addr", addr)
	return &Server{srv: srv}
}

// Close stops the diagnostics listener.
func (s *Server) Close() error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Close()
}

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"funcgate/pkg/ipc"
	"funcgate/pkg/logger"
	"funcgate/pkg/worker"
)

// writeOutcome converts a dispatch outcome into the HTTP response and
// returns the status code written.
func (g *Gateway) writeOutcome(w http.ResponseWriter, res *ipc.Result, err error) int {
	if err != nil {
		var crash *worker.CrashError
		if errors.As(err, &crash) {
			return writeJSON(w, http.StatusInternalServerError, map[string]any{
				"message":    crash.Message,
				"stackTrace": crash.StackLines,
			})
		}
		var pv *ipc.ProtocolViolationError
		if errors.As(err, &pv) {
			logger.Error("invocation_aborted", "error", pv)
		}
		return writeMessage(w, http.StatusInternalServerError, err.Error())
	}

	// Binary-encoded response bodies are unsupported: the result is
	// overridden regardless of its stated status or body.
	if res.IsBase64Encoded {
		return writeMessage(w, http.StatusBadRequest, "Forbidden")
	}

	// Single-valued headers first, then the multi-valued pass; a
	// multi-valued entry for the same name overwrites the first pass.
	h := w.Header()
	for k, v := range res.Headers {
		h.Set(k, v)
	}
	for k, vs := range res.MultiValueHeaders {
		h.Del(k)
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	w.WriteHeader(res.StatusCode)
	_, _ = io.WriteString(w, res.Body)
	return res.StatusCode
}

// writeMessage writes the canonical {"message": ...} rejection body.
func writeMessage(w http.ResponseWriter, status int, msg string) int {
	return writeJSON(w, status, map[string]any{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	return status
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	var crash *worker.CrashError
	if errors.As(err, &crash) {
		return "crash"
	}
	var pv *ipc.ProtocolViolationError
	if errors.As(err, &pv) {
		return "protocol_violation"
	}
	return "error"
}

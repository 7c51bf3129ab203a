package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/d4ckard/shuttle/pkg/runner"
)

// Response is the standard API response wrapper.
//
//   - Status indicates the overall result ("ok" or "error")
//   - Timestamp provides the response time
//   - Data contains the response payload (optional)
//   - Error contains error details when Status is "error" (optional)
type Response struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func okResponse(data interface{}) Response {
	return Response{Status: "ok", Timestamp: time.Now().UTC(), Data: data}
}

func errorResponse(errMsg string) Response {
	return Response{Status: "error", Timestamp: time.Now().UTC(), Error: errMsg}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// unitHandler serves lifecycle operations on the supervised unit.
type unitHandler struct {
	runner *runner.Runner
}

func newUnitHandler(r *runner.Runner) *unitHandler {
	return &unitHandler{runner: r}
}

// Health is the liveness probe. The control API being up is the signal;
// the unit's own state is reported by Status.
func (h *unitHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(map[string]interface{}{
		"state": h.runner.Status().State,
	}))
}

// Status returns the unit's lifecycle status.
func (h *unitHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(h.runner.Status()))
}

// Reload rebuilds the unit and swaps in the new generation. A failed
// reload leaves the current generation serving and reports the build or
// load error.
func (h *unitHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Reload(r.Context()); err != nil {
		writeJSON(w, http.StatusConflict, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(h.runner.Status()))
}

// Stop gracefully stops the unit. Stopping an already stopped unit
// succeeds.
func (h *unitHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Stop(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(h.runner.Status()))
}

// Package health serves liveness and readiness probes on the metrics listener.
//
//   - /healthz answers 200 as long as the process serves HTTP.
//   - /readyz answers 200 only while every registered [Check] passes, so a
//     scraper can tell a running binary from one whose chunk store or media
//     directory has gone away mid-job.
//
// Responses are JSON: {"status": "ok"|"fail", "checks": {name: detail}}.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Check probes one dependency. It returns nil while the dependency is usable
// and must respect ctx cancellation.
type Check func(ctx context.Context) error

// Checker is a [Check] with the name it reports under in /readyz responses.
type Checker struct {
	Name  string
	Check Check
}

type probeBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the two probe endpoints. The checker list is fixed at
// construction, so the handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating checkers sequentially, in order, on each
// /readyz request.
func New(checkers ...Checker) *Handler {
	h := &Handler{checkers: make([]Checker, len(checkers))}
	copy(h.checkers, checkers)
	return h
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, probeBody{Status: "ok"})
}

// Readyz runs every checker under a [checkTimeout] deadline derived from the
// request context and answers 503 when any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	body := probeBody{
		Status: "ok",
		Checks: make(map[string]string, len(h.checkers)),
	}
	code := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			body.Checks[c.Name] = "fail: " + err.Error()
			body.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		body.Checks[c.Name] = "ok"
	}

	if len(body.Checks) == 0 {
		body.Checks = nil
	}
	respond(w, code, body)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func respond(w http.ResponseWriter, code int, body probeBody) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

// Package health serves the liveness and readiness probes of the storymix
// server.
//
// GET /healthz answers 200 while the process can serve HTTP. GET /readyz
// runs every registered [Checker] and answers 503 when any of them fails:
// a service without a provider, or a service whose circuit breaker is open.
//
// Both respond with {"status": "ok"|"fail", "checks": {name: "ok"|"fail: ..."}}.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"
)

// checkTimeout bounds a single check.
const checkTimeout = 5 * time.Second

// Checker is one named readiness condition. Check returns nil when the
// dependency can take work and must honour ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Report is the outcome of one readiness evaluation.
type Report struct {
	// Failed lists the names of failing checks in registration order.
	Failed []string

	// Checks maps each check name to "ok" or "fail: <reason>".
	Checks map[string]string
}

// OK reports whether every check passed.
func (r Report) OK() bool { return len(r.Failed) == 0 }

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New returns a handler evaluating checkers on every readiness request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: slices.Clone(checkers)}
}

// Report runs all checks concurrently, each bounded by its own timeout.
func (h *Handler) Report(ctx context.Context) Report {
	errs := make([]error, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Go(func() {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			errs[i] = c.Check(cctx)
		})
	}
	wg.Wait()

	rep := Report{Checks: make(map[string]string, len(h.checkers))}
	for i, c := range h.checkers {
		if errs[i] != nil {
			rep.Checks[c.Name] = "fail: " + errs[i].Error()
			rep.Failed = append(rep.Failed, c.Name)
			continue
		}
		rep.Checks[c.Name] = "ok"
	}
	return rep
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Report(r.Context())
	if !rep.OK() {
		writeJSON(w, http.StatusServiceUnavailable, result{Status: "fail", Checks: rep.Checks})
		return
	}
	writeJSON(w, http.StatusOK, result{Status: "ok", Checks: rep.Checks})
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

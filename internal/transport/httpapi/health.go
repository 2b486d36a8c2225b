package httpapi

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type healthHandler struct {
	checks  map[string]Check
	version string
}

type livenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *healthHandler) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, livenessResponse{Status: "ok", Version: h.version})
}

func (h *healthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps, ok := RunChecks(ctx, h.checks)
	status, code := "ok", http.StatusOK
	if !ok {
		status, code = "error", http.StatusServiceUnavailable
	}
	writeJSON(w, code, readinessResponse{Status: status, Version: h.version, Dependencies: deps})
}

// RunChecks runs every check with a one second budget each and reports
// "ok" or "down" per dependency.
func RunChecks(ctx context.Context, checks map[string]Check) (map[string]string, bool) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string]string, len(checks))
	healthy := true
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, time.Second)
		err := checks[name](cctx)
		cancel()
		if err != nil {
			deps[name] = "down"
			healthy = false
			continue
		}
		deps[name] = "ok"
	}
	return deps, healthy
}

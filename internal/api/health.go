package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Check probes one dependency for readiness.
type Check func(ctx context.Context) error

// NewHealthRouter serves /healthz (liveness) and /readyz, which runs every
// check and reports 503 if any fails.
func NewHealthRouter(checks map[string]Check) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		writeJSON(w, status, results)
	}).Methods(http.MethodGet)
	return r
}

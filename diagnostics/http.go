// Package diagnostics exposes an eventadmin Admin over HTTP for operators,
// matching the teacher's own chi-routed health/metrics surface for its modules.
package diagnostics

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/celixgo/eventadmin"
)

// NewRouter builds a chi.Router exposing:
//
//	GET /healthz         - 200 while started, 503 otherwise
//	GET /metrics         - Prometheus exposition format (requires a registered collector)
//	GET /debug/handlers  - JSON snapshot of registered handler ids and blacklist state
func NewRouter(admin *eventadmin.Admin) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		snap := admin.Snapshot()
		if snap.State != "started" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(snap.State))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/debug/handlers", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(admin.DebugHandlers())
	})

	return r
}

// Package health serves liveness, readiness and metrics on the ops port.
package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter returns the ops router. metrics may be nil.
func NewRouter(hc *HealthChecker, metrics http.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hc.Check(r.Context()))
	})

	router.Get("/health/liveness", func(w http.ResponseWriter, r *http.Request) {
		if hc.IsAlive() {
			writeJSON(w, http.StatusOK, map[string]bool{"alive": true})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"alive": false})
	})

	router.Get("/health/readiness", func(w http.ResponseWriter, r *http.Request) {
		if hc.IsReady(r.Context()) {
			writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
	})

	if metrics != nil {
		router.Method(http.MethodGet, "/metrics", metrics)
	}

	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

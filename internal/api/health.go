package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/panorama-game/rating-server/internal/api/common"
	"github.com/panorama-game/rating-server/internal/leaderboard"
	"github.com/panorama-game/rating-server/internal/versions"
)

// HealthRouter creates a router for health check endpoints
func HealthRouter(svc leaderboard.Service) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler reports that the process is serving
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

// readinessHandler reports ready once the first snapshot has been published
func readinessHandler(svc leaderboard.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			common.WriteErrorResponse(w, "Leaderboard not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, ReadinessResponse{Status: "ready"}, http.StatusOK)
	}
}

// versionHandler returns build information
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}

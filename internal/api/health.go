package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// readinessTimeout bounds each dependency check in /ready.
const readinessTimeout = 5 * time.Second

// health is a simple liveness endpoint for Docker/Kubernetes probes.
// Returns 200 OK with {"status":"ok"}.
func health(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness checks the backing dependencies: the history database and,
// when configured, the vector store. Returns 503 if any check fails so
// orchestrators stop routing traffic until the dependencies recover.
func readiness(store ConversationStore, vectors HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		if err := store.Ping(ctx); err != nil {
			logger.Warn("readiness: history database unreachable", "error", err)
			checks["database"] = "unavailable"
			healthy = false
		} else {
			checks["database"] = "ok"
		}

		if vectors != nil {
			if err := vectors.Health(ctx); err != nil {
				logger.Warn("readiness: vector store unreachable", "error", err)
				checks["vectorstore"] = "unavailable"
				healthy = false
			} else {
				checks["vectorstore"] = "ok"
			}
		}

		status := http.StatusOK
		overall := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		writeJSON(w, status, map[string]any{"status": overall, "checks": checks}, logger)
	}
}

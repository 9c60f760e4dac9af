package api

import (
	"log/slog"
	"net/http"

	"github.com/tomeworks/tome/internal/config"
)

// clientConfig serves GET /api/v1/config: the presentation sections chat
// clients use to render themselves (app identity, feature flags, defaults,
// UI preferences). Server-side settings and secrets are never included.
func clientConfig(cfg *config.Config, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, cfg.Sections(), logger)
	}
}

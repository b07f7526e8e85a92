package api

import (
	"log/slog"
	"net/http"
)

// health is a liveness probe. Returns 200 with {"ok":true}.
func health(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true}, logger)
	}
}

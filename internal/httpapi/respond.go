package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON sends v with the given status. The header is already out when
// encoding fails, so the failure can only be logged.
func (a *API) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("httpapi: write response", "path", r.URL.Path, "status", status, "error", err)
	}
}

// writeError sends {"error": <status text>, "message": msg}. cause, if set,
// is logged and never shown to the client.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, cause error) {
	if cause != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		a.logger.Log(r.Context(), level, "httpapi: "+msg, "path", r.URL.Path, "status", status, "error", cause)
	}
	a.writeJSON(w, r, status, map[string]any{
		"error":   http.StatusText(status),
		"message": msg,
	})
}

package handlers

import (
	"net/http"
)

// Health is the liveness probe. It also reports whether history endpoints
// are live, so operators can tell a history-less deployment from a broken
// database.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gptveo",
		"history": a.History != nil,
	})
}

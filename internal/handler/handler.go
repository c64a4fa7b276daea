// Package handler implements the shell's local JSON API. Handlers read
// mirror snapshots and dispatch intents through shell.App; they never talk to
// the engine directly.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vigil-app/vigil/internal/engine"
	"github.com/vigil-app/vigil/internal/mirror"
	"github.com/vigil-app/vigil/internal/shell"
	"github.com/vigil-app/vigil/internal/tracker"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps shell-layer errors onto HTTP statuses. Engine-reported
// failures come back as 502 so the UI can tell "engine said no" from "bad
// request".
func writeError(w http.ResponseWriter, err error) {
	var cmdErr *engine.CommandError
	switch {
	case errors.As(err, &cmdErr):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": cmdErr.Message})
	case errors.Is(err, shell.ErrRunInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a backup for this set is already running"})
	case errors.Is(err, tracker.ErrDuplicateTransfer):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a download to this path is already active"})
	case errors.Is(err, tracker.ErrNotTerminal):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "transfer is still in progress"})
	case errors.Is(err, tracker.ErrUnknownTransfer), errors.Is(err, mirror.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

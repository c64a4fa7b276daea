package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vigil-app/vigil/internal/model"
	"github.com/vigil-app/vigil/internal/shell"
)

type StateHandler struct {
	app    *shell.App
	logger *slog.Logger
}

func NewStateHandler(app *shell.App, logger *slog.Logger) *StateHandler {
	return &StateHandler{app: app, logger: logger}
}

// Get returns the full mirrored state plus the live progress records, which
// is everything the UI needs to render from cold.
func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"state":     h.app.Snapshot(),
		"transfers": h.app.Transfers(),
	}
	if op, ok := h.app.CurrentOperation(); ok {
		resp["operation"] = op
	}
	writeJSON(w, http.StatusOK, resp)
}

// Refresh forces a full refetch from the engine.
func (h *StateHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Refetch(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Snapshot())
}

func (h *StateHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings model.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.app.UpdateSettings(r.Context(), settings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *StateHandler) UpdateOnboarding(w http.ResponseWriter, r *http.Request) {
	var ob model.Onboarding
	if err := json.NewDecoder(r.Body).Decode(&ob); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.app.UpdateOnboarding(r.Context(), ob); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ob)
}

func (h *StateHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	if err := h.app.CompleteOnboarding(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.app.Snapshot().Onboarding)
}

func (h *StateHandler) DetectLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.app.DetectLocation(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (h *StateHandler) SetLocation(w http.ResponseWriter, r *http.Request) {
	var loc model.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.app.SetLocation(r.Context(), loc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

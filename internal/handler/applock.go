package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vigil-app/vigil/internal/applock"
)

type AppLockHandler struct {
	store  *applock.Store
	logger *slog.Logger
}

func NewAppLockHandler(store *applock.Store, logger *slog.Logger) *AppLockHandler {
	return &AppLockHandler{store: store, logger: logger}
}

func (h *AppLockHandler) Status(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.store.Enabled()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (h *AppLockHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.store.SetPIN(req.PIN); err != nil {
		if errors.Is(err, applock.ErrInvalidPIN) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "set"})
}

func (h *AppLockHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	ok, err := h.store.VerifyPIN(req.PIN)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "wrong PIN"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AppLockHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearPIN(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

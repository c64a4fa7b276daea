package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/vigil-app/vigil/internal/history"
	"github.com/vigil-app/vigil/internal/shell"
)

type HistoryHandler struct {
	app    *shell.App
	logger *slog.Logger
}

func NewHistoryHandler(app *shell.App, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{app: app, logger: logger}
}

func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be 1-500"})
			return
		}
		limit = n
	}

	entries, err := h.app.History(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

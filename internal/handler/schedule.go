package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vigil-app/vigil/internal/model"
	"github.com/vigil-app/vigil/internal/shell"
)

type ScheduleHandler struct {
	app    *shell.App
	logger *slog.Logger
}

func NewScheduleHandler(app *shell.App, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{app: app, logger: logger}
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Snapshot().Schedules)
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var sched model.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	created, err := h.app.CreateSchedule(r.Context(), sched)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var sched model.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	sched.ID = r.PathValue("id")
	if err := h.app.UpdateSchedule(r.Context(), sched); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.app.DeleteSchedule(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// SetWeatherTriggers replaces the alert types that fire a schedule early.
func (h *ScheduleHandler) SetWeatherTriggers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AlertTypes []string `json:"alert_types"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	for _, raw := range req.AlertTypes {
		if !model.ValidAlertType(raw) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown alert type: " + raw})
			return
		}
	}
	if err := h.app.SetWeatherTriggers(r.Context(), r.PathValue("id"), req.AlertTypes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// AlertTypes lists the supported weather alert types with display names, for
// the schedule editor.
func (h *ScheduleHandler) AlertTypes(w http.ResponseWriter, r *http.Request) {
	types := model.AllAlertTypes()
	out := make([]map[string]string, len(types))
	for i, at := range types {
		out[i] = map[string]string{
			"type":         string(at),
			"display_name": at.DisplayName(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

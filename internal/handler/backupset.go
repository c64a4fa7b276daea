package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/vigil-app/vigil/internal/model"
	"github.com/vigil-app/vigil/internal/shell"
)

var userHomeDir = os.UserHomeDir

type BackupSetHandler struct {
	app    *shell.App
	logger *slog.Logger
}

func NewBackupSetHandler(app *shell.App, logger *slog.Logger) *BackupSetHandler {
	return &BackupSetHandler{app: app, logger: logger}
}

// setView decorates a mirrored record with display strings for the list view.
type setView struct {
	model.BackupSet
	Type        model.BackupType `json:"type"`
	SizeDisplay string           `json:"size_display"`
}

func newSetView(set model.BackupSet) setView {
	return setView{
		BackupSet:   set,
		Type:        set.Type(),
		SizeDisplay: humanize.Bytes(set.TotalSizeBackedUp),
	}
}

func (h *BackupSetHandler) List(w http.ResponseWriter, r *http.Request) {
	sets := h.app.Snapshot().BackupSets
	views := make([]setView, len(sets))
	for i, set := range sets {
		views[i] = newSetView(set)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *BackupSetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Preset model.Preset    `json:"preset,omitempty"`
		Set    model.BackupSet `json:"set"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	var created model.BackupSet
	var err error
	if req.Preset != "" && req.Preset != model.PresetCustom {
		homeDir, _ := userHomeDir()
		created, err = h.app.CreateBackupSetFromPreset(r.Context(), req.Preset, homeDir)
	} else {
		created, err = h.app.CreateBackupSet(r.Context(), req.Set)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSetView(created))
}

func (h *BackupSetHandler) Update(w http.ResponseWriter, r *http.Request) {
	var set model.BackupSet
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	set.ID = r.PathValue("id")
	if err := h.app.UpdateBackupSet(r.Context(), set); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *BackupSetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.app.DeleteBackupSet(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Run executes a manual backup and blocks until the engine reports back. The
// UI renders progress from the event push frames in the meantime.
func (h *BackupSetHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Incremental *bool `json:"incremental"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
	}
	incremental := true
	if req.Incremental != nil {
		incremental = *req.Incremental
	}

	out, err := h.app.RunBackup(r.Context(), r.PathValue("id"), incremental)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"no_changes": out.NoChanges,
		"report":     out.Report,
	})
}

func (h *BackupSetHandler) FolderStats(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	stats, err := h.app.FolderStats(r.Context(), req.Paths)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file_count":   stats.FileCount,
		"total_size":   stats.TotalSize,
		"size_display": humanize.Bytes(stats.TotalSize),
	})
}

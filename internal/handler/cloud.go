package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/vigil-app/vigil/internal/model"
	"github.com/vigil-app/vigil/internal/shell"
)

type CloudHandler struct {
	app    *shell.App
	logger *slog.Logger
}

func NewCloudHandler(app *shell.App, logger *slog.Logger) *CloudHandler {
	return &CloudHandler{app: app, logger: logger}
}

func (h *CloudHandler) ListBundles(w http.ResponseWriter, r *http.Request) {
	bundles, err := h.app.ListCloudBundles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	type bundleView struct {
		model.CloudBackupBundle
		SizeDisplay string `json:"size_display"`
	}
	views := make([]bundleView, len(bundles))
	for i, b := range bundles {
		views[i] = bundleView{
			CloudBackupBundle: b,
			SizeDisplay:       humanize.Bytes(uint64(b.ArchiveFile.SizeBytes)),
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *CloudHandler) Quota(w http.ResponseWriter, r *http.Request) {
	quota, err := h.app.CloudQuota(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"used_bytes":    quota.UsedBytes,
		"total_bytes":   quota.TotalBytes,
		"used_display":  humanize.Bytes(quota.UsedBytes),
		"total_display": humanize.Bytes(quota.TotalBytes),
	})
}

// Download starts a tracked download of one remote file. The response is the
// pending transfer record; progress arrives over the push channel.
func (h *CloudHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID     string `json:"file_id"`
		FileName   string `json:"file_name"`
		TargetPath string `json:"target_path"`
		Source     string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.FileID == "" || req.TargetPath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file_id and target_path are required"})
		return
	}
	if req.FileName == "" {
		req.FileName = filepath.Base(req.TargetPath)
	}

	item, err := h.app.DownloadBundle(req.FileID, req.FileName, req.TargetPath, req.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, item)
}

func (h *CloudHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.app.DeleteCloudFile(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *CloudHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Transfers())
}

func (h *CloudHandler) RemoveTransfer(w http.ResponseWriter, r *http.Request) {
	if err := h.app.RemoveTransfer(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// Package server assembles the shell's local HTTP surface: the JSON API the
// rendering process calls, and the WebSocket push channel it listens on.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vigil-app/vigil/internal/applock"
	"github.com/vigil-app/vigil/internal/handler"
	"github.com/vigil-app/vigil/internal/middleware"
	"github.com/vigil-app/vigil/internal/mirror"
	"github.com/vigil-app/vigil/internal/shell"
	ws "github.com/vigil-app/vigil/internal/websocket"
)

type Server struct {
	app *shell.App
	hub *ws.Hub

	stateH     *handler.StateHandler
	backupSetH *handler.BackupSetHandler
	scheduleH  *handler.ScheduleHandler
	cloudH     *handler.CloudHandler
	historyH   *handler.HistoryHandler
	appLockH   *handler.AppLockHandler

	unsubscribe func()
	logger      *slog.Logger
}

// New wires the API surface around an assembled App. The hub is the same one
// registered as the App's notifier, so progress frames and mirror changes
// share a single push channel. lockStore may be nil when no journal DB is
// configured.
func New(app *shell.App, hub *ws.Hub, lockStore *applock.Store, logger *slog.Logger) *Server {
	s := &Server{
		app:        app,
		hub:        hub,
		stateH:     handler.NewStateHandler(app, logger.With("component", "state")),
		backupSetH: handler.NewBackupSetHandler(app, logger.With("component", "backup_set")),
		scheduleH:  handler.NewScheduleHandler(app, logger.With("component", "schedule")),
		cloudH:     handler.NewCloudHandler(app, logger.With("component", "cloud")),
		historyH:   handler.NewHistoryHandler(app, logger.With("component", "history")),
		logger:     logger,
	}
	if lockStore != nil {
		s.appLockH = handler.NewAppLockHandler(lockStore, logger.With("component", "applock"))
	}

	// Every mirror mutation becomes one push frame; the UI patches its view
	// or re-reads /api/state on a full replace.
	s.unsubscribe = app.OnChange(func(c mirror.Change) {
		hub.Broadcast(ws.StateMessage(c.Entity, string(c.Kind), c.ID))
	})
	return s
}

// Close detaches the server from the App's change feed.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Full state + live progress, for cold rendering.
	mux.HandleFunc("GET /api/state", s.stateH.Get)
	mux.HandleFunc("POST /api/state/refresh", s.stateH.Refresh)

	mux.HandleFunc("PUT /api/settings", s.stateH.UpdateSettings)
	mux.HandleFunc("PUT /api/onboarding", s.stateH.UpdateOnboarding)
	mux.HandleFunc("POST /api/onboarding/complete", s.stateH.CompleteOnboarding)
	mux.HandleFunc("POST /api/location/detect", s.stateH.DetectLocation)
	mux.HandleFunc("PUT /api/location", s.stateH.SetLocation)

	mux.HandleFunc("GET /api/backup-sets", s.backupSetH.List)
	mux.HandleFunc("POST /api/backup-sets", s.backupSetH.Create)
	mux.HandleFunc("PUT /api/backup-sets/{id}", s.backupSetH.Update)
	mux.HandleFunc("DELETE /api/backup-sets/{id}", s.backupSetH.Delete)
	mux.HandleFunc("POST /api/backup-sets/{id}/run", s.backupSetH.Run)
	mux.HandleFunc("POST /api/folder-stats", s.backupSetH.FolderStats)

	mux.HandleFunc("GET /api/schedules", s.scheduleH.List)
	mux.HandleFunc("POST /api/schedules", s.scheduleH.Create)
	mux.HandleFunc("PUT /api/schedules/{id}", s.scheduleH.Update)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.scheduleH.Delete)
	mux.HandleFunc("PUT /api/schedules/{id}/weather-triggers", s.scheduleH.SetWeatherTriggers)
	mux.HandleFunc("GET /api/weather/alert-types", s.scheduleH.AlertTypes)

	mux.HandleFunc("GET /api/cloud/bundles", s.cloudH.ListBundles)
	mux.HandleFunc("GET /api/cloud/quota", s.cloudH.Quota)
	mux.HandleFunc("POST /api/cloud/download", s.cloudH.Download)
	mux.HandleFunc("DELETE /api/cloud/files/{id}", s.cloudH.DeleteFile)

	mux.HandleFunc("GET /api/transfers", s.cloudH.ListTransfers)
	mux.HandleFunc("DELETE /api/transfers/{id}", s.cloudH.RemoveTransfer)

	mux.HandleFunc("GET /api/history", s.historyH.List)

	if s.appLockH != nil {
		mux.HandleFunc("GET /api/applock", s.appLockH.Status)
		mux.HandleFunc("PUT /api/applock", s.appLockH.Set)
		mux.HandleFunc("POST /api/applock/verify", s.appLockH.Verify)
		mux.HandleFunc("DELETE /api/applock", s.appLockH.Clear)
	}

	// WebSocket push channel
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

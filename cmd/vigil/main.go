package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vigil-app/vigil/internal/applock"
	"github.com/vigil-app/vigil/internal/database"
	"github.com/vigil-app/vigil/internal/engine"
	"github.com/vigil-app/vigil/internal/eventbus"
	"github.com/vigil-app/vigil/internal/history"
	"github.com/vigil-app/vigil/internal/logging"
	"github.com/vigil-app/vigil/internal/mirror"
	"github.com/vigil-app/vigil/internal/server"
	"github.com/vigil-app/vigil/internal/shell"
	ws "github.com/vigil-app/vigil/internal/websocket"
)

func main() {
	logger := logging.Setup(os.Getenv("VIGIL_LOG_LEVEL"))

	port := os.Getenv("VIGIL_PORT")
	if port == "" {
		port = "7600"
	}

	engineURL := os.Getenv("VIGIL_ENGINE_URL")
	if engineURL == "" {
		engineURL = "http://127.0.0.1:7317"
	}

	dbPath := os.Getenv("VIGIL_DB_PATH")
	if dbPath == "" {
		dbPath = "vigil.db"
	}

	refreshInterval := 5 * time.Minute
	if raw := os.Getenv("VIGIL_REFRESH_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			logger.Error("invalid VIGIL_REFRESH_INTERVAL", "value", raw, "error", err)
			os.Exit(1)
		}
		refreshInterval = d
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	hub := ws.NewHub(logger.With("component", "websocket"))

	eventsURL := "ws" + strings.TrimPrefix(engineURL, "http") + "/v1/events"
	app := shell.New(shell.Config{
		Engine:          engine.NewClient(engineURL),
		Bus:             eventbus.New(eventsURL, logger.With("component", "eventbus")),
		Mirror:          mirror.New(),
		Journal:         history.NewJournal(db),
		Notifier:        hub,
		Logger:          logger,
		RefreshInterval: refreshInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		logger.Error("start shell", "engine_url", engineURL, "error", err)
		os.Exit(1)
	}
	defer app.Stop()

	srv := server.New(app, hub, applock.NewStore(db), logger)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:        "127.0.0.1:" + port,
		Handler:     srv.Router(),
		ReadTimeout: 5 * time.Second,
		// No WriteTimeout: a run-backup request blocks for the duration of
		// the backup.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		fmt.Printf("Vigil shell running at http://127.0.0.1:%s (engine %s)\n", port, engineURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// Package shell wires the engine gateway, the state mirror, and the progress
// trackers into one orchestration layer. App is the only writer of the mirror
// and the trackers; the UI surface reads snapshots and dispatches intents
// through it.
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vigil-app/vigil/internal/engine"
	"github.com/vigil-app/vigil/internal/eventbus"
	"github.com/vigil-app/vigil/internal/history"
	"github.com/vigil-app/vigil/internal/mirror"
	"github.com/vigil-app/vigil/internal/model"
	"github.com/vigil-app/vigil/internal/tracker"
)

// ErrRunInFlight is returned when a backup is requested for a set whose
// previous run has not settled yet.
var ErrRunInFlight = errors.New("shell: backup already running for this set")

// Notifier forwards shell-side events to the rendering layer.
type Notifier interface {
	Notify(event string, payload any)
}

// RunOutcome is the result of a completed manual backup run.
type RunOutcome struct {
	// NoChanges is set when an incremental run found nothing to back up.
	// Counters are untouched; the caller decides whether to offer a full run.
	NoChanges bool
	Report    model.RunReport
}

// Config carries App dependencies. Engine, Bus and Mirror are required;
// Journal and Notifier may be nil.
type Config struct {
	Engine   *engine.Client
	Bus      *eventbus.Adapter
	Mirror   *mirror.Store
	Journal  *history.Journal
	Notifier Notifier
	Logger   *slog.Logger

	// RefreshInterval is the periodic full-refetch cadence. Default 5m.
	RefreshInterval time.Duration
	// OperationGrace is how long a finished operation stays visible. Default 5s.
	OperationGrace time.Duration
}

// runState tracks one manual run until both the command result and the
// terminal event have been seen. settled marks that one of the two already
// reconciled the counters; the other side must not repeat it.
type runState struct {
	token     string
	settled   bool
	cmdDone   bool
	eventSeen bool
}

// App is the explicit application context. No package-level state exists;
// everything hangs off this struct.
type App struct {
	engine   *engine.Client
	bus      *eventbus.Adapter
	mirror   *mirror.Store
	journal  *history.Journal
	notifier Notifier
	logger   *slog.Logger

	ops       *tracker.OperationTracker
	transfers *tracker.TransferTracker

	refetch      singleflight.Group
	refreshEvery time.Duration

	mu   sync.Mutex
	runs map[string]*runState // keyed by backup set id

	baseCtx    context.Context
	cancelTick context.CancelFunc
	unsubs     []func()
}

// New assembles an App. Call Start to connect the event stream.
func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = 5 * time.Minute
	}
	grace := cfg.OperationGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	a := &App{
		engine:       cfg.Engine,
		bus:          cfg.Bus,
		mirror:       cfg.Mirror,
		journal:      cfg.Journal,
		notifier:     cfg.Notifier,
		logger:       logger.With("component", "shell"),
		transfers:    tracker.NewTransferTracker(),
		refreshEvery: refresh,
		runs:         make(map[string]*runState),
		baseCtx:      context.Background(),
	}
	a.ops = tracker.NewOperationTracker(grace, a.operationFinished)
	a.ops.OnUpdate(func(ev model.OperationProgress) {
		a.notify("operation:progress", ev)
	})
	a.transfers.OnUpdate(func(item model.TransferItem) {
		a.notify("transfer:update", item)
	})
	return a
}

// Start performs the initial state fetch, subscribes to the event stream, and
// begins the periodic refresh. ctx bounds the App's lifetime.
func (a *App) Start(ctx context.Context) error {
	a.baseCtx = ctx

	if err := a.Refetch(ctx); err != nil {
		return fmt.Errorf("initial state fetch: %w", err)
	}

	if a.bus != nil {
		a.unsubs = append(a.unsubs,
			a.bus.Subscribe(eventbus.ChannelBackupProgress, a.handleBackupProgress),
			a.bus.Subscribe(eventbus.ChannelDownloadProgress, a.handleDownloadProgress),
			a.bus.Subscribe(eventbus.ChannelUploadProgress, a.forward("upload:progress")),
			a.bus.Subscribe(eventbus.ChannelUploadError, a.handleUploadError),
			a.bus.Subscribe(eventbus.ChannelTrayAction, a.forward("tray:action")),
		)
		a.bus.OnConnect(func() {
			// Events missed during a disconnect are unrecoverable; close the
			// gap with a full refetch.
			go func() {
				if err := a.Refetch(a.baseCtx); err != nil {
					a.logger.Warn("refetch after reconnect failed", "error", err)
				}
			}()
		})
		a.bus.Start(ctx)
	}

	tickCtx, cancel := context.WithCancel(ctx)
	a.cancelTick = cancel
	go a.refreshLoop(tickCtx)
	return nil
}

// Stop tears down subscriptions, the event stream, and the refresh loop.
func (a *App) Stop() {
	if a.cancelTick != nil {
		a.cancelTick()
	}
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
	if a.bus != nil {
		a.bus.Stop()
	}
}

func (a *App) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(a.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Refetch(ctx); err != nil {
				a.logger.Warn("periodic refetch failed", "error", err)
			}
		}
	}
}

// Refetch pulls the full engine state and replaces the mirror. Concurrent
// callers are coalesced into one engine request.
func (a *App) Refetch(ctx context.Context) error {
	_, err, _ := a.refetch.Do("state", func() (any, error) {
		state, err := a.engine.FetchState(ctx)
		if err != nil {
			return nil, err
		}
		a.mirror.Replace(state)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("refetch state: %w", err)
	}
	return nil
}

func (a *App) notify(event string, payload any) {
	if a.notifier != nil {
		a.notifier.Notify(event, payload)
	}
}

// staleMirror handles a patch that targeted an id the mirror no longer has:
// recoverable, logged, and repaired by a refetch.
func (a *App) staleMirror(entity, id string) {
	a.logger.Warn("mirror out of sync, refetching", "entity", entity, "id", id)
	go func() {
		if err := a.Refetch(a.baseCtx); err != nil {
			a.logger.Warn("refetch after stale patch failed", "error", err)
		}
	}()
}

// --- event handlers -------------------------------------------------------

func (a *App) handleBackupProgress(payload json.RawMessage) {
	var ev model.OperationProgress
	if err := json.Unmarshal(payload, &ev); err != nil {
		a.logger.Warn("bad backup progress payload", "error", err)
		return
	}
	a.ops.Apply(ev)
}

func (a *App) handleDownloadProgress(payload json.RawMessage) {
	var ev model.TransferProgress
	if err := json.Unmarshal(payload, &ev); err != nil {
		a.logger.Warn("bad download progress payload", "error", err)
		return
	}
	err := a.transfers.Progress(ev.TargetPath, ev.Downloaded, ev.Total)
	if errors.Is(err, tracker.ErrUnknownTransfer) {
		// A download this shell did not start, e.g. an engine-side restore.
		a.logger.Debug("progress for untracked transfer", "path", ev.TargetPath)
	}
}

func (a *App) handleUploadError(payload json.RawMessage) {
	a.logger.Warn("engine upload error", "payload", string(payload))
	a.notify("upload:error", json.RawMessage(payload))
}

// forward relays a channel's payload to the rendering layer untouched.
func (a *App) forward(event string) eventbus.Handler {
	return func(payload json.RawMessage) {
		a.notify(event, json.RawMessage(payload))
	}
}

// operationFinished is the tracker's terminal hook, invoked once per run.
func (a *App) operationFinished(ev model.OperationProgress) {
	a.mu.Lock()
	rs := a.runs[ev.BackupSetID]
	needRefetch := false
	scheduled := rs == nil
	if rs == nil {
		// No local run state: an engine-initiated (scheduled or weather) run.
		// Its counters changed engine-side, so the mirror must be refetched.
		needRefetch = true
	} else {
		rs.eventSeen = true
		if !rs.settled {
			rs.settled = true
			needRefetch = true
		}
		if rs.cmdDone {
			delete(a.runs, ev.BackupSetID)
		}
	}
	a.mu.Unlock()

	if scheduled {
		a.journalRun(ev.BackupSetID, string(ev.Status), ev.ProcessedFiles, ev.ProcessedBytes, ev.Error)
	}
	if needRefetch {
		go func() {
			if err := a.Refetch(a.baseCtx); err != nil {
				a.logger.Warn("refetch after run failed", "error", err)
			}
		}()
	}
}

func (a *App) journalRun(setID, status string, files, bytes uint64, detail string) {
	if a.journal == nil {
		return
	}
	label := setID
	if set, ok := a.mirror.BackupSet(setID); ok {
		label = set.Name
	}
	err := a.journal.Record(history.Entry{
		Kind:    history.KindRun,
		Subject: setID,
		Label:   label,
		Status:  status,
		Files:   files,
		Bytes:   bytes,
		Detail:  detail,
	})
	if err != nil {
		a.logger.Warn("journal write failed", "error", err)
	}
}

// --- backup runs ----------------------------------------------------------

// RunBackup executes a manual backup of one set, blocking until the engine
// reports the result. At most one unsettled run per set exists at a time.
//
// Settlement: whichever of {command result, terminal progress event} arrives
// first reconciles the mirror; the other is suppressed. A result with nonzero
// counts patches the counters locally, a terminal event triggers a coalesced
// refetch, and a no-changes result touches nothing.
func (a *App) RunBackup(ctx context.Context, setID string, incremental bool) (RunOutcome, error) {
	a.mu.Lock()
	if rs, busy := a.runs[setID]; busy && !rs.cmdDone {
		a.mu.Unlock()
		return RunOutcome{}, ErrRunInFlight
	}
	rs := &runState{token: uuid.NewString()}
	a.runs[setID] = rs
	a.mu.Unlock()

	report, err := a.engine.RunBackup(ctx, setID, incremental)

	a.mu.Lock()
	settledAlready := rs.settled
	rs.settled = true
	rs.cmdDone = true
	if rs.eventSeen {
		delete(a.runs, setID)
	}
	a.mu.Unlock()

	if err != nil {
		if !settledAlready {
			a.journalRun(setID, "failed", 0, 0, err.Error())
		}
		return RunOutcome{}, fmt.Errorf("run backup %s: %w", setID, err)
	}

	if report.NoChanges() {
		return RunOutcome{NoChanges: true, Report: report}, nil
	}

	if !settledAlready {
		if patchErr := a.mirror.RecordRun(setID, report.TotalBytes, report.CompletedAt); errors.Is(patchErr, mirror.ErrNotFound) {
			a.staleMirror("backup_set", setID)
		}
	}
	a.journalRun(setID, "completed", report.TotalFiles, report.TotalBytes, "")
	return RunOutcome{Report: report}, nil
}

// --- read side ------------------------------------------------------------

// Snapshot returns a copy of the mirrored state.
func (a *App) Snapshot() model.AppState {
	return a.mirror.Snapshot()
}

// OnChange registers an observer for mirror mutations, for the UI surface to
// re-broadcast. Returns an idempotent unsubscribe.
func (a *App) OnChange(fn func(mirror.Change)) func() {
	return a.mirror.Subscribe(fn)
}

// CurrentOperation returns the in-flight (or recently finished) operation.
func (a *App) CurrentOperation() (model.OperationProgress, bool) {
	return a.ops.Current()
}

// Transfers lists tracked downloads, oldest first.
func (a *App) Transfers() []model.TransferItem {
	return a.transfers.List()
}

// History lists recent journal entries, newest first.
func (a *App) History(limit int) ([]history.Entry, error) {
	if a.journal == nil {
		return nil, nil
	}
	return a.journal.List(limit)
}

// --- settings / onboarding / location -------------------------------------

// UpdateSettings writes settings through to the engine, then the mirror.
func (a *App) UpdateSettings(ctx context.Context, settings model.Settings) error {
	if err := a.engine.UpdateSettings(ctx, settings); err != nil {
		return err
	}
	a.mirror.SetSettings(settings)
	return nil
}

// UpdateOnboarding writes the onboarding record through to the engine.
func (a *App) UpdateOnboarding(ctx context.Context, ob model.Onboarding) error {
	if err := a.engine.UpdateOnboarding(ctx, ob); err != nil {
		return err
	}
	a.mirror.SetOnboarding(ob)
	return nil
}

// CompleteOnboarding marks first-run setup finished.
func (a *App) CompleteOnboarding(ctx context.Context) error {
	if err := a.engine.CompleteOnboarding(ctx); err != nil {
		return err
	}
	ob := a.mirror.Snapshot().Onboarding
	ob.Completed = true
	now := time.Now().UTC()
	ob.CompletedAt = &now
	a.mirror.SetOnboarding(ob)
	return nil
}

// DetectLocation asks the engine to geolocate the machine and mirrors the
// result.
func (a *App) DetectLocation(ctx context.Context) (model.Location, error) {
	loc, err := a.engine.DetectLocation(ctx)
	if err != nil {
		return model.Location{}, err
	}
	a.mirror.SetLocation(&loc)
	return loc, nil
}

// SetLocation stores an explicit location.
func (a *App) SetLocation(ctx context.Context, loc model.Location) error {
	if err := a.engine.SetLocation(ctx, loc); err != nil {
		return err
	}
	a.mirror.SetLocation(&loc)
	return nil
}

// --- backup sets ----------------------------------------------------------

// CreateBackupSet registers a set with the engine and mirrors the stored
// record.
func (a *App) CreateBackupSet(ctx context.Context, set model.BackupSet) (model.BackupSet, error) {
	created, err := a.engine.CreateBackupSet(ctx, set)
	if err != nil {
		return model.BackupSet{}, err
	}
	a.mirror.AppendBackupSet(created)
	return created, nil
}

// CreateBackupSetFromPreset builds a set from a preset template.
func (a *App) CreateBackupSetFromPreset(ctx context.Context, preset model.Preset, homeDir string) (model.BackupSet, error) {
	created, err := a.engine.CreateBackupSetFromPreset(ctx, preset, homeDir)
	if err != nil {
		return model.BackupSet{}, err
	}
	a.mirror.AppendBackupSet(created)
	return created, nil
}

// UpdateBackupSet writes an edited set through to the engine and patches the
// mirror. Durable counters are never taken from the caller.
func (a *App) UpdateBackupSet(ctx context.Context, set model.BackupSet) error {
	if err := a.engine.UpdateBackupSet(ctx, set); err != nil {
		return err
	}
	err := a.mirror.UpdateBackupSet(set.ID, func(dst *model.BackupSet) {
		dst.Name = set.Name
		dst.Description = set.Description
		dst.Sources = append([]string(nil), set.Sources...)
		dst.ExcludePatterns = append([]string(nil), set.ExcludePatterns...)
		dst.Enabled = set.Enabled
		dst.CompressionLevel = set.CompressionLevel
		dst.Incremental = set.Incremental
		dst.RetentionDays = set.RetentionDays
		dst.MaxVersions = set.MaxVersions
		dst.CloudUpload = set.CloudUpload
		dst.LocalDestination = set.LocalDestination
	})
	if errors.Is(err, mirror.ErrNotFound) {
		a.staleMirror("backup_set", set.ID)
	}
	return nil
}

// DeleteBackupSet removes a set engine-side and from the mirror.
func (a *App) DeleteBackupSet(ctx context.Context, id string) error {
	if err := a.engine.DeleteBackupSet(ctx, id); err != nil {
		return err
	}
	if err := a.mirror.RemoveBackupSet(id); errors.Is(err, mirror.ErrNotFound) {
		a.staleMirror("backup_set", id)
	}
	return nil
}

// --- schedules ------------------------------------------------------------

// CreateSchedule registers a schedule; the engine computes NextRun.
func (a *App) CreateSchedule(ctx context.Context, sched model.Schedule) (model.Schedule, error) {
	created, err := a.engine.CreateSchedule(ctx, sched)
	if err != nil {
		return model.Schedule{}, err
	}
	a.mirror.AppendSchedule(created)
	return created, nil
}

// UpdateSchedule writes an edited schedule through and patches the mirror.
func (a *App) UpdateSchedule(ctx context.Context, sched model.Schedule) error {
	if err := a.engine.UpdateSchedule(ctx, sched); err != nil {
		return err
	}
	err := a.mirror.UpdateSchedule(sched.ID, func(dst *model.Schedule) {
		dst.Name = sched.Name
		dst.BackupSetID = sched.BackupSetID
		dst.Cadence = sched.Cadence
		dst.TimeOfDay = sched.TimeOfDay
		dst.DaysOfWeek = append([]int(nil), sched.DaysOfWeek...)
		dst.DayOfMonth = sched.DayOfMonth
		dst.Enabled = sched.Enabled
		dst.WeatherTrigger = sched.WeatherTrigger
		dst.WeatherAlertTypes = append([]string(nil), sched.WeatherAlertTypes...)
	})
	if errors.Is(err, mirror.ErrNotFound) {
		a.staleMirror("schedule", sched.ID)
	}
	return nil
}

// DeleteSchedule removes a schedule engine-side and from the mirror.
func (a *App) DeleteSchedule(ctx context.Context, id string) error {
	if err := a.engine.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	if err := a.mirror.RemoveSchedule(id); errors.Is(err, mirror.ErrNotFound) {
		a.staleMirror("schedule", id)
	}
	return nil
}

// SetWeatherTriggers replaces the alert types a schedule triggers on.
func (a *App) SetWeatherTriggers(ctx context.Context, scheduleID string, alertTypes []string) error {
	if err := a.engine.SetWeatherTriggers(ctx, scheduleID, alertTypes); err != nil {
		return err
	}
	err := a.mirror.UpdateSchedule(scheduleID, func(dst *model.Schedule) {
		dst.WeatherTrigger = len(alertTypes) > 0
		dst.WeatherAlertTypes = append([]string(nil), alertTypes...)
	})
	if errors.Is(err, mirror.ErrNotFound) {
		a.staleMirror("schedule", scheduleID)
	}
	return nil
}

// --- cloud ----------------------------------------------------------------

// ListCloudBundles fetches manifest/archive pairs from the engine.
func (a *App) ListCloudBundles(ctx context.Context) ([]model.CloudBackupBundle, error) {
	return a.engine.ListCloudBundles(ctx)
}

// CloudQuota reports cloud storage usage.
func (a *App) CloudQuota(ctx context.Context) (model.CloudQuota, error) {
	return a.engine.CloudQuota(ctx)
}

// FolderStats sizes up candidate source paths for the set editor.
func (a *App) FolderStats(ctx context.Context, paths []string) (model.FolderStats, error) {
	return a.engine.FolderStats(ctx, paths)
}

// DeleteCloudFile removes a remote file.
func (a *App) DeleteCloudFile(ctx context.Context, fileID string) error {
	return a.engine.DeleteCloudFile(ctx, fileID)
}

// DownloadBundle starts a tracked download of one remote file and returns the
// pending transfer record. The download itself proceeds in the background;
// progress arrives on the download:progress channel keyed by target path.
func (a *App) DownloadBundle(fileID, fileName, targetPath, source string) (model.TransferItem, error) {
	item, err := a.transfers.Start(fileName, targetPath, source)
	if err != nil {
		return model.TransferItem{}, err
	}

	go func() {
		err := a.engine.DownloadCloudFile(a.baseCtx, fileID, targetPath)
		if err != nil {
			a.transfers.Fail(targetPath, err.Error())
			a.journalTransfer(targetPath, fileName, "failed", 0, err.Error())
			return
		}
		a.transfers.Complete(targetPath)
		done, _ := a.transfers.Get(item.ID)
		a.journalTransfer(targetPath, fileName, "completed", done.Total, "")
	}()
	return item, nil
}

// RemoveTransfer discards a finished transfer record.
func (a *App) RemoveTransfer(id string) error {
	return a.transfers.Remove(id)
}

func (a *App) journalTransfer(targetPath, fileName, status string, bytes uint64, detail string) {
	if a.journal == nil {
		return
	}
	err := a.journal.Record(history.Entry{
		Kind:    history.KindTransfer,
		Subject: targetPath,
		Label:   fileName,
		Status:  status,
		Bytes:   bytes,
		Detail:  detail,
	})
	if err != nil {
		a.logger.Warn("journal write failed", "error", err)
	}
}

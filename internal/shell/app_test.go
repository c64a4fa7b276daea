package shell

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vigil-app/vigil/internal/engine"
	"github.com/vigil-app/vigil/internal/mirror"
	"github.com/vigil-app/vigil/internal/model"
	"github.com/vigil-app/vigil/internal/tracker"
)

// fakeEngine is a scripted stand-in for vigild's command endpoint.
type fakeEngine struct {
	t *testing.T

	mu        sync.Mutex
	state     model.AppState
	fetches   int
	runReport model.RunReport
	runErr    string

	runGate      chan struct{} // run_backup blocks until closed, when set
	downloadGate chan struct{} // download_cloud_file blocks until closed, when set
	downloadErr  string

	srv *httptest.Server
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	f := &fakeEngine{t: t, state: engineState()}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func engineState() model.AppState {
	set := model.NewBackupSet("Documents")
	set.ID = "set-1"
	other := model.NewBackupSet("Photos")
	other.ID = "set-2"
	return model.AppState{
		Settings:      model.DefaultSettings(),
		BackupSets:    []model.BackupSet{set, other},
		EngineVersion: "1.0.0",
		UpdatedAt:     time.Now().UTC(),
	}
}

func (f *fakeEngine) handle(w http.ResponseWriter, r *http.Request) {
	command := strings.TrimPrefix(r.URL.Path, "/v1/command/")
	switch command {
	case "get_app_state":
		f.mu.Lock()
		f.fetches++
		state := f.state
		f.mu.Unlock()
		writeOK(w, state)
	case "run_backup":
		f.mu.Lock()
		gate := f.runGate
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		f.mu.Lock()
		report, errMsg := f.runReport, f.runErr
		f.mu.Unlock()
		if errMsg != "" {
			writeFail(w, errMsg)
			return
		}
		writeOK(w, report)
	case "download_cloud_file":
		f.mu.Lock()
		gate := f.downloadGate
		errMsg := f.downloadErr
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if errMsg != "" {
			writeFail(w, errMsg)
			return
		}
		writeOK(w, nil)
	case "create_backup_set":
		var args struct {
			Set model.BackupSet `json:"set"`
		}
		json.NewDecoder(r.Body).Decode(&args)
		writeOK(w, args.Set)
	default:
		writeOK(w, nil)
	}
}

func (f *fakeEngine) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// setServerCounters simulates the engine having persisted a run: the state a
// refetch would see.
func (f *fakeEngine) setServerCounters(setID string, backups, size uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.state.BackupSets {
		if f.state.BackupSets[i].ID == setID {
			f.state.BackupSets[i].TotalBackups = backups
			f.state.BackupSets[i].TotalSizeBackedUp = size
			f.state.BackupSets[i].UpdatedAt = time.Now().UTC().Add(time.Minute)
		}
	}
}

func writeOK(w http.ResponseWriter, data any) {
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeFail(w http.ResponseWriter, msg string) {
	json.NewEncoder(w).Encode(map[string]any{"success": false, "data": nil, "error": msg})
}

func newTestApp(t *testing.T, f *fakeEngine) *App {
	t.Helper()
	a := New(Config{
		Engine:          engine.NewClient(f.srv.URL),
		Mirror:          mirror.New(),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		RefreshInterval: time.Hour,
	})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start app: %v", err)
	}
	t.Cleanup(a.Stop)
	return a
}

func terminalEvent(setID string, status model.OperationStatus, files, bytes uint64) json.RawMessage {
	raw, _ := json.Marshal(model.OperationProgress{
		BackupSetID:    setID,
		Status:         status,
		TotalFiles:     files,
		ProcessedFiles: files,
		TotalBytes:     bytes,
		ProcessedBytes: bytes,
		Trigger:        model.TriggerManual,
	})
	return raw
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunBackupResultFirstAdvancesCountersOnce(t *testing.T) {
	f := newFakeEngine(t)
	f.runReport = model.RunReport{
		RunID: "run-1", BackupSetID: "set-1",
		TotalFiles: 12, TotalBytes: 48000,
		CompletedAt: time.Now().UTC(),
	}
	a := newTestApp(t, f)

	out, err := a.RunBackup(context.Background(), "set-1", true)
	if err != nil {
		t.Fatalf("run backup: %v", err)
	}
	if out.NoChanges {
		t.Fatal("NoChanges for a run with 12 files")
	}

	set, _ := a.mirror.BackupSet("set-1")
	if set.TotalBackups != 1 || set.TotalSizeBackedUp != 48000 {
		t.Errorf("counters = %d/%d, want 1/48000", set.TotalBackups, set.TotalSizeBackedUp)
	}
	if set.LastBackup == nil {
		t.Error("last_backup not set")
	}

	// The terminal event for the same run arrives after the result settled:
	// it must not advance the counters again.
	a.handleBackupProgress(terminalEvent("set-1", model.OpCompleted, 12, 48000))
	waitFor(t, "tracker to apply event", func() bool {
		_, ok := a.CurrentOperation()
		return ok
	})
	time.Sleep(50 * time.Millisecond) // allow any stray refetch to land

	set, _ = a.mirror.BackupSet("set-1")
	if set.TotalBackups != 1 || set.TotalSizeBackedUp != 48000 {
		t.Errorf("counters after event = %d/%d, want 1/48000", set.TotalBackups, set.TotalSizeBackedUp)
	}
}

func TestRunBackupEventFirstSettlesViaRefetch(t *testing.T) {
	f := newFakeEngine(t)
	f.runReport = model.RunReport{
		RunID: "run-1", BackupSetID: "set-1",
		TotalFiles: 12, TotalBytes: 48000,
		CompletedAt: time.Now().UTC(),
	}
	gate := make(chan struct{})
	f.runGate = gate
	a := newTestApp(t, f)

	results := make(chan RunOutcome, 1)
	go func() {
		out, err := a.RunBackup(context.Background(), "set-1", true)
		if err != nil {
			t.Errorf("run backup: %v", err)
		}
		results <- out
	}()
	waitFor(t, "run to register", func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return len(a.runs) == 1
	})

	// Engine persists the run and emits the terminal event before the command
	// response makes it back.
	f.setServerCounters("set-1", 1, 48000)
	fetchesBefore := f.fetchCount()
	a.handleBackupProgress(terminalEvent("set-1", model.OpCompleted, 12, 48000))

	waitFor(t, "event-triggered refetch", func() bool {
		return f.fetchCount() > fetchesBefore
	})
	waitFor(t, "refetched counters", func() bool {
		set, ok := a.mirror.BackupSet("set-1")
		return ok && set.TotalBackups == 1
	})

	close(gate)
	<-results

	// The late command result must not patch on top of the refetch.
	set, _ := a.mirror.BackupSet("set-1")
	if set.TotalBackups != 1 || set.TotalSizeBackedUp != 48000 {
		t.Errorf("counters = %d/%d, want 1/48000", set.TotalBackups, set.TotalSizeBackedUp)
	}
}

func TestRunBackupNoChanges(t *testing.T) {
	f := newFakeEngine(t)
	f.runReport = model.RunReport{RunID: "run-1", BackupSetID: "set-1"}
	a := newTestApp(t, f)

	out, err := a.RunBackup(context.Background(), "set-1", true)
	if err != nil {
		t.Fatalf("run backup: %v", err)
	}
	if !out.NoChanges {
		t.Fatal("expected NoChanges outcome for zero-count run")
	}

	set, _ := a.mirror.BackupSet("set-1")
	if set.TotalBackups != 0 || set.TotalSizeBackedUp != 0 || set.LastBackup != nil {
		t.Errorf("zero-count run mutated counters: %+v", set)
	}
}

func TestRunBackupSingleFlightPerSet(t *testing.T) {
	f := newFakeEngine(t)
	f.runReport = model.RunReport{RunID: "run-1", BackupSetID: "set-1", TotalFiles: 1, TotalBytes: 10, CompletedAt: time.Now().UTC()}
	gate := make(chan struct{})
	f.runGate = gate
	a := newTestApp(t, f)

	done := make(chan struct{})
	go func() {
		a.RunBackup(context.Background(), "set-1", true)
		close(done)
	}()
	waitFor(t, "first run to register", func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return len(a.runs) == 1
	})

	if _, err := a.RunBackup(context.Background(), "set-1", true); !errors.Is(err, ErrRunInFlight) {
		t.Errorf("second run on set-1: %v, want ErrRunInFlight", err)
	}

	// A different set is not blocked.
	go a.RunBackup(context.Background(), "set-2", true)
	waitFor(t, "second set to register", func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return len(a.runs) == 2
	})

	close(gate)
	<-done
}

func TestRunBackupCommandFailure(t *testing.T) {
	f := newFakeEngine(t)
	f.runErr = "source path does not exist"
	a := newTestApp(t, f)

	_, err := a.RunBackup(context.Background(), "set-1", true)
	if err == nil {
		t.Fatal("expected error")
	}
	var cmdErr *engine.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %T", err)
	}

	set, _ := a.mirror.BackupSet("set-1")
	if set.TotalBackups != 0 {
		t.Error("failed run advanced counters")
	}

	// The set is runnable again after the failure.
	f.mu.Lock()
	f.runErr = ""
	f.runReport = model.RunReport{RunID: "run-2", BackupSetID: "set-1", TotalFiles: 1, TotalBytes: 10, CompletedAt: time.Now().UTC()}
	f.mu.Unlock()
	if _, err := a.RunBackup(context.Background(), "set-1", true); err != nil {
		t.Fatalf("rerun after failure: %v", err)
	}
}

func TestScheduledRunRefetches(t *testing.T) {
	f := newFakeEngine(t)
	a := newTestApp(t, f)

	// Terminal event with no local run state: an engine-scheduled run.
	f.setServerCounters("set-1", 3, 150000)
	fetchesBefore := f.fetchCount()
	a.handleBackupProgress(terminalEvent("set-1", model.OpCompleted, 5, 50000))

	waitFor(t, "refetch after scheduled run", func() bool {
		return f.fetchCount() > fetchesBefore
	})
	waitFor(t, "mirrored scheduled-run counters", func() bool {
		set, _ := a.mirror.BackupSet("set-1")
		return set.TotalBackups == 3 && set.TotalSizeBackedUp == 150000
	})
}

func TestConcurrentDownloadsStayIndependent(t *testing.T) {
	f := newFakeEngine(t)
	gate := make(chan struct{})
	f.downloadGate = gate
	a := newTestApp(t, f)

	itemA, err := a.DownloadBundle("file-a", "a.zip", "/tmp/a.zip", "bundle-a")
	if err != nil {
		t.Fatalf("download a: %v", err)
	}
	itemB, err := a.DownloadBundle("file-b", "b.zip", "/tmp/b.zip", "bundle-b")
	if err != nil {
		t.Fatalf("download b: %v", err)
	}

	// Same destination while live is rejected.
	if _, err := a.DownloadBundle("file-c", "c.zip", "/tmp/a.zip", "bundle-c"); !errors.Is(err, tracker.ErrDuplicateTransfer) {
		t.Errorf("duplicate path: %v, want ErrDuplicateTransfer", err)
	}

	progressA, _ := json.Marshal(model.TransferProgress{TargetPath: "/tmp/a.zip", Downloaded: 100, Total: 1000, FileName: "a.zip"})
	progressB, _ := json.Marshal(model.TransferProgress{TargetPath: "/tmp/b.zip", Downloaded: 700, Total: 2000, FileName: "b.zip"})
	a.handleDownloadProgress(progressA)
	a.handleDownloadProgress(progressB)

	transfers := a.Transfers()
	if len(transfers) != 2 {
		t.Fatalf("transfer count = %d, want 2", len(transfers))
	}
	byPath := map[string]model.TransferItem{}
	for _, tr := range transfers {
		byPath[tr.TargetPath] = tr
	}
	if got := byPath["/tmp/a.zip"]; got.Downloaded != 100 || got.Total != 1000 {
		t.Errorf("a = %d/%d, want 100/1000", got.Downloaded, got.Total)
	}
	if got := byPath["/tmp/b.zip"]; got.Downloaded != 700 || got.Total != 2000 {
		t.Errorf("b = %d/%d, want 700/2000", got.Downloaded, got.Total)
	}

	close(gate)
	waitFor(t, "downloads to complete", func() bool {
		gotA, _ := a.transfers.Get(itemA.ID)
		gotB, _ := a.transfers.Get(itemB.ID)
		return gotA.Status == model.TransferCompleted && gotB.Status == model.TransferCompleted
	})

	gotA, _ := a.transfers.Get(itemA.ID)
	if gotA.Downloaded != gotA.Total {
		t.Errorf("completed transfer not frozen at 100%%: %d/%d", gotA.Downloaded, gotA.Total)
	}
}

func TestDownloadFailureRecordsMessage(t *testing.T) {
	f := newFakeEngine(t)
	f.downloadErr = "quota exceeded"
	a := newTestApp(t, f)

	item, err := a.DownloadBundle("file-a", "a.zip", "/tmp/a.zip", "bundle-a")
	if err != nil {
		t.Fatalf("download: %v", err)
	}

	waitFor(t, "download to fail", func() bool {
		got, _ := a.transfers.Get(item.ID)
		return got.Status == model.TransferFailed
	})
	got, _ := a.transfers.Get(item.ID)
	if !strings.Contains(got.Error, "quota exceeded") {
		t.Errorf("error = %q", got.Error)
	}
}

func TestStaleEditTriggersRefetch(t *testing.T) {
	f := newFakeEngine(t)
	a := newTestApp(t, f)

	fetchesBefore := f.fetchCount()
	ghost := model.NewBackupSet("Ghost")
	ghost.ID = "no-such-id"
	if err := a.UpdateBackupSet(context.Background(), ghost); err != nil {
		t.Fatalf("update: %v", err)
	}

	waitFor(t, "refetch after stale patch", func() bool {
		return f.fetchCount() > fetchesBefore
	})
	if got := len(a.Snapshot().BackupSets); got != 2 {
		t.Errorf("backup set count = %d, ghost record created", got)
	}
}

func TestWriteThroughEdit(t *testing.T) {
	f := newFakeEngine(t)
	a := newTestApp(t, f)

	set, _ := a.mirror.BackupSet("set-1")
	set.Name = "Renamed"
	if err := a.UpdateBackupSet(context.Background(), set); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := a.mirror.BackupSet("set-1")
	if got.Name != "Renamed" {
		t.Errorf("name = %q", got.Name)
	}

	// The edit survives a refetch of older server state (edit-wins).
	if err := a.Refetch(context.Background()); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	got, _ = a.mirror.BackupSet("set-1")
	if got.Name != "Renamed" {
		t.Errorf("refetch clobbered a newer local edit: name = %q", got.Name)
	}
}

package tracker

import (
	"testing"
	"time"

	"github.com/vigil-app/vigil/internal/model"
)

func progressEvent(setID string, status model.OperationStatus, processed uint64) model.OperationProgress {
	return model.OperationProgress{
		BackupSetID:    setID,
		Status:         status,
		TotalFiles:     10,
		ProcessedFiles: 5,
		TotalBytes:     1000,
		ProcessedBytes: processed,
		Trigger:        model.TriggerManual,
	}
}

func TestApplyLastWriteWins(t *testing.T) {
	tr := NewOperationTracker(0, nil)

	tr.Apply(progressEvent("set-1", model.OpScanning, 0))
	tr.Apply(progressEvent("set-1", model.OpCompressing, 400))
	tr.Apply(progressEvent("set-1", model.OpUploading, 900))

	cur, ok := tr.Current()
	if !ok {
		t.Fatal("no current operation")
	}
	if cur.Status != model.OpUploading {
		t.Errorf("status = %s, want uploading", cur.Status)
	}
	if cur.ProcessedBytes != 900 {
		t.Errorf("processed_bytes = %d, want 900", cur.ProcessedBytes)
	}
}

func TestTerminalAbsorbsLateProgress(t *testing.T) {
	tr := NewOperationTracker(0, nil)

	tr.Apply(progressEvent("set-1", model.OpUploading, 900))
	tr.Apply(progressEvent("set-1", model.OpCompleted, 1000))
	// Straggler from the finished run must not resurrect it.
	tr.Apply(progressEvent("set-1", model.OpUploading, 950))

	cur, ok := tr.Current()
	if !ok {
		t.Fatal("no current operation")
	}
	if cur.Status != model.OpCompleted {
		t.Errorf("status = %s, late event resurrected a finished operation", cur.Status)
	}
}

func TestNewSetStartsFreshOperation(t *testing.T) {
	tr := NewOperationTracker(0, nil)

	tr.Apply(progressEvent("set-1", model.OpCompleted, 1000))
	tr.Apply(progressEvent("set-2", model.OpScanning, 0))

	cur, _ := tr.Current()
	if cur.BackupSetID != "set-2" || cur.Status != model.OpScanning {
		t.Errorf("current = %+v, want fresh scan of set-2", cur)
	}
}

func TestTerminalHookFiresOnce(t *testing.T) {
	var fired []model.OperationStatus
	tr := NewOperationTracker(0, func(ev model.OperationProgress) {
		fired = append(fired, ev.Status)
	})

	tr.Apply(progressEvent("set-1", model.OpScanning, 0))
	tr.Apply(progressEvent("set-1", model.OpFailed, 100))
	tr.Apply(progressEvent("set-1", model.OpFailed, 100))

	if len(fired) != 1 {
		t.Fatalf("hook fired %d times, want 1", len(fired))
	}
	if fired[0] != model.OpFailed {
		t.Errorf("hook saw status %s", fired[0])
	}
}

func TestTerminalRecordExpiresAfterGrace(t *testing.T) {
	tr := NewOperationTracker(20*time.Millisecond, nil)

	tr.Apply(progressEvent("set-1", model.OpCompleted, 1000))
	if _, ok := tr.Current(); !ok {
		t.Fatal("terminal record should linger through the grace period")
	}

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := tr.Current(); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("terminal record never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewOperationCancelsExpiry(t *testing.T) {
	tr := NewOperationTracker(10*time.Millisecond, nil)

	tr.Apply(progressEvent("set-1", model.OpCompleted, 1000))
	tr.Apply(progressEvent("set-2", model.OpScanning, 0))

	time.Sleep(30 * time.Millisecond)
	cur, ok := tr.Current()
	if !ok {
		t.Fatal("expiry timer cleared a fresh operation")
	}
	if cur.BackupSetID != "set-2" {
		t.Errorf("current set = %s, want set-2", cur.BackupSetID)
	}
}

func TestClear(t *testing.T) {
	tr := NewOperationTracker(0, nil)
	tr.Apply(progressEvent("set-1", model.OpScanning, 0))
	tr.Clear()
	if _, ok := tr.Current(); ok {
		t.Error("record survived Clear")
	}
}

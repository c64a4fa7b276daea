package tracker

import (
	"errors"
	"testing"

	"github.com/vigil-app/vigil/internal/model"
)

func TestStartRejectsDuplicateActivePath(t *testing.T) {
	tr := NewTransferTracker()

	if _, err := tr.Start("a.zip", "/tmp/a.zip", "backup-2024-01"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := tr.Start("a.zip", "/tmp/a.zip", "backup-2024-02"); !errors.Is(err, ErrDuplicateTransfer) {
		t.Fatalf("expected ErrDuplicateTransfer, got %v", err)
	}

	// A finished transfer at the path no longer blocks a new one.
	if err := tr.Complete("/tmp/a.zip"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := tr.Start("a.zip", "/tmp/a.zip", "backup-2024-02"); err != nil {
		t.Fatalf("restart after completion: %v", err)
	}
}

func TestConcurrentTransfersStayIndependent(t *testing.T) {
	tr := NewTransferTracker()

	a, err := tr.Start("a.zip", "/tmp/a.zip", "bundle-a")
	if err != nil {
		t.Fatalf("start a: %v", err)
	}
	b, err := tr.Start("b.zip", "/tmp/b.zip", "bundle-b")
	if err != nil {
		t.Fatalf("start b: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("transfers share an id")
	}

	if err := tr.Progress("/tmp/a.zip", 100, 1000); err != nil {
		t.Fatalf("progress a: %v", err)
	}
	if err := tr.Progress("/tmp/b.zip", 700, 2000); err != nil {
		t.Fatalf("progress b: %v", err)
	}

	gotA, _ := tr.Get(a.ID)
	gotB, _ := tr.Get(b.ID)
	if gotA.Downloaded != 100 || gotA.Total != 1000 {
		t.Errorf("a = %d/%d, want 100/1000", gotA.Downloaded, gotA.Total)
	}
	if gotB.Downloaded != 700 || gotB.Total != 2000 {
		t.Errorf("b = %d/%d, want 700/2000", gotB.Downloaded, gotB.Total)
	}
}

func TestProgressKeepsKnownTotal(t *testing.T) {
	tr := NewTransferTracker()
	item, _ := tr.Start("a.zip", "/tmp/a.zip", "bundle")

	tr.Progress("/tmp/a.zip", 100, 1000)
	// Some providers stop reporting the total after the first chunk.
	tr.Progress("/tmp/a.zip", 500, 0)

	got, _ := tr.Get(item.ID)
	if got.Total != 1000 {
		t.Errorf("total = %d, want previously reported 1000", got.Total)
	}
	if got.Downloaded != 500 {
		t.Errorf("downloaded = %d, want 500", got.Downloaded)
	}
}

func TestProgressUnknownPath(t *testing.T) {
	tr := NewTransferTracker()
	if err := tr.Progress("/tmp/nope.zip", 1, 2); !errors.Is(err, ErrUnknownTransfer) {
		t.Errorf("expected ErrUnknownTransfer, got %v", err)
	}
}

func TestCompleteFreezesCounts(t *testing.T) {
	tr := NewTransferTracker()
	item, _ := tr.Start("a.zip", "/tmp/a.zip", "bundle")
	tr.Progress("/tmp/a.zip", 900, 1000)

	if err := tr.Complete("/tmp/a.zip"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, _ := tr.Get(item.ID)
	if got.Status != model.TransferCompleted {
		t.Errorf("status = %s", got.Status)
	}
	if got.Downloaded != got.Total || got.Total != 1000 {
		t.Errorf("counts = %d/%d, want 1000/1000", got.Downloaded, got.Total)
	}

	// A straggling progress event must not regress a completed transfer.
	if err := tr.Progress("/tmp/a.zip", 950, 1000); err != nil {
		t.Fatalf("late progress: %v", err)
	}
	got, _ = tr.Get(item.ID)
	if got.Downloaded != 1000 || got.Status != model.TransferCompleted {
		t.Errorf("late event mutated terminal record: %+v", got)
	}
}

func TestFailStoresMessage(t *testing.T) {
	tr := NewTransferTracker()
	item, _ := tr.Start("a.zip", "/tmp/a.zip", "bundle")

	if err := tr.Fail("/tmp/a.zip", "connection reset"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, _ := tr.Get(item.ID)
	if got.Status != model.TransferFailed {
		t.Errorf("status = %s", got.Status)
	}
	if got.Error != "connection reset" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestRemoveRequiresTerminal(t *testing.T) {
	tr := NewTransferTracker()
	item, _ := tr.Start("a.zip", "/tmp/a.zip", "bundle")

	if err := tr.Remove(item.ID); !errors.Is(err, ErrNotTerminal) {
		t.Fatalf("expected ErrNotTerminal, got %v", err)
	}

	tr.Complete("/tmp/a.zip")
	if err := tr.Remove(item.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := tr.Remove(item.ID); !errors.Is(err, ErrUnknownTransfer) {
		t.Errorf("expected ErrUnknownTransfer after removal, got %v", err)
	}
	if got := tr.List(); len(got) != 0 {
		t.Errorf("list = %d items, want 0", len(got))
	}
}

func TestListOrderedByStart(t *testing.T) {
	tr := NewTransferTracker()
	tr.Start("a.zip", "/tmp/a.zip", "bundle")
	tr.Start("b.zip", "/tmp/b.zip", "bundle")
	tr.Start("c.zip", "/tmp/c.zip", "bundle")

	got := tr.List()
	if len(got) != 3 {
		t.Fatalf("list = %d items, want 3", len(got))
	}
	for i, item := range got {
		if i > 0 && item.StartedAt.Before(got[i-1].StartedAt) {
			t.Errorf("list out of order at %d", i)
		}
	}
}

package tracker

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vigil-app/vigil/internal/model"
)

var (
	// ErrDuplicateTransfer is returned when a download targets a path that
	// already has a non-terminal transfer. Two engine downloads writing the
	// same file would corrupt it, and progress events are keyed by path.
	ErrDuplicateTransfer = errors.New("tracker: transfer already active for path")

	// ErrUnknownTransfer is returned for operations on a path or id with no
	// tracked record.
	ErrUnknownTransfer = errors.New("tracker: no such transfer")

	// ErrNotTerminal is returned when removal targets a transfer that is
	// still pending or active.
	ErrNotTerminal = errors.New("tracker: transfer still in progress")
)

// TransferTracker tracks concurrent file downloads. Records are keyed by
// target path, which is how the engine's progress events identify them; ids
// exist so the UI can address records without embedding filesystem paths.
// Terminal records stay visible until explicitly removed.
type TransferTracker struct {
	mu     sync.Mutex
	byPath map[string]*model.TransferItem
	byID   map[string]string // id -> target path

	onUpdate func(model.TransferItem)
}

// NewTransferTracker creates an empty tracker.
func NewTransferTracker() *TransferTracker {
	return &TransferTracker{
		byPath: make(map[string]*model.TransferItem),
		byID:   make(map[string]string),
	}
}

// OnUpdate registers a callback invoked after every record change, outside
// the lock, with a copy of the changed record.
func (t *TransferTracker) OnUpdate(fn func(model.TransferItem)) {
	t.mu.Lock()
	t.onUpdate = fn
	t.mu.Unlock()
}

// Start registers a new pending transfer. A terminal record at the same path
// is displaced (a re-download of the same destination); a live one rejects
// the start.
func (t *TransferTracker) Start(fileName, targetPath, source string) (model.TransferItem, error) {
	t.mu.Lock()
	if existing, ok := t.byPath[targetPath]; ok {
		if !existing.Status.Terminal() {
			t.mu.Unlock()
			return model.TransferItem{}, ErrDuplicateTransfer
		}
		delete(t.byID, existing.ID)
	}

	now := time.Now().UTC()
	item := &model.TransferItem{
		ID:         uuid.NewString(),
		FileName:   fileName,
		TargetPath: targetPath,
		Source:     source,
		Status:     model.TransferPending,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	t.byPath[targetPath] = item
	t.byID[item.ID] = targetPath

	copied := *item
	update := t.onUpdate
	t.mu.Unlock()

	if update != nil {
		update(copied)
	}
	return copied, nil
}

// Progress applies a byte-count update for the transfer at targetPath. A zero
// total keeps the previously known total (the engine omits it on some
// providers once the first chunk reported it). Updates for terminal records
// are dropped.
func (t *TransferTracker) Progress(targetPath string, downloaded, total uint64) error {
	t.mu.Lock()
	item, ok := t.byPath[targetPath]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownTransfer
	}
	if item.Status.Terminal() {
		t.mu.Unlock()
		return nil
	}

	item.Status = model.TransferActive
	item.Downloaded = downloaded
	if total > 0 {
		item.Total = total
	}
	item.UpdatedAt = time.Now().UTC()

	copied := *item
	update := t.onUpdate
	t.mu.Unlock()

	if update != nil {
		update(copied)
	}
	return nil
}

// Complete marks the transfer at targetPath finished and freezes its byte
// counts at 100%.
func (t *TransferTracker) Complete(targetPath string) error {
	t.mu.Lock()
	item, ok := t.byPath[targetPath]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownTransfer
	}

	item.Status = model.TransferCompleted
	if item.Total == 0 {
		item.Total = item.Downloaded
	}
	item.Downloaded = item.Total
	item.Error = ""
	item.UpdatedAt = time.Now().UTC()

	copied := *item
	update := t.onUpdate
	t.mu.Unlock()

	if update != nil {
		update(copied)
	}
	return nil
}

// Fail marks the transfer at targetPath failed with the given message.
func (t *TransferTracker) Fail(targetPath, message string) error {
	t.mu.Lock()
	item, ok := t.byPath[targetPath]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownTransfer
	}

	item.Status = model.TransferFailed
	item.Error = message
	item.UpdatedAt = time.Now().UTC()

	copied := *item
	update := t.onUpdate
	t.mu.Unlock()

	if update != nil {
		update(copied)
	}
	return nil
}

// Get returns a copy of the transfer with the given id.
func (t *TransferTracker) Get(id string) (model.TransferItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	path, ok := t.byID[id]
	if !ok {
		return model.TransferItem{}, false
	}
	return *t.byPath[path], true
}

// Remove discards a finished transfer by id. Live transfers cannot be
// removed; cancel them at the engine first.
func (t *TransferTracker) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	path, ok := t.byID[id]
	if !ok {
		return ErrUnknownTransfer
	}
	if !t.byPath[path].Status.Terminal() {
		return ErrNotTerminal
	}
	delete(t.byPath, path)
	delete(t.byID, id)
	return nil
}

// List returns copies of all tracked transfers, oldest first.
func (t *TransferTracker) List() []model.TransferItem {
	t.mu.Lock()
	out := make([]model.TransferItem, 0, len(t.byPath))
	for _, item := range t.byPath {
		out = append(out, *item)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].TargetPath < out[j].TargetPath
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

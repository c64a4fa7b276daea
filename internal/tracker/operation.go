// Package tracker holds the transient progress records the shell maintains
// for in-flight work: the single current backup operation and the set of
// concurrent downloads. Tracker state is UI-facing only and never persisted.
package tracker

import (
	"sync"
	"time"

	"github.com/vigil-app/vigil/internal/model"
)

// TerminalFunc is invoked exactly once when the current operation reaches a
// terminal status. It runs outside the tracker lock.
type TerminalFunc func(model.OperationProgress)

// OperationTracker holds at most one current operation record. The engine
// serializes backup operations, so a second concurrent operation is not a
// supported state. Events carry no sequence numbers; application order is
// arrival order.
type OperationTracker struct {
	mu            sync.Mutex
	current       *model.OperationProgress
	terminalFired bool
	grace         time.Duration
	timer         *time.Timer

	onTerminal TerminalFunc
	onUpdate   func(model.OperationProgress)
}

// NewOperationTracker creates a tracker. Terminal records linger for the
// grace period so the UI can show the final state, then clear themselves.
func NewOperationTracker(grace time.Duration, onTerminal TerminalFunc) *OperationTracker {
	return &OperationTracker{grace: grace, onTerminal: onTerminal}
}

// OnUpdate registers a callback invoked after every applied event, outside
// the lock. Used by the UI surface to re-broadcast progress.
func (t *OperationTracker) OnUpdate(fn func(model.OperationProgress)) {
	t.mu.Lock()
	t.onUpdate = fn
	t.mu.Unlock()
}

// Apply records one inbound progress event, last-write-wins. Terminal states
// are absorbing: once the current operation has finished, a straggling
// non-terminal event for the same set is dropped rather than resurrecting it.
func (t *OperationTracker) Apply(ev model.OperationProgress) {
	t.mu.Lock()

	if t.current != nil && t.current.Status.Terminal() && !ev.Status.Terminal() &&
		t.current.BackupSetID == ev.BackupSetID {
		t.mu.Unlock()
		return
	}

	// A non-terminal event after a terminal record (different set) or after a
	// clear starts a new operation.
	if t.current == nil || t.current.Status.Terminal() {
		t.terminalFired = false
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
	}

	copied := ev
	t.current = &copied

	var fireTerminal TerminalFunc
	if ev.Status.Terminal() && !t.terminalFired {
		t.terminalFired = true
		fireTerminal = t.onTerminal
		if t.grace > 0 {
			t.timer = time.AfterFunc(t.grace, t.expire)
		}
	}
	update := t.onUpdate
	t.mu.Unlock()

	if fireTerminal != nil {
		fireTerminal(ev)
	}
	if update != nil {
		update(ev)
	}
}

// expire clears a terminal record once the grace period has passed, unless a
// new operation has started in the meantime.
func (t *OperationTracker) expire() {
	t.mu.Lock()
	if t.current != nil && t.current.Status.Terminal() {
		t.current = nil
		t.timer = nil
	}
	t.mu.Unlock()
}

// Current returns a copy of the current record, if any.
func (t *OperationTracker) Current() (model.OperationProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return model.OperationProgress{}, false
	}
	return *t.current, true
}

// Clear discards the current record immediately.
func (t *OperationTracker) Clear() {
	t.mu.Lock()
	t.current = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
}

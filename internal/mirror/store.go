// Package mirror holds the shell's in-memory copy of engine-owned state.
// The store is the single authority inside the shell: the orchestration layer
// is its only writer, and the rendering layer reads snapshots through
// subscriptions. Nothing here is persisted; the mirror is rehydrated from the
// engine via fetch-full-state.
package mirror

import (
	"errors"
	"sync"
	"time"

	"github.com/vigil-app/vigil/internal/model"
)

// ErrNotFound is returned when a patch or removal targets an id that is not
// in the mirror, usually because the local copy is stale.
var ErrNotFound = errors.New("mirror: record not found")

// ChangeKind describes what a mutation did.
type ChangeKind string

const (
	ChangeReplace ChangeKind = "replace"
	ChangePatch   ChangeKind = "patch"
	ChangeAppend  ChangeKind = "append"
	ChangeRemove  ChangeKind = "remove"
)

// Change is delivered to observers after every mutation.
type Change struct {
	Kind   ChangeKind
	Entity string // "state", "backup_set", "schedule", "settings", "onboarding", "location"
	ID     string // record id for backup_set/schedule changes
}

// Store is the mirrored state plus its observer list. All operations are
// synchronous; observers are notified before the mutating call returns.
type Store struct {
	mu    sync.RWMutex
	state model.AppState

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObsID int
}

// New creates an empty store with default settings.
func New() *Store {
	return &Store{
		state:     model.AppState{Settings: model.DefaultSettings()},
		observers: make(map[int]func(Change)),
	}
}

// Subscribe registers an observer for mutation notifications. The returned
// function removes the subscription and is safe to call more than once.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// notify runs outside the state lock so observers can read snapshots.
func (s *Store) notify(c Change) {
	s.obsMu.Lock()
	fns := make([]func(Change), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Replace swaps the full mirrored state with a fresh fetch. Records whose
// local UpdatedAt is newer than the incoming copy are kept: a manual edit is
// never clobbered by a refetch that raced with it.
func (s *Store) Replace(state model.AppState) {
	s.mu.Lock()
	localSets := make(map[string]model.BackupSet, len(s.state.BackupSets))
	for _, set := range s.state.BackupSets {
		localSets[set.ID] = set
	}
	for i, incoming := range state.BackupSets {
		if local, ok := localSets[incoming.ID]; ok && local.UpdatedAt.After(incoming.UpdatedAt) {
			state.BackupSets[i] = local
		}
	}

	localSchedules := make(map[string]model.Schedule, len(s.state.Schedules))
	for _, sched := range s.state.Schedules {
		localSchedules[sched.ID] = sched
	}
	for i, incoming := range state.Schedules {
		if local, ok := localSchedules[incoming.ID]; ok && local.UpdatedAt.After(incoming.UpdatedAt) {
			state.Schedules[i] = local
		}
	}

	s.state = state
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReplace, Entity: "state"})
}

// Snapshot returns a copy of the mirrored state safe to hand to readers.
func (s *Store) Snapshot() model.AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneState(s.state)
}

// BackupSet returns a copy of one set.
func (s *Store) BackupSet(id string) (model.BackupSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, set := range s.state.BackupSets {
		if set.ID == id {
			return cloneSet(set), true
		}
	}
	return model.BackupSet{}, false
}

// Schedule returns a copy of one schedule.
func (s *Store) Schedule(id string) (model.Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sched := range s.state.Schedules {
		if sched.ID == id {
			return cloneSchedule(sched), true
		}
	}
	return model.Schedule{}, false
}

// UpdateBackupSet applies a partial mutation to one set. The mutator receives
// the stored record; UpdatedAt is bumped afterwards so a concurrent refetch
// cannot overwrite the edit. Returns ErrNotFound when the id is absent; no
// record is ever created by a patch.
func (s *Store) UpdateBackupSet(id string, mutate func(*model.BackupSet)) error {
	s.mu.Lock()
	idx := -1
	for i := range s.state.BackupSets {
		if s.state.BackupSets[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	mutate(&s.state.BackupSets[idx])
	s.state.BackupSets[idx].UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangePatch, Entity: "backup_set", ID: id})
	return nil
}

// RecordRun advances a set's durable counters for one completed run. Counters
// only ever grow.
func (s *Store) RecordRun(id string, sizeBytes uint64, completedAt time.Time) error {
	return s.UpdateBackupSet(id, func(set *model.BackupSet) {
		set.TotalBackups++
		set.TotalSizeBackedUp += sizeBytes
		at := completedAt
		set.LastBackup = &at
	})
}

// AppendBackupSet adds a new set to the mirror.
func (s *Store) AppendBackupSet(set model.BackupSet) {
	s.mu.Lock()
	s.state.BackupSets = append(s.state.BackupSets, cloneSet(set))
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeAppend, Entity: "backup_set", ID: set.ID})
}

// RemoveBackupSet deletes a set by id.
func (s *Store) RemoveBackupSet(id string) error {
	s.mu.Lock()
	idx := -1
	for i := range s.state.BackupSets {
		if s.state.BackupSets[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.state.BackupSets = append(s.state.BackupSets[:idx], s.state.BackupSets[idx+1:]...)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeRemove, Entity: "backup_set", ID: id})
	return nil
}

// UpdateSchedule applies a partial mutation to one schedule.
func (s *Store) UpdateSchedule(id string, mutate func(*model.Schedule)) error {
	s.mu.Lock()
	idx := -1
	for i := range s.state.Schedules {
		if s.state.Schedules[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	mutate(&s.state.Schedules[idx])
	s.state.Schedules[idx].Normalize()
	s.state.Schedules[idx].UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangePatch, Entity: "schedule", ID: id})
	return nil
}

// AppendSchedule adds a new schedule to the mirror.
func (s *Store) AppendSchedule(sched model.Schedule) {
	s.mu.Lock()
	s.state.Schedules = append(s.state.Schedules, cloneSchedule(sched))
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeAppend, Entity: "schedule", ID: sched.ID})
}

// RemoveSchedule deletes a schedule by id.
func (s *Store) RemoveSchedule(id string) error {
	s.mu.Lock()
	idx := -1
	for i := range s.state.Schedules {
		if s.state.Schedules[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.state.Schedules = append(s.state.Schedules[:idx], s.state.Schedules[idx+1:]...)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeRemove, Entity: "schedule", ID: id})
	return nil
}

// SetSettings replaces the settings singleton.
func (s *Store) SetSettings(settings model.Settings) {
	s.mu.Lock()
	s.state.Settings = settings
	s.mu.Unlock()
	s.notify(Change{Kind: ChangePatch, Entity: "settings"})
}

// SetOnboarding replaces the onboarding record.
func (s *Store) SetOnboarding(ob model.Onboarding) {
	s.mu.Lock()
	s.state.Onboarding = ob
	s.mu.Unlock()
	s.notify(Change{Kind: ChangePatch, Entity: "onboarding"})
}

// SetLocation replaces the location singleton; nil clears it.
func (s *Store) SetLocation(loc *model.Location) {
	s.mu.Lock()
	if loc == nil {
		s.state.Location = nil
	} else {
		l := *loc
		s.state.Location = &l
	}
	s.mu.Unlock()
	s.notify(Change{Kind: ChangePatch, Entity: "location"})
}

func cloneState(state model.AppState) model.AppState {
	out := state
	out.BackupSets = make([]model.BackupSet, len(state.BackupSets))
	for i, set := range state.BackupSets {
		out.BackupSets[i] = cloneSet(set)
	}
	out.Schedules = make([]model.Schedule, len(state.Schedules))
	for i, sched := range state.Schedules {
		out.Schedules[i] = cloneSchedule(sched)
	}
	if state.Location != nil {
		l := *state.Location
		out.Location = &l
	}
	return out
}

func cloneSet(set model.BackupSet) model.BackupSet {
	out := set
	out.Sources = append([]string(nil), set.Sources...)
	out.ExcludePatterns = append([]string(nil), set.ExcludePatterns...)
	if set.RetentionDays != nil {
		v := *set.RetentionDays
		out.RetentionDays = &v
	}
	if set.MaxVersions != nil {
		v := *set.MaxVersions
		out.MaxVersions = &v
	}
	if set.LocalDestination != nil {
		v := *set.LocalDestination
		out.LocalDestination = &v
	}
	if set.LastBackup != nil {
		v := *set.LastBackup
		out.LastBackup = &v
	}
	return out
}

func cloneSchedule(sched model.Schedule) model.Schedule {
	out := sched
	out.DaysOfWeek = append([]int(nil), sched.DaysOfWeek...)
	out.WeatherAlertTypes = append([]string(nil), sched.WeatherAlertTypes...)
	if sched.DayOfMonth != nil {
		v := *sched.DayOfMonth
		out.DayOfMonth = &v
	}
	if sched.LastRun != nil {
		v := *sched.LastRun
		out.LastRun = &v
	}
	if sched.NextRun != nil {
		v := *sched.NextRun
		out.NextRun = &v
	}
	return out
}

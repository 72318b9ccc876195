package save

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lanternvale/questline/internal/logger"
	"github.com/lanternvale/questline/internal/progress"
	"github.com/lanternvale/questline/internal/sched"
)

// DefaultSlot is used when the host never picks a slot name.
const DefaultSlot = "default"

// Dispatcher marshals completion callbacks back onto the engine's
// coordination thread. nil runs them inline on the worker goroutine.
type Dispatcher func(fn func())

// Manager serializes quest state into a Store. Writes and reads run on
// their own goroutine; callbacks come back through the dispatcher.
type Manager struct {
	store    Store
	dispatch Dispatcher
	now      func() time.Time

	autoTask  sched.TaskID
	autoArmed bool
}

func NewManager(store Store, dispatch Dispatcher) *Manager {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &Manager{store: store, dispatch: dispatch, now: time.Now}
}

// SaveAsync snapshots the state on the calling thread, then persists it
// in the background. cb may be nil; it receives the write error, if
// any.
func (m *Manager) SaveAsync(slot string, state *progress.SaveState, cb func(err error)) {
	state.Version = progress.SaveVersion
	state.LastSaved = m.now()

	blob, err := json.Marshal(state)
	if err != nil {
		// Serialization happens before the goroutine so the state is
		// never touched off-thread.
		err = fmt.Errorf("failed to encode save state: %w", err)
		logger.Error("Save failed", "slot", slot, "error", err)
		if cb != nil {
			cb(err)
		}
		return
	}

	go func() {
		putErr := m.store.Put(slot, blob)
		if putErr != nil {
			logger.Error("Save failed", "slot", slot, "error", putErr)
		} else {
			logger.Debug("Saved quest state", "slot", slot, "bytes", len(blob))
		}
		if cb != nil {
			m.dispatch(func() { cb(putErr) })
		}
	}()
}

// LoadAsync reads a slot in the background. An absent or corrupt slot
// yields a fresh empty state, never an error; the host starts a new
// game.
func (m *Manager) LoadAsync(slot string, cb func(state *progress.SaveState)) {
	go func() {
		state := m.load(slot)
		if cb != nil {
			m.dispatch(func() { cb(state) })
		}
	}()
}

func (m *Manager) load(slot string) *progress.SaveState {
	blob, err := m.store.Get(slot)
	if err != nil {
		if err != ErrNotFound {
			logger.Error("Save load failed", "slot", slot, "error", err)
		}
		return progress.NewSaveState()
	}

	var state progress.SaveState
	if err := json.Unmarshal(blob, &state); err != nil {
		logger.Warning("Save slot contents unreadable, starting fresh", "slot", slot, "error", err)
		return progress.NewSaveState()
	}
	loaded := &state
	logger.Info("Loaded quest state", "slot", slot, "quests", len(loaded.Quests))
	return loaded
}

// StartAutoSave arms a repeating save of whatever stateFn returns at
// the moment each interval elapses. A failed write is logged and the
// next interval retries it.
func (m *Manager) StartAutoSave(s *sched.Scheduler, slot string, interval time.Duration, stateFn func() *progress.SaveState) {
	if s == nil || interval <= 0 {
		return
	}
	m.autoArmed = true
	var arm func(from time.Time)
	arm = func(from time.Time) {
		due := from.Add(interval)
		m.autoTask = s.ScheduleAt(due, func() {
			if !m.autoArmed {
				return
			}
			m.SaveAsync(slot, stateFn(), nil)
			// Anchor the next interval to this deadline, not the wall
			// clock, so a late tick cannot fire the rearmed task in
			// the same drain pass.
			arm(due)
		})
	}
	arm(m.now())
}

// StopAutoSave cancels the pending auto-save task.
func (m *Manager) StopAutoSave(s *sched.Scheduler) {
	m.autoArmed = false
	if s != nil {
		s.Cancel(m.autoTask)
	}
}

// DeleteSlot removes a saved game.
func (m *Manager) DeleteSlot(slot string) error {
	return m.store.Delete(slot)
}

// SlotExists reports whether a slot holds a save.
func (m *Manager) SlotExists(slot string) (bool, error) {
	return m.store.Exists(slot)
}

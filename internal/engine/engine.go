// Package engine wires the quest subsystems together behind one
// façade: the bus, the definition loader, the progress manager, the
// reward processor, persistence, the scheduler, and the diagnostics
// tap. The host game constructs one Engine, pumps Tick from its update
// loop, and publishes world events at it.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanternvale/questline/internal/assets"
	"github.com/lanternvale/questline/internal/config"
	"github.com/lanternvale/questline/internal/event"
	"github.com/lanternvale/questline/internal/gametime"
	"github.com/lanternvale/questline/internal/logger"
	"github.com/lanternvale/questline/internal/progress"
	"github.com/lanternvale/questline/internal/quest"
	"github.com/lanternvale/questline/internal/reward"
	"github.com/lanternvale/questline/internal/save"
	"github.com/lanternvale/questline/internal/sched"
	"github.com/lanternvale/questline/internal/tag"
	"github.com/lanternvale/questline/internal/tap"
)

// Options configures a new Engine. Config and Store are required; nil
// optional fields get working defaults.
type Options struct {
	Config *config.EngineConfig

	// Store holds save slots. The engine takes ownership and closes it.
	Store save.Store

	// Registry of loaded quest content. Empty registry when nil.
	Registry *quest.Registry

	// Source overrides the definition source; defaults to the registry.
	Source assets.Source

	// Hooks receive reward deliveries.
	Hooks reward.Hooks

	// Resolver maps actor refs to content ids for condition matching.
	Resolver progress.ActorResolver

	// World supplies time/weather/location/relationship answers;
	// defaults to a self-contained world kept current by bus events.
	World *gametime.World

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine is the façade over the whole quest system.
type Engine struct {
	cfg       *config.EngineConfig
	sessionID string

	bus       *event.Bus
	registry  *quest.Registry
	loader    *assets.Loader
	world     *gametime.World
	scheduler *sched.Scheduler
	rewards   *reward.Processor
	progress  *progress.Manager
	resolver  progress.ActorResolver
	saves     *save.Manager
	store     save.Store
	tap       *tap.Tap

	now func() time.Time

	// pending holds completion callbacks from worker goroutines until
	// the next Tick executes them on the coordination thread.
	pendingMu sync.Mutex
	pending   []func()

	closeOnce sync.Once
}

func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		bus:       event.NewBus(),
		registry:  opts.Registry,
		world:     opts.World,
		resolver:  opts.Resolver,
		scheduler: sched.New(),
		store:     opts.Store,
		now:       now,
	}
	if e.registry == nil {
		e.registry = quest.NewRegistry()
	}
	if e.world == nil {
		e.world = gametime.NewWorld()
	}
	e.bus.SetHistoryEnabled(cfg.Events.HistoryEnabled)
	e.bus.SetHistorySize(cfg.Events.HistorySize)

	source := opts.Source
	if source == nil {
		source = assets.NewRegistrySource(e.registry)
	}
	e.loader = assets.NewLoader(source, e.dispatch)

	e.rewards = reward.NewProcessor(opts.Hooks, func(t tag.Tag) {
		e.progress.GrantGlobalTag(t)
	})

	e.progress = progress.NewManager(progress.Options{
		Bus:      e.bus,
		Loader:   e.loader,
		World:    e.world,
		Rewards:  e.rewards,
		Resolver: opts.Resolver,
		Sched:    e.scheduler,
		Now:      now,
	})

	if e.store != nil {
		e.saves = save.NewManager(e.store, e.dispatch)
	}

	if cfg.Tap.Enabled {
		e.tap = tap.New(&cfg.Tap)
		go func() {
			if err := e.tap.Listen(cfg.Tap.ListenAddr); err != nil {
				logger.Error("Diagnostics tap stopped", "error", err)
			}
		}()
	}

	// The broadcast hook runs before subscriber dispatch: absorb
	// world state first so gates never match against stale weather or
	// location, then the objective scan, then the diagnostics copy.
	e.bus.SetBroadcastHook(func(p event.Payload) {
		e.syncWorld(p)
		e.progress.HandleEvent(p)
		if e.tap != nil {
			e.tap.Forward(p)
		}
	})

	e.wireStartPolicies()
	e.startAutoSave()

	logger.Info("Quest engine ready", "session", e.sessionID, "quests", e.registry.Count())
	return e
}

// dispatch marshals a completion callback onto the coordination thread;
// it runs during the next Tick.
func (e *Engine) dispatch(fn func()) {
	e.pendingMu.Lock()
	e.pending = append(e.pending, fn)
	e.pendingMu.Unlock()
}

// Tick runs queued async completions and due scheduled tasks. The host
// calls it from its update loop with the current time.
func (e *Engine) Tick(now time.Time) {
	for {
		e.pendingMu.Lock()
		pending := e.pending
		e.pending = nil
		e.pendingMu.Unlock()
		if len(pending) == 0 {
			break
		}
		for _, fn := range pending {
			fn()
		}
	}
	e.scheduler.Tick(now)
}

func (e *Engine) startAutoSave() {
	if e.saves == nil || e.cfg.AutoSave.IntervalSeconds <= 0 {
		return
	}
	slot := e.cfg.AutoSave.Slot
	if slot == "" {
		slot = save.DefaultSlot
	}
	interval := time.Duration(e.cfg.AutoSave.IntervalSeconds) * time.Second
	e.saves.StartAutoSave(e.scheduler, slot, interval, e.progress.SnapshotForSave)
}

// SaveGameAsync persists the current state into a slot. cb runs on the
// coordination thread during a later Tick.
func (e *Engine) SaveGameAsync(slot string, cb func(err error)) {
	if e.saves == nil {
		if cb != nil {
			cb(nil)
		}
		return
	}
	e.saves.SaveAsync(slot, e.progress.SnapshotForSave(), cb)
}

// LoadGameAsync restores state from a slot; an absent or corrupt slot
// yields a fresh game. cb runs on the coordination thread.
func (e *Engine) LoadGameAsync(slot string, cb func()) {
	if e.saves == nil {
		if cb != nil {
			cb()
		}
		return
	}
	e.saves.LoadAsync(slot, func(st *progress.SaveState) {
		e.progress.RestoreState(st)
		// The restored quests' definitions must reach the loader cache
		// before the progress manager can act on them; failure timers
		// arm once they land.
		ids := make([]string, 0, len(e.progress.State().Quests))
		for id := range e.progress.State().Quests {
			ids = append(ids, id)
		}
		e.loader.Preload(ids, func() {
			e.progress.ArmRestoredTimers()
			if cb != nil {
				cb()
			}
		})
	})
}

// Close performs a final save, then releases every resource. Safe to
// call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.bus.SetEnabled(false)
		e.loader.CancelAll()
		e.scheduler.CancelAll()

		if e.saves != nil {
			e.saves.StopAutoSave(e.scheduler)
			slot := e.cfg.AutoSave.Slot
			if slot == "" {
				slot = save.DefaultSlot
			}
			// The callback comes back through the pending queue, so
			// keep ticking until it lands.
			var saveErr error
			saved := false
			e.saves.SaveAsync(slot, e.progress.SnapshotForSave(), func(err error) {
				saveErr = err
				saved = true
			})
			deadline := time.Now().Add(5 * time.Second)
			for !saved && time.Now().Before(deadline) {
				e.Tick(e.now())
				time.Sleep(10 * time.Millisecond)
			}
			if !saved {
				logger.Error("Final save timed out")
			} else if saveErr != nil {
				logger.Error("Final save failed", "error", saveErr)
			}
		}

		if e.tap != nil {
			e.tap.Close()
		}
		if e.store != nil {
			e.store.Close()
		}
		logger.Info("Quest engine closed", "session", e.sessionID)
	})
}

// SessionID identifies this engine instance in logs and diagnostics.
func (e *Engine) SessionID() string { return e.sessionID }

func (e *Engine) Bus() *event.Bus { return e.bus }

func (e *Engine) Progress() *progress.Manager { return e.progress }

func (e *Engine) Rewards() *reward.Processor { return e.rewards }

func (e *Engine) Loader() *assets.Loader { return e.loader }

func (e *Engine) World() *gametime.World { return e.world }

func (e *Engine) Registry() *quest.Registry { return e.registry }

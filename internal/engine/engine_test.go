package engine

import (
	"testing"
	"time"

	"github.com/lanternvale/questline/internal/config"
	"github.com/lanternvale/questline/internal/event"
	"github.com/lanternvale/questline/internal/quest"
	"github.com/lanternvale/questline/internal/save"
	"github.com/lanternvale/questline/internal/tag"
)

func testConfig() *config.EngineConfig {
	cfg := config.DefaultConfig()
	cfg.AutoSave.IntervalSeconds = 0
	cfg.Tap.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, store save.Store, defs ...quest.Definition) *Engine {
	t.Helper()
	r := quest.NewRegistry()
	byID := make(map[string]quest.Definition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}
	r.LoadFromFile(&quest.File{Quests: byID})

	e := New(Options{
		Config:   testConfig(),
		Store:    store,
		Registry: r,
	})
	t.Cleanup(e.Close)
	return e
}

// pump ticks the engine until cond holds, failing the test if it never
// does. Completion callbacks from the loader and the save manager only
// run during a Tick.
func pump(t *testing.T, e *Engine, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.Tick(time.Now())
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startQuest(t *testing.T, e *Engine, questID string) {
	t.Helper()
	var done, started bool
	var reasons []string
	e.Progress().StartQuestAsync(questID, func(ok bool, r []string) {
		done = true
		started = ok
		reasons = r
	})
	pump(t, e, "start callback", func() bool { return done })
	if !started {
		t.Fatalf("starting %s failed: %v", questID, reasons)
	}
}

func collectQuest() quest.Definition {
	return quest.Definition{
		ID:    "gather_apples",
		Title: "A Taste of Autumn",
		Phases: []quest.Phase{{
			ID:                   "p1",
			RequireAllObjectives: true,
			Objectives: []quest.Objective{{
				ID:      "obj_apples",
				Style:   quest.StyleCollect,
				Counter: quest.Counter{TargetCount: 3},
				Conditions: []quest.Condition{{
					EventTag: TagItemAcquired,
					ItemID:   "apple",
				}},
			}},
		}},
		RewardsOnComplete: quest.RewardSet{
			GrantedTags: tag.NewSet("Quest.Flag.FestivalHelper"),
		},
	}
}

func TestEngineQuestFlow(t *testing.T) {
	e := newTestEngine(t, save.NewMemStore(), collectQuest())
	startQuest(t, e, "gather_apples")

	e.EmitItemAcquired("apple", 2, event.ActorRef{Key: "player"})
	cur, target := e.Progress().ObjectiveProgress("gather_apples", "obj_apples")
	if cur != 2 || target != 3 {
		t.Fatalf("progress = %d/%d, want 2/3", cur, target)
	}

	e.EmitItemAcquired("apple", 1, event.ActorRef{Key: "player"})
	if got := e.Progress().QuestState("gather_apples"); got != quest.StateCompleted {
		t.Fatalf("state = %q, want completed", got)
	}
	if !e.Progress().HasGlobalTag("Quest.Flag.FestivalHelper") {
		t.Error("completion reward tag not granted")
	}
}

func TestEngineNotifications(t *testing.T) {
	e := newTestEngine(t, save.NewMemStore(), collectQuest())

	var seen []tag.Tag
	e.Bus().SubscribeHierarchy("Quest.Notify", "test", func(p event.Payload) {
		seen = append(seen, p.Tag)
	})

	startQuest(t, e, "gather_apples")
	e.EmitItemAcquired("apple", 3, event.ActorRef{})

	want := map[tag.Tag]bool{
		"Quest.Notify.Quest.Started":   false,
		"Quest.Notify.Quest.Completed": false,
	}
	for _, tg := range seen {
		if _, ok := want[tg]; ok {
			want[tg] = true
		}
	}
	for tg, ok := range want {
		if !ok {
			t.Errorf("notification %s never published (saw %v)", tg, seen)
		}
	}
}

func TestAutoStartOnItemPickup(t *testing.T) {
	def := quest.Definition{
		ID:    "rusty_key_mystery",
		Title: "The Rusty Key",
		StartPolicy: quest.StartPolicy{
			Type:          quest.StartOnItemPickup,
			TriggerItemID: "rusty_key",
		},
		Phases: []quest.Phase{{
			ID: "p1",
			Objectives: []quest.Objective{{
				ID:         "obj_door",
				Conditions: []quest.Condition{{EventTag: TagAreaEntered, AreaID: "old_cellar"}},
			}},
		}},
	}
	e := newTestEngine(t, save.NewMemStore(), def)

	e.EmitItemAcquired("torch", 1, event.ActorRef{})
	e.Tick(time.Now())
	if got := e.Progress().QuestState("rusty_key_mystery"); got != quest.StateNotStarted {
		t.Fatalf("quest started on unrelated pickup, state %q", got)
	}

	e.EmitItemAcquired("rusty_key", 1, event.ActorRef{})
	pump(t, e, "auto start", func() bool {
		return e.Progress().QuestState("rusty_key_mystery") == quest.StateActive
	})
}

func TestAutoStartOnCondition(t *testing.T) {
	def := quest.Definition{
		ID:    "village_welcome",
		Title: "New in Town",
		StartPolicy: quest.StartPolicy{
			Type: quest.StartAutoOnCondition,
			AutoStartCondition: &quest.Condition{
				EventTag: TagAreaEntered,
				AreaID:   "village",
			},
		},
		Phases: []quest.Phase{{
			ID: "p1",
			Objectives: []quest.Objective{{
				ID:         "obj_mayor",
				Conditions: []quest.Condition{{EventTag: TagNpcTalked, NpcID: "npc_mayor"}},
			}},
		}},
	}
	e := newTestEngine(t, save.NewMemStore(), def)

	e.EmitEnterArea("wilds", nil)
	e.Tick(time.Now())
	if got := e.Progress().QuestState("village_welcome"); got != quest.StateNotStarted {
		t.Fatalf("quest started in the wrong area, state %q", got)
	}

	e.EmitEnterArea("village", nil)
	pump(t, e, "auto start", func() bool {
		return e.Progress().QuestState("village_welcome") == quest.StateActive
	})
}

func TestAutoStartOnTriggerVolume(t *testing.T) {
	def := quest.Definition{
		ID:    "shrine_vigil",
		Title: "The Shrine",
		StartPolicy: quest.StartPolicy{
			Type:             quest.StartOnTriggerVolume,
			TriggerVolumeTag: "Quest.Volume.ShrineSteps",
		},
		Phases: []quest.Phase{{
			ID: "p1",
			Objectives: []quest.Objective{{
				ID:         "obj_pray",
				Conditions: []quest.Condition{{EventTag: TagItemUsed, ItemID: "candle"}},
			}},
		}},
	}
	e := newTestEngine(t, save.NewMemStore(), def)

	e.EmitEnterArea("mountain", nil)
	e.Tick(time.Now())
	if got := e.Progress().QuestState("shrine_vigil"); got != quest.StateNotStarted {
		t.Fatalf("quest started without the volume tag, state %q", got)
	}

	e.EmitEnterArea("mountain", tag.NewSet("Quest.Volume.ShrineSteps"))
	pump(t, e, "auto start", func() bool {
		return e.Progress().QuestState("shrine_vigil") == quest.StateActive
	})
}

func TestAutoStartOnScheduleEvent(t *testing.T) {
	def := quest.Definition{
		ID:    "midnight_caller",
		Title: "The Midnight Caller",
		StartPolicy: quest.StartPolicy{
			Type:             quest.StartOnScheduleEvent,
			ScheduleEventTag: "Quest.Event.Schedule.Midnight",
		},
		Phases: []quest.Phase{{
			ID: "p1",
			Objectives: []quest.Objective{{
				ID:         "obj_window",
				Conditions: []quest.Condition{{EventTag: TagAreaEntered, AreaID: "bedroom_window"}},
			}},
		}},
	}
	e := newTestEngine(t, save.NewMemStore(), def)

	e.Bus().Publish(event.Payload{Tag: "Quest.Event.Schedule.Midnight"})
	pump(t, e, "auto start", func() bool {
		return e.Progress().QuestState("midnight_caller") == quest.StateActive
	})
}

func TestAutoStartRespectsEligibility(t *testing.T) {
	def := quest.Definition{
		ID:    "masters_trial",
		Title: "The Master's Trial",
		StartPolicy: quest.StartPolicy{
			Type:          quest.StartOnItemPickup,
			TriggerItemID: "trial_token",
		},
		Dependencies: []quest.Dependency{{RequiredLevel: 10}},
		Phases: []quest.Phase{{
			ID: "p1",
			Objectives: []quest.Objective{{
				ID:         "obj_arena",
				Conditions: []quest.Condition{{EventTag: TagAreaEntered, AreaID: "arena"}},
			}},
		}},
	}
	e := newTestEngine(t, save.NewMemStore(), def)

	e.EmitItemAcquired("trial_token", 1, event.ActorRef{})
	e.Tick(time.Now())
	e.Tick(time.Now())
	if got := e.Progress().QuestState("masters_trial"); got != quest.StateNotStarted {
		t.Fatalf("under-leveled quest auto-started, state %q", got)
	}

	e.World().SetPlayerLevel(10)
	e.EmitItemAcquired("trial_token", 1, event.ActorRef{})
	pump(t, e, "auto start after leveling", func() bool {
		return e.Progress().QuestState("masters_trial") == quest.StateActive
	})
}

func TestWorldSyncFromEvents(t *testing.T) {
	e := newTestEngine(t, save.NewMemStore())

	e.EmitWeatherChanged("Weather.Storm")
	if got := e.World().Weather(); got != "Weather.Storm" {
		t.Errorf("weather = %q, want Weather.Storm", got)
	}

	e.EmitEnterArea("harbor", nil)
	if got := e.World().Location(); got != "harbor" {
		t.Errorf("location = %q, want harbor", got)
	}

	e.EmitTimeReached(21)
	if got := e.World().Hour(); got != 21 {
		t.Errorf("hour = %d, want 21", got)
	}

	e.EmitRelationshipChanged("npc_mara", 0.6)
	if got := e.World().Relationship("npc_mara"); got != 0.6 {
		t.Errorf("relationship = %v, want 0.6", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := save.NewMemStore()

	e1 := newTestEngine(t, store, collectQuest())
	startQuest(t, e1, "gather_apples")
	e1.EmitItemAcquired("apple", 2, event.ActorRef{})

	var saved bool
	e1.SaveGameAsync("slot1", func(err error) {
		if err != nil {
			t.Errorf("save failed: %v", err)
		}
		saved = true
	})
	pump(t, e1, "save", func() bool { return saved })

	e2 := newTestEngine(t, store, collectQuest())
	var loaded bool
	e2.LoadGameAsync("slot1", func() { loaded = true })
	pump(t, e2, "load", func() bool { return loaded })

	if got := e2.Progress().QuestState("gather_apples"); got != quest.StateActive {
		t.Fatalf("restored state = %q, want active", got)
	}
	if cur, _ := e2.Progress().ObjectiveProgress("gather_apples", "obj_apples"); cur != 2 {
		t.Fatalf("restored progress = %d, want 2", cur)
	}

	// The restored game picks up where it left off.
	e2.EmitItemAcquired("apple", 1, event.ActorRef{})
	if got := e2.Progress().QuestState("gather_apples"); got != quest.StateCompleted {
		t.Fatalf("state after final apple = %q, want completed", got)
	}
}

func TestLoadMissingSlotYieldsFreshGame(t *testing.T) {
	e := newTestEngine(t, save.NewMemStore(), collectQuest())

	var loaded bool
	e.LoadGameAsync("never_saved", func() { loaded = true })
	pump(t, e, "load", func() bool { return loaded })

	if got := e.Progress().QuestState("gather_apples"); got != quest.StateNotStarted {
		t.Fatalf("fresh game has state %q for an unstarted quest", got)
	}
}

func TestCloseWritesFinalSave(t *testing.T) {
	store := save.NewMemStore()
	e := newTestEngine(t, store, collectQuest())
	startQuest(t, e, "gather_apples")
	e.EmitItemAcquired("apple", 1, event.ActorRef{})

	e.Close()

	exists, err := store.Exists(save.DefaultSlot)
	if err != nil || !exists {
		t.Fatalf("final save slot missing (exists=%v err=%v)", exists, err)
	}
}

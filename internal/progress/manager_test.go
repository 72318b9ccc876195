package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lanternvale/questline/internal/assets"
	"github.com/lanternvale/questline/internal/event"
	"github.com/lanternvale/questline/internal/gametime"
	"github.com/lanternvale/questline/internal/quest"
	"github.com/lanternvale/questline/internal/sched"
	"github.com/lanternvale/questline/internal/tag"
)

type recordingRewards struct {
	sets   []quest.RewardSet
	quests []string
}

func (r *recordingRewards) Process(set quest.RewardSet, questID string) {
	r.sets = append(r.sets, set)
	r.quests = append(r.quests, questID)
}

type testEnv struct {
	bus     *event.Bus
	loader  *assets.Loader
	world   *gametime.World
	sched   *sched.Scheduler
	rewards *recordingRewards
	mgr     *Manager
	clock   time.Time
}

func newTestEnv(t *testing.T, defs ...quest.Definition) *testEnv {
	t.Helper()

	r := quest.NewRegistry()
	byID := make(map[string]quest.Definition, len(defs))
	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
		ids = append(ids, d.ID)
	}
	r.LoadFromFile(&quest.File{Quests: byID})

	env := &testEnv{
		bus:     event.NewBus(),
		world:   gametime.NewWorld(),
		sched:   sched.New(),
		rewards: &recordingRewards{},
		clock:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	env.loader = assets.NewLoader(assets.NewRegistrySource(r), nil)
	env.mgr = NewManager(Options{
		Bus:     env.bus,
		Loader:  env.loader,
		World:   env.world,
		Rewards: env.rewards,
		Sched:   env.sched,
		Now:     func() time.Time { return env.clock },
	})
	env.bus.SetBroadcastHook(env.mgr.HandleEvent)

	// Warm the cache so every later operation is synchronous.
	done := make(chan struct{})
	env.loader.Preload(ids, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out preloading definitions")
	}
	return env
}

func (env *testEnv) start(t *testing.T, questID string) {
	t.Helper()
	var started bool
	var reasons []string
	env.mgr.StartQuestAsync(questID, func(ok bool, r []string) {
		started = ok
		reasons = r
	})
	if !started {
		t.Fatalf("starting %s failed: %v", questID, reasons)
	}
}

func (env *testEnv) advance(d time.Duration) {
	env.clock = env.clock.Add(d)
	env.sched.Tick(env.clock)
}

func appleQuest() quest.Definition {
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
					EventTag: "Quest.Event.Item.Acquired",
					ItemID:   "apple",
				}},
			}},
		}},
		RewardsOnComplete: quest.RewardSet{
			Rewards:     []quest.Reward{{Kind: quest.RewardGrantCurrency, CurrencyAmount: 25}},
			GrantedTags: tag.NewSet("Quest.Flag.FestivalHelper"),
		},
	}
}

func acquireItem(env *testEnv, itemID string, count int) {
	env.bus.Publish(event.Payload{
		Tag:         "Quest.Event.Item.Acquired",
		StringParam: itemID,
		IntParam:    count,
	})
}

func TestAppleCollectionEndToEnd(t *testing.T) {
	env := newTestEnv(t, appleQuest())
	m := env.mgr

	env.start(t, "gather_apples")
	if m.QuestState("gather_apples") != quest.StateActive {
		t.Fatalf("state = %s, want active", m.QuestState("gather_apples"))
	}

	acquireItem(env, "apple", 0) // no count -> contributes 1
	acquireItem(env, "pear", 0)  // wrong item, ignored
	acquireItem(env, "apple", 0)

	if cur, target := m.ObjectiveProgress("gather_apples", "obj_apples"); cur != 2 || target != 3 {
		t.Fatalf("progress = %d/%d, want 2/3", cur, target)
	}

	acquireItem(env, "apple", 0)

	if m.QuestState("gather_apples") != quest.StateCompleted {
		t.Fatalf("state = %s, want completed", m.QuestState("gather_apples"))
	}
	if !m.HasGlobalTag("Quest.Flag.FestivalHelper") {
		t.Error("completion reward tag not granted")
	}
	if len(env.rewards.sets) == 0 {
		t.Error("completion rewards never processed")
	}

	// Progress past completion is ignored.
	acquireItem(env, "apple", 0)
	if m.QuestState("gather_apples") != quest.StateCompleted {
		t.Error("completed quest should ignore further events")
	}
}

func TestIntParamContributesAmount(t *testing.T) {
	env := newTestEnv(t, appleQuest())
	env.start(t, "gather_apples")

	acquireItem(env, "apple", 2)
	if cur, _ := env.mgr.ObjectiveProgress("gather_apples", "obj_apples"); cur != 2 {
		t.Errorf("progress = %d, want 2", cur)
	}
	acquireItem(env, "apple", 5) // clamped to target, completes
	if env.mgr.QuestState("gather_apples") != quest.StateCompleted {
		t.Error("quest should complete on overshoot")
	}
}

func TestManualProgressOperations(t *testing.T) {
	env := newTestEnv(t, appleQuest())
	m := env.mgr
	env.start(t, "gather_apples")

	if !m.UpdateObjectiveProgress("gather_apples", "obj_apples", 1) {
		t.Error("UpdateObjectiveProgress should succeed on active quest")
	}
	if !m.SetObjectiveProgress("gather_apples", "obj_apples", 2) {
		t.Error("SetObjectiveProgress should succeed")
	}
	if cur, _ := m.ObjectiveProgress("gather_apples", "obj_apples"); cur != 2 {
		t.Errorf("progress = %d, want 2", cur)
	}
	if !m.CompleteObjective("gather_apples", "obj_apples") {
		t.Error("CompleteObjective should succeed")
	}
	if m.QuestState("gather_apples") != quest.StateCompleted {
		t.Error("quest should complete")
	}

	// Everything returns false on unknown or inactive ids.
	if m.UpdateObjectiveProgress("gather_apples", "obj_apples", 1) {
		t.Error("progress on completed quest should fail")
	}
	if m.UpdateObjectiveProgress("ghost", "obj", 1) {
		t.Error("progress on unknown quest should fail")
	}
	if m.CompleteObjective("gather_apples", "ghost_obj") {
		t.Error("unknown objective should fail")
	}
}

func TestNotificationsPublished(t *testing.T) {
	env := newTestEnv(t, appleQuest())

	var seen []tag.Tag
	env.bus.SubscribeHierarchy("Quest.Notify", "test", func(p event.Payload) {
		seen = append(seen, p.Tag)
	})

	env.start(t, "gather_apples")
	acquireItem(env, "apple", 3)

	want := map[tag.Tag]bool{
		NotifyQuestStarted:      false,
		NotifyQuestStateChanged: false,
		NotifyObjectiveUpdated:  false,
		NotifyObjectiveComplete: false,
		NotifyPhaseChanged:      false,
		NotifyQuestCompleted:    false,
	}
	for _, tg := range seen {
		if _, ok := want[tg]; ok {
			want[tg] = true
		}
	}
	for tg, got := range want {
		if !got {
			t.Errorf("notification %s never published", tg)
		}
	}
}

func twoPhaseQuest(autoAdvance bool) quest.Definition {
	return quest.Definition{
		ID: "escort",
		Phases: []quest.Phase{
			{
				ID:                   "meet",
				RequireAllObjectives: true,
				Objectives: []quest.Objective{{
					ID:         "talk",
					Conditions: []quest.Condition{{EventTag: "Quest.Event.Npc.Talked", NpcID: "npc_merchant"}},
				}},
				Transition: quest.Transition{NextPhaseID: "walk", AutoAdvance: autoAdvance},
				Rewards: quest.RewardSet{
					Rewards: []quest.Reward{{Kind: quest.RewardGrantCurrency, CurrencyAmount: 5}},
				},
			},
			{
				ID:                   "walk",
				RequireAllObjectives: true,
				Objectives: []quest.Objective{{
					ID:         "arrive",
					Conditions: []quest.Condition{{EventTag: "Quest.Event.Area.Entered", AreaID: "market"}},
				}},
			},
		},
	}
}

func TestPhaseTransitionAutoAdvance(t *testing.T) {
	env := newTestEnv(t, twoPhaseQuest(true))
	m := env.mgr
	env.start(t, "escort")

	var phaseChanges []string
	env.bus.Subscribe(NotifyPhaseChanged, "test", func(p event.Payload) {
		phaseChanges = append(phaseChanges, p.StringParam2)
	})

	env.bus.Publish(event.Payload{Tag: "Quest.Event.Npc.Talked", StringParam: "npc_merchant"})

	if m.CurrentPhase("escort") != "walk" {
		t.Fatalf("phase = %s, want walk", m.CurrentPhase("escort"))
	}
	// Exactly one phase-changed, keyed off the old phase.
	if len(phaseChanges) != 1 || phaseChanges[0] != "meet" {
		t.Errorf("phase changes = %v, want [meet]", phaseChanges)
	}
	// Old phase rewards processed exactly once.
	count := 0
	for _, set := range env.rewards.sets {
		if len(set.Rewards) == 1 && set.Rewards[0].CurrencyAmount == 5 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("meet phase rewards processed %d times, want 1", count)
	}

	env.bus.Publish(event.Payload{Tag: "Quest.Event.Area.Entered", StringParam: "market"})
	if m.QuestState("escort") != quest.StateCompleted {
		t.Error("quest should complete after final phase")
	}
}

func TestPhaseManualAdvance(t *testing.T) {
	env := newTestEnv(t, twoPhaseQuest(false))
	m := env.mgr
	env.start(t, "escort")

	env.bus.Publish(event.Payload{Tag: "Quest.Event.Npc.Talked", StringParam: "npc_merchant"})
	if m.CurrentPhase("escort") != "meet" {
		t.Fatal("phase must not auto-advance")
	}

	if !m.AdvanceToNextPhase("escort") {
		t.Fatal("AdvanceToNextPhase failed")
	}
	if m.CurrentPhase("escort") != "walk" {
		t.Errorf("phase = %s, want walk", m.CurrentPhase("escort"))
	}

	if m.AdvanceToNextPhase("ghost") {
		t.Error("advancing unknown quest should fail")
	}
}

func TestDelayedAutoAdvance(t *testing.T) {
	def := twoPhaseQuest(true)
	def.Phases[0].Transition.AutoAdvanceDelay = 5
	env := newTestEnv(t, def)
	m := env.mgr
	env.start(t, "escort")

	env.bus.Publish(event.Payload{Tag: "Quest.Event.Npc.Talked", StringParam: "npc_merchant"})
	if m.CurrentPhase("escort") != "meet" {
		t.Fatal("delayed advance should not fire immediately")
	}

	env.advance(2 * time.Second)
	if m.CurrentPhase("escort") != "meet" {
		t.Fatal("advance fired early")
	}
	env.advance(4 * time.Second)
	if m.CurrentPhase("escort") != "walk" {
		t.Errorf("phase = %s after delay, want walk", m.CurrentPhase("escort"))
	}
}

func TestBranchTransition(t *testing.T) {
	def := twoPhaseQuest(true)
	def.Phases = append(def.Phases, quest.Phase{
		ID: "shortcut",
		Objectives: []quest.Objective{{
			ID:         "sneak",
			Conditions: []quest.Condition{{EventTag: "Quest.Event.Area.Entered", AreaID: "alley"}},
		}},
	})
	def.Phases[0].Transition.Branches = map[tag.Tag]string{"Quest.Flag.KnowsShortcut": "shortcut"}

	env := newTestEnv(t, def)
	m := env.mgr
	m.GrantGlobalTag("Quest.Flag.KnowsShortcut")
	env.start(t, "escort")

	env.bus.Publish(event.Payload{Tag: "Quest.Event.Npc.Talked", StringParam: "npc_merchant"})

	if m.CurrentPhase("escort") != "shortcut" {
		t.Errorf("phase = %s, want shortcut branch", m.CurrentPhase("escort"))
	}
	qsd := m.State().Quests["escort"]
	if len(qsd.ChosenBranches) != 1 || qsd.ChosenBranches[0] != "Quest.Flag.KnowsShortcut" {
		t.Errorf("chosen branches = %v", qsd.ChosenBranches)
	}
}

func TestRequireAnyObjective(t *testing.T) {
	def := quest.Definition{
		ID: "choice",
		Phases: []quest.Phase{{
			ID:                   "p1",
			RequireAllObjectives: false,
			Objectives: []quest.Objective{
				{ID: "a", Conditions: []quest.Condition{{EventTag: "Quest.Event.Npc.Talked", NpcID: "npc_a"}}},
				{ID: "b", Conditions: []quest.Condition{{EventTag: "Quest.Event.Npc.Talked", NpcID: "npc_b"}}},
			},
		}},
	}
	env := newTestEnv(t, def)
	env.start(t, "choice")

	env.bus.Publish(event.Payload{Tag: "Quest.Event.Npc.Talked", StringParam: "npc_b"})
	if env.mgr.QuestState("choice") != quest.StateCompleted {
		t.Error("any-objective phase should complete on a single objective")
	}
}

func TestOptionalObjectiveSkipped(t *testing.T) {
	def := appleQuest()
	def.Phases[0].Objectives = append(def.Phases[0].Objectives, quest.Objective{
		ID:       "bonus",
		Optional: true,
		Conditions: []quest.Condition{{
			EventTag: "Quest.Event.Item.Acquired", ItemID: "golden_apple",
		}},
	})
	env := newTestEnv(t, def)
	env.start(t, "gather_apples")

	acquireItem(env, "apple", 3)
	if env.mgr.QuestState("gather_apples") != quest.StateCompleted {
		t.Error("optional objective must not block completion")
	}
}

func TestGatesBlockProgress(t *testing.T) {
	def := appleQuest()
	def.Phases[0].Objectives[0].Gates = []quest.Gate{{
		RequireTimeOfDay: true, TimeStart: 20, TimeEnd: 4,
	}}
	env := newTestEnv(t, def)
	env.start(t, "gather_apples")

	env.world.Clock.SetHour(12)
	acquireItem(env, "apple", 1)
	if cur, _ := env.mgr.ObjectiveProgress("gather_apples", "obj_apples"); cur != 0 {
		t.Errorf("progress = %d, gate should block daytime pickups", cur)
	}

	env.world.Clock.SetHour(22)
	acquireItem(env, "apple", 1)
	if cur, _ := env.mgr.ObjectiveProgress("gather_apples", "obj_apples"); cur != 1 {
		t.Errorf("progress = %d, gate should admit night pickups", cur)
	}
}

func failableQuest() quest.Definition {
	def := appleQuest()
	def.ID = "timed_apples"
	def.FailurePolicy = quest.FailurePolicy{
		Type:                quest.FailureTimeLimit,
		TimeLimit:           60,
		ResetProgressOnFail: true,
		AllowRetry:          true,
	}
	return def
}

func TestTimeLimitFailureAndRetry(t *testing.T) {
	env := newTestEnv(t, failableQuest())
	m := env.mgr
	env.start(t, "timed_apples")

	acquireItem(env, "apple", 2)
	env.advance(61 * time.Second)

	if m.QuestState("timed_apples") != quest.StateFailed {
		t.Fatalf("state = %s, want failed after time limit", m.QuestState("timed_apples"))
	}
	if cur, _ := m.ObjectiveProgress("timed_apples", "obj_apples"); cur != 0 {
		t.Errorf("progress = %d, reset_progress_on_fail should zero it", cur)
	}

	// Failed quests ignore events.
	acquireItem(env, "apple", 1)
	if cur, _ := m.ObjectiveProgress("timed_apples", "obj_apples"); cur != 0 {
		t.Error("failed quest must not accumulate progress")
	}

	if !m.RetryQuest("timed_apples") {
		t.Fatal("retry should be allowed")
	}
	if m.QuestState("timed_apples") != quest.StateActive {
		t.Fatal("retried quest should be active")
	}
	acquireItem(env, "apple", 3)
	if m.QuestState("timed_apples") != quest.StateCompleted {
		t.Error("retried quest should complete")
	}
	if m.RetryQuest("timed_apples") {
		t.Error("retry of a completed quest should fail")
	}
}

func TestFailureOnEventTag(t *testing.T) {
	def := appleQuest()
	def.ID = "fragile"
	def.FailurePolicy = quest.FailurePolicy{
		Type:            quest.FailureOnEvent,
		FailureEventTag: "Quest.Event.Npc.Died",
	}
	env := newTestEnv(t, def)
	env.start(t, "fragile")

	env.bus.Publish(event.Payload{Tag: "Quest.Event.Npc.Died", StringParam: "npc_alice"})
	if env.mgr.QuestState("fragile") != quest.StateFailed {
		t.Error("failure event tag should fail the quest")
	}
	if env.mgr.RetryQuest("fragile") {
		t.Error("retry without allow_retry should fail")
	}
}

func TestAbandonAndRestart(t *testing.T) {
	env := newTestEnv(t, appleQuest())
	m := env.mgr
	env.start(t, "gather_apples")

	if !m.AbandonQuest("gather_apples") {
		t.Fatal("abandon failed")
	}
	if m.QuestState("gather_apples") != quest.StateAbandoned {
		t.Fatal("state should be abandoned")
	}
	if m.AbandonQuest("gather_apples") {
		t.Error("double abandon should fail")
	}

	// Abandoned quests can be started again, from scratch.
	env.start(t, "gather_apples")
	if cur, _ := m.ObjectiveProgress("gather_apples", "obj_apples"); cur != 0 {
		t.Errorf("restarted quest progress = %d, want 0", cur)
	}
}

func TestRemoveQuestData(t *testing.T) {
	env := newTestEnv(t, appleQuest())
	m := env.mgr
	env.start(t, "gather_apples")
	acquireItem(env, "apple", 2)

	if !m.RemoveQuestData("gather_apples") {
		t.Fatal("remove failed")
	}
	if m.QuestState("gather_apples") != quest.StateNotStarted {
		t.Error("removed quest should read as not started")
	}
	if m.RemoveQuestData("gather_apples") {
		t.Error("removing absent data should fail")
	}
}

func TestVariablesAndCustomData(t *testing.T) {
	env := newTestEnv(t, appleQuest())
	m := env.mgr

	m.SetGlobalVariable("festival_year", "1023")
	if v, ok := m.GlobalVariable("festival_year"); !ok || v != "1023" {
		t.Errorf("global variable = %q, %v", v, ok)
	}

	if m.SetQuestVariable("gather_apples", "k", "v") {
		t.Error("quest variable before start should fail")
	}
	env.start(t, "gather_apples")
	if !m.SetQuestVariable("gather_apples", "basket", "wicker") {
		t.Error("quest variable on active quest should succeed")
	}
	if v, ok := m.QuestVariable("gather_apples", "basket"); !ok || v != "wicker" {
		t.Errorf("quest variable = %q, %v", v, ok)
	}
	if !m.SetObjectiveCustomData("gather_apples", "obj_apples", "orchard", "north") {
		t.Error("custom data on active quest should succeed")
	}
}

func TestQuestsByState(t *testing.T) {
	env := newTestEnv(t, appleQuest(), twoPhaseQuest(true))
	m := env.mgr
	env.start(t, "escort")
	env.start(t, "gather_apples")

	active := m.ActiveQuests()
	if len(active) != 2 || active[0] != "escort" || active[1] != "gather_apples" {
		t.Errorf("active = %v", active)
	}

	acquireItem(env, "apple", 3)
	if got := m.QuestsByState(quest.StateCompleted); len(got) != 1 || got[0] != "gather_apples" {
		t.Errorf("completed = %v", got)
	}
}

func TestSaveStateRoundTrip(t *testing.T) {
	env := newTestEnv(t, appleQuest())
	m := env.mgr
	env.start(t, "gather_apples")
	acquireItem(env, "apple", 2)
	m.GrantGlobalTag("Quest.Flag.Test")

	st := m.State()

	// A second manager restored from the same state continues where
	// the first left off.
	env2 := newTestEnv(t, appleQuest())
	env2.mgr.RestoreState(st)
	m2 := env2.mgr

	if m2.QuestState("gather_apples") != quest.StateActive {
		t.Fatal("restored quest should be active")
	}
	if cur, _ := m2.ObjectiveProgress("gather_apples", "obj_apples"); cur != 2 {
		t.Fatalf("restored progress = %d, want 2", cur)
	}
	if !m2.HasGlobalTag("Quest.Flag.Test") {
		t.Error("restored global tag missing")
	}

	acquireItem(env2, "apple", 1)
	if m2.QuestState("gather_apples") != quest.StateCompleted {
		t.Error("restored quest should complete")
	}
}

func TestRestoreNilState(t *testing.T) {
	env := newTestEnv(t, appleQuest())
	env.mgr.RestoreState(nil)
	if env.mgr.QuestState("gather_apples") != quest.StateNotStarted {
		t.Error("nil restore should yield an empty state")
	}
}

func TestRepeatableQuestKeepsHistory(t *testing.T) {
	def := appleQuest()
	def.Meta.Repeatable = true
	env := newTestEnv(t, def)
	m := env.mgr

	env.start(t, "gather_apples")
	m.SetQuestVariable("gather_apples", "first_run", "true")
	acquireItem(env, "apple", 3)
	if m.QuestState("gather_apples") != quest.StateCompleted {
		t.Fatal("first run should complete")
	}

	env.start(t, "gather_apples")
	qsd := m.State().Quests["gather_apples"]
	if qsd.CompletionCount != 1 {
		t.Fatalf("completion count after restart = %d, want 1", qsd.CompletionCount)
	}
	if v, ok := m.QuestVariable("gather_apples", "first_run"); !ok || v != "true" {
		t.Error("quest variables should survive a restart")
	}
	if cur, _ := m.ObjectiveProgress("gather_apples", "obj_apples"); cur != 0 {
		t.Errorf("progress after restart = %d, want 0", cur)
	}

	acquireItem(env, "apple", 3)
	if m.QuestState("gather_apples") != quest.StateCompleted {
		t.Fatal("second run should complete")
	}
	if qsd.CompletionCount != 2 {
		t.Errorf("completion count after second run = %d, want 2", qsd.CompletionCount)
	}
}

func TestSetQuestPhaseProcessesPhaseRewards(t *testing.T) {
	env := newTestEnv(t, twoPhaseQuest(false))
	m := env.mgr
	env.start(t, "escort")

	var phaseChanges []string
	env.bus.Subscribe(NotifyPhaseChanged, "test", func(p event.Payload) {
		phaseChanges = append(phaseChanges, p.StringParam2)
	})

	if !m.SetQuestPhase("escort", "walk") {
		t.Fatal("SetQuestPhase failed")
	}
	if m.CurrentPhase("escort") != "walk" {
		t.Fatalf("phase = %s, want walk", m.CurrentPhase("escort"))
	}
	if len(phaseChanges) != 1 || phaseChanges[0] != "meet" {
		t.Errorf("phase changes = %v, want [meet]", phaseChanges)
	}
	count := 0
	for _, set := range env.rewards.sets {
		if len(set.Rewards) == 1 && set.Rewards[0].CurrencyAmount == 5 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("outgoing phase rewards processed %d times, want 1", count)
	}
}

func TestRestoreResumesTimeLimit(t *testing.T) {
	env := newTestEnv(t, failableQuest())
	env.start(t, "timed_apples")
	env.advance(20 * time.Second)

	st := env.mgr.SnapshotForSave()
	if got := st.Quests["timed_apples"].ElapsedSeconds; got != 20 {
		t.Fatalf("snapshot elapsed = %v, want 20", got)
	}

	// A fresh session with a cold cache: the state is restored before
	// the definitions arrive.
	def := failableQuest()
	r := quest.NewRegistry()
	r.LoadFromFile(&quest.File{Quests: map[string]quest.Definition{def.ID: def}})
	env2 := &testEnv{
		bus:     event.NewBus(),
		world:   gametime.NewWorld(),
		sched:   sched.New(),
		rewards: &recordingRewards{},
		clock:   env.clock,
	}
	env2.loader = assets.NewLoader(assets.NewRegistrySource(r), nil)
	env2.mgr = NewManager(Options{
		Bus:     env2.bus,
		Loader:  env2.loader,
		World:   env2.world,
		Rewards: env2.rewards,
		Sched:   env2.sched,
		Now:     func() time.Time { return env2.clock },
	})
	env2.bus.SetBroadcastHook(env2.mgr.HandleEvent)

	env2.mgr.RestoreState(st)
	if env2.sched.Pending() != 0 {
		t.Fatal("timer armed before the definition loaded")
	}

	done := make(chan struct{})
	env2.loader.Preload([]string{"timed_apples"}, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out preloading definitions")
	}
	env2.mgr.ArmRestoredTimers()

	// 20 of the 60 seconds were spent before the save, so the quest
	// has 40 left.
	env2.advance(39 * time.Second)
	if env2.mgr.QuestState("timed_apples") != quest.StateActive {
		t.Fatal("quest failed before the remaining time elapsed")
	}
	env2.advance(2 * time.Second)
	if env2.mgr.QuestState("timed_apples") != quest.StateFailed {
		t.Error("restored quest should fail once the original limit elapses")
	}
}

// gateSource blocks fetches until released, counting them.
type gateSource struct {
	def     quest.Definition
	release chan struct{}
	fetches int32
}

func (s *gateSource) Fetch(ctx context.Context, questID string) (*quest.Definition, error) {
	atomic.AddInt32(&s.fetches, 1)
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if questID != s.def.ID {
		return nil, nil
	}
	d := s.def
	return &d, nil
}

func TestCoalescedDoubleStart(t *testing.T) {
	src := &gateSource{def: appleQuest(), release: make(chan struct{})}

	var mu sync.Mutex
	var queued []func()
	dispatch := func(fn func()) {
		mu.Lock()
		queued = append(queued, fn)
		mu.Unlock()
	}

	env := &testEnv{
		bus:     event.NewBus(),
		world:   gametime.NewWorld(),
		sched:   sched.New(),
		rewards: &recordingRewards{},
		clock:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	env.loader = assets.NewLoader(src, dispatch)
	env.mgr = NewManager(Options{
		Bus:     env.bus,
		Loader:  env.loader,
		World:   env.world,
		Rewards: env.rewards,
		Sched:   env.sched,
		Now:     func() time.Time { return env.clock },
	})
	env.bus.SetBroadcastHook(env.mgr.HandleEvent)

	var results []bool
	cb := func(started bool, _ []string) { results = append(results, started) }

	// Second start issued before the first load completes.
	env.mgr.StartQuestAsync("gather_apples", cb)
	env.mgr.StartQuestAsync("gather_apples", cb)
	close(src.release)

	deadline := time.Now().Add(2 * time.Second)
	for len(results) < 2 && time.Now().Before(deadline) {
		mu.Lock()
		pending := queued
		queued = nil
		mu.Unlock()
		for _, fn := range pending {
			fn()
		}
		time.Sleep(2 * time.Millisecond)
	}

	if got := atomic.LoadInt32(&src.fetches); got != 1 {
		t.Errorf("fetches = %d, want 1 coalesced load", got)
	}
	started := 0
	for _, ok := range results {
		if ok {
			started++
		}
	}
	if len(results) != 2 || started != 1 {
		t.Errorf("start results = %v, want exactly one success", results)
	}
	if n := len(env.mgr.State().Quests); n != 1 {
		t.Errorf("save-state entries = %d, want 1", n)
	}
	if env.mgr.QuestState("gather_apples") != quest.StateActive {
		t.Error("quest should be active after the coalesced start")
	}
}

// Package progress owns runtime quest state: the lifecycle state
// machine, the condition-match scan that turns bus events into
// objective progress, start eligibility, and the save-state shape.
//
// The manager is not internally synchronized. All mutating calls,
// including the bus broadcast scan and asset-load completions, must
// arrive on the engine's coordination thread; the engine marshals
// asynchronous completions through its pending queue.
package progress

import (
	"fmt"
	"sort"
	"time"

	"github.com/lanternvale/questline/internal/assets"
	"github.com/lanternvale/questline/internal/event"
	"github.com/lanternvale/questline/internal/gametime"
	"github.com/lanternvale/questline/internal/logger"
	"github.com/lanternvale/questline/internal/quest"
	"github.com/lanternvale/questline/internal/sched"
	"github.com/lanternvale/questline/internal/tag"
)

// RewardProcessor dispatches a reward set. The manager grants the set's
// tags itself before delegating, so processors only handle the typed
// reward entries.
type RewardProcessor interface {
	Process(set quest.RewardSet, questID string)
}

// StartCallback reports the outcome of StartQuestAsync. reasons is
// non-empty only when started is false.
type StartCallback func(started bool, reasons []string)

// Manager is the quest state machine.
type Manager struct {
	bus      *event.Bus
	loader   *assets.Loader
	world    gametime.WorldState
	rewards  RewardProcessor
	resolver ActorResolver
	sched    *sched.Scheduler
	now      func() time.Time

	state *SaveState

	// failTimers holds the pending time-limit task per active quest.
	failTimers map[string]sched.TaskID
	// advanceTimers holds pending delayed auto-advance tasks.
	advanceTimers map[string]sched.TaskID
}

// Options configures a Manager. Bus and Loader are required; the rest
// may be nil.
type Options struct {
	Bus      *event.Bus
	Loader   *assets.Loader
	World    gametime.WorldState
	Rewards  RewardProcessor
	Resolver ActorResolver
	Sched    *sched.Scheduler
	Now      func() time.Time
}

func NewManager(opts Options) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	m := &Manager{
		bus:           opts.Bus,
		loader:        opts.Loader,
		world:         opts.World,
		rewards:       opts.Rewards,
		resolver:      opts.Resolver,
		sched:         opts.Sched,
		now:           now,
		state:         NewSaveState(),
		failTimers:    make(map[string]sched.TaskID),
		advanceTimers: make(map[string]sched.TaskID),
	}
	return m
}

// State exposes the live save state for persistence. Callers must not
// mutate it off the coordination thread.
func (m *Manager) State() *SaveState { return m.state }

// SnapshotForSave folds running time into ElapsedSeconds for every
// active quest, so the persisted blob carries it, and returns the live
// state for serialization.
func (m *Manager) SnapshotForSave() *SaveState {
	now := m.now()
	for _, qsd := range m.state.Quests {
		if qsd.State != quest.StateActive || qsd.StartedAt.IsZero() {
			continue
		}
		qsd.ElapsedSeconds += now.Sub(qsd.StartedAt).Seconds()
		qsd.StartedAt = now
	}
	return m.state
}

// RestoreState replaces the runtime state, e.g. after loading a save.
// Failure timers for restored active quests are re-armed from their
// remaining time once their definitions are in the loader cache.
func (m *Manager) RestoreState(st *SaveState) {
	if st == nil {
		st = NewSaveState()
	}
	st.normalize()
	m.cancelAllTimers()
	m.state = st
	now := m.now()
	for _, qsd := range st.Quests {
		if qsd.State == quest.StateActive {
			// Elapsed time was folded in at save time; running-time
			// bookkeeping restarts from the restore moment.
			qsd.StartedAt = now
		}
	}
	m.ArmRestoredTimers()
}

// ArmRestoredTimers arms failure timers for restored active quests
// whose definitions have reached the loader cache. The engine calls it
// again after the post-restore preload so late-arriving definitions get
// their timers too.
func (m *Manager) ArmRestoredTimers() {
	for id, qsd := range m.state.Quests {
		if qsd.State != quest.StateActive {
			continue
		}
		if _, armed := m.failTimers[id]; armed {
			continue
		}
		if def, ok := m.loader.Get(id); ok {
			m.armFailureTimer(def, qsd)
		}
	}
}

// --- starting ---

// CanStartQuest evaluates start eligibility for a quest whose
// definition is already loaded. The reasons slice lists every failed
// requirement.
func (m *Manager) CanStartQuest(questID string) (bool, []string) {
	def, ok := m.loader.Get(questID)
	if !ok {
		return false, []string{"quest definition not loaded"}
	}
	return m.canStart(def)
}

func (m *Manager) canStart(def *quest.Definition) (bool, []string) {
	var reasons []string

	if qsd, ok := m.state.Quests[def.ID]; ok {
		switch qsd.State {
		case quest.StateActive:
			reasons = append(reasons, "quest is already active")
		case quest.StateCompleted:
			if !def.Repeatable() {
				reasons = append(reasons, "quest is already completed and not repeatable")
			}
		case quest.StateFailed:
			reasons = append(reasons, "quest has failed; retry it instead of starting it")
		}
	}

	for i := range def.Dependencies {
		reasons = append(reasons, m.dependencyProblems(&def.Dependencies[i])...)
	}

	return len(reasons) == 0, reasons
}

func (m *Manager) dependencyProblems(dep *quest.Dependency) []string {
	var reasons []string

	if dep.RequiredQuestID != "" {
		wantState := dep.RequiredQuestState
		if wantState == "" {
			wantState = quest.StateCompleted
		}
		if m.QuestState(dep.RequiredQuestID) != wantState {
			reasons = append(reasons, fmt.Sprintf("requires quest %q in state %s", dep.RequiredQuestID, wantState))
		}
	}
	if dep.RequiredLevel > 0 {
		if m.world == nil || m.world.PlayerLevel() < dep.RequiredLevel {
			reasons = append(reasons, fmt.Sprintf("requires level %d", dep.RequiredLevel))
		}
	}
	if len(dep.RequiredTags) > 0 && !m.state.GlobalTags.HasAll(dep.RequiredTags) {
		reasons = append(reasons, "missing required tags")
	}
	if len(dep.ForbiddenTags) > 0 && m.state.GlobalTags.HasAny(dep.ForbiddenTags) {
		reasons = append(reasons, "blocked by forbidden tags")
	}
	if dep.RequireTimeRange {
		if m.world == nil || !m.world.HourInRange(dep.TimeStart, dep.TimeEnd) {
			reasons = append(reasons, fmt.Sprintf("only available between %02d:00 and %02d:00", dep.TimeStart, dep.TimeEnd))
		}
	}
	if len(dep.RequiredWeather) > 0 {
		if m.world == nil || !dep.RequiredWeather.Has(m.world.Weather()) {
			reasons = append(reasons, "wrong weather")
		}
	}
	if dep.RequiredLocation != "" {
		if m.world == nil || m.world.Location() != dep.RequiredLocation {
			reasons = append(reasons, fmt.Sprintf("must be at %q", dep.RequiredLocation))
		}
	}
	if dep.RequireRelationship {
		if m.world == nil || m.world.Relationship(dep.RelationshipNpcID) < dep.MinRelationship {
			reasons = append(reasons, fmt.Sprintf("requires relationship %.0f with %q", dep.MinRelationship, dep.RelationshipNpcID))
		}
	}

	return reasons
}

// StartQuestAsync loads the definition (sharing any in-flight load),
// checks eligibility, and activates the quest. cb may be nil.
func (m *Manager) StartQuestAsync(questID string, cb StartCallback) {
	m.loader.LoadAsync(questID, func(def *quest.Definition) {
		if def == nil {
			logger.Warning("Quest start failed, definition not found", "quest", questID)
			if cb != nil {
				cb(false, []string{"quest definition not found"})
			}
			return
		}
		ok, reasons := m.canStart(def)
		if !ok {
			logger.Debug("Quest start blocked", "quest", questID, "reasons", reasons)
			if cb != nil {
				cb(false, reasons)
			}
			return
		}
		m.activate(def)
		if cb != nil {
			cb(true, nil)
		}
	})
}

func (m *Manager) activate(def *quest.Definition) {
	now := m.now()
	qsd, ok := m.state.Quests[def.ID]
	if ok {
		m.resetForRestart(def, qsd, now)
	} else {
		qsd = newQuestSaveData(def, now)
		m.state.Quests[def.ID] = qsd
	}

	logger.Info("Quest started", "quest", def.ID, "phase", qsd.CurrentPhaseID)
	m.armFailureTimer(def, qsd)

	m.publish(NotifyQuestStarted, def.ID, qsd.CurrentPhaseID, 0)
	m.publishStateChange(def.ID, quest.StateActive)

	if phase, ok := def.Phase(qsd.CurrentPhaseID); ok {
		m.enterPhase(def, qsd, phase)
	}
}

// resetForRestart rewinds an existing record to a fresh run. History
// survives: completion count, quest variables, and chosen branches
// carry over; only phase and objective progress resets.
func (m *Manager) resetForRestart(def *quest.Definition, qsd *QuestSaveData, now time.Time) {
	qsd.State = quest.StateActive
	qsd.StartedAt = now
	qsd.CompletedAt = time.Time{}
	qsd.ElapsedSeconds = 0
	if first, ok := def.FirstPhase(); ok {
		qsd.CurrentPhaseID = first.ID
	}
	for _, psd := range qsd.Phases {
		psd.EnteredAt = time.Time{}
		for _, osd := range psd.Objectives {
			osd.Progress = 0
			osd.Completed = false
			osd.StartedAt = time.Time{}
			osd.CompletedAt = time.Time{}
		}
	}
}

// enterPhase fires per-objective start signals for a freshly activated
// phase.
func (m *Manager) enterPhase(def *quest.Definition, qsd *QuestSaveData, phase *quest.Phase) {
	psd := qsd.Phases[phase.ID]
	if psd == nil {
		psd = &PhaseSaveData{Objectives: make(map[string]*ObjectiveSaveData)}
		qsd.Phases[phase.ID] = psd
	}
	psd.EnteredAt = m.now()

	for i := range phase.Objectives {
		obj := &phase.Objectives[i]
		osd := qsd.objective(phase.ID, obj.ID)
		if osd.StartedAt.IsZero() {
			osd.StartedAt = m.now()
		}
		m.processRewards(obj.Signals.OnStartRewards, def.ID)
		m.emitSignalEvents(obj.Signals.OnStartEvents, def.ID, obj.ID)
	}
}

// --- progress ---

// HandleEvent is installed as the bus broadcast hook. It scans every
// active quest's current phase for conditions the payload satisfies and
// applies progress, then checks failure conditions.
func (m *Manager) HandleEvent(p event.Payload) {
	if p.Tag == "" {
		return
	}

	for _, questID := range m.activeQuestIDs() {
		qsd := m.state.Quests[questID]
		def, ok := m.loader.Get(questID)
		if !ok {
			// Definition unloaded mid-session; the quest stays
			// frozen rather than crashing the scan.
			continue
		}

		if m.checkFailure(def, qsd, &p) {
			continue
		}

		phase, ok := def.Phase(qsd.CurrentPhaseID)
		if !ok {
			continue
		}
		m.scanPhase(def, qsd, phase, &p)
	}
}

// activeQuestIDs returns active quest ids sorted for deterministic scan
// order.
func (m *Manager) activeQuestIDs() []string {
	ids := make([]string, 0, len(m.state.Quests))
	for id, qsd := range m.state.Quests {
		if qsd.State == quest.StateActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) scanPhase(def *quest.Definition, qsd *QuestSaveData, phase *quest.Phase, p *event.Payload) {
	for i := range phase.Objectives {
		obj := &phase.Objectives[i]
		osd := qsd.objective(phase.ID, obj.ID)
		if osd.Completed {
			continue
		}
		if !gatesOpen(obj.Gates, m.world, m.state.GlobalTags) {
			continue
		}
		for j := range obj.Conditions {
			if matchCondition(&obj.Conditions[j], p, m.resolver, m.world) {
				m.applyProgress(def, qsd, phase, obj, osd, progressAmount(p))
				break
			}
		}
		// Progress may have completed the phase and moved the quest
		// on; stop scanning a phase that is no longer current.
		if qsd.State != quest.StateActive || qsd.CurrentPhaseID != phase.ID {
			return
		}
	}
}

func (m *Manager) checkFailure(def *quest.Definition, qsd *QuestSaveData, p *event.Payload) bool {
	policy := &def.FailurePolicy
	switch policy.Type {
	case quest.FailureOnCondition:
		if policy.FailureCondition != nil && matchCondition(policy.FailureCondition, p, m.resolver, m.world) {
			return m.FailQuest(def.ID)
		}
	case quest.FailureOnEvent:
		if policy.FailureEventTag != "" && p.Tag == policy.FailureEventTag {
			return m.FailQuest(def.ID)
		}
	}
	return false
}

// UpdateObjectiveProgress adds delta to an objective's counter in the
// quest's current phase. Returns false for unknown ids or inactive
// quests.
func (m *Manager) UpdateObjectiveProgress(questID, objectiveID string, delta int) bool {
	def, qsd, phase, obj, osd, ok := m.lookupObjective(questID, objectiveID)
	if !ok || osd.Completed {
		return false
	}
	m.applyProgress(def, qsd, phase, obj, osd, delta)
	return true
}

// SetObjectiveProgress sets an objective's counter to an absolute
// value.
func (m *Manager) SetObjectiveProgress(questID, objectiveID string, value int) bool {
	def, qsd, phase, obj, osd, ok := m.lookupObjective(questID, objectiveID)
	if !ok || osd.Completed {
		return false
	}
	if value < 0 {
		value = 0
	}
	m.applyProgress(def, qsd, phase, obj, osd, value-osd.Progress)
	return true
}

// CompleteObjective forces an objective to its target.
func (m *Manager) CompleteObjective(questID, objectiveID string) bool {
	def, qsd, phase, obj, osd, ok := m.lookupObjective(questID, objectiveID)
	if !ok || osd.Completed {
		return false
	}
	m.applyProgress(def, qsd, phase, obj, osd, obj.Counter.Target()-osd.Progress)
	return true
}

func (m *Manager) lookupObjective(questID, objectiveID string) (*quest.Definition, *QuestSaveData, *quest.Phase, *quest.Objective, *ObjectiveSaveData, bool) {
	qsd, ok := m.state.Quests[questID]
	if !ok || qsd.State != quest.StateActive {
		return nil, nil, nil, nil, nil, false
	}
	def, ok := m.loader.Get(questID)
	if !ok {
		return nil, nil, nil, nil, nil, false
	}
	phase, ok := def.Phase(qsd.CurrentPhaseID)
	if !ok {
		return nil, nil, nil, nil, nil, false
	}
	obj, ok := phase.Objective(objectiveID)
	if !ok {
		return nil, nil, nil, nil, nil, false
	}
	return def, qsd, phase, obj, qsd.objective(phase.ID, obj.ID), true
}

// applyProgress is the single funnel every progress mutation goes
// through; objective completion, phase completion, and quest completion
// all cascade from here.
func (m *Manager) applyProgress(def *quest.Definition, qsd *QuestSaveData, phase *quest.Phase, obj *quest.Objective, osd *ObjectiveSaveData, amount int) {
	if amount == 0 {
		return
	}
	target := obj.Counter.Target()

	osd.Progress += amount
	if osd.Progress < 0 {
		osd.Progress = 0
	}
	if !obj.Counter.AllowOvercount && osd.Progress > target {
		osd.Progress = target
	}

	m.processRewards(obj.Signals.OnUpdateRewards, def.ID)
	m.emitSignalEvents(obj.Signals.OnUpdateEvents, def.ID, obj.ID)
	m.publish(NotifyObjectiveUpdated, def.ID, obj.ID, osd.Progress)

	if osd.Progress >= target {
		m.completeObjective(def, qsd, phase, obj, osd)
	}
}

func (m *Manager) completeObjective(def *quest.Definition, qsd *QuestSaveData, phase *quest.Phase, obj *quest.Objective, osd *ObjectiveSaveData) {
	osd.Completed = true
	osd.CompletedAt = m.now()

	logger.Debug("Objective completed", "quest", def.ID, "objective", obj.ID)

	// Objective rewards land before any phase rewards.
	m.processRewards(obj.Signals.OnCompleteRewards, def.ID)
	m.emitSignalEvents(obj.Signals.OnCompleteEvents, def.ID, obj.ID)
	m.publish(NotifyObjectiveComplete, def.ID, obj.ID, osd.Progress)

	if m.phaseSatisfied(qsd, phase) {
		m.onPhaseSatisfied(def, qsd, phase)
	}
}

// phaseSatisfied applies the completion rule: every non-optional,
// non-hidden objective done, or any single objective done when the
// phase does not require all.
func (m *Manager) phaseSatisfied(qsd *QuestSaveData, phase *quest.Phase) bool {
	psd := qsd.Phases[phase.ID]
	if psd == nil {
		return false
	}
	anyDone := false
	for i := range phase.Objectives {
		obj := &phase.Objectives[i]
		osd := psd.Objectives[obj.ID]
		done := osd != nil && osd.Completed
		if done {
			anyDone = true
		}
		if phase.RequireAllObjectives && !obj.Optional && !obj.Hidden && !done {
			return false
		}
	}
	if phase.RequireAllObjectives {
		return true
	}
	return anyDone
}

func (m *Manager) onPhaseSatisfied(def *quest.Definition, qsd *QuestSaveData, phase *quest.Phase) {
	next := m.resolveNextPhase(qsd, &phase.Transition)
	if next == "" {
		m.finishPhase(def, qsd, phase, "")
		m.completeQuest(def, qsd)
		return
	}

	if !phase.Transition.AutoAdvance {
		// Waits for an explicit AdvanceToNextPhase call.
		return
	}
	if phase.Transition.AutoAdvanceDelay > 0 && m.sched != nil {
		questID := def.ID
		phaseID := phase.ID
		delay := time.Duration(phase.Transition.AutoAdvanceDelay * float64(time.Second))
		m.advanceTimers[questID] = m.sched.ScheduleAfter(m.now(), delay, func() {
			delete(m.advanceTimers, questID)
			qsd, ok := m.state.Quests[questID]
			if !ok || qsd.State != quest.StateActive || qsd.CurrentPhaseID != phaseID {
				return
			}
			m.transitionPhase(def, qsd, phase, m.resolveNextPhase(qsd, &phase.Transition))
		})
		return
	}
	m.transitionPhase(def, qsd, phase, next)
}

// resolveNextPhase consults the branch table against global tags before
// falling back to the linear next phase. Branch tags are evaluated in
// sorted order so ties resolve deterministically.
func (m *Manager) resolveNextPhase(qsd *QuestSaveData, tr *quest.Transition) string {
	if len(tr.Branches) > 0 {
		branchTags := make([]tag.Tag, 0, len(tr.Branches))
		for t := range tr.Branches {
			branchTags = append(branchTags, t)
		}
		sort.Slice(branchTags, func(i, j int) bool { return branchTags[i] < branchTags[j] })
		for _, t := range branchTags {
			if m.state.GlobalTags.Has(t) {
				qsd.ChosenBranches = append(qsd.ChosenBranches, string(t))
				return tr.Branches[t]
			}
		}
	}
	return tr.NextPhaseID
}

// finishPhase processes the old phase's rewards and raises the single
// phase-changed notification. nextID is empty when the quest is ending.
func (m *Manager) finishPhase(def *quest.Definition, qsd *QuestSaveData, oldPhase *quest.Phase, nextID string) {
	m.processRewards(oldPhase.Rewards, def.ID)
	m.publish(NotifyPhaseChanged, def.ID, oldPhase.ID, 0)
	logger.Info("Quest phase finished", "quest", def.ID, "phase", oldPhase.ID, "next", nextID)
}

func (m *Manager) transitionPhase(def *quest.Definition, qsd *QuestSaveData, oldPhase *quest.Phase, nextID string) {
	if nextID == "" {
		m.finishPhase(def, qsd, oldPhase, "")
		m.completeQuest(def, qsd)
		return
	}
	nextPhase, ok := def.Phase(nextID)
	if !ok {
		logger.Error("Phase transition target missing", "quest", def.ID, "phase", nextID)
		return
	}
	m.finishPhase(def, qsd, oldPhase, nextID)
	qsd.CurrentPhaseID = nextID
	m.enterPhase(def, qsd, nextPhase)
}

// AdvanceToNextPhase forces the active quest out of its current phase,
// whether or not its objectives are complete. With no next phase the
// quest completes.
func (m *Manager) AdvanceToNextPhase(questID string) bool {
	qsd, ok := m.state.Quests[questID]
	if !ok || qsd.State != quest.StateActive {
		return false
	}
	def, ok := m.loader.Get(questID)
	if !ok {
		return false
	}
	phase, ok := def.Phase(qsd.CurrentPhaseID)
	if !ok {
		return false
	}
	m.transitionPhase(def, qsd, phase, m.resolveNextPhase(qsd, &phase.Transition))
	return true
}

// SetQuestPhase jumps an active quest directly to a phase. The outgoing
// phase's rewards are processed as for a normal transition; skipped
// intermediate phases get nothing.
func (m *Manager) SetQuestPhase(questID, phaseID string) bool {
	qsd, ok := m.state.Quests[questID]
	if !ok || qsd.State != quest.StateActive {
		return false
	}
	def, ok := m.loader.Get(questID)
	if !ok {
		return false
	}
	phase, ok := def.Phase(phaseID)
	if !ok {
		return false
	}
	if oldPhase, ok := def.Phase(qsd.CurrentPhaseID); ok {
		m.finishPhase(def, qsd, oldPhase, phaseID)
	} else {
		m.publish(NotifyPhaseChanged, questID, qsd.CurrentPhaseID, 0)
	}
	qsd.CurrentPhaseID = phaseID
	m.enterPhase(def, qsd, phase)
	return true
}

// --- terminal transitions ---

// CompleteQuest finishes an active quest immediately, granting its
// completion rewards.
func (m *Manager) CompleteQuest(questID string) bool {
	qsd, ok := m.state.Quests[questID]
	if !ok || qsd.State != quest.StateActive {
		return false
	}
	def, ok := m.loader.Get(questID)
	if !ok {
		return false
	}
	m.completeQuest(def, qsd)
	return true
}

func (m *Manager) completeQuest(def *quest.Definition, qsd *QuestSaveData) {
	now := m.now()
	qsd.State = quest.StateCompleted
	qsd.CompletedAt = now
	qsd.CompletionCount++
	if !qsd.StartedAt.IsZero() {
		qsd.ElapsedSeconds += now.Sub(qsd.StartedAt).Seconds()
	}
	m.cancelTimers(def.ID)

	logger.Info("Quest completed", "quest", def.ID, "completions", qsd.CompletionCount)

	m.processRewards(def.RewardsOnComplete, def.ID)
	m.publish(NotifyQuestCompleted, def.ID, "", qsd.CompletionCount)
	m.publishStateChange(def.ID, quest.StateCompleted)
}

// FailQuest fails an active quest, applying its failure policy's
// progress reset and granting failure rewards (consolation entries).
func (m *Manager) FailQuest(questID string) bool {
	qsd, ok := m.state.Quests[questID]
	if !ok || qsd.State != quest.StateActive {
		return false
	}
	def, ok := m.loader.Get(questID)
	if !ok {
		return false
	}

	now := m.now()
	qsd.State = quest.StateFailed
	if !qsd.StartedAt.IsZero() {
		qsd.ElapsedSeconds += now.Sub(qsd.StartedAt).Seconds()
	}
	m.cancelTimers(questID)
	m.resetProgressOnFail(def, qsd)

	logger.Info("Quest failed", "quest", questID)

	m.processRewards(def.RewardsOnFail, questID)
	m.publish(NotifyQuestFailed, questID, "", 0)
	m.publishStateChange(questID, quest.StateFailed)
	return true
}

// resetProgressOnFail zeroes counters: all of them when the failure
// policy says so, otherwise only objectives whose counter opted in.
func (m *Manager) resetProgressOnFail(def *quest.Definition, qsd *QuestSaveData) {
	resetAll := def.FailurePolicy.ResetProgressOnFail
	for i := range def.Phases {
		phase := &def.Phases[i]
		psd := qsd.Phases[phase.ID]
		if psd == nil {
			continue
		}
		for j := range phase.Objectives {
			obj := &phase.Objectives[j]
			if !resetAll && !obj.Counter.ResetOnFail {
				continue
			}
			if osd := psd.Objectives[obj.ID]; osd != nil {
				osd.Progress = 0
				osd.Completed = false
				osd.CompletedAt = time.Time{}
			}
		}
	}
	if resetAll {
		if first, ok := def.FirstPhase(); ok {
			qsd.CurrentPhaseID = first.ID
		}
	}
}

// AbandonQuest drops an active quest without rewards or penalties. It
// can be started again later.
func (m *Manager) AbandonQuest(questID string) bool {
	qsd, ok := m.state.Quests[questID]
	if !ok || qsd.State != quest.StateActive {
		return false
	}
	qsd.State = quest.StateAbandoned
	m.cancelTimers(questID)

	logger.Info("Quest abandoned", "quest", questID)
	m.publishStateChange(questID, quest.StateAbandoned)
	return true
}

// RetryQuest reactivates a failed quest when its failure policy allows
// retries, keeping whatever progress survived the failure reset.
func (m *Manager) RetryQuest(questID string) bool {
	qsd, ok := m.state.Quests[questID]
	if !ok || qsd.State != quest.StateFailed {
		return false
	}
	def, ok := m.loader.Get(questID)
	if !ok {
		return false
	}
	if !def.FailurePolicy.AllowRetry {
		logger.Debug("Quest retry refused", "quest", questID)
		return false
	}

	qsd.State = quest.StateActive
	qsd.StartedAt = m.now()
	// The time limit starts over on retry.
	qsd.ElapsedSeconds = 0
	m.armFailureTimer(def, qsd)

	logger.Info("Quest retried", "quest", questID, "phase", qsd.CurrentPhaseID)
	m.publishStateChange(questID, quest.StateActive)
	return true
}

// RemoveQuestData erases all runtime state for a quest, returning it to
// not-started. Debug and content-iteration tool.
func (m *Manager) RemoveQuestData(questID string) bool {
	if _, ok := m.state.Quests[questID]; !ok {
		return false
	}
	m.cancelTimers(questID)
	delete(m.state.Quests, questID)
	logger.Info("Quest data removed", "quest", questID)
	return true
}

// --- timers ---

func (m *Manager) armFailureTimer(def *quest.Definition, qsd *QuestSaveData) {
	if m.sched == nil || def.FailurePolicy.Type != quest.FailureTimeLimit || def.FailurePolicy.TimeLimit <= 0 {
		return
	}
	questID := def.ID
	remaining := def.FailurePolicy.TimeLimit - qsd.ElapsedSeconds
	if remaining <= 0 {
		remaining = 0
	}
	m.failTimers[questID] = m.sched.ScheduleAfter(m.now(), time.Duration(remaining*float64(time.Second)), func() {
		delete(m.failTimers, questID)
		m.FailQuest(questID)
	})
}

func (m *Manager) cancelTimers(questID string) {
	if m.sched == nil {
		return
	}
	if id, ok := m.failTimers[questID]; ok {
		m.sched.Cancel(id)
		delete(m.failTimers, questID)
	}
	if id, ok := m.advanceTimers[questID]; ok {
		m.sched.Cancel(id)
		delete(m.advanceTimers, questID)
	}
}

func (m *Manager) cancelAllTimers() {
	for id := range m.failTimers {
		m.cancelTimers(id)
	}
	for id := range m.advanceTimers {
		m.cancelTimers(id)
	}
}

// --- queries ---

// QuestState returns the lifecycle state; unknown quests are
// not-started.
func (m *Manager) QuestState(questID string) quest.State {
	if qsd, ok := m.state.Quests[questID]; ok {
		return qsd.State
	}
	return quest.StateNotStarted
}

// QuestsByState returns quest ids in a given state, sorted.
func (m *Manager) QuestsByState(state quest.State) []string {
	var ids []string
	for id, qsd := range m.state.Quests {
		if qsd.State == state {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ActiveQuests returns the ids of all active quests, sorted.
func (m *Manager) ActiveQuests() []string {
	return m.QuestsByState(quest.StateActive)
}

// CurrentPhase returns the active phase id, empty for unknown or
// not-started quests.
func (m *Manager) CurrentPhase(questID string) string {
	if qsd, ok := m.state.Quests[questID]; ok {
		return qsd.CurrentPhaseID
	}
	return ""
}

// ObjectiveProgress returns current and target counts for an objective
// in the quest's current phase. Zeroes for unknown ids.
func (m *Manager) ObjectiveProgress(questID, objectiveID string) (current, target int) {
	qsd, ok := m.state.Quests[questID]
	if !ok {
		return 0, 0
	}
	def, ok := m.loader.Get(questID)
	if !ok {
		return 0, 0
	}
	phase, ok := def.Phase(qsd.CurrentPhaseID)
	if !ok {
		return 0, 0
	}
	obj, ok := phase.Objective(objectiveID)
	if !ok {
		return 0, 0
	}
	if psd := qsd.Phases[phase.ID]; psd != nil {
		if osd := psd.Objectives[objectiveID]; osd != nil {
			return osd.Progress, obj.Counter.Target()
		}
	}
	return 0, obj.Counter.Target()
}

// --- tags and variables ---

// GrantGlobalTag adds a tag to the persistent global set.
func (m *Manager) GrantGlobalTag(t tag.Tag) {
	if t == "" {
		return
	}
	m.state.GlobalTags.Add(t)
}

// RevokeGlobalTag removes a tag from the global set.
func (m *Manager) RevokeGlobalTag(t tag.Tag) {
	m.state.GlobalTags.Remove(t)
}

// HasGlobalTag reports whether the global set carries a tag.
func (m *Manager) HasGlobalTag(t tag.Tag) bool {
	return m.state.GlobalTags.Has(t)
}

// SetGlobalVariable stores a persistent key/value visible to all
// quests.
func (m *Manager) SetGlobalVariable(key, value string) {
	m.state.Variables[key] = value
}

// GlobalVariable reads a persistent global value.
func (m *Manager) GlobalVariable(key string) (string, bool) {
	v, ok := m.state.Variables[key]
	return v, ok
}

// SetQuestVariable stores a per-quest key/value. Returns false for
// unknown quests.
func (m *Manager) SetQuestVariable(questID, key, value string) bool {
	qsd, ok := m.state.Quests[questID]
	if !ok {
		return false
	}
	if qsd.Variables == nil {
		qsd.Variables = make(map[string]string)
	}
	qsd.Variables[key] = value
	return true
}

// QuestVariable reads a per-quest value.
func (m *Manager) QuestVariable(questID, key string) (string, bool) {
	qsd, ok := m.state.Quests[questID]
	if !ok {
		return "", false
	}
	v, ok := qsd.Variables[key]
	return v, ok
}

// SetObjectiveCustomData attaches host-defined data to an objective in
// the quest's current phase.
func (m *Manager) SetObjectiveCustomData(questID, objectiveID, key, value string) bool {
	qsd, ok := m.state.Quests[questID]
	if !ok {
		return false
	}
	osd := qsd.objective(qsd.CurrentPhaseID, objectiveID)
	if osd.CustomData == nil {
		osd.CustomData = make(map[string]string)
	}
	osd.CustomData[key] = value
	return true
}

// --- plumbing ---

func (m *Manager) processRewards(set quest.RewardSet, questID string) {
	if set.IsEmpty() {
		return
	}
	for t := range set.GrantedTags {
		m.state.GlobalTags.Add(t)
	}
	if m.rewards != nil {
		m.rewards.Process(set, questID)
	}
}

func (m *Manager) emitSignalEvents(tags tag.Set, questID, objectiveID string) {
	if m.bus == nil {
		return
	}
	for _, t := range tags.List() {
		m.bus.Publish(event.Payload{Tag: t, StringParam: questID, StringParam2: objectiveID})
	}
}

func (m *Manager) publish(t tag.Tag, questID, secondary string, n int) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(event.Payload{Tag: t, StringParam: questID, StringParam2: secondary, IntParam: n})
}

func (m *Manager) publishStateChange(questID string, state quest.State) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(event.Payload{Tag: NotifyQuestStateChanged, StringParam: questID, StringParam2: string(state)})
}

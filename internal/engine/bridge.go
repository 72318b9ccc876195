package engine

import (
	"github.com/lanternvale/questline/internal/event"
	"github.com/lanternvale/questline/internal/logger"
	"github.com/lanternvale/questline/internal/progress"
	"github.com/lanternvale/questline/internal/quest"
	"github.com/lanternvale/questline/internal/tag"
)

// syncWorld absorbs world-state events into the engine's world model.
// Hosts that mutate a shared World directly before publishing get the
// same end state; the absorb is idempotent.
func (e *Engine) syncWorld(p event.Payload) {
	switch p.Tag {
	case TagWeatherChanged:
		if p.StringParam != "" {
			e.world.SetWeather(tag.Tag(p.StringParam))
		}
	case TagAreaEntered:
		if p.StringParam != "" {
			e.world.SetLocation(p.StringParam)
		}
	case TagRelationshipChanged:
		if p.StringParam != "" {
			e.world.SetRelationship(p.StringParam, p.FloatParam)
		}
	case TagTimeReached:
		e.world.Clock.SetHour(p.IntParam)
	}
}

// wireStartPolicies subscribes a watcher per quest whose start policy
// names a trigger, so the quest begins without the host calling
// StartQuestAsync itself. Manual quests get no watcher.
func (e *Engine) wireStartPolicies() {
	for _, def := range e.registry.All() {
		e.wireStartPolicy(def)
	}
}

func (e *Engine) wireStartPolicy(def *quest.Definition) {
	policy := def.StartPolicy
	questID := def.ID
	owner := "startpolicy:" + questID

	switch policy.Type {
	case quest.StartAutoOnCondition:
		cond := policy.AutoStartCondition
		if cond == nil || cond.EventTag == "" {
			logger.Warning("Quest has auto_on_condition start policy but no usable condition", "quest", questID)
			return
		}
		e.bus.Subscribe(cond.EventTag, owner, func(p event.Payload) {
			if progress.MatchCondition(cond, &p, e.resolver, e.world) {
				e.tryAutoStart(questID)
			}
		})

	case quest.StartOnItemPickup:
		e.bus.Subscribe(TagItemAcquired, owner, func(p event.Payload) {
			if policy.TriggerItemID == "" || p.StringParam == policy.TriggerItemID {
				e.tryAutoStart(questID)
			}
		})

	case quest.StartOnDialogue:
		e.bus.Subscribe(TagDialogueChoice, owner, func(p event.Payload) {
			if policy.DialogueNodeID == "" || p.StringParam == policy.DialogueNodeID {
				e.tryAutoStart(questID)
			}
		})

	case quest.StartOnTriggerVolume:
		e.bus.Subscribe(TagAreaEntered, owner, func(p event.Payload) {
			if policy.TriggerVolumeTag != "" && p.Tags.Has(policy.TriggerVolumeTag) {
				e.tryAutoStart(questID)
			}
		})

	case quest.StartOnScheduleEvent:
		if policy.ScheduleEventTag == "" {
			logger.Warning("Quest has on_schedule_event start policy but no event tag", "quest", questID)
			return
		}
		e.bus.Subscribe(policy.ScheduleEventTag, owner, func(p event.Payload) {
			e.tryAutoStart(questID)
		})
	}
}

// tryAutoStart starts a quest from a trigger. Already-active quests
// are skipped quietly; eligibility failures are logged at debug since
// triggers fire constantly in normal play.
func (e *Engine) tryAutoStart(questID string) {
	if e.progress.QuestState(questID) == quest.StateActive {
		return
	}
	e.progress.StartQuestAsync(questID, func(started bool, reasons []string) {
		if started {
			logger.Info("Auto-started quest", "quest", questID)
		} else {
			logger.Debug("Auto-start declined", "quest", questID, "reasons", reasons)
		}
	})
}

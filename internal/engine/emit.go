package engine

import (
	"github.com/lanternvale/questline/internal/event"
	"github.com/lanternvale/questline/internal/tag"
)

// Canonical event tags published by the convenience emitters. Hosts
// with their own taxonomy can publish raw payloads instead; conditions
// only ever compare tags for equality.
const (
	TagItemAcquired        tag.Tag = "Quest.Event.Item.Acquired"
	TagItemUsed            tag.Tag = "Quest.Event.Item.Used"
	TagNpcTalked           tag.Tag = "Quest.Event.Npc.Talked"
	TagDialogueChoice      tag.Tag = "Quest.Event.Dialogue.Choice"
	TagAreaEntered         tag.Tag = "Quest.Event.Area.Entered"
	TagActorKilled         tag.Tag = "Quest.Event.Actor.Killed"
	TagTimeReached         tag.Tag = "Quest.Event.Time.Reached"
	TagDayChanged          tag.Tag = "Quest.Event.Time.DayChanged"
	TagWeatherChanged      tag.Tag = "Quest.Event.Weather.Changed"
	TagRelationshipChanged tag.Tag = "Quest.Event.Relationship.Changed"
)

// EmitItemAcquired announces an item pickup. count <= 0 counts as one.
func (e *Engine) EmitItemAcquired(itemID string, count int, instigator event.ActorRef) {
	e.bus.Publish(event.Payload{
		Tag:         TagItemAcquired,
		StringParam: itemID,
		IntParam:    count,
		Instigator:  instigator,
	})
}

// EmitItemUsed announces an item being consumed or activated.
func (e *Engine) EmitItemUsed(itemID string, instigator event.ActorRef) {
	e.bus.Publish(event.Payload{
		Tag:         TagItemUsed,
		StringParam: itemID,
		Instigator:  instigator,
	})
}

// EmitNpcTalked announces a conversation starting with an NPC.
func (e *Engine) EmitNpcTalked(npcID string, npc event.ActorRef) {
	e.bus.Publish(event.Payload{
		Tag:         TagNpcTalked,
		StringParam: npcID,
		Target:      npc,
	})
}

// EmitDialogueChoice announces a dialogue node choice; nodeID is the
// node, choiceID the option picked.
func (e *Engine) EmitDialogueChoice(nodeID, choiceID string) {
	e.bus.Publish(event.Payload{
		Tag:          TagDialogueChoice,
		StringParam:  nodeID,
		StringParam2: choiceID,
	})
}

// EmitEnterArea announces the player entering an area. Extra context
// tags (trigger volumes, region flags) travel in tags.
func (e *Engine) EmitEnterArea(areaID string, tags tag.Set) {
	e.bus.Publish(event.Payload{
		Tag:         TagAreaEntered,
		StringParam: areaID,
		Tags:        tags,
	})
}

// EmitActorKilled announces a kill; tags carry the victim's type tags.
func (e *Engine) EmitActorKilled(victimID string, victim event.ActorRef, tags tag.Set) {
	e.bus.Publish(event.Payload{
		Tag:         TagActorKilled,
		StringParam: victimID,
		Target:      victim,
		Tags:        tags,
	})
}

// EmitTimeReached announces the game clock reaching an hour.
func (e *Engine) EmitTimeReached(hour int) {
	e.bus.Publish(event.Payload{
		Tag:      TagTimeReached,
		IntParam: hour,
	})
}

// EmitDayChanged announces a new game day.
func (e *Engine) EmitDayChanged(day int) {
	e.bus.Publish(event.Payload{
		Tag:      TagDayChanged,
		IntParam: day,
	})
}

// EmitWeatherChanged announces new weather, identified by tag.
func (e *Engine) EmitWeatherChanged(weather tag.Tag) {
	e.bus.Publish(event.Payload{
		Tag:         TagWeatherChanged,
		StringParam: string(weather),
	})
}

// EmitRelationshipChanged announces an NPC relationship reaching a new
// value.
func (e *Engine) EmitRelationshipChanged(npcID string, value float64) {
	e.bus.Publish(event.Payload{
		Tag:         TagRelationshipChanged,
		StringParam: npcID,
		FloatParam:  value,
	})
}

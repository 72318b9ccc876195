package progress

import (
	"github.com/lanternvale/questline/internal/event"
	"github.com/lanternvale/questline/internal/gametime"
	"github.com/lanternvale/questline/internal/quest"
	"github.com/lanternvale/questline/internal/tag"
)

// ActorResolver maps an actor ref back to a content identifier, letting
// conditions match events whose id travels on an actor instead of a
// string param. The host game supplies it; nil disables the fallback.
type ActorResolver interface {
	ActorID(ref event.ActorRef) string
}

// MatchCondition reports whether a payload satisfies a condition.
// Exposed for start-policy evaluation outside the objective scan.
func MatchCondition(c *quest.Condition, p *event.Payload, resolver ActorResolver, world gametime.WorldState) bool {
	return matchCondition(c, p, resolver, world)
}

// matchCondition reports whether a payload satisfies a condition. The
// event tag comparison is exact, and an empty condition tag never
// matches anything regardless of Invert.
func matchCondition(c *quest.Condition, p *event.Payload, resolver ActorResolver, world gametime.WorldState) bool {
	if c.EventTag == "" {
		return false
	}
	if p.Tag != c.EventTag {
		return false
	}

	matched := matchFilters(c, p, resolver, world)
	if c.Invert {
		return !matched
	}
	return matched
}

func matchFilters(c *quest.Condition, p *event.Payload, resolver ActorResolver, world gametime.WorldState) bool {
	if !matchID(c.ItemID, p, resolver) {
		return false
	}
	if !matchID(c.NpcID, p, resolver) {
		return false
	}
	if !matchID(c.AreaID, p, resolver) {
		return false
	}
	if c.DialogueID != "" && p.StringParam != c.DialogueID && p.StringParam2 != c.DialogueID {
		return false
	}

	if len(c.RequiredTags) > 0 && !p.Tags.HasAll(c.RequiredTags) {
		return false
	}

	if c.Count > 0 && p.IntParam < c.Count {
		return false
	}
	if c.ThresholdValue != 0 && p.FloatParam < c.ThresholdValue {
		return false
	}

	if (c.TimeRangeStart != 0 || c.TimeRangeEnd != 0) && world != nil {
		if !world.HourInRange(c.TimeRangeStart, c.TimeRangeEnd) {
			return false
		}
	}

	return true
}

// matchID checks an id filter against the payload's string param. The
// actor-resolver fallback (target, then instigator) applies only when
// the payload carries no explicit id at all; a non-matching explicit id
// is a rejection.
func matchID(want string, p *event.Payload, resolver ActorResolver) bool {
	if want == "" {
		return true
	}
	if p.StringParam != "" {
		return p.StringParam == want
	}
	if resolver != nil {
		if p.Target.IsValid() && resolver.ActorID(p.Target) == want {
			return true
		}
		if p.Instigator.IsValid() && resolver.ActorID(p.Instigator) == want {
			return true
		}
	}
	return false
}

// progressAmount is how much a matching event contributes: the payload's
// IntParam when positive, otherwise one.
func progressAmount(p *event.Payload) int {
	if p.IntParam > 0 {
		return p.IntParam
	}
	return 1
}

// gateOpen reports whether a gate currently admits progress.
func gateOpen(g *quest.Gate, world gametime.WorldState, globalTags tag.Set) bool {
	if g.RequireTimeOfDay {
		if world == nil || !world.HourInRange(g.TimeStart, g.TimeEnd) {
			return false
		}
	}
	if g.RequireWeather {
		if world == nil || !g.RequiredWeather.Has(world.Weather()) {
			return false
		}
	}
	if g.RequireLocation {
		if world == nil || world.Location() != g.RequiredLocation {
			return false
		}
	}
	if g.RequireRelationship {
		if world == nil || world.Relationship(g.RelationshipNpcID) < g.MinRelationship {
			return false
		}
	}
	if len(g.RequiredTags) > 0 && !globalTags.HasAll(g.RequiredTags) {
		return false
	}
	return true
}

// gatesOpen requires every gate on an objective to admit progress.
func gatesOpen(gates []quest.Gate, world gametime.WorldState, globalTags tag.Set) bool {
	for i := range gates {
		if !gateOpen(&gates[i], world, globalTags) {
			return false
		}
	}
	return true
}

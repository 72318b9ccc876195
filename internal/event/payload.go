// Package event implements the tagged event bus that game systems publish
// to and the quest engine consumes from.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/lanternvale/questline/internal/tag"
)

// ActorRef is an opaque handle to a world actor. The bus and the quest
// engine only ever compare refs for equality; they never own or extend
// actor lifetime.
type ActorRef struct {
	Key string
}

// IsValid reports whether the ref points at anything.
func (r ActorRef) IsValid() bool {
	return r.Key != ""
}

// Payload is the data packet published on the bus.
type Payload struct {
	// Tag is the required hierarchical event tag.
	Tag tag.Tag

	// StringParam carries the primary identifier (item id, NPC id, area
	// id, dialogue node id) depending on the event.
	StringParam string

	// StringParam2 carries a secondary identifier (e.g. a dialogue
	// choice id alongside the dialogue id).
	StringParam2 string

	// IntParam carries counts and amounts. A positive value sets the
	// progress contributed by a matching event.
	IntParam int

	// FloatParam carries values and thresholds.
	FloatParam float64

	// Tags carries additional context (weather, location, custom flags).
	Tags tag.Set

	Instigator ActorRef
	Target     ActorRef

	// ID and Timestamp are assigned by the bus on publish when unset.
	ID        string
	Timestamp time.Time
}

func (p *Payload) stamp(now time.Time) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = now
	}
}

package gametime

import (
	"sync"

	"github.com/lanternvale/questline/internal/tag"
)

// WorldState answers the environmental questions quest gates and start
// dependencies ask: what time it is, what the weather is, where the
// player is, and how NPCs feel about them. The host game supplies a
// live implementation; World below is a self-contained one driven by
// setters.
type WorldState interface {
	Hour() int
	HourInRange(start, end int) bool
	Weather() tag.Tag
	Location() string
	Relationship(npcID string) float64
	PlayerLevel() int
}

// World is the default WorldState: a game clock plus mutable weather,
// location, relationship, and level fields kept current by the engine's
// world-event subscriptions.
type World struct {
	Clock *GameClock

	mu            sync.RWMutex
	weather       tag.Tag
	location      string
	relationships map[string]float64
	playerLevel   int
}

func NewWorld() *World {
	return &World{
		Clock:         NewGameClock(),
		weather:       "Weather.Clear",
		relationships: make(map[string]float64),
		playerLevel:   1,
	}
}

func (w *World) Hour() int { return w.Clock.GetHour() }

func (w *World) HourInRange(start, end int) bool { return w.Clock.InRange(start, end) }

func (w *World) Weather() tag.Tag {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.weather
}

func (w *World) SetWeather(t tag.Tag) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.weather = t
}

func (w *World) Location() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.location
}

func (w *World) SetLocation(area string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.location = area
}

func (w *World) Relationship(npcID string) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.relationships[npcID]
}

func (w *World) SetRelationship(npcID string, value float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.relationships[npcID] = value
}

// AdjustRelationship shifts a relationship by delta and returns the new
// value.
func (w *World) AdjustRelationship(npcID string, delta float64) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.relationships[npcID] += delta
	return w.relationships[npcID]
}

func (w *World) PlayerLevel() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.playerLevel
}

func (w *World) SetPlayerLevel(level int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.playerLevel = level
}

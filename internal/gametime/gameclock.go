package gametime

import (
	"fmt"
	"sync"
)

const (
	// Time constants
	HoursPerDay = 24

	// Time periods
	DawnHour = 6
	DuskHour = 18
)

// GameClock tracks the in-game hour. Quest conditions and gates that
// carry a time range are checked against it.
type GameClock struct {
	currentHour int
	day         int
	mu          sync.RWMutex
}

func NewGameClock() *GameClock {
	return &GameClock{
		currentHour: 0, // Start at midnight
		day:         1,
	}
}

// GetHour returns the current game hour (0-23)
func (gc *GameClock) GetHour() int {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.currentHour
}

// GetDay returns the current game day, starting at 1
func (gc *GameClock) GetDay() int {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.day
}

// SetHour sets the game hour directly, clamping into 0-23
func (gc *GameClock) SetHour(hour int) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.currentHour = ((hour % HoursPerDay) + HoursPerDay) % HoursPerDay
}

// AdvanceHour increments the game hour, wrapping at 24. Returns true
// when the wrap rolled the clock into a new day.
func (gc *GameClock) AdvanceHour() bool {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.currentHour = (gc.currentHour + 1) % HoursPerDay
	if gc.currentHour == 0 {
		gc.day++
		return true
	}
	return false
}

// IsDay returns true if current hour is during day period (6:00-17:59)
func (gc *GameClock) IsDay() bool {
	hour := gc.GetHour()
	return hour >= DawnHour && hour < DuskHour
}

// IsNight returns true if current hour is during night period (18:00-5:59)
func (gc *GameClock) IsNight() bool {
	return !gc.IsDay()
}

// InRange reports whether the current hour falls inside [start, end).
// A range whose start exceeds its end wraps past midnight, so 20..4
// covers evening and early morning. Equal bounds cover the whole day.
func (gc *GameClock) InRange(start, end int) bool {
	hour := gc.GetHour()
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// GetTimeOfDay returns a string describing the current time period
func (gc *GameClock) GetTimeOfDay() string {
	hour := gc.GetHour()

	switch {
	case hour >= 0 && hour < 6:
		return "night"
	case hour >= 6 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 24:
		return "evening"
	default:
		return "day"
	}
}

// GetTimeString returns a formatted time string (e.g., "14:00" or "06:00")
func (gc *GameClock) GetTimeString() string {
	return fmt.Sprintf("%02d:00", gc.GetHour())
}

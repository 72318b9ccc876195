package progress

import (
	"time"

	"github.com/lanternvale/questline/internal/quest"
	"github.com/lanternvale/questline/internal/tag"
)

// SaveVersion is written into every save blob so future format changes
// can migrate old saves.
const SaveVersion = 1

// ObjectiveSaveData is the mutable progress of one objective.
type ObjectiveSaveData struct {
	Progress    int               `json:"progress"`
	Completed   bool              `json:"completed"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	CompletedAt time.Time         `json:"completed_at,omitempty"`
	CustomData  map[string]string `json:"custom_data,omitempty"`
}

// PhaseSaveData tracks per-objective progress inside one phase.
type PhaseSaveData struct {
	Objectives map[string]*ObjectiveSaveData `json:"objectives"`
	EnteredAt  time.Time                     `json:"entered_at,omitempty"`
}

// QuestSaveData is the complete runtime state of one quest.
type QuestSaveData struct {
	State          quest.State               `json:"state"`
	CurrentPhaseID string                    `json:"current_phase_id"`
	Phases         map[string]*PhaseSaveData `json:"phases"`

	StartedAt      time.Time `json:"started_at,omitempty"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds,omitempty"`

	// CompletionCount counts finishes of repeatable quests.
	CompletionCount int `json:"completion_count,omitempty"`

	Variables      map[string]string `json:"variables,omitempty"`
	ChosenBranches []string          `json:"chosen_branches,omitempty"`
}

// SaveState is everything the quest engine persists.
type SaveState struct {
	Version    int                       `json:"version"`
	Quests     map[string]*QuestSaveData `json:"quests"`
	GlobalTags tag.Set                   `json:"global_tags,omitempty"`
	Variables  map[string]string         `json:"variables,omitempty"`
	LastSaved  time.Time                 `json:"last_saved,omitempty"`
}

// NewSaveState returns an empty "new game" state.
func NewSaveState() *SaveState {
	return &SaveState{
		Version:    SaveVersion,
		Quests:     make(map[string]*QuestSaveData),
		GlobalTags: tag.NewSet(),
		Variables:  make(map[string]string),
	}
}

// normalize repairs nil maps after JSON decoding so callers never have
// to nil-check.
func (s *SaveState) normalize() {
	if s.Quests == nil {
		s.Quests = make(map[string]*QuestSaveData)
	}
	if s.GlobalTags == nil {
		s.GlobalTags = tag.NewSet()
	}
	if s.Variables == nil {
		s.Variables = make(map[string]string)
	}
	for _, qsd := range s.Quests {
		if qsd.Phases == nil {
			qsd.Phases = make(map[string]*PhaseSaveData)
		}
		for _, psd := range qsd.Phases {
			if psd.Objectives == nil {
				psd.Objectives = make(map[string]*ObjectiveSaveData)
			}
		}
	}
}

// newQuestSaveData builds fresh runtime state for a definition, with
// every phase and objective zeroed.
func newQuestSaveData(def *quest.Definition, now time.Time) *QuestSaveData {
	qsd := &QuestSaveData{
		State:     quest.StateActive,
		StartedAt: now,
		Phases:    make(map[string]*PhaseSaveData, len(def.Phases)),
		Variables: make(map[string]string),
	}
	for _, phase := range def.Phases {
		psd := &PhaseSaveData{Objectives: make(map[string]*ObjectiveSaveData, len(phase.Objectives))}
		for _, obj := range phase.Objectives {
			psd.Objectives[obj.ID] = &ObjectiveSaveData{}
		}
		qsd.Phases[phase.ID] = psd
	}
	if first, ok := def.FirstPhase(); ok {
		qsd.CurrentPhaseID = first.ID
	}
	return qsd
}

// objective returns the save record for an objective in the quest's
// current phase, creating it if the definition gained objectives since
// the save was written.
func (q *QuestSaveData) objective(phaseID, objectiveID string) *ObjectiveSaveData {
	psd, ok := q.Phases[phaseID]
	if !ok {
		psd = &PhaseSaveData{Objectives: make(map[string]*ObjectiveSaveData)}
		q.Phases[phaseID] = psd
	}
	osd, ok := psd.Objectives[objectiveID]
	if !ok {
		osd = &ObjectiveSaveData{}
		psd.Objectives[objectiveID] = osd
	}
	return osd
}

// Package quest defines immutable quest content: definitions, phases,
// objectives, conditions, and rewards. Definitions are authored in YAML,
// loaded into a registry, and shared read-only at runtime.
package quest

import "github.com/lanternvale/questline/internal/tag"

// State is the lifecycle state of a quest.
type State string

const (
	StateNotStarted State = "not_started"
	StateActive     State = "active"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateAbandoned  State = "abandoned"
)

// ObjectiveStyle describes what kind of goal an objective is. Style is
// informational (journal display, analytics); progress semantics come
// entirely from the objective's conditions.
type ObjectiveStyle string

const (
	StyleCollect  ObjectiveStyle = "collect"
	StyleKill     ObjectiveStyle = "kill"
	StyleTalk     ObjectiveStyle = "talk"
	StyleVisit    ObjectiveStyle = "visit"
	StyleUse      ObjectiveStyle = "use"
	StyleDeliver  ObjectiveStyle = "deliver"
	StyleCraft    ObjectiveStyle = "craft"
	StyleWait     ObjectiveStyle = "wait"
	StyleEscort   ObjectiveStyle = "escort"
	StyleDiscover ObjectiveStyle = "discover"
	StyleCustom   ObjectiveStyle = "custom"
)

// ObjectiveLogic describes how an objective's conditions combine.
// Only Count (independent per-objective counting) is implemented; the
// other values are accepted in content and treated as Count.
type ObjectiveLogic string

const (
	LogicAnd      ObjectiveLogic = "and"
	LogicOr       ObjectiveLogic = "or"
	LogicCount    ObjectiveLogic = "count"
	LogicSequence ObjectiveLogic = "sequence"
)

// StartPolicyType describes how a quest begins.
type StartPolicyType string

const (
	StartManual          StartPolicyType = "manual"
	StartAutoOnCondition StartPolicyType = "auto_on_condition"
	StartOnDialogue      StartPolicyType = "on_dialogue"
	StartOnItemPickup    StartPolicyType = "on_item_pickup"
	StartOnTriggerVolume StartPolicyType = "on_trigger_volume"
	StartOnScheduleEvent StartPolicyType = "on_schedule_event"
)

// FailureType describes what can fail a quest.
type FailureType string

const (
	FailureNone        FailureType = "none"
	FailureTimeLimit   FailureType = "time_limit"
	FailureOnCondition FailureType = "on_condition"
	FailureOnEvent     FailureType = "on_event"
)

// RewardKind selects which hook a reward dispatches to.
type RewardKind string

const (
	RewardGiveItem           RewardKind = "give_item"
	RewardGrantCurrency      RewardKind = "grant_currency"
	RewardModifyStat         RewardKind = "modify_stat"
	RewardModifyRelationship RewardKind = "modify_relationship"
	RewardUnlockDialogue     RewardKind = "unlock_dialogue"
	RewardUnlockRecipe       RewardKind = "unlock_recipe"
	RewardGrantTag           RewardKind = "grant_tag"
	RewardRunScriptEvent     RewardKind = "run_script_event"
	RewardRunEffect          RewardKind = "run_effect"
)

// Condition decides whether an incoming event contributes progress to an
// objective. The event tag comparison is exact; an empty tag never
// matches anything.
type Condition struct {
	EventTag tag.Tag `yaml:"event_tag"`

	// Identifier filters, compared against the payload's string param
	// (with an actor-resolver fallback for item/NPC ids).
	ItemID     string `yaml:"item_id"`
	NpcID      string `yaml:"npc_id"`
	AreaID     string `yaml:"area_id"`
	DialogueID string `yaml:"dialogue_id"`

	// RequiredTags must all be present on the payload.
	RequiredTags tag.Set `yaml:"required_tags"`

	// Numeric filters.
	Count          int     `yaml:"count"`
	ThresholdValue float64 `yaml:"threshold_value"`
	TimeRangeStart int     `yaml:"time_range_start"`
	TimeRangeEnd   int     `yaml:"time_range_end"`

	// Invert negates the final match result.
	Invert bool `yaml:"invert"`
}

// Gate restricts when an objective accepts progress, independent of the
// triggering condition.
type Gate struct {
	RequireTimeOfDay bool `yaml:"require_time_of_day"`
	TimeStart        int  `yaml:"time_start"`
	TimeEnd          int  `yaml:"time_end"`

	RequireWeather  bool    `yaml:"require_weather"`
	RequiredWeather tag.Set `yaml:"required_weather"`

	RequireLocation  bool   `yaml:"require_location"`
	RequiredLocation string `yaml:"required_location"`

	RequireRelationship bool    `yaml:"require_relationship"`
	RelationshipNpcID   string  `yaml:"relationship_npc_id"`
	MinRelationship     float64 `yaml:"min_relationship"`

	RequiredTags tag.Set `yaml:"required_tags"`
}

// Counter is an objective's progress target.
type Counter struct {
	TargetCount    int  `yaml:"target_count"`
	AllowOvercount bool `yaml:"allow_overcount"`
	ResetOnFail    bool `yaml:"reset_on_fail"`
}

// Reward is a single typed reward entry.
type Reward struct {
	Kind RewardKind `yaml:"kind"`

	ItemID string `yaml:"item_id"`
	Amount int    `yaml:"amount"`

	CurrencyAmount int `yaml:"currency_amount"`

	StatTag   tag.Tag `yaml:"stat_tag"`
	StatDelta float64 `yaml:"stat_delta"`

	NpcID             string  `yaml:"npc_id"`
	RelationshipDelta float64 `yaml:"relationship_delta"`

	DialogueBranchID string `yaml:"dialogue_branch_id"`
	RecipeID         string `yaml:"recipe_id"`

	GrantedTag tag.Tag `yaml:"granted_tag"`

	ScriptEvent string `yaml:"script_event"`
	EffectName  string `yaml:"effect_name"`
}

// RewardSet is a bundle of rewards plus tags granted together at a
// lifecycle milestone.
type RewardSet struct {
	Rewards     []Reward `yaml:"rewards"`
	GrantedTags tag.Set  `yaml:"granted_tags"`
}

// IsEmpty reports whether the set carries nothing.
func (rs RewardSet) IsEmpty() bool {
	return len(rs.Rewards) == 0 && len(rs.GrantedTags) == 0
}

// Signals are reward sets and event emissions fired during an
// objective's lifecycle.
type Signals struct {
	OnStartRewards    RewardSet `yaml:"on_start_rewards"`
	OnUpdateRewards   RewardSet `yaml:"on_update_rewards"`
	OnCompleteRewards RewardSet `yaml:"on_complete_rewards"`

	OnStartEvents    tag.Set `yaml:"on_start_events"`
	OnUpdateEvents   tag.Set `yaml:"on_update_events"`
	OnCompleteEvents tag.Set `yaml:"on_complete_events"`
}

// Objective is the smallest trackable unit of quest progress.
type Objective struct {
	ID          string         `yaml:"id"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`

	Style ObjectiveStyle `yaml:"style"`
	Logic ObjectiveLogic `yaml:"logic"`

	Conditions []Condition `yaml:"conditions"`
	Gates      []Gate      `yaml:"gates"`
	Counter    Counter     `yaml:"counter"`
	Signals    Signals     `yaml:"signals"`

	Optional bool `yaml:"optional"`
	Hidden   bool `yaml:"hidden"`
}

// Transition controls phase flow once a phase completes.
type Transition struct {
	// NextPhaseID is the phase activated on completion; empty ends the
	// quest.
	NextPhaseID string `yaml:"next_phase_id"`

	// Branches maps a granted tag to an alternative next phase. The
	// first branch whose tag is present in the save state's global tags
	// wins over NextPhaseID.
	Branches map[tag.Tag]string `yaml:"branches"`

	AutoAdvance      bool    `yaml:"auto_advance"`
	AutoAdvanceDelay float64 `yaml:"auto_advance_delay"`
}

// Phase is an ordered grouping of objectives within a quest.
type Phase struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`

	Objectives []Objective `yaml:"objectives"`
	Transition Transition  `yaml:"transition"`

	// RequireAllObjectives: all non-optional objectives must complete
	// (true) or any single completion suffices (false).
	RequireAllObjectives bool `yaml:"require_all_objectives"`

	Rewards RewardSet `yaml:"rewards"`
	Hidden  bool      `yaml:"hidden"`
}

// Dependency is a pre-condition on starting a quest.
type Dependency struct {
	RequiredQuestID    string `yaml:"required_quest_id"`
	RequiredQuestState State  `yaml:"required_quest_state"`

	RequiredLevel int `yaml:"required_level"`

	RequiredTags  tag.Set `yaml:"required_tags"`
	ForbiddenTags tag.Set `yaml:"forbidden_tags"`

	RequireTimeRange bool `yaml:"require_time_range"`
	TimeStart        int  `yaml:"time_start"`
	TimeEnd          int  `yaml:"time_end"`

	RequiredWeather tag.Set `yaml:"required_weather"`

	RequiredLocation string `yaml:"required_location"`

	RequireRelationship bool    `yaml:"require_relationship"`
	RelationshipNpcID   string  `yaml:"relationship_npc_id"`
	MinRelationship     float64 `yaml:"min_relationship"`
}

// StartPolicy describes how a quest is started.
type StartPolicy struct {
	Type StartPolicyType `yaml:"type"`

	// AutoStartCondition applies when Type is auto_on_condition.
	AutoStartCondition *Condition `yaml:"auto_start_condition"`

	DialogueNodeID   string  `yaml:"dialogue_node_id"`
	TriggerItemID    string  `yaml:"trigger_item_id"`
	TriggerVolumeTag tag.Tag `yaml:"trigger_volume_tag"`
	ScheduleEventTag tag.Tag `yaml:"schedule_event_tag"`
}

// FailurePolicy describes what fails a quest and whether it can be
// retried.
type FailurePolicy struct {
	Type FailureType `yaml:"type"`

	// TimeLimit in seconds, for time_limit failures.
	TimeLimit float64 `yaml:"time_limit"`

	FailureCondition *Condition `yaml:"failure_condition"`
	FailureEventTag  tag.Tag    `yaml:"failure_event_tag"`

	ResetProgressOnFail bool `yaml:"reset_progress_on_fail"`
	AllowRetry          bool `yaml:"allow_retry"`
}

// Meta is display and filtering metadata.
type Meta struct {
	Categories tag.Set `yaml:"categories"`
	QuestTags  tag.Set `yaml:"quest_tags"`

	Difficulty int  `yaml:"difficulty"`
	Repeatable bool `yaml:"repeatable"`
	Hidden     bool `yaml:"hidden"`
	MainQuest  bool `yaml:"main_quest"`
	Priority   int  `yaml:"priority"`

	// EstimatedDuration in minutes, for journal display.
	EstimatedDuration int `yaml:"estimated_duration"`
}

// Definition is a complete immutable quest. Created by content
// authoring, owned by the loader's cache, shared read-only.
type Definition struct {
	ID          string `yaml:"-"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Summary     string `yaml:"summary"`

	Meta Meta `yaml:"meta"`

	Phases       []Phase      `yaml:"phases"`
	Dependencies []Dependency `yaml:"dependencies"`

	StartPolicy   StartPolicy   `yaml:"start_policy"`
	FailurePolicy FailurePolicy `yaml:"failure_policy"`

	RewardsOnComplete RewardSet `yaml:"rewards_on_complete"`
	RewardsOnFail     RewardSet `yaml:"rewards_on_fail"`

	GiverNpcID string `yaml:"giver_npc_id"`
	Location   string `yaml:"location"`
}

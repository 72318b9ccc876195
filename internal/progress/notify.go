package progress

import "github.com/lanternvale/questline/internal/tag"

// Notification tags published on the bus as quest state evolves. The
// quest id rides in StringParam; the secondary id (objective, phase, or
// state name) in StringParam2.
const (
	NotifyQuestStarted      tag.Tag = "Quest.Notify.Quest.Started"
	NotifyQuestCompleted    tag.Tag = "Quest.Notify.Quest.Completed"
	NotifyQuestFailed       tag.Tag = "Quest.Notify.Quest.Failed"
	NotifyQuestStateChanged tag.Tag = "Quest.Notify.Quest.StateChanged"
	NotifyObjectiveUpdated  tag.Tag = "Quest.Notify.Objective.Updated"
	NotifyObjectiveComplete tag.Tag = "Quest.Notify.Objective.Completed"
	NotifyPhaseChanged      tag.Tag = "Quest.Notify.Phase.Changed"
)

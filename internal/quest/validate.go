package quest

import "fmt"

// Validate checks a definition for authoring mistakes. Problems are
// reported for content tooling; at runtime the same mistakes degrade
// safely (an empty condition tag never matches, a dangling transition
// ends the quest) rather than crashing.
func (d *Definition) Validate() []string {
	var problems []string

	if d.ID == "" {
		problems = append(problems, "definition has no id")
	}
	if len(d.Phases) == 0 {
		problems = append(problems, fmt.Sprintf("quest %q has no phases", d.ID))
	}

	phaseIDs := make(map[string]bool, len(d.Phases))
	objectiveIDs := make(map[string]bool)

	for i := range d.Phases {
		phase := &d.Phases[i]
		if phase.ID == "" {
			problems = append(problems, fmt.Sprintf("quest %q: phase %d has no id", d.ID, i))
			continue
		}
		if phaseIDs[phase.ID] {
			problems = append(problems, fmt.Sprintf("quest %q: duplicate phase id %q", d.ID, phase.ID))
		}
		phaseIDs[phase.ID] = true

		for j := range phase.Objectives {
			obj := &phase.Objectives[j]
			if obj.ID == "" {
				problems = append(problems, fmt.Sprintf("quest %q: phase %q objective %d has no id", d.ID, phase.ID, j))
				continue
			}
			if objectiveIDs[obj.ID] {
				problems = append(problems, fmt.Sprintf("quest %q: duplicate objective id %q", d.ID, obj.ID))
			}
			objectiveIDs[obj.ID] = true

			for k := range obj.Conditions {
				if !obj.Conditions[k].EventTag.IsValid() {
					problems = append(problems, fmt.Sprintf("quest %q: objective %q condition %d has an empty event tag and will never match", d.ID, obj.ID, k))
				}
			}
			if obj.Counter.TargetCount < 0 {
				problems = append(problems, fmt.Sprintf("quest %q: objective %q has a negative target count", d.ID, obj.ID))
			}
		}
	}

	for i := range d.Phases {
		phase := &d.Phases[i]
		if next := phase.Transition.NextPhaseID; next != "" && !phaseIDs[next] {
			problems = append(problems, fmt.Sprintf("quest %q: phase %q transitions to unknown phase %q", d.ID, phase.ID, next))
		}
		for branchTag, target := range phase.Transition.Branches {
			if !phaseIDs[target] {
				problems = append(problems, fmt.Sprintf("quest %q: phase %q branch %q targets unknown phase %q", d.ID, phase.ID, branchTag, target))
			}
		}
	}

	if d.FailurePolicy.Type == FailureTimeLimit && d.FailurePolicy.TimeLimit <= 0 {
		problems = append(problems, fmt.Sprintf("quest %q: time_limit failure policy with no time limit", d.ID))
	}

	return problems
}

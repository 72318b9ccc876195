package quest

// Terminal reports whether a lifecycle state has no outgoing transitions
// other than an allowed retry.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateAbandoned:
		return true
	}
	return false
}

// Phase returns the phase with the given id.
func (d *Definition) Phase(phaseID string) (*Phase, bool) {
	for i := range d.Phases {
		if d.Phases[i].ID == phaseID {
			return &d.Phases[i], true
		}
	}
	return nil, false
}

// HasPhase reports whether the definition contains the phase.
func (d *Definition) HasPhase(phaseID string) bool {
	_, ok := d.Phase(phaseID)
	return ok
}

// FirstPhase returns the first phase; ok is false for a phaseless
// quest.
func (d *Definition) FirstPhase() (*Phase, bool) {
	if len(d.Phases) == 0 {
		return nil, false
	}
	return &d.Phases[0], true
}

// ObjectiveIDs returns every objective id across all phases, in phase
// order.
func (d *Definition) ObjectiveIDs() []string {
	var ids []string
	for i := range d.Phases {
		for j := range d.Phases[i].Objectives {
			ids = append(ids, d.Phases[i].Objectives[j].ID)
		}
	}
	return ids
}

// Objective returns the objective with the given id within the phase.
func (p *Phase) Objective(objectiveID string) (*Objective, bool) {
	for i := range p.Objectives {
		if p.Objectives[i].ID == objectiveID {
			return &p.Objectives[i], true
		}
	}
	return nil, false
}

// Repeatable reports whether the quest may be completed more than once.
func (d *Definition) Repeatable() bool {
	return d.Meta.Repeatable
}

// Target returns the effective target count, treating an unset counter
// as a single-step objective.
func (c Counter) Target() int {
	if c.TargetCount <= 0 {
		return 1
	}
	return c.TargetCount
}

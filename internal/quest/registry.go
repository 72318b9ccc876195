package quest

import (
	"sort"
	"sync"

	"github.com/lanternvale/questline/internal/logger"
)

// Registry holds all loaded quest definitions, indexed by id and by the
// NPC that gives them. Definitions are immutable once registered.
type Registry struct {
	mu          sync.RWMutex
	quests      map[string]*Definition
	questsByNPC map[string][]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		quests:      make(map[string]*Definition),
		questsByNPC: make(map[string][]*Definition),
	}
}

// LoadFromFile populates the registry from a parsed content file,
// replacing any existing contents. Definitions with validation problems
// are still registered; the problems are logged for content authors and
// degrade safely at runtime.
func (r *Registry) LoadFromFile(f *File) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.quests = make(map[string]*Definition, len(f.Quests))
	r.questsByNPC = make(map[string][]*Definition)

	for id, def := range f.Quests {
		d := def
		d.ID = id

		for _, problem := range d.Validate() {
			logger.Warning("Quest content problem", "quest", id, "problem", problem)
		}

		r.quests[id] = &d
		if d.GiverNpcID != "" {
			r.questsByNPC[d.GiverNpcID] = append(r.questsByNPC[d.GiverNpcID], &d)
		}
	}
}

// LoadFromDirectory loads all YAML files in dir into the registry.
func (r *Registry) LoadFromDirectory(dir string) error {
	f, err := LoadDirectory(dir)
	if err != nil {
		return err
	}
	r.LoadFromFile(f)
	return nil
}

// Get returns a definition by id.
func (r *Registry) Get(id string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.quests[id]
	return def, exists
}

// ForNPC returns all quests the NPC can give.
func (r *Registry) ForNPC(npcID string) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	quests := r.questsByNPC[npcID]
	result := make([]*Definition, len(quests))
	copy(result, quests)
	return result
}

// All returns every registered definition, sorted by id.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	quests := make([]*Definition, 0, len(r.quests))
	for _, def := range r.quests {
		quests = append(quests, def)
	}
	sort.Slice(quests, func(i, j int) bool { return quests[i].ID < quests[j].ID })
	return quests
}

// Count returns the number of registered quests.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.quests)
}

// Package reward turns the typed reward entries on quest content into
// calls on host-supplied hooks. Delivery is best-effort: a failing hook
// is logged and the rest of the set still lands.
package reward

import (
	"fmt"
	"sync"

	"github.com/lanternvale/questline/internal/logger"
	"github.com/lanternvale/questline/internal/quest"
	"github.com/lanternvale/questline/internal/tag"
)

// Hooks is implemented by the host game. Embed BaseHooks and override
// the kinds the game supports; anything else is silently accepted.
type Hooks interface {
	GrantItem(questID, itemID string, amount int) error
	GrantCurrency(questID string, amount int) error
	ModifyStat(questID string, stat tag.Tag, delta float64) error
	ModifyRelationship(questID, npcID string, delta float64) error
	UnlockDialogue(questID, branchID string) error
	UnlockRecipe(questID, recipeID string) error
	GrantTag(questID string, t tag.Tag) error
	RunScriptEvent(questID, eventName string) error
}

// BaseHooks is a no-op Hooks implementation for embedding.
type BaseHooks struct{}

func (BaseHooks) GrantItem(string, string, int) error              { return nil }
func (BaseHooks) GrantCurrency(string, int) error                  { return nil }
func (BaseHooks) ModifyStat(string, tag.Tag, float64) error        { return nil }
func (BaseHooks) ModifyRelationship(string, string, float64) error { return nil }
func (BaseHooks) UnlockDialogue(string, string) error              { return nil }
func (BaseHooks) UnlockRecipe(string, string) error                { return nil }
func (BaseHooks) GrantTag(string, tag.Tag) error                   { return nil }
func (BaseHooks) RunScriptEvent(string, string) error              { return nil }

// EffectFunc is a named custom reward effect registered in code.
type EffectFunc func(questID string, r quest.Reward) error

// TagSink receives every granted tag so it lands in the persistent
// global tag set.
type TagSink func(t tag.Tag)

// Processor dispatches reward sets.
type Processor struct {
	hooks   Hooks
	tagSink TagSink

	mu      sync.RWMutex
	effects map[string]EffectFunc
}

func NewProcessor(hooks Hooks, tagSink TagSink) *Processor {
	if hooks == nil {
		hooks = BaseHooks{}
	}
	return &Processor{
		hooks:   hooks,
		tagSink: tagSink,
		effects: make(map[string]EffectFunc),
	}
}

// RegisterEffect binds a named effect referenced by run_effect rewards.
// Re-registering a name replaces the previous effect.
func (p *Processor) RegisterEffect(name string, fn EffectFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.effects[name] = fn
}

// Process delivers every reward in the set. Failures are logged per
// entry and never abort the remainder.
func (p *Processor) Process(set quest.RewardSet, questID string) {
	for _, r := range set.Rewards {
		if err := p.deliver(r, questID); err != nil {
			logger.Warning("Reward delivery failed", "quest", questID, "kind", r.Kind, "error", err)
		}
	}
	for t := range set.GrantedTags {
		if p.tagSink != nil {
			p.tagSink(t)
		}
	}
}

func (p *Processor) deliver(r quest.Reward, questID string) error {
	switch r.Kind {
	case quest.RewardGiveItem:
		amount := r.Amount
		if amount <= 0 {
			amount = 1
		}
		return p.hooks.GrantItem(questID, r.ItemID, amount)
	case quest.RewardGrantCurrency:
		return p.hooks.GrantCurrency(questID, r.CurrencyAmount)
	case quest.RewardModifyStat:
		return p.hooks.ModifyStat(questID, r.StatTag, r.StatDelta)
	case quest.RewardModifyRelationship:
		return p.hooks.ModifyRelationship(questID, r.NpcID, r.RelationshipDelta)
	case quest.RewardUnlockDialogue:
		return p.hooks.UnlockDialogue(questID, r.DialogueBranchID)
	case quest.RewardUnlockRecipe:
		return p.hooks.UnlockRecipe(questID, r.RecipeID)
	case quest.RewardGrantTag:
		if p.tagSink != nil {
			p.tagSink(r.GrantedTag)
		}
		return p.hooks.GrantTag(questID, r.GrantedTag)
	case quest.RewardRunScriptEvent:
		return p.hooks.RunScriptEvent(questID, r.ScriptEvent)
	case quest.RewardRunEffect:
		return p.runEffect(r, questID)
	case "":
		return fmt.Errorf("reward entry has no kind")
	default:
		return fmt.Errorf("unknown reward kind %q", r.Kind)
	}
}

func (p *Processor) runEffect(r quest.Reward, questID string) error {
	p.mu.RLock()
	fn, ok := p.effects[r.EffectName]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("effect %q not registered", r.EffectName)
	}
	return fn(questID, r)
}

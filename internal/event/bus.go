package event

import (
	"time"

	"github.com/lanternvale/questline/internal/logger"
	"github.com/lanternvale/questline/internal/tag"
)

// Handler receives a published payload.
type Handler func(Payload)

// DefaultHistorySize is the ring-buffer capacity used by NewBus.
const DefaultHistorySize = 64

type subscription struct {
	tag       tag.Tag
	owner     any
	fn        Handler
	hierarchy bool
	removed   bool
}

// Bus is the central event dispatcher. All public methods must be called
// from the single coordinating goroutine; publishes from within a
// subscriber callback are queued and drained FIFO after the current
// dispatch completes.
type Bus struct {
	subs      []*subscription
	broadcast Handler

	queue       []Payload
	dispatching bool

	history        []Payload
	historyNext    int
	historyEnabled bool

	emitted int
	enabled bool
	now     func() time.Time
}

// NewBus returns an enabled bus with event history on.
func NewBus() *Bus {
	return &Bus{
		history:        make([]Payload, 0, DefaultHistorySize),
		historyEnabled: true,
		enabled:        true,
		now:            time.Now,
	}
}

// SetBroadcastHook installs the privileged hook invoked for every payload
// before subscriber dispatch. The progress manager's objective scan hangs
// off this. A nil handler clears it.
func (b *Bus) SetBroadcastHook(fn Handler) {
	b.broadcast = fn
}

// SetEnabled toggles dispatch. Publishes on a disabled bus are dropped.
func (b *Bus) SetEnabled(enabled bool) {
	b.enabled = enabled
}

// Publish delivers the payload to the broadcast hook and to every
// matching subscriber. Reentrant publishes are queued, preserving FIFO
// order across successive calls.
func (b *Bus) Publish(p Payload) {
	if !b.enabled {
		return
	}
	if !p.Tag.IsValid() {
		logger.Warning("Dropping event with empty tag")
		return
	}
	p.stamp(b.now())
	b.queue = append(b.queue, p)
	if b.dispatching {
		return
	}

	b.dispatching = true
	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]
		b.dispatch(next)
	}
	b.dispatching = false
	b.compact()
}

func (b *Bus) dispatch(p Payload) {
	b.emitted++
	b.record(p)

	if b.broadcast != nil {
		b.safeCall(b.broadcast, p)
	}

	// Subscribers added during this dispatch only see later events.
	n := len(b.subs)
	for i := 0; i < n; i++ {
		sub := b.subs[i]
		if sub.removed {
			continue
		}
		matched := p.Tag.Matches(sub.tag)
		if !matched && sub.hierarchy {
			matched = p.Tag.MatchesPrefix(sub.tag)
		}
		if matched {
			b.safeCall(sub.fn, p)
		}
	}
}

// safeCall keeps one failing subscriber from blocking delivery to the rest.
func (b *Bus) safeCall(fn Handler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Event subscriber panicked", "tag", p.Tag.String(), "panic", r)
		}
	}()
	fn(p)
}

// Subscribe registers fn for events whose tag matches t exactly.
// Subscriptions are keyed by (tag, owner); a later Subscribe with the
// same key replaces the handler.
func (b *Bus) Subscribe(t tag.Tag, owner any, fn Handler) {
	b.subscribe(t, owner, fn, false)
}

// SubscribeHierarchy registers fn for events whose tag equals t or is a
// descendant of it (tag "Quest.Event" receives any "Quest.Event.*").
func (b *Bus) SubscribeHierarchy(t tag.Tag, owner any, fn Handler) {
	b.subscribe(t, owner, fn, true)
}

func (b *Bus) subscribe(t tag.Tag, owner any, fn Handler, hierarchy bool) {
	if !t.IsValid() || fn == nil {
		return
	}
	for _, sub := range b.subs {
		if !sub.removed && sub.tag == t && sub.owner == owner && sub.hierarchy == hierarchy {
			sub.fn = fn
			return
		}
	}
	b.subs = append(b.subs, &subscription{tag: t, owner: owner, fn: fn, hierarchy: hierarchy})
}

// Unsubscribe removes the (tag, owner) subscription. Safe to call from
// within a callback; removal is deferred until dispatch finishes.
func (b *Bus) Unsubscribe(t tag.Tag, owner any) {
	for _, sub := range b.subs {
		if sub.tag == t && sub.owner == owner {
			sub.removed = true
		}
	}
	if !b.dispatching {
		b.compact()
	}
}

// UnsubscribeAll removes every subscription held by owner.
func (b *Bus) UnsubscribeAll(owner any) {
	for _, sub := range b.subs {
		if sub.owner == owner {
			sub.removed = true
		}
	}
	if !b.dispatching {
		b.compact()
	}
}

// ClearSubscriptions drops every subscription. The broadcast hook stays.
func (b *Bus) ClearSubscriptions() {
	b.subs = nil
}

func (b *Bus) compact() {
	kept := b.subs[:0]
	for _, sub := range b.subs {
		if !sub.removed {
			kept = append(kept, sub)
		}
	}
	b.subs = kept
}

// SubscriptionCount returns the number of live subscriptions.
func (b *Bus) SubscriptionCount() int {
	n := 0
	for _, sub := range b.subs {
		if !sub.removed {
			n++
		}
	}
	return n
}

// HasSubscribers reports whether any live subscription would receive an
// event tagged t.
func (b *Bus) HasSubscribers(t tag.Tag) bool {
	for _, sub := range b.subs {
		if sub.removed {
			continue
		}
		if t.Matches(sub.tag) || (sub.hierarchy && t.MatchesPrefix(sub.tag)) {
			return true
		}
	}
	return false
}

// Emitted returns the total number of events dispatched.
func (b *Bus) Emitted() int {
	return b.emitted
}

// SetHistoryEnabled toggles the diagnostics ring buffer.
func (b *Bus) SetHistoryEnabled(enabled bool) {
	b.historyEnabled = enabled
	if !enabled {
		b.history = b.history[:0]
		b.historyNext = 0
	}
}

// SetHistorySize resizes the ring buffer, discarding recorded events.
// Sizes below one fall back to the default.
func (b *Bus) SetHistorySize(n int) {
	if n < 1 {
		n = DefaultHistorySize
	}
	b.history = make([]Payload, 0, n)
	b.historyNext = 0
}

func (b *Bus) record(p Payload) {
	if !b.historyEnabled {
		return
	}
	if len(b.history) < cap(b.history) {
		b.history = append(b.history, p)
		return
	}
	b.history[b.historyNext] = p
	b.historyNext = (b.historyNext + 1) % len(b.history)
}

// Recent returns up to n of the most recently dispatched events, oldest
// first.
func (b *Bus) Recent(n int) []Payload {
	size := len(b.history)
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}
	out := make([]Payload, 0, n)
	// historyNext is the oldest slot once the ring has wrapped.
	start := 0
	if size == cap(b.history) {
		start = b.historyNext
	}
	for i := size - n; i < size; i++ {
		out = append(out, b.history[(start+i)%size])
	}
	return out
}

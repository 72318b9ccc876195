// Package assets resolves quest definitions asynchronously. Loaded
// definitions are cached; concurrent requests for the same id share a
// single fetch.
package assets

import (
	"context"
	"sync"

	"github.com/lanternvale/questline/internal/logger"
	"github.com/lanternvale/questline/internal/quest"
)

// Source fetches a definition by id. A missing quest is a nil
// definition with a nil error; errors mean the source itself failed.
type Source interface {
	Fetch(ctx context.Context, questID string) (*quest.Definition, error)
}

// Callback receives the resolved definition, nil when the quest does
// not exist or the fetch failed.
type Callback func(def *quest.Definition)

// Dispatcher hands completion work back to the caller's thread. The
// default runs it inline; the engine substitutes its pending queue.
type Dispatcher func(fn func())

type inflight struct {
	cancel    context.CancelFunc
	callbacks []Callback
}

// Loader caches definitions and coalesces in-flight fetches so at most
// one load per quest id runs at a time.
type Loader struct {
	src      Source
	dispatch Dispatcher

	mu       sync.Mutex
	cache    map[string]*quest.Definition
	inflight map[string]*inflight
}

func NewLoader(src Source, dispatch Dispatcher) *Loader {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &Loader{
		src:      src,
		dispatch: dispatch,
		cache:    make(map[string]*quest.Definition),
		inflight: make(map[string]*inflight),
	}
}

// LoadAsync resolves a definition. A cache hit invokes cb synchronously
// before returning. If a fetch for the same id is already running, cb
// is attached to it instead of starting another.
func (l *Loader) LoadAsync(questID string, cb Callback) {
	l.mu.Lock()
	if def, ok := l.cache[questID]; ok {
		l.mu.Unlock()
		if cb != nil {
			cb(def)
		}
		return
	}
	if fl, ok := l.inflight[questID]; ok {
		if cb != nil {
			fl.callbacks = append(fl.callbacks, cb)
		}
		l.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	fl := &inflight{cancel: cancel}
	if cb != nil {
		fl.callbacks = []Callback{cb}
	}
	l.inflight[questID] = fl
	l.mu.Unlock()

	go func() {
		def, err := l.src.Fetch(ctx, questID)
		l.dispatch(func() {
			l.complete(questID, fl, def, err)
		})
	}()
}

func (l *Loader) complete(questID string, fl *inflight, def *quest.Definition, err error) {
	l.mu.Lock()
	// CancelAll removed the entry, or a later fetch replaced it;
	// either way this result is stale and its callbacks were dropped.
	if l.inflight[questID] != fl {
		l.mu.Unlock()
		return
	}
	delete(l.inflight, questID)
	if err == nil && def != nil {
		l.cache[questID] = def
	}
	callbacks := fl.callbacks
	l.mu.Unlock()

	if err != nil {
		logger.Warning("Quest definition fetch failed", "quest_id", questID, "error", err)
		def = nil
	}
	for _, cb := range callbacks {
		cb(def)
	}
}

// Preload fetches a batch of definitions and invokes done once every id
// has resolved. Ids that fail or do not exist still count as resolved;
// they are simply absent from the cache afterwards.
func (l *Loader) Preload(questIDs []string, done func()) {
	if len(questIDs) == 0 {
		if done != nil {
			done()
		}
		return
	}

	remaining := len(questIDs)
	var mu sync.Mutex
	for _, id := range questIDs {
		l.LoadAsync(id, func(*quest.Definition) {
			mu.Lock()
			remaining--
			finished := remaining == 0
			mu.Unlock()
			if finished && done != nil {
				done()
			}
		})
	}
}

// CancelAll aborts every in-flight fetch. Attached callbacks are never
// invoked.
func (l *Loader) CancelAll() {
	l.mu.Lock()
	pending := l.inflight
	l.inflight = make(map[string]*inflight)
	l.mu.Unlock()

	for _, fl := range pending {
		fl.cancel()
	}
}

// Get returns the cached definition for an id, if any.
func (l *Loader) Get(questID string) (*quest.Definition, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	def, ok := l.cache[questID]
	return def, ok
}

// IsLoading reports whether a fetch for the id is in flight.
func (l *Loader) IsLoading(questID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[questID]
	return ok
}

// Evict drops a definition from the cache so the next load refetches
// it. Used by debug resets after content changes.
func (l *Loader) Evict(questID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, questID)
}

// CachedCount reports how many definitions the cache holds.
func (l *Loader) CachedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}

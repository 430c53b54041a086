package kv

import (
	"sync"
	"time"

	"github.com/andrewblevins/space-sub000/internal/space"
)

// Watcher turns the store's change journal into per-key notifications for
// one context. It polls the journal high-water mark and dispatches only
// changes made by other origins: a context is never notified of its own
// writes, which is what prevents notification feedback loops between
// contexts. Delivery is eventual, not immediate; callers must tolerate a
// stale in-memory view between polls.
type Watcher struct {
	store    Store
	interval time.Duration
	logger   space.Logger

	mu      sync.Mutex
	subs    map[string]map[int]func(value string, ok bool)
	nextID  int
	lastSeq int64

	done     chan struct{}
	stopped  sync.WaitGroup
	stopOnce sync.Once
	started  bool
}

var _ space.Notifier = (*Watcher)(nil)

// NewWatcher creates a Watcher polling store at the given interval.
func NewWatcher(store Store, interval time.Duration, logger space.Logger) *Watcher {
	return &Watcher{
		store:    store,
		interval: interval,
		logger:   logger,
		subs:     make(map[string]map[int]func(value string, ok bool)),
		done:     make(chan struct{}),
	}
}

// Start begins watching from the journal's current position. Changes made
// before Start are not replayed; subscribers see state via their own
// initial load.
func (w *Watcher) Start() error {
	last, err := w.store.LastSeq()
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.lastSeq = last
	w.mu.Unlock()

	w.stopped.Add(1)
	go w.run()
	return nil
}

// Stop ends watching. Blocks until the poll loop has exited.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.stopped.Wait()
}

// Subscribe registers fn for foreign-context changes to key. fn is called
// from the watcher's goroutine with the key's current value, or ok=false
// when the key was deleted. The returned cancel removes the subscription.
func (w *Watcher) Subscribe(key string, fn func(value string, ok bool)) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	if w.subs[key] == nil {
		w.subs[key] = make(map[int]func(value string, ok bool))
	}
	w.subs[key][id] = fn

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs[key], id)
		if len(w.subs[key]) == 0 {
			delete(w.subs, key)
		}
	}
	return cancel, nil
}

func (w *Watcher) run() {
	defer w.stopped.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	w.mu.Lock()
	after := w.lastSeq
	w.mu.Unlock()

	changes, last, err := w.store.Changes(after)
	if err != nil {
		w.logger.Warn("reading change journal", "error", err)
		return
	}

	w.mu.Lock()
	w.lastSeq = last
	w.mu.Unlock()

	// Coalesce to one notification per key per poll: only the latest
	// change matters since the value read is the current one anyway.
	seen := make(map[string]bool)
	var keys []string
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if c.Origin == w.store.Origin() || seen[c.Key] {
			continue
		}
		seen[c.Key] = true
		keys = append([]string{c.Key}, keys...)
	}

	for _, key := range keys {
		w.dispatch(key)
	}
}

func (w *Watcher) dispatch(key string) {
	w.mu.Lock()
	fns := make([]func(string, bool), 0, len(w.subs[key]))
	for _, fn := range w.subs[key] {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	if len(fns) == 0 {
		return
	}

	value, ok, err := w.store.Get(key)
	if err != nil {
		w.logger.Warn("reading changed key", "key", key, "error", err)
		return
	}
	for _, fn := range fns {
		fn(value, ok)
	}
}

package space

import (
	"sync"
	"time"
)

// SnapshotFunc produces the value to persist for a key when its coalescing
// window elapses. keep=false means the key should be deleted instead of
// written: an explicitly emptied collection removes its key, so "never
// configured" stays distinguishable from "emptied" at load time.
type SnapshotFunc func() (value string, keep bool)

// Scheduler coalesces rapid in-memory mutations into a single delayed write
// per key. Every Schedule call re-arms the key's timer; only when the window
// elapses without a further mutation is the snapshot taken and written. Under
// continuous mutation writes are bounded to one per window per key, and the
// persisted value is always a complete snapshot, never a torn intermediate.
type Scheduler struct {
	store   KeyValue
	window  time.Duration
	logger  Logger
	onError func(key string, err error)

	mu        sync.Mutex
	timers    map[string]*time.Timer
	snapshots map[string]SnapshotFunc
	closed    bool
}

// NewScheduler creates a Scheduler writing to store after the given
// coalescing window.
func NewScheduler(store KeyValue, window time.Duration, logger Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		window:    window,
		logger:    logger,
		timers:    make(map[string]*time.Timer),
		snapshots: make(map[string]SnapshotFunc),
	}
}

// OnError registers a callback invoked when a delayed write fails. Write
// failures are never silent: without a callback they are logged at error
// level.
func (s *Scheduler) OnError(fn func(key string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Schedule records that key's collection mutated. snapshot is called at most
// once, when the window elapses; it must capture current state at call time,
// not at schedule time.
func (s *Scheduler) Schedule(key string, snapshot SnapshotFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.snapshots[key] = snapshot
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(s.window, func() {
		s.flushKey(key)
	})
}

// Flush writes all pending snapshots immediately. Used on shutdown so a
// close inside the window cannot lose the last mutations.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.snapshots))
	for _, t := range s.timers {
		t.Stop()
	}
	for key := range s.snapshots {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	for _, key := range keys {
		s.flushKey(key)
	}
}

// Close flushes pending writes and stops accepting new ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Flush()
}

// Pending returns the number of keys with an unexpired write.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func (s *Scheduler) flushKey(key string) {
	s.mu.Lock()
	snapshot, ok := s.snapshots[key]
	delete(s.snapshots, key)
	if t, tok := s.timers[key]; tok {
		t.Stop()
		delete(s.timers, key)
	}
	onError := s.onError
	s.mu.Unlock()

	if !ok {
		return
	}

	value, keep := snapshot()
	var err error
	if keep {
		err = s.store.Set(key, value)
	} else {
		err = s.store.Delete(key)
	}
	if err != nil {
		if onError != nil {
			onError(key, err)
			return
		}
		s.logger.Error("delayed write failed", "key", key, "error", err)
	}
}

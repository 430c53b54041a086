package space

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// mapKV is a minimal KeyValue for scheduler tests that counts writes.
type mapKV struct {
	mu      sync.Mutex
	entries map[string]string
	sets    map[string]int
	deletes map[string]int
	failSet bool
}

func newMapKV() *mapKV {
	return &mapKV{
		entries: make(map[string]string),
		sets:    make(map[string]int),
		deletes: make(map[string]int),
	}
}

func (m *mapKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *mapKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return fmt.Errorf("store unavailable")
	}
	m.entries[key] = value
	m.sets[key]++
	return nil
}

func (m *mapKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	m.deletes[key]++
	return nil
}

func (m *mapKV) setCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets[key]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSchedulerCoalescesMutations(t *testing.T) {
	store := newMapKV()
	s := NewScheduler(store, 30*time.Millisecond, NewNopLogger())
	defer s.Close()

	for i := 0; i < 10; i++ {
		s.Schedule("roster", func() (string, bool) {
			return fmt.Sprintf("v%d", i), true
		})
	}

	waitFor(t, func() bool { return store.setCount("roster") > 0 })

	if got := store.setCount("roster"); got != 1 {
		t.Errorf("set count = %d, want 1", got)
	}
	value, _, _ := store.Get("roster")
	if value != "v9" {
		t.Errorf("persisted value = %q, want latest snapshot", value)
	}
}

func TestSchedulerSnapshotCapturesStateAtFlushTime(t *testing.T) {
	store := newMapKV()
	s := NewScheduler(store, 20*time.Millisecond, NewNopLogger())
	defer s.Close()

	var mu sync.Mutex
	current := "first"

	s.Schedule("k", func() (string, bool) {
		mu.Lock()
		defer mu.Unlock()
		return current, true
	})

	mu.Lock()
	current = "second"
	mu.Unlock()

	waitFor(t, func() bool { return store.setCount("k") > 0 })

	value, _, _ := store.Get("k")
	if value != "second" {
		t.Errorf("persisted value = %q, want state at flush time", value)
	}
}

func TestSchedulerEmptyCollectionDeletesKey(t *testing.T) {
	store := newMapKV()
	store.entries["roster"] = "old"

	s := NewScheduler(store, 10*time.Millisecond, NewNopLogger())
	defer s.Close()

	s.Schedule("roster", func() (string, bool) { return "", false })
	waitFor(t, func() bool {
		_, ok, _ := store.Get("roster")
		return !ok
	})
}

func TestSchedulerFlush(t *testing.T) {
	store := newMapKV()
	s := NewScheduler(store, time.Hour, NewNopLogger())
	defer s.Close()

	s.Schedule("a", func() (string, bool) { return "1", true })
	s.Schedule("b", func() (string, bool) { return "2", true })

	s.Flush()

	if s.Pending() != 0 {
		t.Errorf("pending = %d after flush", s.Pending())
	}
	for key, want := range map[string]string{"a": "1", "b": "2"} {
		if value, _, _ := store.Get(key); value != want {
			t.Errorf("%s = %q, want %q", key, value, want)
		}
	}
}

func TestSchedulerCloseFlushesAndStops(t *testing.T) {
	store := newMapKV()
	s := NewScheduler(store, time.Hour, NewNopLogger())

	s.Schedule("a", func() (string, bool) { return "1", true })
	s.Close()

	if value, _, _ := store.Get("a"); value != "1" {
		t.Error("pending write lost on close")
	}

	s.Schedule("b", func() (string, bool) { return "2", true })
	s.Flush()
	if _, ok, _ := store.Get("b"); ok {
		t.Error("schedule after close should be ignored")
	}
}

func TestSchedulerOnError(t *testing.T) {
	store := newMapKV()
	store.failSet = true

	s := NewScheduler(store, 10*time.Millisecond, NewNopLogger())
	defer s.Close()

	errs := make(chan string, 1)
	s.OnError(func(key string, err error) {
		errs <- key
	})

	s.Schedule("k", func() (string, bool) { return "v", true })

	select {
	case key := <-errs:
		if key != "k" {
			t.Errorf("error callback key = %q", key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error callback not invoked")
	}
}

package kv

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andrewblevins/space-sub000/internal/space"
)

// memoryData is the state shared by all handles of one in-memory store.
type memoryData struct {
	mu      sync.RWMutex
	entries map[string]string
	journal []Change
	nextSeq int64
}

// MemoryStore is an in-memory implementation of Store. Useful for tests,
// where Handle simulates a second context (tab) sharing the same store.
// Safe for concurrent use.
type MemoryStore struct {
	data          *memoryData
	origin        string
	maxValueBytes int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store with the default quota.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:          &memoryData{entries: make(map[string]string)},
		origin:        uuid.New().String(),
		maxValueBytes: DefaultMaxValueBytes,
	}
}

// Handle returns a new handle onto the same store with its own origin,
// the in-memory equivalent of a second process opening the SQLite file.
func (m *MemoryStore) Handle() *MemoryStore {
	return &MemoryStore{
		data:          m.data,
		origin:        uuid.New().String(),
		maxValueBytes: m.maxValueBytes,
	}
}

// SetMaxValueBytes overrides the quota for this handle.
func (m *MemoryStore) SetMaxValueBytes(n int64) { m.maxValueBytes = n }

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	value, ok := m.data.entries[key]
	return value, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	if int64(len(value)) > m.maxValueBytes {
		return fmt.Errorf("writing %s (%d bytes): %w", key, len(value), space.ErrQuotaExceeded)
	}

	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	m.data.entries[key] = value
	m.journalLocked(key)
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if _, ok := m.data.entries[key]; !ok {
		return nil
	}
	delete(m.data.entries, key)
	m.journalLocked(key)
	return nil
}

func (m *MemoryStore) journalLocked(key string) {
	m.data.nextSeq++
	m.data.journal = append(m.data.journal, Change{
		Seq:       m.data.nextSeq,
		Key:       key,
		Origin:    m.origin,
		ChangedAt: time.Now().UTC(),
	})
}

func (m *MemoryStore) Keys(prefix string) ([]string, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	var keys []string
	for key := range m.data.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *MemoryStore) Origin() string { return m.origin }

func (m *MemoryStore) Changes(afterSeq int64) ([]Change, int64, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()

	var changes []Change
	last := afterSeq
	for _, c := range m.data.journal {
		if c.Seq > afterSeq {
			changes = append(changes, c)
			last = c.Seq
		}
	}
	return changes, last, nil
}

func (m *MemoryStore) LastSeq() (int64, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return m.data.nextSeq, nil
}

func (m *MemoryStore) Close() error { return nil }

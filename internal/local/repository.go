// Package local implements the session repository backed by the shared
// key-value store, keyed by small integer identifiers. It also persists the
// MigrationRecord and the current-session pointers, which live in the same
// namespace.
package local

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andrewblevins/space-sub000/internal/kv"
	"github.com/andrewblevins/space-sub000/internal/space"
)

// sessionRecord is the stored form of a local session. Local sessions keep
// a single timestamp; it backs both CreatedAt and UpdatedAt on the way out.
type sessionRecord struct {
	ID        int             `json:"id"`
	Title     string          `json:"title,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Messages  []space.Message `json:"messages"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// Repository stores sessions in the shared key-value store.
type Repository struct {
	store  kv.Store
	logger space.Logger
	clock  space.Clock
}

var (
	_ space.LocalRepository      = (*Repository)(nil)
	_ space.MigrationRecordStore = (*Repository)(nil)
	_ space.CurrentPointer       = (*Repository)(nil)
)

// NewRepository creates a Repository over the given store.
func NewRepository(store kv.Store, logger space.Logger, clock space.Clock) *Repository {
	return &Repository{store: store, logger: logger, clock: clock}
}

// List returns all sessions with at least one non-placeholder message,
// sorted by most recent activity descending. Corrupt entries are deleted in
// passing: local corruption self-heals and is never surfaced as an error.
func (r *Repository) List() ([]*space.Session, error) {
	keys, err := r.store.Keys(space.KeySessionPrefix)
	if err != nil {
		return nil, fmt.Errorf("enumerating sessions: %w", err)
	}

	var sessions []*space.Session
	for _, key := range keys {
		value, ok, err := r.store.Get(key)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		if !ok {
			continue
		}

		var rec sessionRecord
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			r.logger.Warn("deleting corrupt session record", "key", key, "error", err)
			if delErr := r.store.Delete(key); delErr != nil {
				r.logger.Warn("removing corrupt session record", "key", key, "error", delErr)
			}
			continue
		}

		sess := rec.toSession()
		if !sess.HasContent() {
			continue
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity().After(sessions[j].LastActivity())
	})
	return sessions, nil
}

// Load returns the session or ErrNotFound. A record that no longer parses
// is deleted and reported as not found.
func (r *Repository) Load(id int) (*space.Session, error) {
	key := space.SessionKey(id)
	value, ok, err := r.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("reading session %d: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, space.ErrNotFound)
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		r.logger.Warn("deleting corrupt session record", "key", key, "error", err)
		if delErr := r.store.Delete(key); delErr != nil {
			r.logger.Warn("removing corrupt session record", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("session %d: %w", id, space.ErrNotFound)
	}
	return rec.toSession(), nil
}

// Save upserts the session. Serialization and quota failures propagate:
// silently losing the user's only copy of a conversation is unacceptable.
func (r *Repository) Save(s *space.Session) error {
	id, err := space.ParseLocalID(s.ID)
	if err != nil {
		return err
	}

	timestamp := s.UpdatedAt
	if timestamp.IsZero() {
		timestamp = r.clock.Now()
	}
	rec := sessionRecord{
		ID:        id,
		Title:     s.Title,
		Timestamp: timestamp.UTC(),
		Messages:  s.Messages,
		Metadata:  s.Metadata,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serializing session %d: %w", id, err)
	}
	if err := r.store.Set(space.SessionKey(id), string(data)); err != nil {
		return fmt.Errorf("persisting session %d: %w", id, err)
	}
	return nil
}

// Delete removes the session. Deleting a missing id is not an error.
func (r *Repository) Delete(id int) error {
	if err := r.store.Delete(space.SessionKey(id)); err != nil {
		return fmt.Errorf("deleting session %d: %w", id, err)
	}
	return nil
}

// NextID returns one greater than the maximum existing local id, or 1 when
// the store holds no sessions. Keys with a malformed suffix don't count.
func (r *Repository) NextID() (int, error) {
	keys, err := r.store.Keys(space.KeySessionPrefix)
	if err != nil {
		return 0, fmt.Errorf("enumerating sessions: %w", err)
	}

	max := 0
	for _, key := range keys {
		suffix := strings.TrimPrefix(key, space.KeySessionPrefix)
		id, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

func (rec *sessionRecord) toSession() *space.Session {
	sess := &space.Session{
		ID:        strconv.Itoa(rec.ID),
		Title:     rec.Title,
		CreatedAt: rec.Timestamp,
		UpdatedAt: rec.Timestamp,
		Messages:  rec.Messages,
		Metadata:  rec.Metadata,
	}
	for i := range sess.Messages {
		// Everything read back from the store is already persisted.
		sess.Messages[i].Saved = true
		if !sess.Messages[i].IsPlaceholder() {
			sess.MessageCount++
		}
	}
	return sess
}

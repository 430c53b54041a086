package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/andrewblevins/space-sub000/internal/space"
)

// MemoryRepository is an in-memory RemoteRepository for tests and offline
// development. It enforces the same authentication contract as the HTTP
// client: every call fails with ErrAuthRequired when no credential is
// available.
type MemoryRepository struct {
	tokens space.TokenSource
	clock  space.Clock
	idgen  space.IDGenerator
	logger space.Logger

	mu            sync.Mutex
	conversations map[string]*space.Session
}

var _ space.RemoteRepository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository(tokens space.TokenSource, clock space.Clock, idgen space.IDGenerator, logger space.Logger) *MemoryRepository {
	return &MemoryRepository{
		tokens:        tokens,
		clock:         clock,
		idgen:         idgen,
		logger:        logger,
		conversations: make(map[string]*space.Session),
	}
}

func (m *MemoryRepository) Create(ctx context.Context, title string, metadata map[string]any) (*space.Session, error) {
	if err := m.requireAuth("create"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now().UTC()
	sess := &space.Session{
		ID:        m.idgen.New(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
	}
	m.conversations[sess.ID] = sess
	return copySession(sess, true), nil
}

func (m *MemoryRepository) Load(ctx context.Context, id string) (*space.Session, error) {
	if err := m.requireAuth("load"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.conversations[id]
	if !ok {
		return nil, fmt.Errorf("remote load %s: %w", id, space.ErrNotFound)
	}
	return copySession(sess, true), nil
}

func (m *MemoryRepository) Update(ctx context.Context, id string, fields space.ConversationUpdate) error {
	if err := m.requireAuth("update"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.conversations[id]
	if !ok {
		return fmt.Errorf("remote update %s: %w", id, space.ErrNotFound)
	}
	if fields.Title != nil {
		sess.Title = *fields.Title
	}
	if fields.Metadata != nil {
		sess.Metadata = fields.Metadata
	}
	sess.UpdatedAt = m.clock.Now().UTC()
	return nil
}

func (m *MemoryRepository) AppendMessage(ctx context.Context, id string, msg space.Message, metadata map[string]any) (*space.Message, error) {
	if err := m.requireAuth("append_message"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.conversations[id]
	if !ok {
		return nil, fmt.Errorf("remote append %s: %w", id, space.ErrNotFound)
	}

	// The server assigns the message timestamp.
	msg.Timestamp = m.clock.Now().UTC()
	msg.Saved = true
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = msg.Timestamp
	if !msg.IsPlaceholder() {
		sess.MessageCount++
	}

	appended := msg
	return &appended, nil
}

func (m *MemoryRepository) List(ctx context.Context) ([]*space.Session, error) {
	if err := m.requireAuth("list"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := make([]*space.Session, 0, len(m.conversations))
	for _, sess := range m.conversations {
		sessions = append(sessions, copySession(sess, false))
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id string) error {
	if err := m.requireAuth("delete"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return fmt.Errorf("remote delete %s: %w", id, space.ErrNotFound)
	}
	delete(m.conversations, id)
	return nil
}

func (m *MemoryRepository) requireAuth(op string) error {
	if _, ok := m.tokens.Token(); !ok {
		return fmt.Errorf("remote %s: %w", op, space.ErrAuthRequired)
	}
	return nil
}

// copySession returns a detached copy so callers can't mutate stored state.
// Listings omit message bodies, matching the wire behavior of the service.
func copySession(sess *space.Session, withMessages bool) *space.Session {
	out := *sess
	out.Messages = nil
	if withMessages {
		out.Messages = append([]space.Message(nil), sess.Messages...)
	}
	return &out
}

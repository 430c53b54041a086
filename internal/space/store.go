package space

import (
	"context"
	"fmt"
	"strconv"
)

// Store is the single entry point the rest of the application uses for
// session persistence. It asks the resolver which backend an identifier
// belongs to and delegates; exactly one backend is ever written per logical
// save, so a message can never be double-counted by later listings.
type Store struct {
	local   LocalRepository
	remote  RemoteRepository
	pointer CurrentPointer
	tokens  TokenSource
	logger  Logger
	clock   Clock
}

// NewStore creates a Store dispatching between the given repositories.
// pointer may be nil when no current-session tracking is wanted.
func NewStore(local LocalRepository, remote RemoteRepository, pointer CurrentPointer, tokens TokenSource, logger Logger, clock Clock) *Store {
	return &Store{
		local:   local,
		remote:  remote,
		pointer: pointer,
		tokens:  tokens,
		logger:  logger,
		clock:   clock,
	}
}

func (s *Store) authenticated() bool {
	_, ok := s.tokens.Token()
	return ok
}

// CreateSession creates a new empty session in the backend selected from the
// current authentication state: remote when authenticated, local otherwise.
func (s *Store) CreateSession(ctx context.Context) (*Session, error) {
	switch Resolve(s.authenticated()) {
	case BackendRemote:
		sess, err := s.remote.Create(ctx, "", nil)
		if err != nil {
			return nil, fmt.Errorf("creating remote conversation: %w", err)
		}
		s.setPointer(sess.ID, BackendRemote)
		s.logger.Info("session created", "backend", "remote", "id", sess.ID)
		return sess, nil

	default:
		id, err := s.local.NextID()
		if err != nil {
			return nil, fmt.Errorf("allocating local session id: %w", err)
		}
		now := s.clock.Now()
		sess := &Session{
			ID:        strconv.Itoa(id),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.local.Save(sess); err != nil {
			return nil, fmt.Errorf("saving local session: %w", err)
		}
		s.setPointer(sess.ID, BackendLocal)
		s.logger.Info("session created", "backend", "local", "id", sess.ID)
		return sess, nil
	}
}

// LoadSession loads a session by id, dispatching on the id's shape. A
// local-shaped id loads from the local store even when the client is now
// authenticated: reads never migrate, only the Migrator does. An invalid id
// is a not-found, never a crash.
func (s *Store) LoadSession(ctx context.Context, id string) (*Session, error) {
	switch Classify(id) {
	case BackendLocal:
		n, err := ParseLocalID(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		sess, err := s.local.Load(n)
		if err != nil {
			return nil, err
		}
		s.setPointer(id, BackendLocal)
		return sess, nil

	case BackendRemote:
		sess, err := s.remote.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		s.setPointer(id, BackendRemote)
		return sess, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
}

// SaveTurn persists one message to the session's backend. On success the
// message is marked Saved and, for remote sessions, carries the
// server-assigned timestamp. Already-saved messages are not re-sent.
func (s *Store) SaveTurn(ctx context.Context, sessionID string, msg *Message) error {
	if msg.Saved {
		return nil
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.clock.Now()
	}

	switch Classify(sessionID) {
	case BackendLocal:
		n, err := ParseLocalID(sessionID)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrNotFound, sessionID)
		}
		sess, err := s.local.Load(n)
		if err != nil {
			return err
		}
		saved := *msg
		saved.Saved = true
		sess.Messages = append(sess.Messages, saved)
		sess.UpdatedAt = s.clock.Now()
		if err := s.local.Save(sess); err != nil {
			return fmt.Errorf("saving local session %d: %w", n, err)
		}
		msg.Saved = true
		return nil

	case BackendRemote:
		appended, err := s.remote.AppendMessage(ctx, sessionID, *msg, nil)
		if err != nil {
			return fmt.Errorf("appending to conversation %s: %w", sessionID, err)
		}
		msg.Saved = true
		if appended != nil && !appended.Timestamp.IsZero() {
			msg.Timestamp = appended.Timestamp
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrNotFound, sessionID)
	}
}

// ListSessions lists the backend the current authentication state selects.
// The two backends are never merged into one listing, so a migrated session
// can never appear twice.
func (s *Store) ListSessions(ctx context.Context) ([]*Session, error) {
	if s.authenticated() {
		return s.remote.List(ctx)
	}
	return s.local.List()
}

// DeleteSession removes a session from its backend. Deletion is total and
// not cancellable once issued.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	switch Classify(id) {
	case BackendLocal:
		n, err := ParseLocalID(id)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		if err := s.local.Delete(n); err != nil {
			return err
		}
	case BackendRemote:
		if err := s.remote.Delete(ctx, id); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	s.clearPointerIf(id)
	return nil
}

func (s *Store) setPointer(id string, backend Backend) {
	if s.pointer == nil {
		return
	}
	if err := s.pointer.SetCurrent(id, backend); err != nil {
		s.logger.Warn("updating current-session pointer", "id", id, "error", err)
	}
}

func (s *Store) clearPointerIf(id string) {
	if s.pointer == nil {
		return
	}
	current, _, err := s.pointer.Current()
	if err != nil || current != id {
		return
	}
	if err := s.pointer.ClearCurrent(); err != nil {
		s.logger.Warn("clearing current-session pointer", "id", id, "error", err)
	}
}

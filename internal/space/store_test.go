package space_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/andrewblevins/space-sub000/internal/local"
	"github.com/andrewblevins/space-sub000/internal/remote"
	"github.com/andrewblevins/space-sub000/internal/space"
	"github.com/andrewblevins/space-sub000/internal/testutil"
)

// tokenToggle is a TokenSource whose credential can change mid-test.
type tokenToggle struct {
	mu    sync.Mutex
	token string
}

func (s *tokenToggle) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

func (s *tokenToggle) set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

type storeFixture struct {
	store  *space.Store
	local  *local.Repository
	remote *remote.MemoryRepository
	tokens *tokenToggle
	clock  *testutil.StubClock
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()

	kvstore := testutil.NewTestStore(t)
	logger := space.NewNopLogger()
	clock := testutil.FixedClock()
	tokens := &tokenToggle{}

	localRepo := local.NewRepository(kvstore, logger, clock)
	remoteRepo := remote.NewMemoryRepository(tokens, clock, testutil.NewStubIDGenerator(), logger)

	return &storeFixture{
		store:  space.NewStore(localRepo, remoteRepo, localRepo, tokens, logger, clock),
		local:  localRepo,
		remote: remoteRepo,
		tokens: tokens,
		clock:  clock,
	}
}

func TestCreateSession(t *testing.T) {
	t.Run("anonymous creates locally", func(t *testing.T) {
		f := newStoreFixture(t)

		sess, err := f.store.CreateSession(context.Background())
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if sess.ID != "1" {
			t.Errorf("session id = %q, want 1", sess.ID)
		}

		id, backend, err := f.local.Current()
		if err != nil {
			t.Fatalf("Current: %v", err)
		}
		if id != "1" || backend != space.BackendLocal {
			t.Errorf("pointer = (%q, %v), want (1, local)", id, backend)
		}
	})

	t.Run("authenticated creates remotely", func(t *testing.T) {
		f := newStoreFixture(t)
		f.tokens.set("tok")

		sess, err := f.store.CreateSession(context.Background())
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		if space.Classify(sess.ID) != space.BackendRemote {
			t.Errorf("session id %q does not classify as remote", sess.ID)
		}

		id, backend, err := f.local.Current()
		if err != nil {
			t.Fatalf("Current: %v", err)
		}
		if id != sess.ID || backend != space.BackendRemote {
			t.Errorf("pointer = (%q, %v), want (%q, remote)", id, backend, sess.ID)
		}
	})

	t.Run("local ids increment", func(t *testing.T) {
		f := newStoreFixture(t)

		for want := 1; want <= 3; want++ {
			sess, err := f.store.CreateSession(context.Background())
			if err != nil {
				t.Fatalf("CreateSession: %v", err)
			}
			if sess.ID != strconv.Itoa(want) {
				t.Errorf("session id = %q, want %d", sess.ID, want)
			}
		}
	})
}

func TestSaveTurn(t *testing.T) {
	t.Run("local append", func(t *testing.T) {
		f := newStoreFixture(t)
		sess, err := f.store.CreateSession(context.Background())
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}

		msg := space.Message{Type: space.MessageUser, Content: "hello"}
		if err := f.store.SaveTurn(context.Background(), sess.ID, &msg); err != nil {
			t.Fatalf("SaveTurn: %v", err)
		}
		if !msg.Saved {
			t.Error("message not marked saved")
		}
		if msg.Timestamp.IsZero() {
			t.Error("message timestamp not assigned")
		}

		loaded, err := f.store.LoadSession(context.Background(), sess.ID)
		if err != nil {
			t.Fatalf("LoadSession: %v", err)
		}
		if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "hello" {
			t.Errorf("loaded messages = %+v", loaded.Messages)
		}
	})

	t.Run("already saved is a no-op", func(t *testing.T) {
		f := newStoreFixture(t)
		sess, err := f.store.CreateSession(context.Background())
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}

		msg := space.Message{Type: space.MessageUser, Content: "hello"}
		if err := f.store.SaveTurn(context.Background(), sess.ID, &msg); err != nil {
			t.Fatalf("SaveTurn: %v", err)
		}
		if err := f.store.SaveTurn(context.Background(), sess.ID, &msg); err != nil {
			t.Fatalf("SaveTurn again: %v", err)
		}

		loaded, err := f.store.LoadSession(context.Background(), sess.ID)
		if err != nil {
			t.Fatalf("LoadSession: %v", err)
		}
		if len(loaded.Messages) != 1 {
			t.Errorf("message count = %d, want 1 after duplicate save", len(loaded.Messages))
		}
	})

	t.Run("remote append adopts server timestamp", func(t *testing.T) {
		f := newStoreFixture(t)
		f.tokens.set("tok")
		sess, err := f.store.CreateSession(context.Background())
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}

		f.clock.Advance(42 * time.Second)
		msg := space.Message{Type: space.MessageAssistant, Content: "reply"}
		if err := f.store.SaveTurn(context.Background(), sess.ID, &msg); err != nil {
			t.Fatalf("SaveTurn: %v", err)
		}
		if !msg.Saved {
			t.Error("message not marked saved")
		}
		if !msg.Timestamp.Equal(f.clock.Now().UTC()) {
			t.Errorf("timestamp = %v, want server-assigned %v", msg.Timestamp, f.clock.Now().UTC())
		}
	})

	t.Run("unknown session id", func(t *testing.T) {
		f := newStoreFixture(t)
		msg := space.Message{Type: space.MessageUser, Content: "x"}
		if err := f.store.SaveTurn(context.Background(), "not-an-id", &msg); !errors.Is(err, space.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestLoadSession(t *testing.T) {
	t.Run("local id loads locally even when authenticated", func(t *testing.T) {
		f := newStoreFixture(t)
		sess, err := f.store.CreateSession(context.Background())
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}

		f.tokens.set("tok")
		loaded, err := f.store.LoadSession(context.Background(), sess.ID)
		if err != nil {
			t.Fatalf("LoadSession: %v", err)
		}
		if loaded.ID != sess.ID {
			t.Errorf("loaded id = %q, want %q", loaded.ID, sess.ID)
		}
	})

	t.Run("invalid id is not found", func(t *testing.T) {
		f := newStoreFixture(t)
		if _, err := f.store.LoadSession(context.Background(), "garbage!"); !errors.Is(err, space.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("missing local id is not found", func(t *testing.T) {
		f := newStoreFixture(t)
		if _, err := f.store.LoadSession(context.Background(), "99"); !errors.Is(err, space.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestListSessions(t *testing.T) {
	f := newStoreFixture(t)

	// One local session with content.
	localSess, err := f.store.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	msg := space.Message{Type: space.MessageUser, Content: "local talk"}
	if err := f.store.SaveTurn(context.Background(), localSess.ID, &msg); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}

	// One remote conversation.
	f.tokens.set("tok")
	remoteSess, err := f.store.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	t.Run("authenticated lists remote only", func(t *testing.T) {
		sessions, err := f.store.ListSessions(context.Background())
		if err != nil {
			t.Fatalf("ListSessions: %v", err)
		}
		if len(sessions) != 1 || sessions[0].ID != remoteSess.ID {
			t.Errorf("sessions = %+v, want only the remote conversation", sessions)
		}
	})

	t.Run("anonymous lists local only", func(t *testing.T) {
		f.tokens.set("")
		sessions, err := f.store.ListSessions(context.Background())
		if err != nil {
			t.Fatalf("ListSessions: %v", err)
		}
		if len(sessions) != 1 || sessions[0].ID != localSess.ID {
			t.Errorf("sessions = %+v, want only the local session", sessions)
		}
	})
}

func TestDeleteSession(t *testing.T) {
	t.Run("deletes and clears pointer", func(t *testing.T) {
		f := newStoreFixture(t)
		sess, err := f.store.CreateSession(context.Background())
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}

		if err := f.store.DeleteSession(context.Background(), sess.ID); err != nil {
			t.Fatalf("DeleteSession: %v", err)
		}
		if _, err := f.store.LoadSession(context.Background(), sess.ID); !errors.Is(err, space.ErrNotFound) {
			t.Errorf("load after delete = %v, want ErrNotFound", err)
		}

		_, backend, err := f.local.Current()
		if err != nil {
			t.Fatalf("Current: %v", err)
		}
		if backend != space.BackendInvalid {
			t.Errorf("pointer backend = %v, want cleared", backend)
		}
	})

	t.Run("keeps pointer to other session", func(t *testing.T) {
		f := newStoreFixture(t)
		first, err := f.store.CreateSession(context.Background())
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		second, err := f.store.CreateSession(context.Background())
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}

		if err := f.store.DeleteSession(context.Background(), first.ID); err != nil {
			t.Fatalf("DeleteSession: %v", err)
		}

		id, backend, err := f.local.Current()
		if err != nil {
			t.Fatalf("Current: %v", err)
		}
		if id != second.ID || backend != space.BackendLocal {
			t.Errorf("pointer = (%q, %v), want (%q, local)", id, backend, second.ID)
		}
	})

	t.Run("invalid id is not found", func(t *testing.T) {
		f := newStoreFixture(t)
		if err := f.store.DeleteSession(context.Background(), "nope"); !errors.Is(err, space.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

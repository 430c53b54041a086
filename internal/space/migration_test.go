package space_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/andrewblevins/space-sub000/internal/local"
	"github.com/andrewblevins/space-sub000/internal/remote"
	"github.com/andrewblevins/space-sub000/internal/space"
	"github.com/andrewblevins/space-sub000/internal/testutil"
)

type migrationFixture struct {
	local    *local.Repository
	remote   *remote.MemoryRepository
	flaky    *testutil.FlakyRemote
	migrator *space.Migrator
	clock    *testutil.StubClock
}

func newMigrationFixture(t *testing.T) *migrationFixture {
	t.Helper()

	kvstore := testutil.NewTestStore(t)
	logger := space.NewNopLogger()
	clock := testutil.FixedClock()

	localRepo := local.NewRepository(kvstore, logger, clock)
	remoteRepo := remote.NewMemoryRepository(space.StaticTokenSource("tok"), clock, testutil.NewStubIDGenerator(), logger)
	flaky := testutil.NewFlakyRemote(remoteRepo)

	return &migrationFixture{
		local:    localRepo,
		remote:   remoteRepo,
		flaky:    flaky,
		migrator: space.NewMigrator(localRepo, localRepo, flaky, logger, clock, 0),
		clock:    clock,
	}
}

// seedSession stores a local session with the given messages.
func (f *migrationFixture) seedSession(t *testing.T, id int, title string, messages ...space.Message) {
	t.Helper()
	err := f.local.Save(&space.Session{
		ID:        fmt.Sprintf("%d", id),
		Title:     title,
		UpdatedAt: f.clock.Now(),
		Messages:  messages,
	})
	if err != nil {
		t.Fatalf("seeding session %d: %v", id, err)
	}
}

func userMsg(content string, tags ...string) space.Message {
	return space.Message{Type: space.MessageUser, Content: content, Tags: tags}
}

func assistantMsg(content string) space.Message {
	return space.Message{Type: space.MessageAssistant, Content: content}
}

func placeholderMsg() space.Message {
	return space.Message{Type: space.MessageSystem}
}

func TestMigratorDiscover(t *testing.T) {
	t.Run("finds migratable sessions", func(t *testing.T) {
		f := newMigrationFixture(t)
		f.seedSession(t, 1, "first", userMsg("hi"), assistantMsg("hello"))
		f.seedSession(t, 2, "second", userMsg("more"))

		sessions, rec, err := f.migrator.Discover()
		if err != nil {
			t.Fatalf("Discover: %v", err)
		}
		if len(sessions) != 2 {
			t.Errorf("discovered %d sessions, want 2", len(sessions))
		}
		if rec.Status != space.MigrationNotStarted {
			t.Errorf("record status = %q", rec.Status)
		}
		if f.migrator.State() != space.StateConfirm {
			t.Errorf("state = %q, want confirm", f.migrator.State())
		}
	})

	t.Run("placeholder-only sessions are not migratable", func(t *testing.T) {
		f := newMigrationFixture(t)
		f.seedSession(t, 1, "", placeholderMsg())

		sessions, _, err := f.migrator.Discover()
		if err != nil {
			t.Fatalf("Discover: %v", err)
		}
		if len(sessions) != 0 {
			t.Errorf("discovered %d sessions, want 0", len(sessions))
		}
		if f.migrator.State() != space.StateNoConversations {
			t.Errorf("state = %q, want no-conversations", f.migrator.State())
		}
	})

	t.Run("terminal record short-circuits", func(t *testing.T) {
		f := newMigrationFixture(t)
		f.seedSession(t, 1, "stray", userMsg("left behind"))
		err := f.local.SaveMigrationRecord(&space.MigrationRecord{
			Status:      space.MigrationCompleted,
			CompletedAt: f.clock.Now(),
		})
		if err != nil {
			t.Fatalf("SaveMigrationRecord: %v", err)
		}

		sessions, rec, err := f.migrator.Discover()
		if err != nil {
			t.Fatalf("Discover: %v", err)
		}
		if len(sessions) != 0 {
			t.Error("stray sessions surfaced for re-migration")
		}
		if rec.Status != space.MigrationCompleted {
			t.Errorf("record status = %q", rec.Status)
		}
	})
}

func TestMigratorMigrate(t *testing.T) {
	t.Run("transfers sessions with provenance", func(t *testing.T) {
		f := newMigrationFixture(t)
		f.seedSession(t, 1, "chat one",
			userMsg("question", "analysis"),
			assistantMsg("answer"),
			placeholderMsg(),
		)
		f.seedSession(t, 2, "chat two", userMsg("solo"))

		if _, _, err := f.migrator.Discover(); err != nil {
			t.Fatalf("Discover: %v", err)
		}

		var progress []int
		result, err := f.migrator.Migrate(context.Background(), func(current, total int) {
			if total != 2 {
				t.Errorf("progress total = %d, want 2", total)
			}
			progress = append(progress, current)
		})
		if err != nil {
			t.Fatalf("Migrate: %v", err)
		}

		if result.Successful != 2 || result.Failed != 0 {
			t.Errorf("result = %d ok / %d failed, want 2/0", result.Successful, result.Failed)
		}
		if len(progress) != 2 || progress[0] != 1 || progress[1] != 2 {
			t.Errorf("progress calls = %v, want [1 2]", progress)
		}
		if f.migrator.State() != space.StateComplete {
			t.Errorf("state = %q, want complete", f.migrator.State())
		}

		// Remote side: each session became a conversation, placeholders
		// dropped, tags preserved.
		remoteSessions, err := f.remote.List(context.Background())
		if err != nil {
			t.Fatalf("remote List: %v", err)
		}
		if len(remoteSessions) != 2 {
			t.Fatalf("remote conversations = %d, want 2", len(remoteSessions))
		}

		var chatOne *space.Session
		for _, r := range result.Results {
			if r.OriginalID == 1 {
				conv, err := f.remote.Load(context.Background(), r.NewID)
				if err != nil {
					t.Fatalf("remote Load: %v", err)
				}
				chatOne = conv
			}
		}
		if chatOne == nil {
			t.Fatal("no result for session 1")
		}
		if len(chatOne.Messages) != 2 {
			t.Errorf("transferred messages = %d, want 2 (placeholder dropped)", len(chatOne.Messages))
		}
		if chatOne.Metadata["importedFrom"] != "local" {
			t.Errorf("provenance importedFrom = %v", chatOne.Metadata["importedFrom"])
		}
		if chatOne.Metadata["originalId"] != 1 {
			t.Errorf("provenance originalId = %v", chatOne.Metadata["originalId"])
		}
		if len(chatOne.Messages) > 0 && len(chatOne.Messages[0].Tags) != 1 {
			t.Errorf("message tags = %v, want preserved", chatOne.Messages[0].Tags)
		}

		// Local side: sources deleted, record terminal.
		if _, err := f.local.Load(1); err == nil {
			t.Error("migrated local session 1 still present")
		}
		rec, err := f.local.LoadMigrationRecord()
		if err != nil {
			t.Fatalf("LoadMigrationRecord: %v", err)
		}
		if rec.Status != space.MigrationCompleted {
			t.Errorf("record status = %q", rec.Status)
		}
		if rec.Summary.Total != 2 || rec.Summary.Successful != 2 {
			t.Errorf("record summary = %+v", rec.Summary)
		}
	})

	t.Run("partial failure retains failed locals", func(t *testing.T) {
		f := newMigrationFixture(t)
		f.seedSession(t, 1, "good", userMsg("fine"))
		f.seedSession(t, 2, "bad", userMsg("doomed"))
		f.flaky.FailCreate("bad", fmt.Errorf("service unavailable"))

		if _, _, err := f.migrator.Discover(); err != nil {
			t.Fatalf("Discover: %v", err)
		}
		result, err := f.migrator.Migrate(context.Background(), nil)
		if err != nil {
			t.Fatalf("Migrate: %v", err)
		}

		if result.Successful != 1 || result.Failed != 1 {
			t.Errorf("result = %d ok / %d failed, want 1/1", result.Successful, result.Failed)
		}
		if f.migrator.State() != space.StateComplete {
			t.Errorf("state = %q, want complete despite failures", f.migrator.State())
		}

		// Failed session kept, successful one removed.
		if _, err := f.local.Load(2); err != nil {
			t.Errorf("failed session's local copy missing: %v", err)
		}
		if _, err := f.local.Load(1); err == nil {
			t.Error("successful session's local copy not removed")
		}

		rec, err := f.local.LoadMigrationRecord()
		if err != nil {
			t.Fatalf("LoadMigrationRecord: %v", err)
		}
		if rec.Status != space.MigrationCompleted || rec.Summary.Failed != 1 {
			t.Errorf("record = %+v", rec)
		}
	})

	t.Run("requires confirm state", func(t *testing.T) {
		f := newMigrationFixture(t)
		if _, err := f.migrator.Migrate(context.Background(), nil); err == nil {
			t.Error("Migrate without Discover should fail")
		}
	})

	t.Run("cancellation returns to confirm", func(t *testing.T) {
		f := newMigrationFixture(t)
		f.seedSession(t, 1, "one", userMsg("a"))
		f.seedSession(t, 2, "two", userMsg("b"))

		if _, _, err := f.migrator.Discover(); err != nil {
			t.Fatalf("Discover: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := f.migrator.Migrate(ctx, nil); err == nil {
			t.Fatal("Migrate with cancelled context should fail")
		}
		if f.migrator.State() != space.StateConfirm {
			t.Errorf("state = %q, want confirm for retry", f.migrator.State())
		}
		if len(f.migrator.Discovered()) != 2 {
			t.Error("discovered list not retained for retry")
		}

		// Retry with a live context succeeds.
		result, err := f.migrator.Migrate(context.Background(), nil)
		if err != nil {
			t.Fatalf("retry Migrate: %v", err)
		}
		if result.Successful != 2 {
			t.Errorf("retry successful = %d, want 2", result.Successful)
		}
	})

	t.Run("completed migration does not rerun", func(t *testing.T) {
		f := newMigrationFixture(t)
		f.seedSession(t, 1, "once", userMsg("only"))

		if _, _, err := f.migrator.Discover(); err != nil {
			t.Fatalf("Discover: %v", err)
		}
		if _, err := f.migrator.Migrate(context.Background(), nil); err != nil {
			t.Fatalf("Migrate: %v", err)
		}

		// A fresh orchestrator (new app start) sees the terminal record.
		second := space.NewMigrator(f.local, f.local, f.flaky, space.NewNopLogger(), f.clock, 0)
		sessions, rec, err := second.Discover()
		if err != nil {
			t.Fatalf("second Discover: %v", err)
		}
		if len(sessions) != 0 || rec.Status != space.MigrationCompleted {
			t.Errorf("second discover = %d sessions, record %q", len(sessions), rec.Status)
		}

		remoteSessions, err := f.remote.List(context.Background())
		if err != nil {
			t.Fatalf("remote List: %v", err)
		}
		if len(remoteSessions) != 1 {
			t.Errorf("remote conversations = %d, want no duplicates", len(remoteSessions))
		}
	})

	t.Run("paces transfers", func(t *testing.T) {
		f := newMigrationFixture(t)
		f.seedSession(t, 1, "one", userMsg("a"))
		f.seedSession(t, 2, "two", userMsg("b"))
		f.seedSession(t, 3, "three", userMsg("c"))

		var pauses []time.Duration
		migrator := space.NewMigrator(f.local, f.local, f.flaky, space.NewNopLogger(), f.clock, 100*time.Millisecond)
		migrator.SetSleep(func(d time.Duration) { pauses = append(pauses, d) })

		if _, _, err := migrator.Discover(); err != nil {
			t.Fatalf("Discover: %v", err)
		}
		if _, err := migrator.Migrate(context.Background(), nil); err != nil {
			t.Fatalf("Migrate: %v", err)
		}

		// A pause between consecutive transfers, none after the last.
		if len(pauses) != 2 {
			t.Errorf("pauses = %v, want 2", pauses)
		}
	})
}

func TestMigratorSkip(t *testing.T) {
	f := newMigrationFixture(t)
	f.seedSession(t, 1, "kept", userMsg("stays local"))

	if _, _, err := f.migrator.Discover(); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if err := f.migrator.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	rec, err := f.local.LoadMigrationRecord()
	if err != nil {
		t.Fatalf("LoadMigrationRecord: %v", err)
	}
	if rec.Status != space.MigrationSkipped {
		t.Errorf("record status = %q, want skipped", rec.Status)
	}

	// Local data untouched, and a later Discover short-circuits.
	if _, err := f.local.Load(1); err != nil {
		t.Errorf("local session removed by skip: %v", err)
	}
	sessions, _, err := f.migrator.Discover()
	if err != nil {
		t.Fatalf("Discover after skip: %v", err)
	}
	if len(sessions) != 0 {
		t.Error("skip did not short-circuit discovery")
	}
}

func TestMigratorReset(t *testing.T) {
	f := newMigrationFixture(t)
	f.seedSession(t, 1, "again", userMsg("still here"))

	if err := f.migrator.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if err := f.migrator.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	sessions, rec, err := f.migrator.Discover()
	if err != nil {
		t.Fatalf("Discover after reset: %v", err)
	}
	if rec.Status != space.MigrationNotStarted {
		t.Errorf("record status = %q, want not-started", rec.Status)
	}
	if len(sessions) != 1 {
		t.Errorf("discovered %d sessions, want 1", len(sessions))
	}
}

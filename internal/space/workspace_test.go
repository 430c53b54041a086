package space_test

import (
	"strings"
	"testing"
	"time"

	"github.com/andrewblevins/space-sub000/internal/kv"
	"github.com/andrewblevins/space-sub000/internal/space"
	"github.com/andrewblevins/space-sub000/internal/testutil"
)

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

// changeCount returns how many journal entries exist for key.
func changeCount(t *testing.T, store kv.Store, key string) int {
	t.Helper()
	changes, _, err := store.Changes(0)
	if err != nil {
		t.Fatalf("Changes: %v", err)
	}
	n := 0
	for _, c := range changes {
		if c.Key == key {
			n++
		}
	}
	return n
}

func newWorkspace(t *testing.T, store *kv.MemoryStore, window time.Duration) (*space.Workspace, *space.Scheduler) {
	t.Helper()
	logger := space.NewNopLogger()
	sched := space.NewScheduler(store, window, logger)
	t.Cleanup(sched.Close)

	w, err := space.NewWorkspace(store, nil, sched, logger)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	t.Cleanup(w.Close)
	return w, sched
}

func TestWorkspaceRoundtrip(t *testing.T) {
	store := testutil.NewTestStore(t)
	w, sched := newWorkspace(t, store, time.Hour)

	if err := w.AddAdvisor(space.Advisor{Name: "Sage", Description: "careful", Active: true}); err != nil {
		t.Fatalf("AddAdvisor: %v", err)
	}
	if err := w.AddAdvisor(space.Advisor{Name: "Critic"}); err != nil {
		t.Fatalf("AddAdvisor: %v", err)
	}
	w.SetGroup(space.AdvisorGroup{Name: "panel", Advisors: []string{"Sage", "Critic"}})

	s := w.Settings()
	s.MaxTokens = 8192
	s.ReasoningMode = true
	w.SetSettings(s)

	sched.Flush()

	// A fresh workspace over the same store sees everything.
	w2, _ := newWorkspace(t, store, time.Hour)
	if got := w2.Advisors(); len(got) != 2 || got[0].Name != "Sage" || !got[0].Active {
		t.Errorf("advisors = %+v", got)
	}
	if got := w2.Groups(); len(got) != 1 || len(got[0].Advisors) != 2 {
		t.Errorf("groups = %+v", got)
	}
	if got := w2.Settings(); got.MaxTokens != 8192 || !got.ReasoningMode {
		t.Errorf("settings = %+v", got)
	}
	// Untouched scalars keep their defaults.
	if got := w2.Settings(); got.ParagraphSpacing != 0.4 || !got.AutoScroll {
		t.Errorf("defaults lost: %+v", got)
	}
}

func TestWorkspaceDebouncesWrites(t *testing.T) {
	store := testutil.NewTestStore(t)
	w, _ := newWorkspace(t, store, 30*time.Millisecond)

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if err := w.AddAdvisor(space.Advisor{Name: name}); err != nil {
			t.Fatalf("AddAdvisor(%s): %v", name, err)
		}
	}

	waitFor(t, func() bool { return changeCount(t, store, space.KeyAdvisors) > 0 })

	if got := changeCount(t, store, space.KeyAdvisors); got != 1 {
		t.Errorf("writes = %d, want 1 for a burst of mutations", got)
	}

	value, ok, err := store.Get(space.KeyAdvisors)
	if err != nil || !ok {
		t.Fatalf("advisors key missing: %v", err)
	}
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if !strings.Contains(value, name) {
			t.Errorf("persisted roster missing %q: %s", name, value)
		}
	}
}

func TestWorkspaceEmptyRosterDeletesKey(t *testing.T) {
	store := testutil.NewTestStore(t)
	w, sched := newWorkspace(t, store, time.Hour)

	if err := w.AddAdvisor(space.Advisor{Name: "only"}); err != nil {
		t.Fatalf("AddAdvisor: %v", err)
	}
	sched.Flush()
	if _, ok, _ := store.Get(space.KeyAdvisors); !ok {
		t.Fatal("advisors key not written")
	}

	if err := w.RemoveAdvisor("only"); err != nil {
		t.Fatalf("RemoveAdvisor: %v", err)
	}
	sched.Flush()
	if _, ok, _ := store.Get(space.KeyAdvisors); ok {
		t.Error("emptied roster should remove its key")
	}
}

func TestWorkspaceRemoveAdvisorDropsFromGroups(t *testing.T) {
	store := testutil.NewTestStore(t)
	w, sched := newWorkspace(t, store, time.Hour)

	if err := w.AddAdvisor(space.Advisor{Name: "Sage"}); err != nil {
		t.Fatalf("AddAdvisor: %v", err)
	}
	if err := w.AddAdvisor(space.Advisor{Name: "Critic"}); err != nil {
		t.Fatalf("AddAdvisor: %v", err)
	}
	w.SetGroup(space.AdvisorGroup{Name: "panel", Advisors: []string{"Sage", "Critic"}})

	if err := w.RemoveAdvisor("Sage"); err != nil {
		t.Fatalf("RemoveAdvisor: %v", err)
	}
	sched.Flush()

	groups := w.Groups()
	if len(groups) != 1 || len(groups[0].Advisors) != 1 || groups[0].Advisors[0] != "Critic" {
		t.Errorf("groups = %+v, want Sage dropped", groups)
	}
}

func TestWorkspaceDuplicateAdvisor(t *testing.T) {
	store := testutil.NewTestStore(t)
	w, _ := newWorkspace(t, store, time.Hour)

	if err := w.AddAdvisor(space.Advisor{Name: "Sage"}); err != nil {
		t.Fatalf("AddAdvisor: %v", err)
	}
	if err := w.AddAdvisor(space.Advisor{Name: "Sage"}); err == nil {
		t.Error("duplicate advisor accepted")
	}
}

func TestWorkspaceScalarChangeDetection(t *testing.T) {
	store := testutil.NewTestStore(t)
	w, sched := newWorkspace(t, store, time.Hour)

	s := w.Settings()
	s.MaxTokens = 2048
	w.SetSettings(s)
	sched.Flush()

	if _, ok, _ := store.Get(space.KeyMaxTokens); !ok {
		t.Error("changed scalar not written")
	}
	for _, key := range []string{
		space.KeyReasoningMode,
		space.KeySidebarCollapsed,
		space.KeyAutoScroll,
		space.KeyParagraphSpacing,
	} {
		if _, ok, _ := store.Get(key); ok {
			t.Errorf("unchanged scalar %s written", key)
		}
	}
}

func TestWorkspaceCrossContextSync(t *testing.T) {
	base := testutil.NewTestStore(t)
	logger := space.NewNopLogger()

	// Context A.
	storeA := base.Handle()
	watcherA := kv.NewWatcher(storeA, 10*time.Millisecond, logger)
	if err := watcherA.Start(); err != nil {
		t.Fatalf("watcherA.Start: %v", err)
	}
	t.Cleanup(watcherA.Stop)
	schedA := space.NewScheduler(storeA, time.Hour, logger)
	t.Cleanup(schedA.Close)
	wsA, err := space.NewWorkspace(storeA, watcherA, schedA, logger)
	if err != nil {
		t.Fatalf("workspace A: %v", err)
	}
	t.Cleanup(wsA.Close)

	// Context B shares the store under a different origin.
	storeB := base.Handle()
	watcherB := kv.NewWatcher(storeB, 10*time.Millisecond, logger)
	if err := watcherB.Start(); err != nil {
		t.Fatalf("watcherB.Start: %v", err)
	}
	t.Cleanup(watcherB.Stop)
	schedB := space.NewScheduler(storeB, time.Hour, logger)
	t.Cleanup(schedB.Close)
	wsB, err := space.NewWorkspace(storeB, watcherB, schedB, logger)
	if err != nil {
		t.Fatalf("workspace B: %v", err)
	}
	t.Cleanup(wsB.Close)

	if err := wsA.AddAdvisor(space.Advisor{Name: "Shared"}); err != nil {
		t.Fatalf("AddAdvisor: %v", err)
	}
	schedA.Flush()

	waitFor(t, func() bool {
		advisors := wsB.Advisors()
		return len(advisors) == 1 && advisors[0].Name == "Shared"
	})

	// Rehydration must not echo a write back.
	time.Sleep(50 * time.Millisecond)
	if got := changeCount(t, base, space.KeyAdvisors); got != 1 {
		t.Errorf("journal writes = %d, want 1 (no rehydration echo)", got)
	}

	// A deletion propagates as an emptied roster.
	if err := wsA.RemoveAdvisor("Shared"); err != nil {
		t.Fatalf("RemoveAdvisor: %v", err)
	}
	schedA.Flush()

	waitFor(t, func() bool { return len(wsB.Advisors()) == 0 })
}

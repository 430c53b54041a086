package space

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// Workspace owns one context's in-memory copy of the advisor roster, the
// advisor groups and the scalar settings. Every mutation schedules a
// debounced write of the affected key; changes made by other contexts arrive
// through the Notifier and replace in-memory state wholesale (last writer
// wins at the key level). Rehydration never writes back, so two contexts
// cannot feed each other notification loops.
type Workspace struct {
	kv     KeyValue
	sched  *Scheduler
	logger Logger

	mu       sync.Mutex
	advisors []Advisor
	groups   []AdvisorGroup
	settings Settings

	cancels []func()
}

// NewWorkspace loads the persisted state and subscribes to foreign-context
// changes. Call Close to drop the subscriptions.
func NewWorkspace(kv KeyValue, notifier Notifier, sched *Scheduler, logger Logger) (*Workspace, error) {
	w := &Workspace{
		kv:       kv,
		sched:    sched,
		logger:   logger,
		settings: DefaultSettings(),
	}
	if err := w.load(); err != nil {
		return nil, err
	}
	if notifier != nil {
		if err := w.subscribe(notifier); err != nil {
			w.Close()
			return nil, err
		}
	}
	return w, nil
}

// Close cancels all change subscriptions. Pending debounced writes are the
// Scheduler's to flush.
func (w *Workspace) Close() {
	for _, cancel := range w.cancels {
		cancel()
	}
	w.cancels = nil
}

func (w *Workspace) load() error {
	if value, ok, err := w.kv.Get(KeyAdvisors); err != nil {
		return fmt.Errorf("loading advisors: %w", err)
	} else if ok {
		if err := json.Unmarshal([]byte(value), &w.advisors); err != nil {
			w.logger.Warn("ignoring malformed advisors record", "error", err)
			w.advisors = nil
		}
	}

	if value, ok, err := w.kv.Get(KeyAdvisorGroups); err != nil {
		return fmt.Errorf("loading advisor groups: %w", err)
	} else if ok {
		if err := json.Unmarshal([]byte(value), &w.groups); err != nil {
			w.logger.Warn("ignoring malformed advisor groups record", "error", err)
			w.groups = nil
		}
	}

	for key, apply := range w.scalarReaders() {
		value, ok, err := w.kv.Get(key)
		if err != nil {
			return fmt.Errorf("loading %s: %w", key, err)
		}
		if !ok {
			continue
		}
		if err := apply(value); err != nil {
			w.logger.Warn("ignoring malformed setting", "key", key, "error", err)
		}
	}
	return nil
}

// scalarReaders maps each scalar settings key to a parser that applies the
// stored value. Shared by initial load and rehydration.
func (w *Workspace) scalarReaders() map[string]func(string) error {
	return map[string]func(string) error{
		KeyMaxTokens: func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			w.settings.MaxTokens = n
			return nil
		},
		KeyReasoningMode: func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			w.settings.ReasoningMode = b
			return nil
		},
		KeySidebarCollapsed: func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			w.settings.SidebarCollapsed = b
			return nil
		},
		KeyAutoScroll: func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			w.settings.AutoScroll = b
			return nil
		},
		KeyParagraphSpacing: func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			w.settings.ParagraphSpacing = f
			return nil
		},
	}
}

func (w *Workspace) subscribe(notifier Notifier) error {
	sub := func(key string, fn func(value string, ok bool)) error {
		cancel, err := notifier.Subscribe(key, fn)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", key, err)
		}
		w.cancels = append(w.cancels, cancel)
		return nil
	}

	if err := sub(KeyAdvisors, func(value string, ok bool) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if !ok {
			w.advisors = nil
			return
		}
		var advisors []Advisor
		if err := json.Unmarshal([]byte(value), &advisors); err != nil {
			w.logger.Warn("ignoring unparseable advisors notification", "error", err)
			return
		}
		w.advisors = advisors
	}); err != nil {
		return err
	}

	if err := sub(KeyAdvisorGroups, func(value string, ok bool) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if !ok {
			w.groups = nil
			return
		}
		var groups []AdvisorGroup
		if err := json.Unmarshal([]byte(value), &groups); err != nil {
			w.logger.Warn("ignoring unparseable advisor groups notification", "error", err)
			return
		}
		w.groups = groups
	}); err != nil {
		return err
	}

	for key, apply := range w.scalarReaders() {
		if err := sub(key, func(value string, ok bool) {
			w.mu.Lock()
			defer w.mu.Unlock()
			if !ok {
				return
			}
			if err := apply(value); err != nil {
				w.logger.Warn("ignoring unparseable setting notification", "key", key, "error", err)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// Advisors returns a copy of the roster.
func (w *Workspace) Advisors() []Advisor {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Advisor, len(w.advisors))
	copy(out, w.advisors)
	return out
}

// AddAdvisor appends an advisor. Names are unique within the roster.
func (w *Workspace) AddAdvisor(a Advisor) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, existing := range w.advisors {
		if existing.Name == a.Name {
			return fmt.Errorf("advisor %q already exists", a.Name)
		}
	}
	w.advisors = append(w.advisors, a)
	w.scheduleAdvisors()
	return nil
}

// UpdateAdvisor replaces the advisor with the given name.
func (w *Workspace) UpdateAdvisor(name string, a Advisor) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a.Name != name {
		for _, existing := range w.advisors {
			if existing.Name == a.Name {
				return fmt.Errorf("advisor %q already exists", a.Name)
			}
		}
	}
	for i, existing := range w.advisors {
		if existing.Name == name {
			w.advisors[i] = a
			w.scheduleAdvisors()
			return nil
		}
	}
	return fmt.Errorf("advisor %q: %w", name, ErrNotFound)
}

// RemoveAdvisor deletes the advisor and drops it from any groups.
func (w *Workspace) RemoveAdvisor(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	found := false
	kept := w.advisors[:0]
	for _, a := range w.advisors {
		if a.Name == name {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return fmt.Errorf("advisor %q: %w", name, ErrNotFound)
	}
	w.advisors = kept

	groupsChanged := false
	for i := range w.groups {
		members := w.groups[i].Advisors[:0]
		for _, m := range w.groups[i].Advisors {
			if m == name {
				groupsChanged = true
				continue
			}
			members = append(members, m)
		}
		w.groups[i].Advisors = members
	}

	w.scheduleAdvisors()
	if groupsChanged {
		w.scheduleGroups()
	}
	return nil
}

// ToggleAdvisor flips an advisor's active flag.
func (w *Workspace) ToggleAdvisor(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.advisors {
		if w.advisors[i].Name == name {
			w.advisors[i].Active = !w.advisors[i].Active
			w.scheduleAdvisors()
			return nil
		}
	}
	return fmt.Errorf("advisor %q: %w", name, ErrNotFound)
}

// Groups returns a copy of the advisor groups.
func (w *Workspace) Groups() []AdvisorGroup {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]AdvisorGroup, len(w.groups))
	copy(out, w.groups)
	return out
}

// SetGroup creates or replaces a group.
func (w *Workspace) SetGroup(g AdvisorGroup) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.groups {
		if w.groups[i].Name == g.Name {
			w.groups[i] = g
			w.scheduleGroups()
			return
		}
	}
	w.groups = append(w.groups, g)
	w.scheduleGroups()
}

// RemoveGroup deletes a group.
func (w *Workspace) RemoveGroup(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.groups {
		if w.groups[i].Name == name {
			w.groups = append(w.groups[:i], w.groups[i+1:]...)
			w.scheduleGroups()
			return nil
		}
	}
	return fmt.Errorf("group %q: %w", name, ErrNotFound)
}

// Settings returns the current scalar settings.
func (w *Workspace) Settings() Settings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings
}

// SetSettings replaces the scalar settings and schedules a write for each
// key whose value changed.
func (w *Workspace) SetSettings(s Settings) {
	w.mu.Lock()
	defer w.mu.Unlock()
	old := w.settings
	w.settings = s

	if s.MaxTokens != old.MaxTokens {
		w.scheduleScalar(KeyMaxTokens, func() string {
			return strconv.Itoa(w.settings.MaxTokens)
		})
	}
	if s.ReasoningMode != old.ReasoningMode {
		w.scheduleScalar(KeyReasoningMode, func() string {
			return strconv.FormatBool(w.settings.ReasoningMode)
		})
	}
	if s.SidebarCollapsed != old.SidebarCollapsed {
		w.scheduleScalar(KeySidebarCollapsed, func() string {
			return strconv.FormatBool(w.settings.SidebarCollapsed)
		})
	}
	if s.AutoScroll != old.AutoScroll {
		w.scheduleScalar(KeyAutoScroll, func() string {
			return strconv.FormatBool(w.settings.AutoScroll)
		})
	}
	if s.ParagraphSpacing != old.ParagraphSpacing {
		w.scheduleScalar(KeyParagraphSpacing, func() string {
			return strconv.FormatFloat(w.settings.ParagraphSpacing, 'f', -1, 64)
		})
	}
}

// scheduleAdvisors and scheduleGroups are called with w.mu held; the
// snapshot closures take the lock themselves because they run later, on the
// scheduler's timer.

func (w *Workspace) scheduleAdvisors() {
	w.sched.Schedule(KeyAdvisors, func() (string, bool) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if len(w.advisors) == 0 {
			return "", false
		}
		data, err := json.Marshal(w.advisors)
		if err != nil {
			w.logger.Error("serializing advisors", "error", err)
			return "", false
		}
		return string(data), true
	})
}

func (w *Workspace) scheduleGroups() {
	w.sched.Schedule(KeyAdvisorGroups, func() (string, bool) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if len(w.groups) == 0 {
			return "", false
		}
		data, err := json.Marshal(w.groups)
		if err != nil {
			w.logger.Error("serializing advisor groups", "error", err)
			return "", false
		}
		return string(data), true
	})
}

func (w *Workspace) scheduleScalar(key string, format func() string) {
	w.sched.Schedule(key, func() (string, bool) {
		w.mu.Lock()
		defer w.mu.Unlock()
		return format(), true
	})
}

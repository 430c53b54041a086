package space

import "time"

// MessageType identifies who (or what) produced a message.
type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
	MessageSystem    MessageType = "system"

	// MessageSummary marks assistant-derived summary responses produced by
	// external analyzers. They are persisted like any other message.
	MessageSummary MessageType = "summary"
)

// Message is a single turn in a session. Tags are owned by an external
// analyzer and persisted opaquely. Saved is a write-scheduler marker used to
// avoid re-sending messages already persisted remotely; it is never stored.
type Message struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Tags      []string    `json:"tags,omitempty"`
	Saved     bool        `json:"-"`
}

// IsPlaceholder reports whether the message is an empty system message.
// These are UI scaffolding, not content: they are filtered from listings
// and never transferred during migration.
func (m Message) IsPlaceholder() bool {
	return m.Type == MessageSystem && m.Content == ""
}

// Session is the unit of a chat history. The ID shape is the sole
// discriminator of where it lives: a decimal integer means the local store,
// a UUID means the remote conversation service.
type Session struct {
	ID        string         `json:"id"`
	Title     string         `json:"title,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Messages  []Message      `json:"messages"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// MessageCount is managed by the repositories and not round-tripped.
	MessageCount int `json:"message_count"`
}

// HasContent reports whether the session contains at least one message that
// is not an empty system placeholder. Sessions without content are not
// durable: listings exclude them.
func (s *Session) HasContent() bool {
	for _, m := range s.Messages {
		if !m.IsPlaceholder() {
			return true
		}
	}
	return false
}

// LastActivity returns the timestamp of the most recent user turn, falling
// back to the session's own timestamp when no user turn exists. Listings
// sort by this, descending.
func (s *Session) LastActivity() time.Time {
	var last time.Time
	for _, m := range s.Messages {
		if m.Type == MessageUser && m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	if last.IsZero() {
		return s.UpdatedAt
	}
	return last
}

// MigrationStatus describes whether the one-time local-to-remote migration
// has run. It is terminal once it leaves MigrationNotStarted.
type MigrationStatus string

const (
	MigrationNotStarted MigrationStatus = "not-started"
	MigrationCompleted  MigrationStatus = "completed"
	MigrationSkipped    MigrationStatus = "skipped"
)

// MigrationSummary aggregates per-session outcomes of a migration run.
type MigrationSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// MigrationRecord is the process-wide migration state. It is never reset
// automatically; clearing it is an explicit, destructive user action.
type MigrationRecord struct {
	Status      MigrationStatus  `json:"status"`
	CompletedAt time.Time        `json:"completed_at,omitzero"`
	Summary     MigrationSummary `json:"summary"`
}

// Advisor is one entry in the user's roster of AI advisors.
// Names are unique within the roster.
type Advisor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Active      bool   `json:"active"`
}

// AdvisorGroup is a named set of advisors addressed together.
type AdvisorGroup struct {
	Name     string   `json:"name"`
	Advisors []string `json:"advisors"`
}

// Settings are the scalar knobs persisted under individual keys, each
// independently debounced.
type Settings struct {
	MaxTokens        int     `json:"max_tokens"`
	ReasoningMode    bool    `json:"reasoning_mode"`
	SidebarCollapsed bool    `json:"sidebar_collapsed"`
	AutoScroll       bool    `json:"auto_scroll"`
	ParagraphSpacing float64 `json:"paragraph_spacing"`
}

// DefaultSettings returns the settings a fresh client starts with.
func DefaultSettings() Settings {
	return Settings{
		MaxTokens:        4096,
		AutoScroll:       true,
		ParagraphSpacing: 0.4,
	}
}

package space

import "context"

// LocalRepository stores sessions in the client-local key-value store,
// keyed by small integer identifiers. Operations are synchronous and never
// suspend. The repository never decides whether it is the authoritative
// backend for a session; the Store facade owns that decision.
type LocalRepository interface {
	// List returns sessions containing at least one non-placeholder
	// message, sorted by most recent activity descending. Entries that
	// fail to parse are deleted in passing rather than surfaced: local
	// corruption is self-healing, not fatal.
	List() ([]*Session, error)

	// Load returns the full session or ErrNotFound.
	Load(id int) (*Session, error)

	// Save upserts the session keyed by its id. Serialization and quota
	// failures are returned to the caller, never swallowed.
	Save(s *Session) error

	// Delete removes the session. Deleting a missing id is not an error.
	Delete(id int) error

	// NextID returns one greater than the maximum existing local id,
	// or 1 if none exist.
	NextID() (int, error)
}

// ConversationUpdate holds the remote conversation fields that can change
// after creation. Nil fields are left untouched.
type ConversationUpdate struct {
	Title    *string
	Metadata map[string]any
}

// RemoteRepository is the contract the remote conversation service must
// satisfy, regardless of transport. All operations require a bearer
// credential; its absence is ErrAuthRequired, which is distinct from
// ErrNotFound. Transport, retries and rate limiting belong to the
// implementation.
type RemoteRepository interface {
	// Create creates a conversation and returns it with its
	// server-assigned UUID and timestamps.
	Create(ctx context.Context, title string, metadata map[string]any) (*Session, error)

	// Load returns the conversation including its messages.
	Load(ctx context.Context, id string) (*Session, error)

	// Update applies a partial update to the conversation.
	Update(ctx context.Context, id string, fields ConversationUpdate) error

	// AppendMessage appends one message. metadata travels alongside the
	// message (import provenance, analyzer tags) and is persisted opaquely.
	AppendMessage(ctx context.Context, id string, msg Message, metadata map[string]any) (*Message, error)

	// List returns conversations sorted by recency, without messages.
	List(ctx context.Context) ([]*Session, error)

	// Delete removes the conversation and its messages.
	Delete(ctx context.Context, id string) error
}

// MigrationRecordStore persists the process-wide MigrationRecord.
type MigrationRecordStore interface {
	// LoadMigrationRecord returns the stored record, or a record with
	// status not-started when none exists. Never returns nil on success.
	LoadMigrationRecord() (*MigrationRecord, error)

	// SaveMigrationRecord persists the record.
	SaveMigrationRecord(rec *MigrationRecord) error

	// ClearMigrationRecord removes the record. Explicit destructive
	// action only.
	ClearMigrationRecord() error
}

// CurrentPointer tracks which session is currently open. The local and
// remote pointer keys are mutually exclusive: setting one clears the other.
type CurrentPointer interface {
	SetCurrent(id string, backend Backend) error

	// Current returns the open session id and its backend, or
	// ("", BackendInvalid) when none is set.
	Current() (string, Backend, error)

	ClearCurrent() error
}

// KeyValue is the subset of the shared store the domain layer reads and
// writes directly (workspace state, secrets).
type KeyValue interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// Notifier delivers cross-context change notifications for watched keys.
// Implementations must not notify a context of its own writes.
type Notifier interface {
	// Subscribe registers fn for changes to key made by other contexts.
	// fn receives the new value, or ok=false when the key was deleted.
	// The returned cancel function removes the subscription.
	Subscribe(key string, fn func(value string, ok bool)) (cancel func(), err error)
}

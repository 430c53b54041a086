// Package kv implements the shared local key-value store: the single
// resource all contexts (processes) of the same client read and write.
// The store offers no locking or transactions to its callers; coordination
// above it is advisory only. Every mutation is recorded in a change journal
// stamped with the writing handle's origin, which is what lets other
// contexts observe changes without ever being notified of their own writes.
package kv

import "time"

// Change is one journal entry describing a mutation of the store.
type Change struct {
	Seq       int64
	Key       string
	Origin    string
	ChangedAt time.Time
}

// Store is a handle onto the shared key-value store. Handles are cheap;
// each has a distinct origin identifying it in the change journal.
type Store interface {
	// Get returns the value for key, with ok=false when the key is absent.
	Get(key string) (value string, ok bool, err error)

	// Set upserts the value. Values larger than the store's quota fail
	// with an error wrapping space.ErrQuotaExceeded.
	Set(key, value string) error

	// Delete removes the key. Deleting an absent key is a no-op and
	// produces no journal entry.
	Delete(key string) error

	// Keys returns all keys with the given prefix, unordered.
	Keys(prefix string) ([]string, error)

	// Origin returns this handle's journal origin.
	Origin() string

	// Changes returns journal entries with seq > afterSeq in order,
	// and the new high-water mark.
	Changes(afterSeq int64) ([]Change, int64, error)

	// LastSeq returns the journal's current high-water mark, 0 when empty.
	LastSeq() (int64, error)

	Close() error
}

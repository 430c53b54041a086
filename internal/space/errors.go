package space

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes callers are expected to branch on.
var (
	// ErrNotFound means the identifier was well-formed but no record exists.
	// Recoverable; surfaced to the user, never fatal.
	ErrNotFound = errors.New("session not found")

	// ErrAuthRequired means a remote operation was attempted without a
	// credential, or the service rejected the credential. Distinct from
	// ErrNotFound so callers can redirect to sign-in.
	ErrAuthRequired = errors.New("authentication required")

	// ErrInvalidID means the identifier matched neither the local integer
	// form nor the canonical UUID form. Loads treat this as not-found.
	ErrInvalidID = errors.New("invalid session identifier")

	// ErrQuotaExceeded means a local write was refused because the value
	// exceeds the store's size limit. Always propagated, never swallowed.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// RemoteError wraps a failed remote service call with enough context to
// report which operation failed and how.
type RemoteError struct {
	Op     string // e.g. "create", "append_message"
	Status int    // HTTP status, 0 for transport failures
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

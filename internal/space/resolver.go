package space

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Backend identifies which repository holds a session's data.
type Backend int

const (
	// BackendInvalid means the identifier matched neither form. Callers
	// must treat loads of invalid ids as not-found, never as a crash.
	BackendInvalid Backend = iota
	BackendLocal
	BackendRemote
)

func (b Backend) String() string {
	switch b {
	case BackendLocal:
		return "local"
	case BackendRemote:
		return "remote"
	default:
		return "invalid"
	}
}

// Classify determines the backend for a raw identifier from its shape alone:
// the canonical 36-character UUID form means remote, a bare non-negative
// decimal integer means local, anything else is invalid. The two namespaces
// never collide because the shapes are disjoint.
func Classify(id string) Backend {
	if isCanonicalUUID(id) {
		return BackendRemote
	}
	if _, err := parseLocalID(id); err == nil {
		return BackendLocal
	}
	return BackendInvalid
}

// Resolve selects the backend for a session that has no identifier yet
// (a new session): authenticated clients create remotely, anonymous clients
// locally. Call this with the live auth state on every decision; the result
// must never be cached across auth changes.
func Resolve(authenticated bool) Backend {
	if authenticated {
		return BackendRemote
	}
	return BackendLocal
}

// ParseLocalID parses a local-shaped identifier into its integer form.
// Returns ErrInvalidID for anything that is not a bare decimal integer.
func ParseLocalID(id string) (int, error) {
	n, err := parseLocalID(id)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return n, nil
}

func parseLocalID(id string) (int, error) {
	if id == "" {
		return 0, strconv.ErrSyntax
	}
	// strconv.Atoi accepts a leading sign; the identifier form does not.
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(id)
}

// isCanonicalUUID accepts only the 8-4-4-4-12 hyphenated textual form.
// uuid.Parse alone is too permissive: it also accepts braced, URN and
// bare-hex encodings, which are not valid identifiers here.
func isCanonicalUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

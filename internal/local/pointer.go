package local

import (
	"fmt"

	"github.com/andrewblevins/space-sub000/internal/space"
)

// The current-session pointer is a pair of mutually exclusive keys: one
// holds a local integer id, the other a remote UUID. Setting one always
// clears the other, so a reader can never see both.

// SetCurrent records the open session.
func (r *Repository) SetCurrent(id string, backend space.Backend) error {
	var set, clear string
	switch backend {
	case space.BackendLocal:
		set, clear = space.KeyCurrentSessionID, space.KeyCurrentConversationID
	case space.BackendRemote:
		set, clear = space.KeyCurrentConversationID, space.KeyCurrentSessionID
	default:
		return fmt.Errorf("%w: %q", space.ErrInvalidID, id)
	}

	if err := r.store.Delete(clear); err != nil {
		return fmt.Errorf("clearing %s: %w", clear, err)
	}
	if err := r.store.Set(set, id); err != nil {
		return fmt.Errorf("writing %s: %w", set, err)
	}
	return nil
}

// Current returns the open session id and backend, or ("", BackendInvalid)
// when none is set. If both keys are somehow present the local one wins and
// the stale remote pointer is dropped.
func (r *Repository) Current() (string, space.Backend, error) {
	localID, localOK, err := r.store.Get(space.KeyCurrentSessionID)
	if err != nil {
		return "", space.BackendInvalid, fmt.Errorf("reading current session pointer: %w", err)
	}
	remoteID, remoteOK, err := r.store.Get(space.KeyCurrentConversationID)
	if err != nil {
		return "", space.BackendInvalid, fmt.Errorf("reading current conversation pointer: %w", err)
	}

	switch {
	case localOK && remoteOK:
		r.logger.Warn("both current-session pointers set, dropping remote", "local", localID, "remote", remoteID)
		if err := r.store.Delete(space.KeyCurrentConversationID); err != nil {
			return "", space.BackendInvalid, fmt.Errorf("dropping stale pointer: %w", err)
		}
		return localID, space.BackendLocal, nil
	case localOK:
		return localID, space.BackendLocal, nil
	case remoteOK:
		return remoteID, space.BackendRemote, nil
	default:
		return "", space.BackendInvalid, nil
	}
}

// ClearCurrent removes both pointers.
func (r *Repository) ClearCurrent() error {
	if err := r.store.Delete(space.KeyCurrentSessionID); err != nil {
		return fmt.Errorf("clearing current session pointer: %w", err)
	}
	if err := r.store.Delete(space.KeyCurrentConversationID); err != nil {
		return fmt.Errorf("clearing current conversation pointer: %w", err)
	}
	return nil
}

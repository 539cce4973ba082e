package filelock

import (
	"errors"
	"sync/atomic"

	"github.com/cerrato-dev/filelock/internal/lockerrors"
	"github.com/cerrato-dev/filelock/internal/registry"
)

// ReleaseHandle is returned by Lock and LockSync. Calling Release once
// releases the lock; calling it again fails with ErrAlreadyReleased.
// Releasing a lock the refresher has already marked compromised resolves
// successfully without touching the filesystem, per §4.5's rationale:
// this holder no longer owns the sentinel and must not remove what may
// now belong to another party.
type ReleaseHandle struct {
	canonicalKey string
	reg          *registry.Registry
	released     atomic.Bool
}

// Release implements the release handle described in §6. It is safe to
// call from any goroutine.
func (h *ReleaseHandle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return ErrAlreadyReleased
	}
	err := h.reg.Unlock(h.canonicalKey)
	if errors.Is(err, lockerrors.ErrNotAcquired) {
		return nil
	}
	return err
}

// CanonicalKey returns the resolved target this handle releases. It is
// exposed for logging and tests; callers should not parse it.
func (h *ReleaseHandle) CanonicalKey() string {
	return h.canonicalKey
}

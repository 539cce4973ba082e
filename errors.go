package filelock

import "github.com/cerrato-dev/filelock/internal/lockerrors"

// Stable sentinel errors at the package boundary, per §7's error
// taxonomy. Use errors.Is against these; errors.As against
// *CompromisedError to inspect the compromise kind.
var (
	ErrLocked                 = lockerrors.ErrLocked
	ErrNotAcquired            = lockerrors.ErrNotAcquired
	ErrAlreadyReleased        = lockerrors.ErrAlreadyReleased
	ErrCompromised            = lockerrors.ErrCompromised
	ErrSyncRetriesUnsupported = lockerrors.ErrSyncRetriesUnsupported
)

// CompromisedError describes why a held lock was lost; it is passed to
// the on_compromised callback and satisfies errors.Is(err, ErrCompromised).
type CompromisedError = lockerrors.CompromisedError

// CompromiseKind enumerates the sub-kinds of compromise in §7/§8.
type CompromiseKind = lockerrors.CompromiseKind

const (
	CompromiseNotFound  = lockerrors.CompromiseNotFound
	CompromiseNotMine   = lockerrors.CompromiseNotMine
	CompromiseThreshold = lockerrors.CompromiseThreshold
)

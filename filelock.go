package filelock

import (
	"context"
	"time"

	"github.com/cerrato-dev/filelock/internal/engine"
	"github.com/cerrato-dev/filelock/internal/fsops"
	"github.com/cerrato-dev/filelock/internal/lockerrors"
	"github.com/cerrato-dev/filelock/internal/naming"
	"github.com/cerrato-dev/filelock/internal/retry"
)

// Lock implements the public lock(target, opts) operation. It resolves
// target to a canonical key, attempts acquisition (retrying through the
// retry adapter when WithRetries is set and an attempt returns a
// retriable error), and on success registers the sentinel with the
// Holder Registry so it is kept alive until Release is called or the
// refresher detects a compromise.
//
// ctx governs retry backoff between attempts; it has no effect on a
// single attempt, which does not block beyond the underlying filesystem
// calls. A canceled ctx stops further retries and returns ctx.Err().
func Lock(ctx context.Context, target string, opts ...Option) (*ReleaseHandle, error) {
	c := newConfig(opts)
	fs := c.effectiveFilesystem()
	mgr := managerFor(fs, c)

	stale := c.effectiveStale()
	update := c.effectiveUpdate(stale)
	staleMs := durationMs(stale)
	updateMs := durationMs(update)

	canonicalKey, err := fsops.Resolve(fs, target, c.effectiveRealpath())
	if err != nil {
		return nil, lockerrors.NewIoError("resolve", target, err)
	}
	sentinelPath := naming.SentinelOf(canonicalKey, c.lockfilePath)

	var result engine.AcquireResult
	err = retry.Do(ctx, c.retryPolicy(), func() error {
		r, attemptErr := mgr.engine.TryAcquire(sentinelPath, engine.Options{StaleMs: staleMs})
		if attemptErr == nil {
			result = r
		}
		return attemptErr
	})
	if err != nil {
		return nil, err
	}

	onCompromised := c.onCompromised
	if onCompromised == nil {
		onCompromised = defaultOnCompromised
	}

	if _, err := mgr.registry.Insert(
		canonicalKey, sentinelPath, result.MTime, result.Precision,
		staleMs, updateMs,
		func(ce *lockerrors.CompromisedError) { onCompromised(ce) },
	); err != nil {
		_ = fs.Rmdir(sentinelPath)
		return nil, err
	}

	return &ReleaseHandle{canonicalKey: canonicalKey, reg: mgr.registry}, nil
}

// LockSync is the synchronous counterpart of Lock. It rejects any
// configured retry budget with ErrSyncRetriesUnsupported, per §6.
func LockSync(target string, opts ...Option) (*ReleaseHandle, error) {
	c := newConfig(opts)
	if c.retries > 0 {
		return nil, ErrSyncRetriesUnsupported
	}
	return Lock(context.Background(), target, opts...)
}

// Unlock implements the public unlock(target, opts) operation.
func Unlock(target string, opts ...Option) error {
	c := newConfig(opts)
	fs := c.effectiveFilesystem()
	mgr := managerFor(fs, c)

	canonicalKey, err := fsops.Resolve(fs, target, c.effectiveRealpath())
	if err != nil {
		return lockerrors.NewIoError("resolve", target, err)
	}
	return mgr.registry.Unlock(canonicalKey)
}

// UnlockSync is identical to Unlock; the operation has no retry surface
// to reject, and is provided for symmetry with LockSync/CheckSync.
func UnlockSync(target string, opts ...Option) error {
	return Unlock(target, opts...)
}

// Check implements the public check(target, opts) -> bool operation.
func Check(target string, opts ...Option) (bool, error) {
	c := newConfig(opts)
	fs := c.effectiveFilesystem()
	mgr := managerFor(fs, c)

	canonicalKey, err := fsops.Resolve(fs, target, c.effectiveRealpath())
	if err != nil {
		return false, lockerrors.NewIoError("resolve", target, err)
	}
	sentinelPath := naming.SentinelOf(canonicalKey, c.lockfilePath)
	return mgr.engine.Check(sentinelPath, durationMs(c.effectiveStale()))
}

// CheckSync is identical to Check.
func CheckSync(target string, opts ...Option) (bool, error) {
	return Check(target, opts...)
}

// defaultOnCompromised implements §6's default on_compromised behavior:
// rethrow into the host process. It panics from a fresh goroutine so the
// panic is never caught by the refresher's own panic isolation around
// the tick that invoked this callback.
func defaultOnCompromised(err error) {
	go func() { panic(err) }()
}

func durationMs(d time.Duration) int64 {
	return d.Milliseconds()
}

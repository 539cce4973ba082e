// Package engine implements the Acquisition/Staleness Engine: atomic
// sentinel creation, stale-sentinel reclaim bounded to one pass, and the
// stateless Check operation.
package engine

import (
	"time"

	"github.com/cerrato-dev/filelock/internal/fsops"
	"github.com/cerrato-dev/filelock/internal/lockerrors"
	"github.com/cerrato-dev/filelock/internal/prober"
	"github.com/cerrato-dev/filelock/internal/telemetry"
)

// AcquireResult is returned by TryAcquire on success; a Collision or
// IoError outcome is reported through the returned error instead (see
// lockerrors.ErrLocked and lockerrors.IoError).
type AcquireResult struct {
	MTime     time.Time
	Precision prober.Precision
	DeviceID  uint64
}

// Options carries the effective, already-clamped configuration for one
// acquisition attempt.
type Options struct {
	StaleMs int64 // 0 disables staleness entirely (sentinel never reclaimed).
}

// Engine implements try_acquire and check against a Filesystem, sharing
// one Prober across every sentinel on the same device.
type Engine struct {
	fs     fsops.Filesystem
	prober *prober.Prober
	log    *telemetry.Logger
	metr   *telemetry.Metrics
}

// New returns an Engine. log and metr may be nil; both are treated as
// no-ops (telemetry.NopLogger()/a nil *Metrics).
func New(fs fsops.Filesystem, p *prober.Prober, log *telemetry.Logger, metr *telemetry.Metrics) *Engine {
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &Engine{fs: fs, prober: p, log: log, metr: metr}
}

// TryAcquire implements §4.4's try_acquire(canonical_key, opts). sentinelPath
// is the already-computed sentinel path (see internal/naming).
func (e *Engine) TryAcquire(sentinelPath string, opts Options) (AcquireResult, error) {
	return e.tryAcquire(sentinelPath, opts, false)
}

// tryAcquire is the bounded-recursion implementation: reentered is set on
// the single permitted re-entry pass after a stale reclaim or a vanished
// sentinel, with staleness forced off to prevent infinite recursion.
func (e *Engine) tryAcquire(sentinelPath string, opts Options, reentered bool) (AcquireResult, error) {
	err := e.fs.Mkdir(sentinelPath)
	if err == nil {
		// A stat or probe failure here almost always means another
		// holder's rmdir raced our mkdir; mark it transient so the
		// retry adapter reattempts the whole acquisition rather than
		// surfacing a one-shot failure.
		st, err := e.fs.Stat(sentinelPath)
		if err != nil {
			return AcquireResult{}, lockerrors.NewIoError("stat", sentinelPath, lockerrors.MarkTransient(err))
		}
		mtime, precision, err := e.prober.Probe(sentinelPath, st.DeviceID)
		if err != nil {
			return AcquireResult{}, lockerrors.NewIoError("probe", sentinelPath, lockerrors.MarkTransient(err))
		}
		e.metr.ObserveAcquired()
		e.log.Debug("sentinel created", "sentinel", sentinelPath, "precision", precision.String())
		return AcquireResult{MTime: mtime, Precision: precision, DeviceID: st.DeviceID}, nil
	}

	if !fsops.IsExist(err) {
		return AcquireResult{}, lockerrors.NewIoError("mkdir", sentinelPath, err)
	}

	staleDisabled := reentered || opts.StaleMs <= 0
	if staleDisabled {
		e.metr.ObserveCollision()
		return AcquireResult{}, lockerrors.ErrLocked
	}

	st, statErr := e.fs.Stat(sentinelPath)
	if statErr != nil {
		if fsops.IsNotExist(statErr) {
			return e.tryAcquire(sentinelPath, opts, true)
		}
		return AcquireResult{}, lockerrors.NewIoError("stat", sentinelPath, lockerrors.MarkTransient(statErr))
	}

	staleThreshold := time.Now().Add(-time.Duration(opts.StaleMs) * time.Millisecond)
	isStale := st.ModTime.Before(staleThreshold)
	if !isStale {
		e.metr.ObserveCollision()
		return AcquireResult{}, lockerrors.ErrLocked
	}

	if rmErr := e.fs.Rmdir(sentinelPath); rmErr != nil && !fsops.IsNotExist(rmErr) {
		return AcquireResult{}, lockerrors.NewIoError("rmdir", sentinelPath, lockerrors.MarkTransient(rmErr))
	}
	e.metr.ObserveStaleReclaim()
	e.log.Warn("reclaimed stale sentinel", "sentinel", sentinelPath, "age_ms", time.Since(st.ModTime).Milliseconds())

	return e.tryAcquire(sentinelPath, opts, true)
}

// Check implements §4.4's check(canonical_key, opts) -> Locked(bool).
func (e *Engine) Check(sentinelPath string, staleMs int64) (bool, error) {
	st, err := e.fs.Stat(sentinelPath)
	if err != nil {
		if fsops.IsNotExist(err) {
			return false, nil
		}
		return false, lockerrors.NewIoError("stat", sentinelPath, err)
	}
	if staleMs <= 0 {
		return true, nil
	}
	threshold := time.Now().Add(-time.Duration(staleMs) * time.Millisecond)
	return !st.ModTime.Before(threshold), nil
}

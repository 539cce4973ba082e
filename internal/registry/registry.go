// Package registry implements the Holder Registry & Refresher: one
// in-process record per held sentinel, and a per-record single-shot
// timer that periodically rewrites the sentinel's mtime, detects loss
// of ownership, and reports it via a compromise callback.
package registry

import (
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"

	"github.com/cerrato-dev/filelock/internal/fsops"
	"github.com/cerrato-dev/filelock/internal/lockerrors"
	"github.com/cerrato-dev/filelock/internal/prober"
	"github.com/cerrato-dev/filelock/internal/telemetry"
)

const recoveryDelay = 1 * time.Second

// Record is the in-process state of one held sentinel. All mutation
// happens under mu; the zero value is not usable.
type Record struct {
	CanonicalKey string
	SentinelPath string

	StaleMs  int64
	UpdateMs int64

	OnCompromised func(*lockerrors.CompromisedError)

	mu            sync.Mutex
	mtime         time.Time
	precision     prober.Precision
	lastRefreshAt time.Time
	released      bool
	timer         *time.Timer
	stopWatch     func()
}

// Registry owns every Lock record held by this process, keyed by
// canonical key. It is safe for concurrent use.
type Registry struct {
	fs   fsops.Filesystem
	log  *telemetry.Logger
	metr *telemetry.Metrics

	mu      sync.Mutex
	records map[string]*Record
}

// New returns an empty Registry. log and metr may be nil.
func New(fs fsops.Filesystem, log *telemetry.Logger, metr *telemetry.Metrics) *Registry {
	if log == nil {
		log = telemetry.NopLogger()
	}
	return &Registry{fs: fs, log: log, metr: metr, records: make(map[string]*Record)}
}

// Insert implements §4.5's "Insert": build a Lock record and add it
// under canonicalKey, then schedule its first refresh tick. If a record
// for that key already exists, this is a programming error reported as
// a Collision, matching the spec's explicit instruction for that case.
func (r *Registry) Insert(
	canonicalKey, sentinelPath string,
	mtime time.Time, precision prober.Precision,
	staleMs, updateMs int64,
	onCompromised func(*lockerrors.CompromisedError),
) (*Record, error) {
	r.mu.Lock()
	if _, exists := r.records[canonicalKey]; exists {
		r.mu.Unlock()
		return nil, lockerrors.ErrLocked
	}
	rec := &Record{
		CanonicalKey:  canonicalKey,
		SentinelPath:  sentinelPath,
		StaleMs:       staleMs,
		UpdateMs:      updateMs,
		OnCompromised: onCompromised,
		mtime:         mtime,
		precision:     precision,
		lastRefreshAt: time.Now(),
	}
	r.records[canonicalKey] = rec
	r.mu.Unlock()

	if updateMs > 0 {
		rec.scheduleTick(r, time.Duration(updateMs)*time.Millisecond)
		if stop, ok := rec.watchFastPath(r); ok {
			rec.mu.Lock()
			if rec.released {
				stop()
			} else {
				rec.stopWatch = stop
			}
			rec.mu.Unlock()
		}
	}
	return rec, nil
}

// Get returns the record held for canonicalKey, if any.
func (r *Registry) Get(canonicalKey string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[canonicalKey]
	return rec, ok
}

// remove deletes canonicalKey from the map without touching the
// filesystem or the record's timer; callers must have already stopped
// the timer and set released.
func (r *Registry) remove(canonicalKey string) {
	r.mu.Lock()
	delete(r.records, canonicalKey)
	r.mu.Unlock()
}

// Unlock implements the explicit-unlock path of §4.5: cancel the
// pending timer, mark released, remove from the registry, and attempt
// to remove the sentinel, swallowing "not found".
func (r *Registry) Unlock(canonicalKey string) error {
	r.mu.Lock()
	rec, ok := r.records[canonicalKey]
	r.mu.Unlock()
	if !ok {
		return lockerrors.ErrNotAcquired
	}

	rec.mu.Lock()
	alreadyReleased := rec.released
	rec.released = true
	if rec.timer != nil {
		rec.timer.Stop()
	}
	if rec.stopWatch != nil {
		rec.stopWatch()
		rec.stopWatch = nil
	}
	rec.mu.Unlock()

	r.remove(canonicalKey)

	if alreadyReleased {
		return nil
	}

	if err := r.fs.Rmdir(rec.SentinelPath); err != nil && !fsops.IsNotExist(err) {
		return lockerrors.NewIoError("rmdir", rec.SentinelPath, err)
	}
	return nil
}

// ReleaseAll implements process-exit cleanup: concurrently remove every
// sentinel this process still holds, ignoring all errors, and wait for
// every in-flight refresh tick to observe cancellation before returning.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	recs := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	r.records = make(map[string]*Record)
	r.mu.Unlock()

	var g errgroup.Group
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			rec.mu.Lock()
			rec.released = true
			if rec.timer != nil {
				rec.timer.Stop()
			}
			if rec.stopWatch != nil {
				rec.stopWatch()
				rec.stopWatch = nil
			}
			rec.mu.Unlock()
			if err := r.fs.Rmdir(rec.SentinelPath); err != nil && !fsops.IsNotExist(err) {
				r.log.Warn("exit cleanup failed to remove sentinel", "sentinel", rec.SentinelPath, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Holders returns a snapshot of every canonical key currently held by
// this process, for test/ops enumeration per §9's design note.
func (r *Registry) Holders() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.records))
	for k := range r.records {
		keys = append(keys, k)
	}
	return keys
}

// scheduleTick arms a single-shot timer that runs one refresh tick,
// panic-isolated via sourcegraph/conc's panics.Catcher so a bug inside a
// tick cannot bring down the host process. It is used for the first
// schedule after Insert, where rec.mu is not already held.
func (rec *Record) scheduleTick(r *Registry, delay time.Duration) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.scheduleTickLocked(r, delay)
}

// scheduleTickLocked is the same as scheduleTick but assumes the caller
// already holds rec.mu (true for every reschedule performed from inside
// tick itself).
func (rec *Record) scheduleTickLocked(r *Registry, delay time.Duration) {
	if rec.released {
		return
	}
	rec.timer = time.AfterFunc(delay, func() { rec.tickLocked(r) })
}

// tick implements one iteration of §4.5's refresh loop. It holds rec.mu
// for its entire body: Go's goroutines do not require releasing a mutex
// around a blocking filesystem call the way a cooperative single-threaded
// runtime would, so the whole tick is one atomic step with respect to
// Unlock and other ticks of the same record, which is the property the
// spec asks for.
func (rec *Record) tick(r *Registry) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.released {
		return
	}

	st, err := r.fs.Stat(rec.SentinelPath)
	now := time.Now()
	overThreshold := rec.lastRefreshAt.Add(time.Duration(rec.StaleMs) * time.Millisecond).Before(now)

	if err != nil {
		if fsops.IsNotExist(err) {
			rec.compromise(r, lockerrors.CompromiseNotFound, err)
			return
		}
		if overThreshold {
			rec.compromise(r, lockerrors.CompromiseThreshold, err)
			return
		}
		rec.scheduleTickLocked(r, recoveryDelay)
		return
	}
	if overThreshold {
		rec.compromise(r, lockerrors.CompromiseThreshold, nil)
		return
	}

	if !mtimeEqual(st.ModTime, rec.mtime, rec.precision) {
		rec.compromise(r, lockerrors.CompromiseNotMine, nil)
		return
	}

	writeAt := time.Now()
	target := writeAt
	if rec.precision == prober.Second {
		target = ceilSecond(writeAt)
	}

	tickStart := time.Now()
	chErr := r.fs.Chtimes(rec.SentinelPath, target, target)
	r.metr.ObserveRefreshLatencySeconds(time.Since(tickStart).Seconds())

	if rec.released {
		return
	}

	if chErr != nil {
		now := time.Now()
		overThreshold = rec.lastRefreshAt.Add(time.Duration(rec.StaleMs) * time.Millisecond).Before(now)
		if fsops.IsNotExist(chErr) || overThreshold {
			kind := lockerrors.CompromiseNotFound
			if overThreshold {
				kind = lockerrors.CompromiseThreshold
			}
			rec.compromise(r, kind, chErr)
			return
		}
		rec.scheduleTickLocked(r, recoveryDelay)
		return
	}

	rec.mtime = target
	rec.lastRefreshAt = writeAt
	rec.scheduleTickLocked(r, time.Duration(rec.UpdateMs)*time.Millisecond)
}

// tickLocked is the entry point for every refresh timer and for the
// fsnotify fast path. It runs tick() (which takes rec.mu itself) under
// panics.Catcher and, if the tick panicked, reschedules after the
// recovery delay.
func (rec *Record) tickLocked(r *Registry) {
	var catcher panics.Catcher
	catcher.Try(func() { rec.tick(r) })
	if recovered := catcher.Recovered(); recovered != nil {
		r.log.Error("refresh tick panicked", "sentinel", rec.SentinelPath, "panic", recovered.String())
		rec.scheduleTick(r, recoveryDelay)
	}
}

// compromise marks the record terminal, removes it from the registry,
// and fires the compromise callback. The callback reference and every
// field it needs are read out before released is flipped and the entry
// is removed, per §9's guidance that the callback may run after removal.
func (rec *Record) compromise(r *Registry, kind lockerrors.CompromiseKind, cause error) {
	cb := rec.OnCompromised
	sentinelPath := rec.SentinelPath
	canonicalKey := rec.CanonicalKey

	rec.released = true
	if rec.stopWatch != nil {
		rec.stopWatch()
		rec.stopWatch = nil
	}
	r.remove(canonicalKey)
	r.metr.ObserveCompromise(kind.String())
	r.log.Warn("lock compromised", "sentinel", sentinelPath, "kind", kind.String())

	if cb != nil {
		cb(&lockerrors.CompromisedError{SentinelPath: sentinelPath, Kind: kind, Cause: cause})
	}
}

func mtimeEqual(a, b time.Time, p prober.Precision) bool {
	if p == prober.Millisecond {
		return a.UnixMilli() == b.UnixMilli()
	}
	aMs, bMs := a.UnixMilli(), b.UnixMilli()
	return truncDiv(aMs, 1000) == truncDiv(bMs, 1000) || roundDiv(aMs, 1000) == roundDiv(bMs, 1000)
}

func truncDiv(n, d int64) int64 {
	return n / d
}

func roundDiv(n, d int64) int64 {
	if n >= 0 {
		return (n + d/2) / d
	}
	return -((-n + d/2) / d)
}

func ceilSecond(t time.Time) time.Time {
	truncated := t.Truncate(time.Second)
	if truncated.Equal(t) {
		return truncated
	}
	return truncated.Add(time.Second)
}

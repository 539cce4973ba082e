// Package prober determines whether a device records sentinel mtimes at
// millisecond or whole-second resolution, and caches the answer per
// device. Once a device is cached, later probes on it perform no write.
// First-touch probes of different sentinels on the same device that run
// concurrently are not coalesced: each performs its own probing write.
package prober

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cerrato-dev/filelock/internal/fsops"
)

// Precision is the resolution at which a device's filesystem preserves
// mtimes it is given.
type Precision int

const (
	// Millisecond means the filesystem preserves sub-second mtime digits.
	Millisecond Precision = iota
	// Second means the filesystem truncates mtimes to whole seconds.
	Second
)

func (p Precision) String() string {
	if p == Millisecond {
		return "ms"
	}
	return "s"
}

// Prober probes and caches mtime precision per device identifier. The
// zero value is not usable; construct with New.
type Prober struct {
	fs    fsops.Filesystem
	group singleflight.Group

	mu    sync.Mutex
	cache map[uint64]Precision
}

// New returns a Prober backed by fs.
func New(fs fsops.Filesystem) *Prober {
	return &Prober{fs: fs, cache: make(map[uint64]Precision)}
}

// Probe implements probe(sentinel_path, device_id) -> (observed_mtime,
// precision). If device_id is already cached, only a stat is performed.
// Otherwise the probing write happens against sentinelPath itself; two
// concurrent first-touch callers racing for the same (device, sentinel)
// pair block on singleflight.Group.Do rather than racing each other's
// write, but two callers probing different sentinels on the same device
// must not be coalesced onto one another's write — the result one
// caller observes (the mtime it just wrote to its own sentinel) would be
// silently handed to the other and recorded against a sentinel the probe
// never touched, so the key includes sentinelPath, not just deviceID.
func (p *Prober) Probe(sentinelPath string, deviceID uint64) (time.Time, Precision, error) {
	p.mu.Lock()
	if prec, ok := p.cache[deviceID]; ok {
		p.mu.Unlock()
		st, err := p.fs.Stat(sentinelPath)
		if err != nil {
			return time.Time{}, prec, err
		}
		return st.ModTime, prec, nil
	}
	p.mu.Unlock()

	key := probeKey(deviceID, sentinelPath)
	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.probeUncached(sentinelPath, deviceID)
	})
	if err != nil {
		return time.Time{}, Second, err
	}
	result := v.(probeResult)
	return result.mtime, result.precision, nil
}

type probeResult struct {
	mtime     time.Time
	precision Precision
}

func probeKey(deviceID uint64, sentinelPath string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(deviceID, 10))
	b.WriteByte(':')
	b.WriteString(sentinelPath)
	return b.String()
}

// probeUncached performs the actual probing write described in §4.3:
// a timestamp five milliseconds past the next second boundary, written
// as both atime and mtime, then re-read to see whether the sub-second
// digits survived the round trip.
func (p *Prober) probeUncached(sentinelPath string, deviceID uint64) (probeResult, error) {
	now := time.Now()
	boundary := now.Truncate(time.Second)
	if !boundary.After(now) {
		boundary = boundary.Add(time.Second)
	}
	probeTime := boundary.Add(5 * time.Millisecond)

	if err := p.fs.Chtimes(sentinelPath, probeTime, probeTime); err != nil {
		return probeResult{}, err
	}
	st, err := p.fs.Stat(sentinelPath)
	if err != nil {
		return probeResult{}, err
	}

	precision := Second
	if st.ModTime.UnixMilli() == probeTime.UnixMilli() {
		precision = Millisecond
	}

	p.mu.Lock()
	p.cache[deviceID] = precision
	p.mu.Unlock()

	return probeResult{mtime: st.ModTime, precision: precision}, nil
}

// Cached reports the precision recorded for deviceID, if any.
func (p *Prober) Cached(deviceID uint64) (Precision, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prec, ok := p.cache[deviceID]
	return prec, ok
}

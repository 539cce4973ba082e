package prober

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cerrato-dev/filelock/internal/fsops"
)

// countingFs wraps a Filesystem and counts Chtimes calls, so tests can
// assert the probing write happens at most once per device.
type countingFs struct {
	fsops.Filesystem
	chtimesCalls atomic.Int64

	mu        sync.Mutex
	pathCalls map[string]int
}

func (c *countingFs) Chtimes(path string, atime, mtime time.Time) error {
	c.chtimesCalls.Add(1)
	c.mu.Lock()
	if c.pathCalls == nil {
		c.pathCalls = make(map[string]int)
	}
	c.pathCalls[path]++
	c.mu.Unlock()
	return c.Filesystem.Chtimes(path, atime, mtime)
}

func (c *countingFs) callsFor(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pathCalls[path]
}

func TestProbeCachesPerDevice(t *testing.T) {
	fs := &countingFs{Filesystem: fsops.NewMem()}
	if err := fs.Mkdir("/a.lock"); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	p := New(fs)

	if _, _, err := p.Probe("/a.lock", 7); err != nil {
		t.Fatalf("first Probe() error = %v", err)
	}
	if _, _, err := p.Probe("/a.lock", 7); err != nil {
		t.Fatalf("second Probe() error = %v", err)
	}
	if got := fs.chtimesCalls.Load(); got != 1 {
		t.Fatalf("Chtimes calls = %d, want exactly 1", got)
	}

	if _, ok := p.Cached(7); !ok {
		t.Fatal("Cached(7) = false after Probe, want true")
	}
}

// TestProbeConcurrentSingleWrite covers testable property 12: concurrent
// probes of the same never-before-seen device perform the probing write
// at most once, via singleflight.
func TestProbeConcurrentSingleWrite(t *testing.T) {
	fs := &countingFs{Filesystem: fsops.NewMem()}
	if err := fs.Mkdir("/shared.lock"); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	p := New(fs)

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := p.Probe("/shared.lock", 42)
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Probe() goroutine %d error = %v", i, err)
		}
	}
	if got := fs.chtimesCalls.Load(); got != 1 {
		t.Fatalf("Chtimes calls = %d, want exactly 1", got)
	}
}

// TestProbeConcurrentDistinctSentinelsSameDevice covers the case where two
// first-touch callers share a device but target different sentinels: each
// must perform its own probing write against its own sentinel rather than
// one caller's write being coalesced onto the other's singleflight call.
func TestProbeConcurrentDistinctSentinelsSameDevice(t *testing.T) {
	fs := &countingFs{Filesystem: fsops.NewMem()}
	for _, path := range []string{"/one.lock", "/two.lock"} {
		if err := fs.Mkdir(path); err != nil {
			t.Fatalf("Mkdir(%q) error = %v", path, err)
		}
	}
	p := New(fs)

	const device = 9
	var wg sync.WaitGroup
	mtimes := make([]time.Time, 2)
	errs := make([]error, 2)
	paths := []string{"/one.lock", "/two.lock"}
	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			mtime, _, err := p.Probe(path, device)
			mtimes[i] = mtime
			errs[i] = err
		}(i, path)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Probe(%q) error = %v", paths[i], err)
		}
	}

	if got := fs.chtimesCalls.Load(); got != 2 {
		t.Fatalf("Chtimes calls = %d, want exactly 2 (one per sentinel)", got)
	}
	for _, path := range paths {
		if got := fs.callsFor(path); got != 1 {
			t.Fatalf("Chtimes calls for %q = %d, want exactly 1", path, got)
		}
	}

	st1, err := fs.Stat("/one.lock")
	if err != nil {
		t.Fatalf("Stat(/one.lock) error = %v", err)
	}
	st2, err := fs.Stat("/two.lock")
	if err != nil {
		t.Fatalf("Stat(/two.lock) error = %v", err)
	}
	if !mtimes[0].Equal(st1.ModTime) {
		t.Fatalf("Probe(/one.lock) returned mtime %v, sentinel actually has %v", mtimes[0], st1.ModTime)
	}
	if !mtimes[1].Equal(st2.ModTime) {
		t.Fatalf("Probe(/two.lock) returned mtime %v, sentinel actually has %v", mtimes[1], st2.ModTime)
	}
}

func TestProbeDistinctDevicesEachProbed(t *testing.T) {
	fs := &countingFs{Filesystem: fsops.NewMem()}
	for _, path := range []string{"/a.lock", "/b.lock"} {
		if err := fs.Mkdir(path); err != nil {
			t.Fatalf("Mkdir(%q) error = %v", path, err)
		}
	}
	p := New(fs)

	if _, _, err := p.Probe("/a.lock", 1); err != nil {
		t.Fatalf("Probe(device 1) error = %v", err)
	}
	if _, _, err := p.Probe("/b.lock", 2); err != nil {
		t.Fatalf("Probe(device 2) error = %v", err)
	}
	if got := fs.chtimesCalls.Load(); got != 2 {
		t.Fatalf("Chtimes calls = %d, want exactly 2 (one per device)", got)
	}
}

func TestPrecisionString(t *testing.T) {
	if Millisecond.String() != "ms" {
		t.Fatalf("Millisecond.String() = %q", Millisecond.String())
	}
	if Second.String() != "s" {
		t.Fatalf("Second.String() = %q", Second.String())
	}
}

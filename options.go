package filelock

import (
	"time"

	"github.com/cerrato-dev/filelock/internal/fsops"
	"github.com/cerrato-dev/filelock/internal/retry"
	"github.com/cerrato-dev/filelock/internal/telemetry"
)

const (
	defaultStale = 10 * time.Second
	minStale     = 2 * time.Second
	minUpdate    = 1 * time.Second
)

// Option configures a Lock, Unlock, or Check call.
type Option func(*config)

type config struct {
	stale         *time.Duration
	update        *time.Duration
	updateZero    bool
	retries       int
	realpath      *bool
	lockfilePath  string
	fs            fsops.Filesystem
	onCompromised func(error)
	logger        *telemetry.Logger
	metrics       *telemetry.Metrics
}

func newConfig(opts []Option) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithStale sets the stale threshold. A value <= 0 disables staleness
// reclaim entirely (see §3's "Stale threshold"). The clamp in
// effectiveStale still applies to any positive value given.
func WithStale(d time.Duration) Option {
	return func(c *config) { c.stale = &d }
}

// WithUpdate sets the refresh interval explicitly. Passing exactly 0
// disables the refresher; any other value is clamped into
// [minUpdate, stale/2].
func WithUpdate(d time.Duration) Option {
	return func(c *config) {
		c.update = &d
		c.updateZero = d == 0
	}
}

// WithRetries sets the retry budget for lock(); the default is 0.
// Passing a positive value on the synchronous surface returns
// ErrSyncRetriesUnsupported.
func WithRetries(n int) Option {
	return func(c *config) { c.retries = n }
}

// WithRealpath toggles symlink resolution in the Path Resolver. The
// default is true.
func WithRealpath(enabled bool) Option {
	return func(c *config) { c.realpath = &enabled }
}

// WithLockfilePath overrides the sentinel path instead of deriving it
// from the target (see internal/naming.SentinelOf).
func WithLockfilePath(path string) Option {
	return func(c *config) { c.lockfilePath = path }
}

// WithFilesystem injects a Filesystem adapter, e.g. one backed by an
// afero.MemMapFs for tests. Production callers never need this option.
func WithFilesystem(fs fsops.Filesystem) Option {
	return func(c *config) { c.fs = fs }
}

// WithOnCompromised registers the callback invoked when the refresher
// discovers this holder has lost its lock. The default handler rethrows
// the error to the host process via a panic, matching §6's default.
func WithOnCompromised(fn func(error)) Option {
	return func(c *config) { c.onCompromised = fn }
}

// WithLogger sets the logger for the engine and registry shared by every
// call on the same Filesystem. It takes effect only on the first call
// that uses that Filesystem in this process; later calls' loggers are
// ignored.
func WithLogger(l *telemetry.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics sets Prometheus observability for the engine and registry
// shared by every call on the same Filesystem. Like WithLogger, it takes
// effect only on the first call that uses that Filesystem in this process.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// effectiveStale implements §6's clamp table entry for stale: default
// 10s, clamped to at least 2s. A caller-supplied value <= 0 disables
// staleness and is returned as 0 unclamped.
func (c *config) effectiveStale() time.Duration {
	if c.stale == nil {
		return defaultStale
	}
	if *c.stale <= 0 {
		return 0
	}
	if *c.stale < minStale {
		return minStale
	}
	return *c.stale
}

// effectiveUpdate implements §6's clamp table entry for update: default
// stale/2; an explicit value is clamped into [1s, stale/2]; explicit
// zero disables the refresher.
func (c *config) effectiveUpdate(stale time.Duration) time.Duration {
	if c.update == nil {
		return stale / 2
	}
	if c.updateZero {
		return 0
	}
	v := *c.update
	max := stale / 2
	if v > max {
		v = max
	}
	if v < minUpdate {
		v = minUpdate
	}
	return v
}

func (c *config) effectiveRealpath() bool {
	if c.realpath == nil {
		return true
	}
	return *c.realpath
}

// defaultOSFilesystem is constructed once so every call that does not
// inject its own Filesystem shares the single process-wide registry and
// precision cache the spec's data model requires, rather than each call
// to fsops.NewOS() minting an identity managerFor would treat as new.
var defaultOSFilesystem = fsops.NewOS()

func (c *config) effectiveFilesystem() fsops.Filesystem {
	if c.fs != nil {
		return c.fs
	}
	return defaultOSFilesystem
}

func (c *config) effectiveLogger() *telemetry.Logger {
	if c.logger != nil {
		return c.logger
	}
	return telemetry.NopLogger()
}

func (c *config) retryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Retries = c.retries
	return p
}

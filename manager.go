package filelock

import (
	"sync"

	"github.com/cerrato-dev/filelock/internal/engine"
	"github.com/cerrato-dev/filelock/internal/fsops"
	"github.com/cerrato-dev/filelock/internal/prober"
	"github.com/cerrato-dev/filelock/internal/registry"
)

// manager bundles the process-wide-per-filesystem state the spec's data
// model describes: one Holder Registry and one per-device precision
// cache, shared by every Lock/Unlock/Check call against the same
// Filesystem. Two different injected Filesystems (e.g. two distinct
// afero.MemMapFs instances in two test cases) get two independent
// managers, matching how two distinct real disks would.
type manager struct {
	engine   *engine.Engine
	registry *registry.Registry
}

var (
	managersMu sync.Mutex
	managers   = map[fsops.Filesystem]*manager{}
)

func managerFor(fs fsops.Filesystem, c *config) *manager {
	managersMu.Lock()
	defer managersMu.Unlock()

	if m, ok := managers[fs]; ok {
		return m
	}

	log := c.effectiveLogger()
	p := prober.New(fs)
	m := &manager{
		engine:   engine.New(fs, p, log, c.metrics),
		registry: registry.New(fs, log, c.metrics),
	}
	managers[fs] = m
	return m
}

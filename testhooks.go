//go:build filelocktest

package filelock

import "github.com/cerrato-dev/filelock/internal/fsops"

// Holders returns the canonical keys currently held by this process on
// fs (or the default OS filesystem if fs is nil). It exists to satisfy
// §9's "tests require the ability to enumerate the registry" note and is
// gated behind the filelocktest build tag so it never ships in a normal
// build.
func Holders(fs fsops.Filesystem) []string {
	if fs == nil {
		fs = defaultOSFilesystem
	}
	managersMu.Lock()
	m, ok := managers[fs]
	managersMu.Unlock()
	if !ok {
		return nil
	}
	return m.registry.Holders()
}

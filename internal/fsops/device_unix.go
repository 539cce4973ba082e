//go:build unix

package fsops

import (
	"os"
	"syscall"
)

// deviceID extracts the filesystem device identifier from a stat result
// produced by afero's OsFs, which on unix is always backed by a
// *syscall.Stat_t. This is the key the precision cache (internal/prober)
// groups sentinels by, per §3's "per-device precision cache".
func deviceID(info os.FileInfo) uint64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Dev)
	}
	return 0
}

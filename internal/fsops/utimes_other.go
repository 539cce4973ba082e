//go:build !unix

package fsops

import (
	"os"
	"time"
)

// chtimesPrecise falls back to the stdlib on platforms without the unix
// syscall package; precision will be whatever the host OS's os.Chtimes
// provides, and the Prober will simply record whatever it observes.
func chtimesPrecise(path string, atime, mtime time.Time) error {
	return os.Chtimes(path, atime, mtime)
}

//go:build unix

package fsops

import (
	"time"

	"golang.org/x/sys/unix"
)

// chtimesPrecise rewrites atime/mtime with full kernel precision via
// UtimesNanoAt, which (unlike a naive os.Chtimes on some older runtimes)
// does not silently clamp to whole seconds. This matters directly to the
// mtime-Precision Prober: a probing write that gets truncated on its way
// through a lossy syscall would misreport a millisecond-capable device
// as second-resolution.
func chtimesPrecise(path string, atime, mtime time.Time) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, ts, 0)
}

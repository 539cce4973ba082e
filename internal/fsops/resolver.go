package fsops

import "path/filepath"

// normalize produces the lexically normalized absolute path: it resolves
// "." and ".." segments without touching the filesystem, and never fails
// because the target need not exist. This grounds §4.1's realpath_flag=false
// branch of the Path Resolver.
func normalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		// filepath.Abs only fails if os.Getwd fails; fall back to Clean
		// on the given path rather than surface an error the caller
		// cannot act on differently than a relative one.
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}

// Resolve implements the Path Resolver operation: resolve(path,
// realpath_flag) -> canonical_key. When realpathFlag is false the path
// is normalized lexically and need not exist. When true, fs.Realpath is
// used, which requires the target to exist and resolves symlinks.
func Resolve(fs Filesystem, path string, realpathFlag bool) (string, error) {
	if !realpathFlag {
		return normalize(path), nil
	}
	return fs.Realpath(path)
}

package fsops

import "path/filepath"

// realpathOS resolves symlinks and relative components to an absolute
// path via the stdlib, which shells out to the same kernel facilities
// regardless of the unix/!unix split used for device ids and utimes.
// It fails if the target does not exist, per §4.1.
func realpathOS(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

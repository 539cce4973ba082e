// Package fsops is the injectable filesystem adapter described by the
// external interfaces of the lock protocol: mkdir, rmdir, stat, utimes,
// and realpath, plus the device identifier a sentinel's stat needs for
// the precision cache. A production Filesystem is backed by
// github.com/spf13/afero's OsFs; tests can swap in afero's MemMapFs to
// exercise the whole protocol without touching a real disk.
package fsops

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/afero"
)

// Stat is the subset of filesystem metadata the protocol needs.
type Stat struct {
	ModTime  time.Time
	DeviceID uint64
}

// Filesystem is the only I/O surface the core consumes. Implementations
// must distinguish "already exists" on Mkdir and "not found" on Rmdir/Stat
// via the stdlib os.IsExist/os.IsNotExist predicates (afero's OsFs and
// MemMapFs both return *os.PathError-compatible errors that satisfy them).
type Filesystem interface {
	// Mkdir atomically creates an empty directory at path. It must fail
	// with an error satisfying os.IsExist if the path already exists.
	Mkdir(path string) error
	// Rmdir removes the (assumed-empty) directory at path.
	Rmdir(path string) error
	// Stat returns the directory's current metadata, including a device
	// identifier stable across stats of paths on the same filesystem.
	Stat(path string) (Stat, error)
	// Chtimes rewrites path's atime and mtime.
	Chtimes(path string, atime, mtime time.Time) error
	// Realpath resolves symlinks and relative components to an absolute,
	// canonical path. The target must exist.
	Realpath(path string) (string, error)
}

// osFilesystem backs production use: afero.OsFs for the directory
// operations, with platform-specific helpers (see device_unix.go /
// utimes_unix.go and their !unix counterparts) for device identification
// and nanosecond-accurate mtime writes.
type osFilesystem struct {
	afs afero.Fs
}

// NewOS returns the production Filesystem, backed by the real OS.
func NewOS() Filesystem {
	return &osFilesystem{afs: afero.NewOsFs()}
}

func (f *osFilesystem) Mkdir(path string) error {
	return f.afs.Mkdir(path, 0o700)
}

func (f *osFilesystem) Rmdir(path string) error {
	return f.afs.Remove(path)
}

func (f *osFilesystem) Stat(path string) (Stat, error) {
	info, err := f.afs.Stat(path)
	if err != nil {
		return Stat{}, err
	}
	return Stat{ModTime: info.ModTime(), DeviceID: deviceID(info)}, nil
}

func (f *osFilesystem) Chtimes(path string, atime, mtime time.Time) error {
	return chtimesPrecise(path, atime, mtime)
}

func (f *osFilesystem) Realpath(path string) (string, error) {
	return realpathOS(path)
}

// memFilesystem backs fast, deterministic unit tests. All sentinels on a
// MemMapFs report the same synthetic device id, and realpath degrades to
// lexical normalization since afero's MemMapFs has no symlinks.
type memFilesystem struct {
	afs afero.Fs
}

// NewMem returns a Filesystem backed by an in-memory afero.MemMapFs, for
// tests that want to exercise the protocol without real disk I/O.
func NewMem() Filesystem {
	return &memFilesystem{afs: afero.NewMemMapFs()}
}

// NewMemWithFs wraps a caller-constructed afero.Fs, so tests can share a
// single filesystem across multiple Filesystem adapters the way two
// cooperating processes share a real one.
func NewMemWithFs(afs afero.Fs) Filesystem {
	return &memFilesystem{afs: afs}
}

func (f *memFilesystem) Mkdir(path string) error {
	exists, err := afero.DirExists(f.afs, path)
	if err != nil {
		return err
	}
	if exists {
		return &os.PathError{Op: "mkdir", Path: path, Err: os.ErrExist}
	}
	return f.afs.Mkdir(path, 0o700)
}

func (f *memFilesystem) Rmdir(path string) error {
	return f.afs.Remove(path)
}

func (f *memFilesystem) Stat(path string) (Stat, error) {
	info, err := f.afs.Stat(path)
	if err != nil {
		return Stat{}, err
	}
	return Stat{ModTime: info.ModTime(), DeviceID: 0}, nil
}

func (f *memFilesystem) Chtimes(path string, atime, mtime time.Time) error {
	return f.afs.Chtimes(path, atime, mtime)
}

func (f *memFilesystem) Realpath(path string) (string, error) {
	if _, err := f.afs.Stat(path); err != nil {
		return "", err
	}
	return normalize(path), nil
}

// IsNotExist reports whether err indicates the target does not exist,
// independent of which Filesystem implementation produced it.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || os.IsNotExist(err)
}

// IsExist reports whether err indicates the target already exists.
func IsExist(err error) bool {
	return errors.Is(err, os.ErrExist) || os.IsExist(err)
}

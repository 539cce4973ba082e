// Package filelock implements a cross-process, cross-machine advisory
// file lock built on a shared filesystem, including network filesystems.
//
// A caller asks to lock a target path; at most one holder observes the
// lock as acquired at a time, so long as every participant runs this
// same protocol against the same filesystem. The lock is advisory: it
// does not prevent unrelated processes from opening or modifying the
// target, and it does not lock byte ranges within a file.
//
// # Architecture
//
// The lock is an empty directory ("sentinel") created next to the
// target. Its presence is the lock; its modification time is the
// liveness beacon. Internally the work is split across five
// cooperating pieces: a path resolver ([internal/fsops]), lockfile
// naming ([internal/naming]), a per-device mtime-precision prober
// ([internal/prober]), the acquisition/staleness engine
// ([internal/engine]), and the holder registry and refresher
// ([internal/registry]) that keeps a held sentinel's mtime current
// and detects when the lock has been lost out from under its holder.
//
// # Basic Usage
//
//	handle, err := filelock.Lock(ctx, "/shared/target", filelock.WithOnCompromised(func(err error) {
//	    log.Printf("lost lock: %v", err)
//	}))
//	if err != nil {
//	    // filelock.ErrLocked, a wrapped I/O error, or a caller context error.
//	}
//	defer handle.Release()
//
// # Compromise
//
// A held lock can be lost without an explicit Unlock call: another
// process may reclaim the sentinel after the stale threshold passes, or
// an operator may remove it by hand. The refresher detects this on its
// next tick and invokes the on_compromised callback; after that, the
// release handle's Release becomes a no-op, since the sentinel may now
// belong to someone else.
//
// # Thread Safety
//
// Every exported type is safe for concurrent use.
package filelock

package filelock

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cerrato-dev/filelock/internal/fsops"
)

func newTestFs(t *testing.T) fsops.Filesystem {
	t.Helper()
	return fsops.NewMem()
}

// TestLockUnlockRoundTrip covers S1 and testable property 3.
func TestLockUnlockRoundTrip(t *testing.T) {
	fs := newTestFs(t)

	handle, err := Lock(context.Background(), "/t/foo",
		WithFilesystem(fs), WithRealpath(false), WithStale(10*time.Second), WithUpdate(5*time.Second))
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	locked, err := Check("/t/foo", WithFilesystem(fs), WithRealpath(false), WithStale(10*time.Second))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !locked {
		t.Fatal("Check() = false, want true while held")
	}

	if err := handle.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	locked, err = Check("/t/foo", WithFilesystem(fs), WithRealpath(false), WithStale(10*time.Second))
	if err != nil {
		t.Fatalf("Check() after release error = %v", err)
	}
	if locked {
		t.Fatal("Check() = true, want false after release")
	}

	handle2, err := Lock(context.Background(), "/t/foo", WithFilesystem(fs), WithRealpath(false))
	if err != nil {
		t.Fatalf("re-Lock() error = %v", err)
	}
	_ = handle2.Release()
}

// TestDoubleReleaseFails covers testable property 5.
func TestDoubleReleaseFails(t *testing.T) {
	fs := newTestFs(t)
	handle, err := Lock(context.Background(), "/t/bar", WithFilesystem(fs), WithRealpath(false))
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	if err := handle.Release(); err != nil {
		t.Fatalf("first Release() error = %v", err)
	}
	if err := handle.Release(); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("second Release() error = %v, want %v", err, ErrAlreadyReleased)
	}
}

// TestStaleSentinelReclaimed covers S2 and testable property 6.
func TestStaleSentinelReclaimed(t *testing.T) {
	fs := newTestFs(t)
	old := time.Now().Add(-60 * time.Second)
	if err := fs.Mkdir("/t/stale.lock"); err != nil {
		t.Fatalf("seed Mkdir() error = %v", err)
	}
	if err := fs.Chtimes("/t/stale.lock", old, old); err != nil {
		t.Fatalf("seed Chtimes() error = %v", err)
	}

	handle, err := Lock(context.Background(), "/t/stale",
		WithFilesystem(fs), WithRealpath(false), WithStale(10*time.Second), WithLockfilePath("/t/stale.lock"))
	if err != nil {
		t.Fatalf("Lock() over stale sentinel error = %v", err)
	}
	defer handle.Release()

	st, err := fs.Stat("/t/stale.lock")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if time.Since(st.ModTime) > 3*time.Second {
		t.Fatalf("reclaimed mtime age = %v, want within a few seconds", time.Since(st.ModTime))
	}
}

// TestFutureMtimeNotReclaimed covers testable property 7: a sentinel
// whose mtime is in the future is not stale, so acquisition collides
// with it rather than reclaiming it.
func TestFutureMtimeNotReclaimed(t *testing.T) {
	fs := newTestFs(t)
	future := time.Now().Add(1 * time.Hour)
	if err := fs.Mkdir("/t/future.lock"); err != nil {
		t.Fatalf("seed Mkdir() error = %v", err)
	}
	if err := fs.Chtimes("/t/future.lock", future, future); err != nil {
		t.Fatalf("seed Chtimes() error = %v", err)
	}

	_, err := Lock(context.Background(), "/t/future",
		WithFilesystem(fs), WithRealpath(false), WithStale(10*time.Second), WithLockfilePath("/t/future.lock"))
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Lock() over future-mtime sentinel error = %v, want %v", err, ErrLocked)
	}
}

// TestStaleDisabledCollides covers S3.
func TestStaleDisabledCollides(t *testing.T) {
	fs := newTestFs(t)
	old := time.Now().Add(-60 * time.Second)
	if err := fs.Mkdir("/t/nodisable.lock"); err != nil {
		t.Fatalf("seed Mkdir() error = %v", err)
	}
	if err := fs.Chtimes("/t/nodisable.lock", old, old); err != nil {
		t.Fatalf("seed Chtimes() error = %v", err)
	}

	_, err := Lock(context.Background(), "/t/nodisable",
		WithFilesystem(fs), WithRealpath(false), WithStale(0), WithLockfilePath("/t/nodisable.lock"))
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Lock() with stale disabled error = %v, want %v", err, ErrLocked)
	}
}

// TestConcurrentLockExactlyOneWins covers S4 and testable property 2.
func TestConcurrentLockExactlyOneWins(t *testing.T) {
	fs := newTestFs(t)

	var wg sync.WaitGroup
	results := make([]error, 8)
	handles := make([]*ReleaseHandle, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := Lock(context.Background(), "/t/contended", WithFilesystem(fs), WithRealpath(false))
			results[i] = err
			handles[i] = h
		}(i)
	}
	wg.Wait()

	wins := 0
	for i, err := range results {
		if err == nil {
			wins++
			defer handles[i].Release()
		} else if !errors.Is(err, ErrLocked) {
			t.Fatalf("unexpected error from concurrent Lock(): %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

// TestSyncRejectsRetries covers §6's ESYNC rule.
func TestSyncRejectsRetries(t *testing.T) {
	fs := newTestFs(t)
	_, err := LockSync("/t/sync", WithFilesystem(fs), WithRealpath(false), WithRetries(3))
	if !errors.Is(err, ErrSyncRetriesUnsupported) {
		t.Fatalf("LockSync() with retries error = %v, want %v", err, ErrSyncRetriesUnsupported)
	}
}

// TestUnlockUnknownKeyFails covers §4.5's explicit-unlock NotAcquired case.
func TestUnlockUnknownKeyFails(t *testing.T) {
	fs := newTestFs(t)
	err := Unlock("/t/never-locked", WithFilesystem(fs), WithRealpath(false))
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("Unlock() unknown key error = %v, want %v", err, ErrNotAcquired)
	}
}

// TestReleaseAfterCompromiseIsNoop covers testable property 4.
func TestReleaseAfterCompromiseIsNoop(t *testing.T) {
	fs := newTestFs(t)
	compromised := make(chan error, 1)

	handle, err := Lock(context.Background(), "/t/compromised",
		WithFilesystem(fs), WithRealpath(false), WithStale(2*time.Second), WithUpdate(1*time.Second),
		WithOnCompromised(func(err error) { compromised <- err }))
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	sentinel := handle.CanonicalKey() + ".lock"
	if err := fs.Rmdir(sentinel); err != nil {
		t.Fatalf("removing sentinel externally: %v", err)
	}

	select {
	case err := <-compromised:
		var ce *CompromisedError
		if !errors.As(err, &ce) {
			t.Fatalf("compromise error = %v, want *CompromisedError", err)
		}
		if ce.Kind != CompromiseNotFound {
			t.Fatalf("compromise kind = %v, want %v", ce.Kind, CompromiseNotFound)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for on_compromised")
	}

	if err := handle.Release(); err != nil {
		t.Fatalf("Release() after compromise error = %v, want nil", err)
	}
}

// TestSymlinkAliasCollides covers S7: locking a symlink to a target, then
// locking the target directly, collide on the same sentinel because
// realpath resolution aliases both paths to the same canonical key.
func TestSymlinkAliasCollides(t *testing.T) {
	dir := t.TempDir()
	target := dir + "/foo"
	link := dir + "/bar"

	if f, err := os.Create(target); err != nil {
		t.Fatalf("creating target: %v", err)
	} else {
		_ = f.Close()
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("creating symlink: %v", err)
	}

	handle, err := Lock(context.Background(), link)
	if err != nil {
		t.Fatalf("Lock(link) error = %v", err)
	}
	defer handle.Release()

	_, err = Lock(context.Background(), target)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Lock(target) error = %v, want %v", err, ErrLocked)
	}
}

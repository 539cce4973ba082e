package filelock

import (
	"os"
	"os/signal"
	"syscall"
)

// exitFunc is called after a caught signal's cleanup runs. It is a
// package variable, not a hardcoded os.Exit call, so tests can swap it
// out the way the examples' cmd/gitbak App.exit field is overridden in
// tests without terminating the test binary.
var exitFunc = os.Exit

// InstallSignalCleanup registers a handler for SIGINT, SIGTERM, and
// SIGHUP that releases every sentinel this process currently holds (on
// the default filesystem) and then terminates the process with exit
// code 1. It satisfies §4.5's process-exit cleanup guarantee for the
// cooperative-shutdown case; a crash still leaves the sentinel for
// another participant to reclaim after the stale threshold.
//
// signal.Notify diverts the default disposition for these signals, so
// without an explicit exit at the end of the handler the process would
// never terminate on them again; this handler always ends by calling
// exitFunc, it does not return control to any default handling.
//
// Call it once, typically from main. The returned func removes the
// handler; callers that never need to uninstall it can ignore the
// return value.
func InstallSignalCleanup() (uninstall func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		select {
		case <-c:
			ReleaseAllDefault()
			exitFunc(1)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(c)
		close(done)
	}
}

// ReleaseAllDefault removes every sentinel currently held by this
// process on the default OS filesystem, ignoring all errors. It is the
// library-level equivalent of a crashed process's sentinels aging out:
// calling it voluntarily reduces that window to zero.
func ReleaseAllDefault() {
	managersMu.Lock()
	m, ok := managers[defaultOSFilesystem]
	managersMu.Unlock()
	if !ok {
		return
	}
	m.registry.ReleaseAll()
}

package registry

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchFastPath is a best-effort enhancement: it watches the sentinel's
// parent directory and triggers an out-of-cycle tick when it sees a
// Remove or Rename naming the sentinel, shortening compromise-detection
// latency below the poll interval. The poll loop in tick remains the
// source of truth; a watcher that fails to start, or that errors later,
// is logged and otherwise ignored.
func (rec *Record) watchFastPath(r *Registry) (stop func(), ok bool) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.log.Debug("fsnotify unavailable, relying on poll loop only", "sentinel", rec.SentinelPath, "error", err)
		return nil, false
	}
	parent := filepath.Dir(rec.SentinelPath)
	if err := watcher.Add(parent); err != nil {
		r.log.Debug("fsnotify could not watch sentinel parent, relying on poll loop only", "dir", parent, "error", err)
		_ = watcher.Close()
		return nil, false
	}

	done := make(chan struct{})
	go func() {
		defer watcher.Close()
		for {
			select {
			case event, okEv := <-watcher.Events:
				if !okEv {
					return
				}
				if event.Name != rec.SentinelPath {
					continue
				}
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					rec.mu.Lock()
					released := rec.released
					rec.mu.Unlock()
					if !released {
						rec.tickLocked(r)
					}
				}
			case werr, okErr := <-watcher.Errors:
				if !okErr {
					return
				}
				r.log.Debug("fsnotify watch error", "sentinel", rec.SentinelPath, "error", werr)
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, true
}

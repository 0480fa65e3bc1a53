package worker

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"funcgate/pkg/logger"
)

// debounceDuration merges bursts of filesystem events for the same save.
const debounceDuration = 2 * time.Second

// Watcher observes the directories of registered function entries and logs
// change events. Workers are spawned per invocation, so changed code is
// picked up automatically; the watcher only gives the developer feedback
// that a change was seen.
type Watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// WatchEntries starts watching the parent directories of the given entry
// references. Duplicate directories are added once.
func WatchEntries(entries []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dirs := map[string]struct{}{}
	for _, e := range entries {
		dirs[filepath.Dir(e)] = struct{}{}
	}
	for d := range dirs {
		if err := fsw.Add(d); err != nil {
			logger.Warn("watch_dir_failed", "dir", d, "error", err)
		}
	}
	w := &Watcher{fsw: fsw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	var debounce *time.Timer
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			name := ev.Name
			op := ev.Op.String()
			debounce = time.AfterFunc(debounceDuration, func() {
				logger.Info("function_code_changed", "path", name, "op", op)
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher_error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

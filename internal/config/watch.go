package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher resolves the open question from spec §9 about concurrent writes
// to the config file from the (out-of-scope) dashboard: rather than an
// admin reload RPC, the proxy watches the file with fsnotify (the same
// library spf13/viper uses internally for its own config watch) and
// debounces bursts of writes — a dashboard PUT/POST handler tends to issue
// a read-modify-write pair that produces two fs events in quick succession.
type Watcher struct {
	path     string
	dir      string
	watchDir bool // true when path itself couldn't be watched yet (doesn't exist)
	debounce time.Duration
	onChange func(*Config)

	mu     sync.Mutex
	timer  *time.Timer
	closer *fsnotify.Watcher
}

// NewWatcher starts watching path and calls onChange with the freshly
// loaded config whenever the file settles after a write. onChange is
// called on its own goroutine; load errors are swallowed (a transient
// partial write during a rename is expected and simply skipped until the
// next stable read).
func NewWatcher(path string, debounce time.Duration, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	w := &Watcher{path: path, dir: dir, debounce: debounce, onChange: onChange, closer: fw}

	if err := fw.Add(path); err != nil {
		// The file doesn't exist yet (bootstrap() normally pre-creates it,
		// so this is rare): watch its directory instead and filter events
		// down to the file name, upgrading to a direct watch on path the
		// moment it's created.
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
		w.watchDir = true
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.closer.Events:
			if !ok {
				return
			}
			if w.watchDir {
				if filepath.Dir(event.Name) != w.dir || filepath.Base(event.Name) != filepath.Base(w.path) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					if err := w.closer.Add(w.path); err == nil {
						w.watchDir = false
					}
				}
			} else if event.Name != w.path {
				continue
			} else if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				// Save renames a temp file over path, which drops the watch
				// on the replaced file: watch the new file, or the directory
				// until one appears there again.
				if err := w.closer.Add(w.path); err != nil {
					if err := w.closer.Add(w.dir); err == nil {
						w.watchDir = true
					}
					continue
				}
				w.scheduleReload()
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case _, ok := <-w.closer.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		cfg, err := Load(w.path)
		if err != nil {
			return
		}
		w.onChange(cfg)
	})
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.closer.Close()
}

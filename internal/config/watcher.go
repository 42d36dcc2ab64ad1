package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher detects changes to the on-disk config file while the hub
// runs. ResolvedConfig is immutable for the process lifetime, so the
// watcher never re-resolves or hot-applies anything — it only logs a
// notice so an operator knows a restart is needed.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	logger    zerolog.Logger
	done      chan struct{}
}

// NewWatcher starts watching the directory containing path.
func NewWatcher(path string, logger zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		logger:    logger,
		done:      make(chan struct{}),
	}

	go w.run(path)

	return w, nil
}

func (w *Watcher) run(path string) {
	target := filepath.Clean(path)
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.logger.Warn().Str("path", path).Msg("config file changed on disk; restart guardia-hub to apply")
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("config watcher error")
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}

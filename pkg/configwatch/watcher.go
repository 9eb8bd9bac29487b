// Package configwatch watches the config files on disk and reloads
// the shared config.Store when any of them changes, debouncing bursts
// of writes (editors often write a file several times in quick
// succession).
package configwatch

import (
	"time"

	"github.com/cuemby/swarmanchor/pkg/config"
	"github.com/cuemby/swarmanchor/pkg/log"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config.Store whenever one of its source files
// changes on disk.
type Watcher struct {
	store    *config.Store
	paths    []string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Watcher over the given store. paths should be the
// same file paths the store was constructed with.
func New(store *config.Store, paths []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := fw.Add(p); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return &Watcher{
		store:    store,
		paths:    paths,
		debounce: 500 * time.Millisecond,
		watcher:  fw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	go w.run()
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	logger := log.WithComponent("configwatch")
	var pending *time.Timer

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, func() {
				if err := w.store.Reload(); err != nil {
					logger.Error().Err(err).Str("path", ev.Name).Msg("config reload failed, keeping previous config")
					return
				}
				logger.Info().Str("path", ev.Name).Msg("config reloaded")
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("config watch error")
		case <-w.stopCh:
			if pending != nil {
				pending.Stop()
			}
			return
		}
	}
}

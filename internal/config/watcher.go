package config

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

// Watcher hot-reloads the JSON config file and hands each successfully
// parsed Config to the callback. A file that fails to parse keeps the last
// good config; the error is logged, never fatal.
type Watcher struct {
	path     string
	onChange func(Config)
	logger   *zap.Logger
	watcher  *fsnotify.Watcher

	closeOnce sync.Once
	done      chan struct{}
}

func NewWatcher(path string, onChange func(Config), logger *zap.Logger) (*Watcher, error) {
	if strings.TrimSpace(path) == "" || onChange == nil {
		return nil, domain.ErrInvalidInput
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory: editors replace files on save, which drops a
	// watch registered on the file itself
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	w := &Watcher{
		path:     path,
		onChange: onChange,
		logger:   logger,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	target := filepath.Clean(w.path)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("config reload failed, keeping previous config",
					zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.logger.Info("config reloaded", zap.String("path", w.path))
			w.onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

package agentconfig

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// ConfigChangeHandler receives every successfully reloaded configuration
type ConfigChangeHandler func(config *AgentConfig)

// Watcher reloads the configuration file when it changes on disk. Files
// replaced by rename, as editors and config managers do, are re-watched.
type Watcher struct {
	path     string
	onChange ConfigChangeHandler
	logger   logging.Logger

	settleDelay time.Duration

	mutex   sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewWatcher(path string, onChange ConfigChangeHandler, logger logging.Logger) (*Watcher, error) {
	if path == "" {
		return nil, errors.NewValidationError("configuration path cannot be empty", nil)
	}
	if onChange == nil {
		return nil, errors.NewValidationError("change handler cannot be nil", nil)
	}
	return &Watcher{
		path:        path,
		onChange:    onChange,
		logger:      logger,
		settleDelay: 100 * time.Millisecond,
	}, nil
}

func (w *Watcher) Start(ctx context.Context) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.watcher != nil {
		return errors.NewConflictError("watcher already started", nil)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewIOError("failed to create file watcher", err)
	}
	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return errors.NewIOError("failed to watch configuration file", err).WithContext("path", w.path)
	}

	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.loop(ctx, watcher, w.stopCh)

	w.logger.Infof("Watching configuration file, path: %s", w.path)
	return nil
}

func (w *Watcher) Stop() {
	w.mutex.Lock()
	watcher := w.watcher
	if watcher == nil {
		w.mutex.Unlock()
		return
	}
	close(w.stopCh)
	w.watcher = nil
	w.mutex.Unlock()

	w.wg.Wait()
	if err := watcher.Close(); err != nil {
		w.logger.Warnf("Failed to close file watcher: %v", err)
	}
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher, stopCh chan struct{}) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("Configuration watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		w.logger.Debugf("Configuration file modified, path: %s", event.Name)
		w.reload()

	case event.Op&(fsnotify.Rename|fsnotify.Remove) != 0:
		time.Sleep(w.settleDelay)
		if _, err := os.Stat(w.path); os.IsNotExist(err) {
			w.logger.Warnf("Configuration file removed, keeping last configuration, path: %s", w.path)
			return
		}

		w.logger.Debugf("Configuration file replaced, path: %s", w.path)
		_ = watcher.Remove(w.path)
		if err := watcher.Add(w.path); err != nil {
			w.logger.Errorf("Failed to re-watch configuration file, path: %s, error: %v", w.path, err)
		}
		w.reload()
	}
}

func (w *Watcher) reload() {
	config, err := LoadConfigFromFile(w.path)
	if err == nil {
		err = ValidateConfig(config)
	}
	if err != nil {
		w.logger.Errorf("Ignoring invalid configuration change: %v", err)
		return
	}
	w.onChange(config)
}

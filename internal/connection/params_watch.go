package connection

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/muurk/sensorlink/internal/logging"
)

// WatchParams calls onChange whenever the local params file is written,
// created, replaced or removed. It blocks until ctx is done.
//
// The parent directory is watched rather than the file so editors that
// save through rename keep triggering events.
func (c *Connection) WatchParams(ctx context.Context, onChange func()) error {
	if c.cfg.ParamsPath == "" {
		return NewConfigurationError("params_path not provided, nothing to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create params watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(c.cfg.ParamsPath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	logging.Debug("Watching params file", zap.String("path", target))

	const interesting = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&interesting == 0 {
				continue
			}
			logging.Info("Params file changed", zap.String("path", target), zap.String("op", ev.Op.String()))
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("Params watcher error", zap.Error(err))
		}
	}
}

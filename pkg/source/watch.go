package source

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchDebounce merges the burst of events editors emit on save.
const watchDebounce = 150 * time.Millisecond

// Watch calls onChange after the file at path is written, created or
// replaced, until ctx is done. The parent directory is watched so that
// editors that save by renaming a temp file are still seen.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func()) error {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		defer w.Close()

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				log.Debug("model file changed", zap.String("path", abs), zap.String("op", ev.Op.String()))
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, onChange)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("watch error", zap.String("path", abs), zap.Error(err))
			}
		}
	}()
	return nil
}

package notebookfile

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const watchDebounce = 100 * time.Millisecond

// Watch reloads the document whenever the file changes on disk, until ctx
// is cancelled. onReload, if not nil, is called after every reload that
// changed the document. Writes made by Save do not trigger a reload.
//
// The parent directory is watched so that files replaced by a rename keep
// being followed.
func (f *File) Watch(ctx context.Context, onReload func()) error {
	abs, err := filepath.Abs(f.Path)
	if err != nil {
		return errors.WithStack(err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrap(err, "failed to watch directory")
	}

	f.logger.Info("watching notebook file", zap.String("path", abs))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(watchDebounce)
			timerCh = timer.C
		} else {
			timer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			f.logger.Info("stopped watching notebook file", zap.String("path", abs))
			return nil

		case <-timerCh:
			changed, err := f.Reload(ctx)
			if err != nil {
				f.logger.Warn("failed to reload notebook file", zap.String("path", abs), zap.Error(err))
				continue
			}
			if changed && onReload != nil {
				onReload()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				schedule()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Error("notebook file watcher failed", zap.Error(err))
		}
	}
}

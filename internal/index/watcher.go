package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RefCallback is called after the watched branch ref changed on disk.
type RefCallback func()

const refDebounce = 200 * time.Millisecond

// WatchRef starts an fsnotify watcher on the loose ref file of branch and on
// packed-refs inside gitDir, and calls cb once per burst of changes until ctx
// is cancelled. Git rewrites refs through a lock file and a rename, so a
// single update produces several events; they are debounced.
func WatchRef(ctx context.Context, gitDir, branch string, logger *slog.Logger, cb RefCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	refPath := filepath.Join(gitDir, "refs", "heads", filepath.FromSlash(branch))
	packedRefs := filepath.Join(gitDir, "packed-refs")
	refDir := filepath.Dir(refPath)

	if err := os.MkdirAll(refDir, 0o755); err != nil {
		return err
	}
	for _, dir := range []string{gitDir, refDir} {
		if err := w.Add(dir); err != nil {
			return err
		}
	}

	logger.Info("watcher: started", slog.String("ref", refPath))

	var debounce *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if debounce == nil {
			debounce = time.NewTimer(refDebounce)
			fire = debounce.C
		} else {
			debounce.Reset(refDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			debounce, fire = nil, nil
			logger.Debug("watcher: ref changed", slog.String("ref", refPath))
			if cb != nil {
				cb()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name != refPath && ev.Name != packedRefs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

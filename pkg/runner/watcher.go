package runner

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/d4ckard/shuttle/internal/logger"
)

// DefaultDebounce is how long the watcher waits after the last filesystem
// event before triggering a reload, so one save does not fire several
// rebuilds.
const DefaultDebounce = 500 * time.Millisecond

// Watcher triggers a reload of the supervised unit whenever its source
// tree changes.
type Watcher struct {
	runner   *Runner
	debounce time.Duration

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	stopped chan struct{}
}

// NewWatcher creates a watcher over the runner's source root.
// If debounce is zero, DefaultDebounce is used.
func NewWatcher(r *Runner, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		runner:   r,
		debounce: debounce,
		watcher:  fsw,
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	if err := w.addRecursive(r.cfg.SourceRoot); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive watches dir and all non-hidden subdirectories. fsnotify
// does not recurse by itself.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Start begins watching in a background goroutine until Stop is called or
// the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer close(w.stopped)

		logger.Info("Watching source for changes",
			"project", w.runner.cfg.Project, "path", w.runner.cfg.SourceRoot)

		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.relevant(event) {
					continue
				}
				// New directories must be picked up for future events.
				if event.Op.Has(fsnotify.Create) {
					_ = w.addRecursive(event.Name)
				}
				if timer == nil {
					timer = time.NewTimer(w.debounce)
					timerC = timer.C
				} else {
					timer.Reset(w.debounce)
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Source watcher error", "error", err)

			case <-timerC:
				timer = nil
				timerC = nil
				logger.Info("Source changed, reloading", "project", w.runner.cfg.Project)
				if err := w.runner.Reload(ctx); err != nil {
					// A broken build keeps the previous generation serving;
					// the next save gets another chance.
					logger.Error("Reload failed", "project", w.runner.cfg.Project, "error", err)
				}
			}
		}
	}()
}

// relevant filters out events that cannot affect a build.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return true
}

// Stop stops watching and waits for the goroutine to exit.
func (w *Watcher) Stop() {
	select {
	case <-w.stopCh:
		return
	default:
		close(w.stopCh)
	}
	<-w.stopped
	_ = w.watcher.Close()
}

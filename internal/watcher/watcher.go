// Package watcher observes one filesystem directory for modification
// events, optionally filtered to a single filename, and forwards them as
// change notifications.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Change is one notification that watched build output was modified.
type Change struct {
	// Name is the basename of the changed entry, when the underlying
	// event carried one.
	Name string
}

// Watcher forwards filesystem change events for a single directory.
type Watcher struct {
	logger *slog.Logger
	dir    string
	file   string // when non-empty, only events for this basename pass

	fs      *fsnotify.Watcher
	changes chan Change
	errs    chan error
	done    chan struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a watcher on dir, creating the directory if absent. When
// file is non-empty, events for any other basename are dropped.
//
// Directory creation is a suspension point: the context is rechecked
// afterwards and setup aborts with the context error if already cancelled.
func New(ctx context.Context, logger *slog.Logger, dir, file string) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create watch dir %s: %w", dir, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		logger:  logger,
		dir:     dir,
		file:    file,
		fs:      fs,
		changes: make(chan Change, 64),
		errs:    make(chan error, 8),
		done:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run(ctx)

	logger.Debug("watching for build output", "dir", dir, "file", file)
	return w, nil
}

// run forwards fsnotify events until the context is cancelled or the
// watcher is closed.
func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.forwardError(err)
		}
	}
}

// handle filters one fsnotify event and forwards it as a change.
func (w *Watcher) handle(event fsnotify.Event) {
	// Chmod-only events say nothing about build output content.
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	name := filepath.Base(event.Name)
	if w.file != "" && name != w.file {
		return
	}

	select {
	case w.changes <- Change{Name: name}:
	case <-w.done:
	default:
		// A reload is already inevitable; piling up more notifications
		// behind a full buffer adds nothing.
		w.logger.Debug("change buffer full, dropping notification", "name", name)
	}
}

func (w *Watcher) forwardError(err error) {
	select {
	case w.errs <- err:
	case <-w.done:
	default:
		w.logger.Warn("error buffer full, dropping watcher error", "error", err)
	}
}

// Changes returns the channel of change notifications.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Errors returns the channel of runtime watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Close releases the watcher. Idempotent.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
		close(w.changes)
		close(w.errs)
	})
	return err
}

// Package watcher turns file system notifications for the deploy file into
// Reload messages.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/mindriot101/dockerdeploy/internal/controller"
)

// Sender accepts messages for the controller.
type Sender interface {
	Send(msg controller.Message) error
}

// Watcher observes the directory holding the deploy file and forwards events
// that name the file itself.
type Watcher struct {
	path   string
	sender Sender
	logger *slog.Logger
	fs     *fsnotify.Watcher
}

// New starts watching path. The watch is registered before New returns.
func New(path string, sender Sender, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve deploy file path: %w", err)
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{
		path:   abs,
		sender: sender,
		logger: logger.With("component", "watcher", "path", abs),
		fs:     fs,
	}, nil
}

// Run forwards events until ctx is done. A closed queue is fatal and is
// returned to the caller. Run closes the underlying watcher on exit.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	w.logger.Info("watching deploy file")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			msg := controller.Reload{Change: ChangeKind(ev.Op), Path: w.path}
			w.logger.Debug("deploy file changed", "op", ev.Op.String(), "change", msg.Change.String())
			if err := w.sender.Send(msg); err != nil {
				if errors.Is(err, controller.ErrQueueClosed) {
					return err
				}
				w.logger.Warn("failed to queue reload", "error", err)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// ChangeKind maps an fsnotify operation to the controller's change kinds.
// A write wins over anything else reported in the same event.
func ChangeKind(op fsnotify.Op) controller.ChangeKind {
	switch {
	case op.Has(fsnotify.Write):
		return controller.ChangeModified
	case op.Has(fsnotify.Create):
		return controller.ChangeCreated
	case op.Has(fsnotify.Remove):
		return controller.ChangeRemoved
	case op.Has(fsnotify.Rename):
		return controller.ChangeRenamed
	default:
		return controller.ChangeOther
	}
}

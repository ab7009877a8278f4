// Package filemonitor runs a handler for filesystem events on a set of
// paths, optionally narrowed by file extension and operation.
package filemonitor

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Handler processes one event.
type Handler func(logrus.FieldLogger, fsnotify.Event)

// Filter returns true for events the handler should see.
type Filter func(fsnotify.Event) bool

// WithExtension accepts events on files ending in ext.
func WithExtension(ext string) Filter {
	return func(event fsnotify.Event) bool {
		return filepath.Ext(event.Name) == ext
	}
}

// WithOps accepts events carrying any of ops.
func WithOps(ops ...fsnotify.Op) Filter {
	return func(event fsnotify.Event) bool {
		for _, op := range ops {
			if event.Has(op) {
				return true
			}
		}
		return false
	}
}

// Watcher delivers filtered events to a Handler.
type Watcher struct {
	notify  *fsnotify.Watcher
	logger  logrus.FieldLogger
	handle  Handler
	filters []Filter
	done    chan struct{}
}

// NewWatch starts monitoring every path in paths; directories are watched
// without their subdirectories. handle runs on the goroutine started by
// Run, once for each event that passes every filter.
func NewWatch(logger logrus.FieldLogger, paths []string, handle Handler, filters ...Filter) (*Watcher, error) {
	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating watcher")
	}
	for _, path := range paths {
		if err := notify.Add(path); err != nil {
			notify.Close()
			return nil, errors.Wrapf(err, "watching %s", path)
		}
		logger.WithField("path", path).Debug("watching")
	}
	return &Watcher{
		notify:  notify,
		logger:  logger,
		handle:  handle,
		filters: filters,
		done:    make(chan struct{}),
	}, nil
}

func (w *Watcher) accepts(event fsnotify.Event) bool {
	for _, filter := range w.filters {
		if !filter(event) {
			return false
		}
	}
	return true
}

// Run processes events in the background until ctx is cancelled or the
// underlying watcher closes.
func (w *Watcher) Run(ctx context.Context) {
	go func() {
		defer close(w.done)
		defer w.notify.Close()
		for {
			select {
			case <-ctx.Done():
				w.logger.Debug("watcher stopped")
				return
			case event, ok := <-w.notify.Events:
				if !ok {
					return
				}
				if !w.accepts(event) {
					continue
				}
				w.logger.WithField("event", event.String()).Debug("file changed")
				if w.handle != nil {
					w.handle(w.logger, event)
				}
			case err, ok := <-w.notify.Errors:
				if !ok {
					return
				}
				w.logger.WithError(err).Warn("watch error")
			}
		}
	}()
}

// Done is closed once the watcher has stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

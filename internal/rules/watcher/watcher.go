// Package watcher reports changes to a single store file.
//
// The file's directory is watched rather than the file itself so that
// atomic replacement (write to a temp file, then rename) is seen as a
// change. Bursts of events are coalesced and delivered once the file has
// been quiet for the debounce interval.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/rulebook/internal/logging"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("watcher closed")

// DefaultDebounce is the quiet period before an event is delivered.
const DefaultDebounce = 100 * time.Millisecond

// Operation represents the type of file operation.
type Operation int

const (
	// OpWrite indicates the file was modified.
	OpWrite Operation = iota

	// OpCreate indicates the file was created or replaced.
	OpCreate

	// OpRemove indicates the file was deleted.
	OpRemove

	// OpRename indicates the file was renamed away.
	OpRename
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event represents a change to the watched file.
type Event struct {
	// Path is the absolute path of the watched file.
	Path string
	// Op is the coalesced operation.
	Op Operation
	// Time is when the last underlying event arrived.
	Time time.Time
}

// Handler is called when the watched file changes.
type Handler func(Event)

// Watcher watches one file.
type Watcher struct {
	path     string
	handler  Handler
	debounce time.Duration
	logger   *logging.Logger

	fsw *fsnotify.Watcher

	closeOnce sync.Once
	closeCh   chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the debounce duration. Zero delivers every event.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New starts watching path. The file need not exist yet, but its
// directory must.
func New(path string, handler Handler, opts ...Option) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     absPath,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   logging.Nop(),
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("watcher")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(absPath), err)
	}
	w.fsw = fsw
	return w, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Run delivers events until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending *Event
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.closeCh:
			return ErrClosed

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return ErrClosed
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			op, ok := operation(ev.Op)
			if !ok {
				continue
			}
			next := Event{Path: w.path, Op: op, Time: time.Now()}
			if w.debounce == 0 {
				w.emit(next)
				continue
			}
			pending = coalesce(pending, next)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if pending != nil {
				w.emit(*pending)
				pending = nil
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrClosed
			}
			w.logger.Warn("watch error on %s: %v", w.path, err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeCh)
		err = w.fsw.Close()
	})
	return err
}

func operation(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpWrite, true
	default:
		return 0, false
	}
}

// coalesce merges next into a pending event:
// remove wins over everything, create is kept over a later write, and
// anything that follows a remove replaces it.
func coalesce(pending *Event, next Event) *Event {
	if pending == nil {
		return &next
	}
	merged := next
	switch {
	case next.Op == OpRemove:
	case pending.Op == OpCreate && next.Op == OpWrite:
		merged.Op = OpCreate
	}
	return &merged
}

// emit calls the handler with panic recovery so a failing reload cannot
// stop the watch loop.
func (w *Watcher) emit(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panic for %s: %v", ev.Op, r)
		}
	}()
	w.handler(ev)
}

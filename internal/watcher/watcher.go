// Package watcher turns filesystem notifications into debounced, filtered
// change events for the ingest pipeline.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/mdvdb/internal/discover"
)

// DefaultDebounce is the settle window applied per path before a change
// event is delivered.
const DefaultDebounce = 300 * time.Millisecond

// EventKind classifies a change event.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventModify EventKind = "modify"
	EventRemove EventKind = "remove"
)

// Event is one debounced file change. Path is slash-separated and relative
// to the project root.
type Event struct {
	Kind EventKind
	Path string
}

// Watcher watches the configured source directories recursively and emits
// Events for markdown files that pass the ignore rules. Rapid write bursts
// to one file collapse into a single event.
type Watcher struct {
	root       string
	sourceDirs []string
	disc       *discover.Discoverer
	debounce   time.Duration
	events     chan Event
	fire       chan Event
	logger     *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*pendingEvent
	started  bool
	stopOnce sync.Once
	done     chan struct{}
}

type pendingEvent struct {
	timer *time.Timer
	kind  EventKind
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger used by the watcher.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// WithDebounce overrides the per-path settle window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over the given source directories (relative to
// root, or absolute). disc filters events down to indexable files.
func New(root string, sourceDirs []string, disc *discover.Discoverer, opts ...Option) *Watcher {
	w := &Watcher{
		root:       root,
		sourceDirs: sourceDirs,
		disc:       disc,
		debounce:   DefaultDebounce,
		events:     make(chan Event, 64),
		fire:       make(chan Event, 64),
		logger:     zap.NewNop(),
		pending:    make(map[string]*pendingEvent),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Events returns the channel change events are delivered on. The channel is
// closed when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start registers the source directories and begins delivering events. It
// returns once watching is established; delivery runs until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.started = true
	for _, src := range w.sourceDirs {
		abs := src
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(w.root, src)
		}
		if err := w.addTreeLocked(abs); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()

	w.logger.Info("watching for changes",
		zap.Strings("dirs", w.sourceDirs),
		zap.Duration("debounce", w.debounce))
	go w.run(ctx)
	return nil
}

// Stop shuts the watcher down and closes the event channel.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.started && w.fsw != nil {
		for path, p := range w.pending {
			p.timer.Stop()
			delete(w.pending, path)
		}
		_ = w.fsw.Close()
		w.fsw = nil
		w.started = false
	}
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) run(ctx context.Context) {
	// events is closed here, and only here, once no timer can fire again.
	defer close(w.events)
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev := <-w.fire:
			w.logger.Debug("change event",
				zap.String("kind", string(ev.Kind)),
				zap.String("path", ev.Path))
			select {
			case w.events <- ev:
			case <-w.done:
				return
			}
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.handleNewDirectory(ev.Name)
			return
		}
		if w.disc.ShouldIndex(rel) {
			w.schedule(rel, EventCreate)
		}
	case ev.Op.Has(fsnotify.Write):
		if w.disc.ShouldIndex(rel) {
			w.schedule(rel, EventModify)
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		// Renames report the old name; the new name arrives as a create.
		w.cancel(rel)
		if w.disc.ShouldIndex(rel) {
			w.deliver(Event{Kind: EventRemove, Path: rel})
		}
	}
}

// handleNewDirectory registers a created directory tree and emits create
// events for any markdown files already inside it, which covers moves of
// whole directories into the watched area.
func (w *Watcher) handleNewDirectory(abs string) {
	w.mu.Lock()
	if w.fsw != nil {
		if err := w.addTreeLocked(abs); err != nil {
			w.logger.Warn("failed to watch new directory",
				zap.String("path", abs), zap.Error(err))
		}
	}
	w.mu.Unlock()

	filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if w.disc.ShouldIndex(rel) {
			w.schedule(rel, EventCreate)
		}
		return nil
	})
}

func (w *Watcher) addTreeLocked(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}

// schedule arms or re-arms the per-path debounce timer. A create followed by
// writes inside the window stays a create.
func (w *Watcher) schedule(rel string, kind EventKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if p, ok := w.pending[rel]; ok {
		p.timer.Stop()
		if p.kind == EventCreate {
			kind = EventCreate
		}
	}
	p := &pendingEvent{kind: kind}
	p.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, rel)
		w.mu.Unlock()
		w.deliver(Event{Kind: kind, Path: rel})
	})
	w.pending[rel] = p
}

func (w *Watcher) cancel(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[rel]; ok {
		p.timer.Stop()
		delete(w.pending, rel)
	}
}

// deliver hands an event to the run goroutine, which owns the public
// channel. fire is never closed, so late timer callbacks cannot panic.
func (w *Watcher) deliver(ev Event) {
	select {
	case <-w.done:
	case w.fire <- ev:
	}
}

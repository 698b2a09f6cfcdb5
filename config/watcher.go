package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads one configuration file when it changes and hands each
// distinct, successfully loaded value to the registered handlers.
//
// The parent directory is watched, not the file, so saves that replace
// the file by rename are seen as well.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	load     func(path string) (T, error)
	onError  func(error)
	logger   *slog.Logger

	mu       sync.Mutex
	handlers map[int]func(T)
	nextID   int
	last     T
	haveLast bool

	fsw      *fsnotify.Watcher
	quit     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce overrides DefaultDebounce.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) { w.debounce = d }
}

// WithErrorHandler is called when a reload fails. Failures are logged
// either way and the previous value stays in effect.
func WithErrorHandler[T any](fn func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) { w.onError = fn }
}

// NewWatcher creates a watcher for path. load runs after every change.
func NewWatcher[T any](path string, load func(path string) (T, error), logger *slog.Logger, opts ...WatcherOption[T]) *Watcher[T] {
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		load:     load,
		logger:   logger,
		handlers: make(map[int]func(T)),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers fn and returns a function that removes it.
func (w *Watcher[T]) OnReload(fn func(T)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = fn
	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Start loads the current file as the baseline and begins watching. The
// file must exist.
func (w *Watcher[T]) Start() error {
	if _, err := os.Stat(w.path); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	w.fsw = fsw

	if v, err := w.load(w.path); err == nil {
		w.last, w.haveLast = v, true
	}

	w.logger.Info("Config watcher started", "path", w.path, "debounce", w.debounce)
	go w.run()
	return nil
}

// Stop ends watching and waits for the watch goroutine. It is safe to
// call on a watcher that never started.
func (w *Watcher[T]) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.quit)
		if w.fsw != nil {
			err = w.fsw.Close()
			<-w.done
		}
	})
	return err
}

func (w *Watcher[T]) run() {
	defer close(w.done)

	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-w.quit:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debug("Config file changed", "op", ev.Op.String())
			debounce.Reset(w.debounce)

		case <-debounce.C:
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher[T]) reload() {
	v, err := w.load(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous settings", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	if w.haveLast && reflect.DeepEqual(v, w.last) {
		w.mu.Unlock()
		w.logger.Debug("Config unchanged", "path", w.path)
		return
	}
	w.last, w.haveLast = v, true
	handlers := make([]func(T), 0, len(w.handlers))
	for _, fn := range w.handlers {
		handlers = append(handlers, fn)
	}
	w.mu.Unlock()

	w.logger.Info("Config reloaded", "path", w.path, "handlers", len(handlers))
	for _, fn := range handlers {
		fn(v)
	}
}

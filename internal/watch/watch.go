// Package watch reports changes to a single file, such as config.toml, so the
// client can reload it without a restart.
//
// The parent directory is watched rather than the file itself: atomic saves
// replace the file by rename, which would orphan a watch on the old inode.
package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the stat interval used when fsnotify is unavailable.
const DefaultPollInterval = 2 * time.Second

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher monitors one file using fsnotify with a polling fallback.
type Watcher struct {
	// path is the file being monitored.
	path string
	// events is buffered to 1 so back-to-back writes coalesce.
	events chan struct{}
	// done is closed by [Watcher.Close].
	done chan struct{}

	mu sync.Mutex
	// fsw is nil when polling.
	fsw *fsnotify.Watcher

	once         sync.Once
	polling      atomic.Bool
	pollInterval time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPollInterval sets the polling fallback interval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) { w.pollInterval = d }
}

// withPolling forces the polling fallback. Tests use it to cover the
// fallback on platforms where fsnotify works.
func withPolling() Option {
	return func(w *Watcher) { w.polling.Store(true) }
}

// New starts watching path. The file does not have to exist yet; creating
// it counts as a change.
func New(path string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	w := &Watcher{
		path:         abs,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: DefaultPollInterval,
	}
	for _, o := range opts {
		o(w)
	}

	if w.polling.Load() {
		go w.poll()
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		if err = fsw.Add(filepath.Dir(abs)); err != nil {
			fsw.Close()
		}
	}
	if err != nil {
		w.fallback("cannot start fsnotify", err)
		return w, nil
	}
	w.fsw = fsw
	go w.watch(fsw)
	return w, nil
}

// fallback drops fsnotify, if any, and starts polling.
func (w *Watcher) fallback(reason string, err error) {
	slog.Info(reason+", polling instead", "path", w.path, "interval", w.pollInterval, "error", err)
	w.mu.Lock()
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}
	w.mu.Unlock()
	w.polling.Store(true)
	go w.poll()
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Events returns a channel that receives a signal when the file changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher and releases resources. It is safe to call more
// than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
			w.fsw = nil
		}
	})
	return err
}

// watch forwards events naming the watched file until Close or an fsnotify
// error.
func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&relevant != 0 && filepath.Clean(event.Name) == w.path {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.fallback("fsnotify failed", err)
			return
		}
	}
}

// stamp is what polling compares between ticks. The zero stamp means the
// file is absent.
type stamp struct {
	mod  time.Time
	size int64
	ok   bool
}

func (s stamp) differs(o stamp) bool {
	return s.ok != o.ok || s.size != o.size || !s.mod.Equal(o.mod)
}

func (w *Watcher) stat() stamp {
	info, err := os.Stat(w.path)
	if err != nil {
		return stamp{}
	}
	return stamp{mod: info.ModTime(), size: info.Size(), ok: true}
}

// poll stats the file every pollInterval and notifies when its stamp
// changes, including appearing or disappearing.
func (w *Watcher) poll() {
	last := w.stat()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if cur := w.stat(); cur.differs(last) {
				last = cur
				w.notify()
			}
		}
	}
}

// notify queues one change signal; it never blocks.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}

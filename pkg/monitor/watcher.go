package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/mailest/mailestd/pkg/log"
	"github.com/mailest/mailestd/pkg/metrics"
)

// IncludeFunc decides whether a maildir root's direct subdirectory
// should be watched, by its base name.
type IncludeFunc func(name string) bool

// Watcher coalesces fsnotify events from the maildir tree into a
// single debounced Gather request per settled folder. Grounded on the
// notebit watcher.Service's fsnotify eventLoop/debounce shape, adapted
// from a per-path timer map to the single-recomputed-timer design
// spec.md §4.5 calls for.
type Watcher struct {
	root      string
	delay     time.Duration
	includeFn IncludeFunc

	fsw    *fsnotify.Watcher
	logger zerolog.Logger

	mu      sync.Mutex
	dirty   map[string]time.Time
	watched map[string]bool
	timer   *time.Timer

	gatherCh chan string
	done     chan struct{}
}

// New creates a watcher rooted at root, registering root itself and
// every direct subdirectory accepted by includeFn.
func New(root string, delay time.Duration, includeFn IncludeFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:      root,
		delay:     delay,
		includeFn: includeFn,
		fsw:       fsw,
		logger:    log.WithComponent("monitor"),
		dirty:     make(map[string]time.Time),
		watched:   make(map[string]bool),
		timer:     time.NewTimer(delay),
		gatherCh:  make(chan string, 64),
		done:      make(chan struct{}),
	}

	if err := w.register(root); err != nil {
		fsw.Close()
		return nil, err
	}
	if err := w.reenumerateRoot(); err != nil {
		w.logger.Warn().Err(err).Msg("initial root enumeration failed")
	}
	return w, nil
}

// Gathers delivers the path of each folder whose activity has settled
// and needs a Gather task.
func (w *Watcher) Gathers() <-chan string { return w.gatherCh }

// Register adds path to the watch set, for folders the DB worker
// discovers after startup (a nested subdirectory turned up by a
// gather walk, not one of the root's direct children New already
// covers).
func (w *Watcher) Register(path string) error {
	w.mu.Lock()
	already := w.watched[path]
	w.mu.Unlock()
	if already {
		return nil
	}
	return w.register(path)
}

func (w *Watcher) register(path string) error {
	if err := w.fsw.Add(path); err != nil {
		return err
	}
	w.mu.Lock()
	w.watched[path] = true
	w.mu.Unlock()
	return nil
}

// Run drives the event loop until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.gatherCh)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
			metrics.MonitorEventsTotal.WithLabelValues(ev.Op.String()).Inc()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("watch error")

		case <-w.timer.C:
			w.tick()

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	folder := w.watchedFolderFor(ev.Name)
	if folder == "" {
		return
	}

	w.mu.Lock()
	w.dirty[folder] = time.Now()
	w.mu.Unlock()

	w.rescheduleTimer()
}

func (w *Watcher) watchedFolderFor(name string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[name] {
		return name
	}
	parent := filepath.Dir(name)
	if w.watched[parent] {
		return parent
	}
	return ""
}

func (w *Watcher) rescheduleTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rescheduleTimerLocked()
}

func (w *Watcher) rescheduleTimerLocked() {
	if len(w.dirty) == 0 {
		return
	}

	var soonest time.Time
	for _, t := range w.dirty {
		wake := t.Add(w.delay)
		if soonest.IsZero() || wake.Before(soonest) {
			soonest = wake
		}
	}

	d := time.Until(soonest)
	if d < 0 {
		d = 0
	}
	if !w.timer.Stop() {
		select {
		case <-w.timer.C:
		default:
		}
	}
	w.timer.Reset(d)
}

// tick runs on every timer expiry: subsume ancestor/descendant dirty
// pairs, then fire a Gather (or root re-enumeration) for every folder
// whose settle delay has elapsed (spec.md §4.5).
func (w *Watcher) tick() {
	w.mu.Lock()
	w.subsumeLocked()

	now := time.Now()
	var ready []string
	for f, t := range w.dirty {
		if now.Sub(t) >= w.delay {
			ready = append(ready, f)
			delete(w.dirty, f)
		}
	}
	w.rescheduleTimerLocked()
	w.mu.Unlock()

	for _, f := range ready {
		if f == w.root {
			if err := w.reenumerateRoot(); err != nil {
				w.logger.Warn().Err(err).Msg("root re-enumeration failed")
			}
			continue
		}
		w.gatherCh <- f
	}
}

// subsumeLocked implements parent-child subsumption: if A is an
// ancestor of dirty B, A absorbs B's later timestamp and B is cleared,
// coalescing a directory-tree storm into one gather of the ancestor.
func (w *Watcher) subsumeLocked() {
	for b, tb := range w.dirty {
		for a := range w.dirty {
			if a == b {
				continue
			}
			if !isAncestor(a, b) {
				continue
			}
			if tb.After(w.dirty[a]) {
				w.dirty[a] = tb
			}
			delete(w.dirty, b)
			break
		}
	}
}

func isAncestor(a, b string) bool {
	rel, err := filepath.Rel(a, b)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func (w *Watcher) reenumerateRoot() error {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if w.includeFn != nil && !w.includeFn(entry.Name()) {
			continue
		}

		path := filepath.Join(w.root, entry.Name())
		w.mu.Lock()
		already := w.watched[path]
		w.mu.Unlock()
		if already {
			continue
		}

		if err := w.register(path); err != nil {
			w.logger.Warn().Err(err).Str("folder", path).Msg("failed to register new folder")
			continue
		}
		w.mu.Lock()
		w.dirty[path] = time.Now()
		w.mu.Unlock()
	}

	w.rescheduleTimer()
	return nil
}

// Stop tears down the watcher. Run returns once the underlying
// fsnotify channels close.
func (w *Watcher) Stop() {
	w.timer.Stop()
	w.fsw.Close()
}

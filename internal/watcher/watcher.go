// Package watcher keeps one root's filesystem subscription alive:
// events are debounced into batches, bursts above the mass-change
// threshold collapse into a rebuild signal, and notification failures
// trigger supervised restarts with bounded backoff. The watcher never
// silently stops; exhausting the restart budget marks it degraded.
package watcher

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/fidx/internal/debug"
	"github.com/standardbeagle/fidx/internal/fidxerr"
	"github.com/standardbeagle/fidx/internal/ignore"
	"github.com/standardbeagle/fidx/pkg/pathutil"
)

// Config carries the watcher's consumed tuning values.
type Config struct {
	Debounce            time.Duration
	MassChangeThreshold int

	// Restart supervision bounds
	MaxRetries int
	Backoff    time.Duration
	BackoffCap time.Duration

	// NewNotifier creates subscriptions; defaults to fsnotify.
	NewNotifier NotifierFactory

	// ShouldIgnore filters paths (slash-relative to the root) before
	// they reach the debouncer or gain directory watches.
	ShouldIgnore func(rel string, isDir bool) bool
}

// Watcher owns the event loop for one root.
type Watcher struct {
	root string
	cfg  Config

	batches   chan Batch
	debouncer *eventDebouncer
	health    atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	notifier Notifier
}

// New creates a watcher for root. Call Start to begin watching.
func New(root string, cfg Config) *Watcher {
	if cfg.NewNotifier == nil {
		cfg.NewNotifier = NewFSNotifier
	}
	if cfg.ShouldIgnore == nil {
		cfg.ShouldIgnore = func(string, bool) bool { return false }
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 250 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 8 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		root:    root,
		cfg:     cfg,
		batches: make(chan Batch, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
	w.debouncer = newEventDebouncer(ctx, cfg.Debounce, cfg.MassChangeThreshold, w.batches)
	w.health.Store(int32(HealthStopped))
	return w
}

// Batches delivers one Batch per debounce window.
func (w *Watcher) Batches() <-chan Batch {
	return w.batches
}

// Health reports the subscription state.
func (w *Watcher) Health() Health {
	return Health(w.health.Load())
}

// Start subscribes to the root and launches the event loop.
func (w *Watcher) Start() error {
	n, err := w.subscribe()
	if err != nil {
		return fidxerr.NewWatcherError(w.root, err)
	}

	w.mu.Lock()
	w.notifier = n
	w.mu.Unlock()
	w.health.Store(int32(HealthActive))

	w.wg.Add(1)
	go w.run(n)

	debug.LogWatch("watching %s\n", w.root)
	return nil
}

// Stop tears the subscription down and waits for the loop to exit.
// Pending debounce windows are dropped, not flushed.
func (w *Watcher) Stop() {
	w.cancel()
	w.debouncer.stop()

	w.mu.Lock()
	n := w.notifier
	w.notifier = nil
	w.mu.Unlock()
	if n != nil {
		if err := n.Close(); err != nil {
			log.Printf("fidx: error closing notifier for %s: %v", w.root, err)
		}
	}

	w.wg.Wait()
	w.health.Store(int32(HealthStopped))
}

// subscribe creates a notifier and registers watches on every
// non-ignored directory under the root.
func (w *Watcher) subscribe() (Notifier, error) {
	n, err := w.cfg.NewNotifier()
	if err != nil {
		return nil, err
	}
	if err := w.addWatches(n, w.root); err != nil {
		_ = n.Close()
		return nil, err
	}
	return n, nil
}

// addWatches walks the subtree registering directory watches, skipping
// ignored directories and breaking symlink cycles via resolved real
// paths.
func (w *Watcher) addWatches(n Notifier, start string) error {
	visited := make(map[string]bool)

	return filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}

		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if rel := w.relPath(path); rel != "" && w.cfg.ShouldIgnore(rel, true) {
			return filepath.SkipDir
		}

		if err := n.Add(path); err != nil {
			log.Printf("fidx: failed to watch %s: %v", path, err)
			return nil
		}
		return nil
	})
}

// run is the supervised event loop. A closed channel or a notifier
// error triggers a restart; nil from restart means the budget is
// exhausted and the loop exits degraded.
func (w *Watcher) run(n Notifier) {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-n.Events():
			if !ok {
				if n = w.restart(); n == nil {
					return
				}
				continue
			}
			w.handleRaw(n, ev)

		case err, ok := <-n.Errors():
			if !ok {
				if n = w.restart(); n == nil {
					return
				}
				continue
			}
			werr := fidxerr.NewWatcherError(w.root, err)
			log.Printf("fidx: %v", werr)
			if n = w.restart(); n == nil {
				return
			}
		}
	}
}

// restart closes the current subscription and retries with exponential
// backoff. Returns the new notifier, or nil once the retry budget is
// exhausted (health flips to degraded and a final batch announces it).
func (w *Watcher) restart() Notifier {
	w.mu.Lock()
	if w.notifier != nil {
		_ = w.notifier.Close()
		w.notifier = nil
	}
	w.mu.Unlock()

	backoff := w.cfg.Backoff
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		select {
		case <-w.ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		n, err := w.subscribe()
		if err == nil {
			w.mu.Lock()
			w.notifier = n
			w.mu.Unlock()
			debug.LogWatch("restarted subscription for %s after %d attempt(s)\n", w.root, attempt)
			// A restart may have missed events; force a rebuild
			w.debouncer.forceMassChange()
			return n
		}

		log.Printf("fidx: %v", fidxerr.NewWatcherError(w.root, err).WithAttempt(attempt))
		backoff *= 2
		if backoff > w.cfg.BackoffCap {
			backoff = w.cfg.BackoffCap
		}
	}

	w.health.Store(int32(HealthDegraded))
	log.Printf("fidx: watcher for %s degraded after %d restart attempts", w.root, w.cfg.MaxRetries)
	select {
	case w.batches <- Batch{Degraded: true}:
	case <-w.ctx.Done():
	}
	return nil
}

// handleRaw filters and classifies one raw notification.
func (w *Watcher) handleRaw(n Notifier, ev RawEvent) {
	rel := w.relPath(ev.Path)
	if rel == "" {
		return
	}

	// Ignore-rule edits invalidate the compiled matcher; itemized
	// patching would apply stale rules, so force a rebuild
	if filepath.Base(ev.Path) == ignore.IgnoreFileName {
		debug.LogWatch("ignore file changed: %s\n", rel)
		w.debouncer.forceMassChange()
		return
	}

	now := time.Now()

	switch ev.Op {
	case OpRemove, OpRename:
		// Renames surface as remove on the old path; the paired create
		// re-adds the target
		if w.cfg.ShouldIgnore(rel, false) {
			return
		}
		w.debouncer.add(Event{Path: rel, Op: OpRemove, Time: now})

	default:
		info, err := os.Stat(ev.Path)
		if err != nil {
			// Already gone again; treat as removal
			if !w.cfg.ShouldIgnore(rel, false) {
				w.debouncer.add(Event{Path: rel, Op: OpRemove, Time: now})
			}
			return
		}

		if info.IsDir() {
			if w.cfg.ShouldIgnore(rel, true) {
				return
			}
			if ev.Op == OpCreate {
				w.watchNewDir(n, ev.Path, now)
			}
			w.debouncer.add(Event{Path: rel, Op: ev.Op, Time: now})
			return
		}

		if w.cfg.ShouldIgnore(rel, false) {
			return
		}
		w.debouncer.add(Event{Path: rel, Op: ev.Op, Time: now})
	}
}

// watchNewDir registers watches for a newly created directory tree and
// synthesizes create events for contents that existed before the watch
// was in place.
func (w *Watcher) watchNewDir(n Notifier, abs string, now time.Time) {
	if err := w.addWatches(n, abs); err != nil {
		log.Printf("fidx: failed to watch new directory %s: %v", abs, err)
	}

	_ = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == abs {
			return nil
		}
		rel := w.relPath(path)
		if rel == "" {
			return nil
		}
		if w.cfg.ShouldIgnore(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		w.debouncer.add(Event{Path: rel, Op: OpCreate, Time: now})
		return nil
	})
}

// relPath converts an absolute notification path to a slash-relative
// one, or "" when it falls outside the root.
func (w *Watcher) relPath(abs string) string {
	return pathutil.ToRelative(abs, w.root)
}

// Package coordinator drives the index lifecycle for the active root:
// initial scan, watcher-fed incremental patching, mass-change rebuilds,
// root switching with task cancellation, and bounded readiness waits.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/fidx/internal/config"
	"github.com/standardbeagle/fidx/internal/debug"
	"github.com/standardbeagle/fidx/internal/fidxerr"
	"github.com/standardbeagle/fidx/internal/ignore"
	"github.com/standardbeagle/fidx/internal/index"
	"github.com/standardbeagle/fidx/internal/walker"
	"github.com/standardbeagle/fidx/internal/watcher"
	"github.com/standardbeagle/fidx/pkg/pathutil"
)

// Options carries injectable capabilities, primarily for tests.
type Options struct {
	// ReadFile loads ignore files; defaults to the real filesystem.
	ReadFile ignore.ReadFileFunc

	// NewNotifier creates watch subscriptions; defaults to fsnotify.
	NewNotifier watcher.NotifierFactory
}

// Status is a point-in-time report for one root.
type Status struct {
	Root             string
	State            State
	Generation       uint64
	TargetGeneration uint64
	Entries          int
	Skipped          int
	Watcher          watcher.Health
}

// Coordinator owns every rootState and the rebuild-task registry.
type Coordinator struct {
	cfg *config.Config

	readFile    ignore.ReadFileFunc
	newNotifier watcher.NotifierFactory

	mu         sync.Mutex
	roots      map[string]*rootState
	tasks      map[string]*rebuildTask
	activeRoot string
	closed     bool

	wg sync.WaitGroup
}

// New creates an idle coordinator. Call SetRoot to begin indexing.
func New(cfg *config.Config, opts Options) *Coordinator {
	if opts.ReadFile == nil {
		opts.ReadFile = ignore.OSReadFile
	}
	return &Coordinator{
		cfg:         cfg,
		readFile:    opts.ReadFile,
		newNotifier: opts.NewNotifier,
		roots:       make(map[string]*rootState),
		tasks:       make(map[string]*rebuildTask),
	}
}

// SetRoot switches the engine to a new root. In-flight tasks for the
// previous root are cancelled, its watcher is torn down, and a fresh
// scan starts in the background. Returns immediately; use EnsureReady
// to wait for the first snapshot.
func (c *Coordinator) SetRoot(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fidxerr.NewScanError("setroot", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fidxerr.NewScanError("setroot", abs, err)
	}
	if !info.IsDir() {
		return fidxerr.NewScanError("setroot", abs, fmt.Errorf("not a directory"))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("coordinator is shut down")
	}
	if c.activeRoot == abs {
		c.mu.Unlock()
		return nil
	}

	var prev *rootState
	if c.activeRoot != "" {
		prev = c.roots[c.activeRoot]
		c.cancelTasksLocked(c.activeRoot)
		delete(c.roots, c.activeRoot)
	}

	rs := newRootState(abs)
	rs.watch = watcher.New(abs, watcher.Config{
		Debounce:            time.Duration(c.cfg.DebounceMs) * time.Millisecond,
		MassChangeThreshold: c.cfg.MassChangeThreshold,
		MaxRetries:          c.cfg.MaxWatcherRetries,
		Backoff:             time.Duration(c.cfg.WatcherBackoffMs) * time.Millisecond,
		BackoffCap:          time.Duration(c.cfg.WatcherBackoffCapMs) * time.Millisecond,
		NewNotifier:         c.newNotifier,
		ShouldIgnore:        c.shouldIgnore(rs),
	})
	c.roots[abs] = rs
	c.activeRoot = abs
	c.mu.Unlock()

	if prev != nil {
		c.teardown(prev)
	}

	debug.LogCoord("root set to %s\n", abs)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runRoot(rs)
	}()
	return nil
}

// EnsureReady blocks until the root's published snapshot has caught up
// with the latest rebuild target, or until the configured timeout
// expires. On timeout the current snapshot is returned with stale=true
// alongside a typed error; a nil snapshot means nothing was ever
// published for this root.
func (c *Coordinator) EnsureReady(ctx context.Context, root string) (snap *index.Snapshot, stale bool, err error) {
	rs, err := c.lookup(root)
	if err != nil {
		return nil, false, err
	}

	timeout := time.Duration(c.cfg.EnsureReadyTimeoutMs) * time.Millisecond
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		// Fetch the wakeup channel before checking, so a publication
		// landing between the check and the wait is never missed
		ch := rs.waitPublished()
		if s := rs.store.Current(); s != nil && s.Generation >= rs.targetGen.Load() {
			return s, false, nil
		}

		select {
		case <-ch:
		case <-timer.C:
			return rs.store.Current(), true,
				fidxerr.NewRebuildTimeoutError(root, rs.targetGen.Load(), timeout)
		case <-ctx.Done():
			return rs.store.Current(), true, ctx.Err()
		}
	}
}

// Store returns the snapshot store for a root so callers can query it
// lock-free.
func (c *Coordinator) Store(root string) (*index.Store, error) {
	rs, err := c.lookup(root)
	if err != nil {
		return nil, err
	}
	return rs.store, nil
}

// ActiveRoot returns the currently indexed root ("" before SetRoot).
func (c *Coordinator) ActiveRoot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeRoot
}

// Cancel flags every in-flight rebuild task for the root. The root
// itself stays active; the next batch or poll tick schedules fresh
// work.
func (c *Coordinator) Cancel(root string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.cancelTasksLocked(abs)
	c.mu.Unlock()
}

// Status reports the root's lifecycle state and index shape.
func (c *Coordinator) Status(root string) (Status, error) {
	rs, err := c.lookup(root)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Root:             rs.root,
		State:            rs.getState(),
		TargetGeneration: rs.targetGen.Load(),
		Watcher:          rs.watcherHealth(),
	}
	if s := rs.store.Current(); s != nil {
		st.Generation = s.Generation
		st.Entries = s.Len()
		st.Skipped = s.SkippedCount
	}
	return st, nil
}

// Shutdown cancels all roots and tasks and waits for every background
// goroutine to exit. The coordinator cannot be reused afterwards.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.wg.Wait()
		return
	}
	c.closed = true

	// Cancellation scans a copied key set; the registry itself is only
	// mutated under the lock after the scan
	ids := make([]string, 0, len(c.tasks))
	for id := range c.tasks {
		ids = append(ids, id)
	}
	for _, id := range ids {
		c.tasks[id].cancel()
		delete(c.tasks, id)
	}

	states := make([]*rootState, 0, len(c.roots))
	for _, rs := range c.roots {
		states = append(states, rs)
	}
	c.roots = make(map[string]*rootState)
	c.activeRoot = ""
	c.mu.Unlock()

	for _, rs := range states {
		c.teardown(rs)
	}
	c.wg.Wait()
	debug.LogCoord("coordinator shut down\n")
}

// lookup resolves a root to its state.
func (c *Coordinator) lookup(root string) (*rootState, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fidxerr.NewScanError("lookup", root, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.roots[abs]
	if !ok {
		return nil, fmt.Errorf("root %s is not indexed", abs)
	}
	return rs, nil
}

// cancelTasksLocked cancels and removes every task belonging to root.
// Caller holds c.mu.
func (c *Coordinator) cancelTasksLocked(root string) {
	ids := make([]string, 0, len(c.tasks))
	for id := range c.tasks {
		ids = append(ids, id)
	}
	for _, id := range ids {
		t := c.tasks[id]
		if t.root == root {
			t.cancel()
			delete(c.tasks, id)
		}
	}
}

// teardown stops a root's watcher and cancels its context.
func (c *Coordinator) teardown(rs *rootState) {
	rs.setState(StateCancelled)
	rs.cancel()
	if rs.watch != nil {
		rs.watch.Stop()
	}
	// Release any waiter still parked on this root
	rs.notifyPublished()
}

// runRoot is the per-root driver: initial scan, then watcher batches
// until cancellation or degradation.
func (c *Coordinator) runRoot(rs *rootState) {
	rs.setState(StateScanning)
	c.rebuild(rs)
	if rs.ctx.Err() != nil {
		return
	}
	rs.setState(StateReady)

	if err := rs.watch.Start(); err != nil {
		log := fidxerr.NewWatcherError(rs.root, err)
		debug.LogCoord("watcher start failed, polling instead: %v\n", log)
		c.pollLoop(rs)
		return
	}

	for {
		select {
		case <-rs.ctx.Done():
			return

		case batch, ok := <-rs.watch.Batches():
			if !ok {
				return
			}
			if batch.Degraded {
				debug.LogCoord("watcher degraded for %s, switching to polling\n", rs.root)
				c.pollLoop(rs)
				return
			}
			if batch.MassChange {
				rs.setState(StateRebuilding)
				c.rebuild(rs)
				rs.setState(StateReady)
				continue
			}
			c.applyBatch(rs, batch)
		}
	}
}

// pollLoop rescans on a fixed interval once event delivery is gone.
// The digest short-circuit inside rebuild keeps unchanged trees cheap.
func (c *Coordinator) pollLoop(rs *rootState) {
	interval := time.Duration(c.cfg.PollIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rs.ctx.Done():
			return
		case <-ticker.C:
			rs.setState(StateRebuilding)
			c.rebuild(rs)
			rs.setState(StateReady)
		}
	}
}

// rebuild runs one full scan as a registered task. Ignore rules are
// reloaded so edits to them take effect; a rebuild whose result is
// byte-identical to the published snapshot is discarded and its target
// settled instead of churning the generation.
func (c *Coordinator) rebuild(rs *rootState) {
	task := newRebuildTask(rs.root, rs.nextTarget())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.tasks[task.id()] = task
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.tasks, task.id())
		c.mu.Unlock()
	}()

	task.setStatus(TaskRunning)
	ctx := task.bind(rs.ctx)
	debug.LogCoord("rebuild %s started\n", task.id())

	m := ignore.Load(rs.root, c.readFile)
	snap, err := walker.Scan(ctx, rs.root, m, task.generation, walker.Options{
		Parallel:       c.cfg.ParallelWalk,
		MaxWorkers:     c.cfg.MaxWorkers,
		MaxFileSize:    c.cfg.MaxFileSize,
		FollowSymlinks: c.cfg.FollowSymlinks,
		Exclude:        c.cfg.Exclude,
	})
	if err != nil || task.isCancelled() {
		task.setStatus(TaskCancelled)
		debug.LogCoord("rebuild %s cancelled\n", task.id())
		return
	}
	rs.matcher.Store(m)

	if cur := rs.store.Current(); cur != nil && cur.Digest == snap.Digest {
		rs.settleTarget(task.generation, cur.Generation)
		rs.notifyPublished()
		task.setStatus(TaskCompleted)
		debug.LogCoord("rebuild %s matched published digest, discarded\n", task.id())
		return
	}

	if rs.store.Publish(snap) {
		rs.notifyPublished()
		task.setStatus(TaskCompleted)
		debug.LogCoord("rebuild %s published %d entries\n", task.id(), snap.Len())
	} else {
		// A newer result beat this one; its publication covers our waiters
		task.setStatus(TaskFailed)
	}
}

// applyBatch converts one itemized event batch into index changes and
// publishes the patched snapshot.
func (c *Coordinator) applyBatch(rs *rootState, batch watcher.Batch) {
	if rs.store.Current() == nil {
		return
	}

	changes := make([]index.Change, 0, len(batch.Events))
	for _, ev := range batch.Events {
		changes = append(changes, c.changeFor(rs, ev))
	}

	snap, ok := rs.store.ApplyChanges(changes)
	if ok {
		rs.raiseTarget(snap.Generation)
		rs.notifyPublished()
		debug.LogCoord("applied %d change(s) to %s, gen %d\n", len(changes), rs.root, snap.Generation)
	}
}

// changeFor stats one event's path and decides upsert or remove. A
// path that fails to stat, or grew past the size limit, is removed.
func (c *Coordinator) changeFor(rs *rootState, ev watcher.Event) index.Change {
	if ev.Op == watcher.OpRemove {
		return index.Change{Op: index.OpRemove, Path: ev.Path}
	}

	abs := pathutil.ToAbsolute(ev.Path, rs.root)
	info, err := os.Lstat(abs)
	if err != nil {
		return index.Change{Op: index.OpRemove, Path: ev.Path}
	}

	entry := index.Entry{Path: ev.Path, ModTime: info.ModTime()}
	switch {
	case info.IsDir():
		entry.Kind = index.KindDir
	case info.Mode()&os.ModeSymlink != 0:
		entry.Kind = index.KindSymlink
		entry.Size = info.Size()
	default:
		if c.cfg.MaxFileSize > 0 && info.Size() > c.cfg.MaxFileSize {
			return index.Change{Op: index.OpRemove, Path: ev.Path}
		}
		entry.Kind = index.KindFile
		entry.Size = info.Size()
	}
	return index.Change{Op: index.OpUpsert, Path: ev.Path, Entry: entry}
}

// shouldIgnore builds the watcher's path filter: configured glob
// exclusions first, then the most recently compiled ignore rules.
func (c *Coordinator) shouldIgnore(rs *rootState) func(rel string, isDir bool) bool {
	return func(rel string, isDir bool) bool {
		for _, pattern := range c.cfg.Exclude {
			if matched, _ := doublestar.Match(pattern, rel); matched {
				return true
			}
			if isDir {
				if matched, _ := doublestar.Match(strings.TrimSuffix(pattern, "/**"), rel); matched {
					return true
				}
			}
		}
		if m := rs.matcher.Load(); m != nil {
			return m.Match(rel, isDir)
		}
		return false
	}
}

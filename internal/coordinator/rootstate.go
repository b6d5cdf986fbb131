package coordinator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/fidx/internal/ignore"
	"github.com/standardbeagle/fidx/internal/index"
	"github.com/standardbeagle/fidx/internal/watcher"
)

// State is the per-root lifecycle:
// IDLE → SCANNING → READY ⇄ REBUILDING → READY, any → CANCELLED.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateReady
	StateRebuilding
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateReady:
		return "ready"
	case StateRebuilding:
		return "rebuilding"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// rootState bundles everything owned for one active root: the store,
// the watcher, the compiled ignore matcher and generation bookkeeping.
// Mutation goes through the coordinator's single-writer path; readers
// access the store and matcher lock-free.
type rootState struct {
	root  string
	store *index.Store
	watch *watcher.Watcher

	matcher atomic.Pointer[ignore.Matcher]

	state State // guarded by stateMu
	stateMu sync.Mutex

	// targetGen is the highest generation any task has been asked to
	// produce; EnsureReady waits for the published snapshot to reach it
	targetGen atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	// published is closed and replaced on every successful publication
	pubMu     sync.Mutex
	published chan struct{}
}

func newRootState(root string) *rootState {
	ctx, cancel := context.WithCancel(context.Background())
	return &rootState{
		root:      root,
		store:     index.NewStore(),
		ctx:       ctx,
		cancel:    cancel,
		published: make(chan struct{}),
	}
}

func (rs *rootState) setState(s State) {
	rs.stateMu.Lock()
	// CANCELLED is terminal for this root binding
	if rs.state != StateCancelled {
		rs.state = s
	}
	rs.stateMu.Unlock()
}

func (rs *rootState) getState() State {
	rs.stateMu.Lock()
	defer rs.stateMu.Unlock()
	return rs.state
}

// nextTarget allocates the next generation to rebuild toward.
func (rs *rootState) nextTarget() uint64 {
	return rs.targetGen.Add(1)
}

// raiseTarget lifts targetGen to at least gen; incremental publications
// use it so later rebuild targets always land above the published
// generation.
func (rs *rootState) raiseTarget(gen uint64) {
	for {
		cur := rs.targetGen.Load()
		if gen <= cur || rs.targetGen.CompareAndSwap(cur, gen) {
			return
		}
	}
}

// settleTarget drops the target from want back to published when a
// rebuild proved the content unchanged, so waiters are not stuck on a
// generation that will never appear. A concurrently raised target wins.
func (rs *rootState) settleTarget(want, published uint64) {
	rs.targetGen.CompareAndSwap(want, published)
}

// waitPublished returns a channel closed at the next publication.
func (rs *rootState) waitPublished() <-chan struct{} {
	rs.pubMu.Lock()
	defer rs.pubMu.Unlock()
	return rs.published
}

// notifyPublished wakes all EnsureReady waiters.
func (rs *rootState) notifyPublished() {
	rs.pubMu.Lock()
	close(rs.published)
	rs.published = make(chan struct{})
	rs.pubMu.Unlock()
}

// watcherHealth reports the watch subscription state, Stopped when the
// watcher was never started.
func (rs *rootState) watcherHealth() watcher.Health {
	if rs.watch == nil {
		return watcher.HealthStopped
	}
	return rs.watch.Health()
}

package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// TaskStatus tracks a rebuild task through its lifecycle
type TaskStatus int32

const (
	TaskPending TaskStatus = iota
	TaskRunning
	TaskCancelled
	TaskCompleted
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskCancelled:
		return "cancelled"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// rebuildTask is one scan attempt targeting a specific generation.
// Cancellation is cooperative: the flag is checked at subtree/batch
// boundaries and a cancelled task never publishes.
type rebuildTask struct {
	root       string
	generation uint64

	status    atomic.Int32
	cancelled atomic.Bool

	mu        sync.Mutex
	ctxCancel context.CancelFunc
}

func newRebuildTask(root string, generation uint64) *rebuildTask {
	return &rebuildTask{root: root, generation: generation}
}

// bind derives the scan context from the root's context so cancelling
// the task interrupts the scan at the next directory boundary.
func (t *rebuildTask) bind(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	t.mu.Lock()
	t.ctxCancel = cancel
	cancelled := t.cancelled.Load()
	t.mu.Unlock()
	if cancelled {
		cancel()
	}
	return ctx
}

func (t *rebuildTask) id() string {
	return fmt.Sprintf("%s#%d", t.root, t.generation)
}

func (t *rebuildTask) Status() TaskStatus {
	return TaskStatus(t.status.Load())
}

func (t *rebuildTask) setStatus(s TaskStatus) {
	t.status.Store(int32(s))
}

// cancel flags the task. The status flips to cancelled immediately so
// registry scans never observe a cancelled-but-running task.
func (t *rebuildTask) cancel() {
	t.cancelled.Store(true)
	t.status.Store(int32(TaskCancelled))
	t.mu.Lock()
	cancel := t.ctxCancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *rebuildTask) isCancelled() bool {
	return t.cancelled.Load()
}

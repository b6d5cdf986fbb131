package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of filesystem change observed
type Op uint8

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is a single coalesced filesystem change. Paths are
// slash-separated and relative to the watched root.
type Event struct {
	Path string
	Op   Op
	Time time.Time
}

// Batch is one debounce window's output. Either Events carries the
// itemized diff, or MassChange signals that the window exceeded the
// configured threshold (or invalidated the ignore rules) and the
// consumer should rebuild from scratch.
type Batch struct {
	Events     []Event
	MassChange bool

	// Degraded is set once when the watcher exhausts its restart
	// budget, so the consumer can switch to periodic polling without
	// waiting for a health poll.
	Degraded bool
}

// Health describes the state of a root's watch subscription
type Health int32

const (
	HealthActive Health = iota
	HealthDegraded
	HealthStopped
)

func (h Health) String() string {
	switch h {
	case HealthActive:
		return "active"
	case HealthDegraded:
		return "degraded"
	case HealthStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// RawEvent is an unprocessed notification from the OS layer
type RawEvent struct {
	Path string
	Op   Op
}

// Notifier abstracts the OS notification capability so tests can
// inject a fake. Implementations deliver absolute paths.
type Notifier interface {
	Add(name string) error
	Events() <-chan RawEvent
	Errors() <-chan error
	Close() error
}

// NotifierFactory creates a fresh subscription; the watcher calls it
// again on supervised restart.
type NotifierFactory func() (Notifier, error)

// fsnotifyNotifier is the production Notifier backed by fsnotify.
type fsnotifyNotifier struct {
	w      *fsnotify.Watcher
	events chan RawEvent
	done   chan struct{}
}

// NewFSNotifier creates the default OS-backed notifier.
func NewFSNotifier() (Notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	n := &fsnotifyNotifier{
		w:      w,
		events: make(chan RawEvent),
		done:   make(chan struct{}),
	}
	go n.translate()
	return n, nil
}

// translate maps fsnotify ops onto the engine's event model.
func (n *fsnotifyNotifier) translate() {
	defer close(n.events)
	for ev := range n.w.Events {
		var op Op
		switch {
		case ev.Op&fsnotify.Create != 0:
			op = OpCreate
		case ev.Op&fsnotify.Write != 0:
			op = OpWrite
		case ev.Op&fsnotify.Remove != 0:
			op = OpRemove
		case ev.Op&fsnotify.Rename != 0:
			op = OpRename
		default:
			continue // chmod and friends are irrelevant to the index
		}
		select {
		case n.events <- RawEvent{Path: ev.Name, Op: op}:
		case <-n.done:
			return
		}
	}
}

func (n *fsnotifyNotifier) Add(name string) error    { return n.w.Add(name) }
func (n *fsnotifyNotifier) Events() <-chan RawEvent  { return n.events }
func (n *fsnotifyNotifier) Errors() <-chan error     { return n.w.Errors }
func (n *fsnotifyNotifier) Close() error {
	close(n.done)
	return n.w.Close()
}

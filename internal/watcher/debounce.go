package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/standardbeagle/fidx/internal/debug"
)

// eventDebouncer coalesces events arriving inside the debounce window.
// The latest event per path wins; when the coalesced count exceeds the
// mass-change threshold the whole window collapses into a single
// MassChange batch.
type eventDebouncer struct {
	mu         sync.Mutex
	events     map[string]Event
	massChange bool
	timer      *time.Timer

	debounce  time.Duration
	threshold int

	ctx  context.Context
	sink chan<- Batch
}

func newEventDebouncer(ctx context.Context, debounce time.Duration, threshold int, sink chan<- Batch) *eventDebouncer {
	return &eventDebouncer{
		events:    make(map[string]Event),
		debounce:  debounce,
		threshold: threshold,
		ctx:       ctx,
		sink:      sink,
	}
}

// add records an event and resets the window timer.
func (d *eventDebouncer) add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.events[ev.Path] = ev

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

// forceMassChange collapses the current window into a rebuild signal
// (used when ignore rules change and itemized patching would be wrong).
func (d *eventDebouncer) forceMassChange() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.massChange = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, d.flush)
}

// flush emits the coalesced window as one batch.
func (d *eventDebouncer) flush() {
	d.mu.Lock()
	events := d.events
	mass := d.massChange
	d.events = make(map[string]Event)
	d.massChange = false
	d.mu.Unlock()

	if len(events) == 0 && !mass {
		return
	}

	batch := Batch{}
	if mass || len(events) > d.threshold {
		debug.LogWatch("mass change: %d events exceed threshold %d\n", len(events), d.threshold)
		batch.MassChange = true
	} else {
		batch.Events = make([]Event, 0, len(events))
		for _, ev := range events {
			batch.Events = append(batch.Events, ev)
		}
	}

	// Pending events at shutdown are dropped deliberately: the index
	// is being torn down and delivering into a dead consumer can hang
	select {
	case d.sink <- batch:
	case <-d.ctx.Done():
	}
}

// stop cancels any pending window without flushing.
func (d *eventDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

package index

import (
	"sync/atomic"

	"github.com/standardbeagle/fidx/internal/debug"
)

// Store owns publication of snapshots for one root. Readers take the
// current snapshot lock-free; writers race through Publish, where
// generation gating guarantees only the newest result wins.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates an empty store (no snapshot published yet).
func NewStore() *Store {
	return &Store{}
}

// Current returns the published snapshot, or nil before the first
// publication. Never blocks.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}

// Generation returns the published generation (0 before the first
// publication).
func (st *Store) Generation() uint64 {
	if s := st.current.Load(); s != nil {
		return s.Generation
	}
	return 0
}

// Publish atomically installs s if its generation is strictly higher
// than the published one. A lower- or equal-generation snapshot is
// discarded, not merged: a concurrently-finishing full rebuild may have
// advanced the generation past an in-flight incremental patch.
func (st *Store) Publish(s *Snapshot) bool {
	for {
		cur := st.current.Load()
		if cur != nil && s.Generation <= cur.Generation {
			debug.LogIndex("discarding snapshot gen %d for %s (published gen %d)\n",
				s.Generation, s.Root, cur.Generation)
			return false
		}
		if st.current.CompareAndSwap(cur, s) {
			debug.LogIndex("published snapshot gen %d for %s (%d entries)\n",
				s.Generation, s.Root, s.Len())
			return true
		}
	}
}

// ApplyChanges builds a new snapshot as a copy of the current one with
// the diff applied and generation incremented by one, then publishes it
// under the usual gating. Returns the resulting snapshot and whether it
// was published.
func (st *Store) ApplyChanges(changes []Change) (*Snapshot, bool) {
	cur := st.current.Load()
	if cur == nil {
		return nil, false
	}
	next := cur.patch(cur.Generation+1, changes)
	ok := st.Publish(next)
	return next, ok
}

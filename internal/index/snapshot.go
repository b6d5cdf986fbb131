package index

import (
	"encoding/binary"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Snapshot is an immutable point-in-time view of the indexed subtree.
// Never mutated after publication; incremental updates produce a new
// Snapshot via copy-and-patch.
type Snapshot struct {
	Root       string
	Generation uint64

	// Digest identifies the entry set independent of generation, so a
	// rebuild that reproduces the current state can be detected.
	Digest uint64

	// SkippedCount is the number of entries dropped due to per-entry
	// I/O errors during the producing scan.
	SkippedCount int

	CreatedAt time.Time

	paths   []string // sorted
	entries map[string]Entry
}

// NewSnapshot builds a snapshot from an unordered entry list.
// Duplicate paths keep the last entry seen.
func NewSnapshot(root string, generation uint64, entries []Entry, skipped int) *Snapshot {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return newSnapshotFromMap(root, generation, m, skipped)
}

func newSnapshotFromMap(root string, generation uint64, entries map[string]Entry, skipped int) *Snapshot {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	s := &Snapshot{
		Root:         root,
		Generation:   generation,
		SkippedCount: skipped,
		CreatedAt:    time.Now(),
		paths:        paths,
		entries:      entries,
	}
	s.Digest = s.computeDigest()
	return s
}

// computeDigest hashes the sorted entry metadata with xxhash.
func (s *Snapshot) computeDigest() uint64 {
	h := xxhash.New()
	var buf [8]byte
	for _, p := range s.paths {
		e := s.entries[p]
		_, _ = h.WriteString(p)
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte{byte(e.Kind)})
		binary.LittleEndian.PutUint64(buf[:], uint64(e.Size))
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(e.ModTime.UnixNano()))
		_, _ = h.Write(buf[:])
		_, _ = h.Write([]byte{'\n'})
	}
	return h.Sum64()
}

// Len returns the number of indexed entries.
func (s *Snapshot) Len() int {
	return len(s.paths)
}

// Get looks up a single entry by relative path.
func (s *Snapshot) Get(path string) (Entry, bool) {
	e, ok := s.entries[path]
	return e, ok
}

// Paths returns the sorted path list. The returned slice is shared and
// must not be modified.
func (s *Snapshot) Paths() []string {
	return s.paths
}

// Entries returns all entries in path order.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, len(s.paths))
	for i, p := range s.paths {
		out[i] = s.entries[p]
	}
	return out
}

// patch produces a new snapshot with the diff applied and the given
// generation. The receiver is left untouched.
func (s *Snapshot) patch(generation uint64, changes []Change) *Snapshot {
	next := make(map[string]Entry, len(s.entries)+len(changes))
	for p, e := range s.entries {
		next[p] = e
	}

	for _, c := range changes {
		switch c.Op {
		case OpUpsert:
			next[c.Path] = c.Entry
		case OpRemove:
			delete(next, c.Path)
			// Removing a directory removes everything beneath it
			prefix := c.Path + "/"
			for p := range next {
				if strings.HasPrefix(p, prefix) {
					delete(next, p)
				}
			}
		}
	}

	return newSnapshotFromMap(s.Root, generation, next, s.SkippedCount)
}

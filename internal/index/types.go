package index

import "time"

// Kind classifies an indexed entry
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Entry is the indexed metadata for a single path. Paths are
// slash-separated and relative to the snapshot root, unique within a
// snapshot.
type Entry struct {
	Path    string
	Kind    Kind
	Size    int64
	ModTime time.Time
}

// ChangeOp is the operation a Change applies to a snapshot
type ChangeOp uint8

const (
	// OpUpsert creates or updates an entry
	OpUpsert ChangeOp = iota
	// OpRemove deletes an entry (and, for directories, its contents)
	OpRemove
)

// Change is one element of an incremental diff applied by the store.
// The coordinator translates debounced watch events into Changes by
// stat-ing the affected paths.
type Change struct {
	Op    ChangeOp
	Path  string
	Entry Entry // populated for OpUpsert
}

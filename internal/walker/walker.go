// Package walker produces full-tree snapshots for the index. The
// ignore matcher is consulted before descending, so excluded subtrees
// are never traversed; per-entry I/O errors skip the entry and count
// it, never aborting the scan.
package walker

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/fidx/internal/debug"
	"github.com/standardbeagle/fidx/internal/ignore"
	"github.com/standardbeagle/fidx/internal/index"
)

// Options controls a scan.
type Options struct {
	// Parallel partitions top-level subdirectories across a bounded
	// worker pool. Serial and parallel scans produce identical entry
	// sets.
	Parallel   bool
	MaxWorkers int

	// MaxFileSize excludes oversized files (0 means no limit).
	MaxFileSize int64

	// FollowSymlinks descends through symlinked directories; cycles
	// are broken by tracking resolved real paths.
	FollowSymlinks bool

	// Exclude holds glob patterns applied before ignore-file rules.
	Exclude []string
}

// Scan enumerates root and returns a snapshot at the given generation.
// Cancellation is checked at directory boundaries; a cancelled scan
// returns ctx.Err() and no snapshot.
func Scan(ctx context.Context, root string, m *ignore.Matcher, generation uint64, opts Options) (*index.Snapshot, error) {
	s := &scanner{
		root:    root,
		matcher: m,
		opts:    opts,
		visited: make(map[string]bool),
	}

	// The root counts as visited so a symlink cycle back to it stops
	if real, err := filepath.EvalSymlinks(root); err == nil {
		s.visited[real] = true
	}

	var entries []index.Entry
	var err error
	if opts.Parallel {
		entries, err = s.scanParallel(ctx)
	} else {
		entries, err = s.scanDir(ctx, "")
	}
	if err != nil {
		return nil, err
	}

	debug.LogWalk("scanned %s: %d entries, %d skipped\n", root, len(entries), s.skipped.Load())
	return index.NewSnapshot(root, generation, entries, int(s.skipped.Load())), nil
}

type scanner struct {
	root    string
	matcher *ignore.Matcher
	opts    Options

	skipped atomic.Int64

	// visited holds resolved real paths of descended directories,
	// breaking symlink cycles
	mu      sync.Mutex
	visited map[string]bool
}

// scanDir walks one directory (slash-relative to the root) serially.
func (s *scanner) scanDir(ctx context.Context, relDir string) ([]index.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Register the directory's ignore file before filtering children
	s.matcher.AddDir(relDir)

	dirents, err := os.ReadDir(filepath.Join(s.root, filepath.FromSlash(relDir)))
	if err != nil {
		s.skipped.Add(1)
		debug.LogWalk("skipping unreadable directory %s: %v\n", relDir, err)
		return nil, nil
	}

	var entries []index.Entry
	for _, d := range dirents {
		rel := path.Join(relDir, d.Name())

		entry, descend, ok := s.classify(rel, d)
		if !ok {
			continue
		}
		entries = append(entries, entry)

		if descend {
			sub, err := s.scanDir(ctx, rel)
			if err != nil {
				return nil, err
			}
			entries = append(entries, sub...)
		}
	}
	return entries, nil
}

// scanParallel fans top-level subdirectories out over a bounded pool
// and merges the results with the root-level entries.
func (s *scanner) scanParallel(ctx context.Context) ([]index.Entry, error) {
	s.matcher.AddDir("")

	dirents, err := os.ReadDir(s.root)
	if err != nil {
		s.skipped.Add(1)
		return nil, nil
	}

	var rootEntries []index.Entry
	var subdirs []string
	for _, d := range dirents {
		rel := d.Name()
		entry, descend, ok := s.classify(rel, d)
		if !ok {
			continue
		}
		rootEntries = append(rootEntries, entry)
		if descend {
			subdirs = append(subdirs, rel)
		}
	}

	workers := s.opts.MaxWorkers
	if workers <= 0 {
		workers = 1
	}

	results := make([][]index.Entry, len(subdirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rel := range subdirs {
		i, rel := i, rel
		g.Go(func() error {
			sub, err := s.scanDir(gctx, rel)
			if err != nil {
				return err
			}
			results[i] = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := rootEntries
	for _, sub := range results {
		entries = append(entries, sub...)
	}
	// Merge order is nondeterministic across workers; entry order is
	// normalized here so both modes hand identical input to the snapshot
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// classify filters one directory entry and builds its index entry.
// descend reports whether the caller should walk into it.
func (s *scanner) classify(rel string, d fs.DirEntry) (entry index.Entry, descend, ok bool) {
	isSymlink := d.Type()&fs.ModeSymlink != 0
	isDir := d.IsDir()

	if s.excluded(rel, isDir) || s.matcher.Match(rel, isDir) {
		return index.Entry{}, false, false
	}

	info, err := d.Info()
	if err != nil {
		s.skipped.Add(1)
		debug.LogWalk("skipping %s: %v\n", rel, err)
		return index.Entry{}, false, false
	}

	switch {
	case isDir:
		return index.Entry{Path: rel, Kind: index.KindDir, ModTime: info.ModTime()},
			s.markVisited(rel), true
	case isSymlink:
		descend := false
		if s.opts.FollowSymlinks {
			if target, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(rel))); err == nil && target.IsDir() {
				descend = s.markVisited(rel)
			}
		}
		return index.Entry{Path: rel, Kind: index.KindSymlink, Size: info.Size(), ModTime: info.ModTime()},
			descend, true
	default:
		if s.opts.MaxFileSize > 0 && info.Size() > s.opts.MaxFileSize {
			debug.LogWalk("skipping oversized file %s (%d bytes)\n", rel, info.Size())
			return index.Entry{}, false, false
		}
		return index.Entry{Path: rel, Kind: index.KindFile, Size: info.Size(), ModTime: info.ModTime()},
			false, true
	}
}

// markVisited records a directory's resolved real path and reports
// whether it is safe to descend (false when already seen, which breaks
// symlink cycles).
func (s *scanner) markVisited(rel string) bool {
	real, err := filepath.EvalSymlinks(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		s.skipped.Add(1)
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited[real] {
		return false
	}
	s.visited[real] = true
	return true
}

// excluded applies the configured glob patterns.
func (s *scanner) excluded(rel string, isDir bool) bool {
	for _, pattern := range s.opts.Exclude {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
		if isDir {
			// "**/name/**" should also match the directory itself
			if matched, _ := doublestar.Match(strings.TrimSuffix(pattern, "/**"), rel); matched {
				return true
			}
		}
	}
	return false
}

package index

import (
	"sort"
	"strings"

	edlib "github.com/hbollon/go-edlib"
)

// maxEditDistance bounds the Levenshtein fallback so wildly unrelated
// paths never surface as suggestions.
const maxEditDistance = 3

// Query returns up to limit entries whose path starts with prefix,
// ordered exact-match-first then lexicographically. It reads the
// currently published snapshot only and never blocks on in-flight
// rebuilds. A nil result means no snapshot has been published yet.
func (st *Store) Query(prefix string, limit int) []Entry {
	s := st.current.Load()
	if s == nil || limit <= 0 {
		return nil
	}
	return s.Query(prefix, limit)
}

// Query is the snapshot-level prefix lookup backing Store.Query.
func (s *Snapshot) Query(prefix string, limit int) []Entry {
	if limit <= 0 {
		return nil
	}

	out := make([]Entry, 0, limit)

	// Exact match ranks first
	if e, ok := s.entries[prefix]; ok {
		out = append(out, e)
	}

	// The paths slice is sorted, so the prefix range is contiguous
	start := sort.SearchStrings(s.paths, prefix)
	for i := start; i < len(s.paths) && len(out) < limit; i++ {
		p := s.paths[i]
		if !strings.HasPrefix(p, prefix) {
			break
		}
		if p == prefix {
			continue // already ranked first
		}
		out = append(out, s.entries[p])
	}

	return out
}

// fuzzyCandidate carries ranking state for the fallback tiers.
type fuzzyCandidate struct {
	entry Entry
	rank  int // substring position, or edit distance
}

// QueryFuzzy extends Query with deterministic fallback ranking for
// interactive completion: when prefix matching yields nothing, paths
// containing the pattern rank by match position then lexicographically;
// when that also yields nothing, Levenshtein-nearest paths (distance
// capped) rank by distance then lexicographically.
func (st *Store) QueryFuzzy(pattern string, limit int) []Entry {
	s := st.current.Load()
	if s == nil || limit <= 0 {
		return nil
	}

	if out := s.Query(pattern, limit); len(out) > 0 {
		return out
	}
	if pattern == "" {
		return nil
	}

	// Tier 2: substring matches, ranked by position of the match
	var candidates []fuzzyCandidate
	for _, p := range s.paths {
		if idx := strings.Index(p, pattern); idx >= 0 {
			candidates = append(candidates, fuzzyCandidate{entry: s.entries[p], rank: idx})
		}
	}

	// Tier 3: edit distance against the path basename
	if len(candidates) == 0 {
		for _, p := range s.paths {
			base := p
			if i := strings.LastIndexByte(p, '/'); i >= 0 {
				base = p[i+1:]
			}
			d := edlib.LevenshteinDistance(pattern, base)
			if d <= maxEditDistance {
				candidates = append(candidates, fuzzyCandidate{entry: s.entries[p], rank: d})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank < candidates[j].rank
		}
		return candidates[i].entry.Path < candidates[j].entry.Path
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Entry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}

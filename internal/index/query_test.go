package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryStore(t *testing.T, paths ...string) *Store {
	t.Helper()
	entries := make([]Entry, len(paths))
	for i, p := range paths {
		entries[i] = entry(p, KindFile, 1)
	}
	st := NewStore()
	require.True(t, st.Publish(NewSnapshot("/repo", 1, entries, 0)))
	return st
}

func paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestQuery_PrefixOrdering(t *testing.T) {
	st := queryStore(t, "src/main.go", "src/main_test.go", "src/module.go", "docs/main.md")

	got := paths(st.Query("src/ma", 10))
	assert.Equal(t, []string{"src/main.go", "src/main_test.go"}, got)
}

func TestQuery_ExactMatchRanksFirst(t *testing.T) {
	st := queryStore(t, "src", "src/a.go", "src/b.go", "srcfile")

	got := paths(st.Query("src", 10))
	require.NotEmpty(t, got)
	assert.Equal(t, "src", got[0])
	assert.Equal(t, []string{"src", "src/a.go", "src/b.go", "srcfile"}, got)
}

func TestQuery_LimitTruncates(t *testing.T) {
	st := queryStore(t, "a1", "a2", "a3", "a4", "a5")

	assert.Len(t, st.Query("a", 3), 3)
	assert.Nil(t, st.Query("a", 0))
}

func TestQuery_EmptyPrefixReturnsEverything(t *testing.T) {
	st := queryStore(t, "b", "a", "c")
	assert.Equal(t, []string{"a", "b", "c"}, paths(st.Query("", 10)))
}

func TestQuery_NoMatch(t *testing.T) {
	st := queryStore(t, "src/main.go")
	assert.Empty(t, st.Query("zzz", 10))
}

func TestQueryFuzzy_PrefixTierWinsOutright(t *testing.T) {
	st := queryStore(t, "src/main.go", "other/src_backup/main.go")

	// When prefix matches exist the fallback tiers never run
	got := paths(st.QueryFuzzy("src/", 10))
	assert.Equal(t, []string{"src/main.go"}, got)
}

func TestQueryFuzzy_SubstringRankedByPosition(t *testing.T) {
	st := queryStore(t, "deep/nested/config.yaml", "config/app.yaml", "lib/config.go")

	got := paths(st.QueryFuzzy("config", 10))
	// config/app.yaml matches at position 0, lib/config.go at 4,
	// deep/nested/config.yaml at 12
	assert.Equal(t, []string{"config/app.yaml", "lib/config.go", "deep/nested/config.yaml"}, got)
}

func TestQueryFuzzy_SubstringTiesBreakLexicographically(t *testing.T) {
	st := queryStore(t, "b/readme.md", "a/readme.md")

	got := paths(st.QueryFuzzy("readme", 10))
	assert.Equal(t, []string{"a/readme.md", "b/readme.md"}, got)
}

func TestQueryFuzzy_EditDistanceFallback(t *testing.T) {
	st := queryStore(t, "src/config.go", "src/unrelated.go")

	// One typo away from the basename "config.go", so only the edit
	// distance tier can find it
	got := paths(st.QueryFuzzy("config.goo", 10))
	require.Len(t, got, 1)
	assert.Equal(t, "src/config.go", got[0])
}

func TestQueryFuzzy_DistanceCapExcludesUnrelated(t *testing.T) {
	st := queryStore(t, "alpha/beta.txt")
	assert.Empty(t, st.QueryFuzzy("zzzzzzzzzz", 10))
}

func TestQueryFuzzy_EmptyPatternOnEmptyStore(t *testing.T) {
	st := NewStore()
	assert.Nil(t, st.QueryFuzzy("anything", 10))
}

func TestQueryFuzzy_LimitApplies(t *testing.T) {
	st := queryStore(t, "x/k1.txt", "y/k1.txt", "z/k1.txt")
	assert.Len(t, st.QueryFuzzy("k1", 2), 2)
}

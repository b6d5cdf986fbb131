package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/fidx/internal/config"
	"github.com/standardbeagle/fidx/internal/coordinator"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func newTestEngine(t *testing.T, root string) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Root = root
	cfg.DebounceMs = 20
	cfg.PollIntervalMs = 50

	eng, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(eng.Shutdown)
	return eng
}

func suggestPaths(t *testing.T, eng *Engine, pattern string, limit int) []string {
	t.Helper()
	entries, _, err := eng.Suggest(context.Background(), pattern, limit)
	require.NoError(t, err)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestEngine_IgnoredAndExcludedFilesNeverSurface(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\n")
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.log", "b")
	writeFile(t, root, "build/out.bin", "o")

	cfg := config.Default()
	cfg.Root = root
	cfg.DebounceMs = 20
	cfg.Exclude = append(cfg.Exclude, "**/build/**")

	eng, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(eng.Shutdown)

	got := suggestPaths(t, eng, "", 100)
	assert.Contains(t, got, "a.txt")
	assert.Contains(t, got, ".gitignore")
	assert.NotContains(t, got, "b.log")
	assert.NotContains(t, got, "build")
	assert.NotContains(t, got, "build/out.bin")
}

func TestEngine_SuggestPrefixRanking(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.go", "m")
	writeFile(t, root, "src/main_test.go", "t")
	writeFile(t, root, "src/other.go", "o")

	eng := newTestEngine(t, root)

	got := suggestPaths(t, eng, "src/main", 10)
	assert.Equal(t, []string{"src/main.go", "src/main_test.go"}, got)
}

func TestEngine_SuggestFallsBackToSubstring(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "deep/nested/config.yaml", "c")
	writeFile(t, root, "lib/config.go", "c")

	eng := newTestEngine(t, root)

	got := suggestPaths(t, eng, "config", 10)
	assert.Equal(t, []string{"lib/config.go", "deep/nested/config.yaml"}, got)
}

func TestEngine_SuggestDefaultLimit(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 30; i++ {
		writeFile(t, root, fmt.Sprintf("many/file%02d.txt", i), "x")
	}

	eng := newTestEngine(t, root)

	entries, _, err := eng.Suggest(context.Background(), "many/", 0)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultLimit)
}

func TestEngine_SuggestWithoutRoot(t *testing.T) {
	cfg := config.Default()
	cfg.DebounceMs = 20

	eng, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(eng.Shutdown)

	entries, stale, err := eng.Suggest(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Empty(t, entries)
}

func TestEngine_SetRootSwitchesAnswers(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeFile(t, rootA, "alpha.txt", "a")
	writeFile(t, rootB, "bravo.txt", "b")

	eng := newTestEngine(t, rootA)
	assert.Contains(t, suggestPaths(t, eng, "", 10), "alpha.txt")

	require.NoError(t, eng.SetRoot(rootB))
	got := suggestPaths(t, eng, "", 10)
	assert.Contains(t, got, "bravo.txt")
	assert.NotContains(t, got, "alpha.txt")
}

func TestEngine_LiveUpdateReachesSuggestions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")

	eng := newTestEngine(t, root)
	require.NotContains(t, suggestPaths(t, eng, "", 100), "fresh.txt")

	writeFile(t, root, "fresh.txt", "f")

	// The real fsnotify path delivers this; allow time for the debounce
	// window and the patch to land
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if containsString(suggestPaths(t, eng, "", 100), "fresh.txt") {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("new file never appeared in suggestions")
}

func TestEngine_Status(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")

	eng := newTestEngine(t, root)
	_ = suggestPaths(t, eng, "", 1)

	st, err := eng.Status()
	require.NoError(t, err)
	assert.Equal(t, coordinator.StateReady, st.State)
	assert.GreaterOrEqual(t, st.Entries, 1)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

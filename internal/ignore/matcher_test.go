package ignore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFS maps absolute paths to ignore-file contents so tests never
// touch the real filesystem.
type fakeFS map[string]string

func (f fakeFS) readFile(path string) ([]byte, error) {
	if content, ok := f[path]; ok {
		return []byte(content), nil
	}
	return nil, fmt.Errorf("open %s: no such file", path)
}

func TestMatcher_BasicPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{
			name:     "simple file match",
			pattern:  "README.md",
			path:     "README.md",
			expected: true,
		},
		{
			name:     "simple file no match",
			pattern:  "README.md",
			path:     "main.go",
			expected: false,
		},
		{
			name:     "unanchored name matches at depth",
			pattern:  "secret.txt",
			path:     "a/b/secret.txt",
			expected: true,
		},
		{
			name:     "directory pattern matches directory",
			pattern:  "node_modules/",
			path:     "node_modules",
			isDir:    true,
			expected: true,
		},
		{
			name:     "directory pattern matches files inside",
			pattern:  "node_modules/",
			path:     "node_modules/react/index.js",
			expected: true,
		},
		{
			name:     "directory pattern does not match a plain file",
			pattern:  "node_modules/",
			path:     "node_modules",
			isDir:    false,
			expected: false,
		},
		{
			name:     "anchored pattern matches at root only",
			pattern:  "/build",
			path:     "build",
			isDir:    true,
			expected: true,
		},
		{
			name:     "anchored pattern no match in subdirectory",
			pattern:  "/build",
			path:     "public/build",
			isDir:    true,
			expected: false,
		},
		{
			name:     "anchored directory excludes its contents",
			pattern:  "/build",
			path:     "build/out.bin",
			expected: true,
		},
		{
			name:     "interior slash anchors the pattern",
			pattern:  "docs/internal",
			path:     "docs/internal",
			isDir:    true,
			expected: true,
		},
		{
			name:     "interior slash does not float",
			pattern:  "docs/internal",
			path:     "src/docs/internal",
			isDir:    true,
			expected: false,
		},
		{
			name:     "suffix wildcard match",
			pattern:  "*.log",
			path:     "debug.log",
			expected: true,
		},
		{
			name:     "suffix wildcard matches at depth",
			pattern:  "*.log",
			path:     "logs/2024/debug.log",
			expected: true,
		},
		{
			name:     "suffix wildcard no match",
			pattern:  "*.log",
			path:     "debug.log.txt",
			expected: false,
		},
		{
			name:     "glob match",
			pattern:  "*.min.[jc]s",
			path:     "bundle.min.js",
			expected: true,
		},
		{
			name:     "doublestar glob match",
			pattern:  "dist/**/*.map",
			path:     "dist/js/app.js.map",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher("/repo", fakeFS{}.readFile)
			m.AddPattern(tt.pattern)
			assert.Equal(t, tt.expected, m.Match(tt.path, tt.isDir),
				"pattern %q against %q", tt.pattern, tt.path)
		})
	}
}

func TestMatcher_NegationReincludes(t *testing.T) {
	fs := fakeFS{
		"/repo/.gitignore": "*.log\n!important.log\n",
	}
	m := Load("/repo", fs.readFile)

	assert.True(t, m.Match("debug.log", false))
	assert.True(t, m.Match("logs/trace.log", false))
	assert.False(t, m.Match("important.log", false), "negated pattern must re-include")
	assert.False(t, m.Match("a.txt", false))
}

func TestMatcher_LastMatchWins(t *testing.T) {
	m := NewMatcher("/repo", fakeFS{}.readFile)
	m.AddPattern("!keep.tmp")
	m.AddPattern("*.tmp")

	// The later positive rule overrides the earlier negation
	assert.True(t, m.Match("keep.tmp", false))
}

func TestMatcher_NestedIgnoreFileScopedToSubtree(t *testing.T) {
	fs := fakeFS{
		"/repo/.gitignore":     "*.log\n",
		"/repo/sub/.gitignore": "*.tmp\n!special.log\n",
	}
	m := Load("/repo", fs.readFile)
	m.AddDir("sub")

	// Nested rules apply under sub/ only
	assert.True(t, m.Match("sub/cache.tmp", false))
	assert.False(t, m.Match("cache.tmp", false))

	// Nested negation overrides the root rule inside the subtree
	assert.False(t, m.Match("sub/special.log", false))
	assert.True(t, m.Match("special.log", false))
	assert.True(t, m.Match("sub/other.log", false))
}

func TestMatcher_CommentsAndBlankLines(t *testing.T) {
	fs := fakeFS{
		"/repo/.gitignore": "# build outputs\n\n*.o\n   \n# editor junk\n*.swp\n",
	}
	m := Load("/repo", fs.readFile)

	assert.True(t, m.Match("main.o", false))
	assert.True(t, m.Match(".main.go.swp", false))
	assert.False(t, m.Match("#", false))
	assert.Equal(t, 0, m.SkippedPatterns())
}

func TestMatcher_MalformedPatternSkippedAndCounted(t *testing.T) {
	fs := fakeFS{
		"/repo/.gitignore": "[unclosed\n*.log\n",
	}
	m := Load("/repo", fs.readFile)

	// The bad pattern is dropped; the rest of the file still applies
	assert.Equal(t, 1, m.SkippedPatterns())
	assert.True(t, m.Match("debug.log", false))
}

func TestMatcher_MissingIgnoreFile(t *testing.T) {
	m := Load("/repo", fakeFS{}.readFile)
	require.NotNil(t, m)
	assert.False(t, m.Match("anything.txt", false))
	assert.Equal(t, 0, m.SkippedPatterns())
}

func TestMatcher_RootNeverMatches(t *testing.T) {
	m := NewMatcher("/repo", fakeFS{}.readFile)
	m.AddPattern("*")
	assert.False(t, m.Match("", true))
	assert.False(t, m.Match(".", true))
}

func TestMatcher_ScenarioLogAndBuild(t *testing.T) {
	fs := fakeFS{
		"/repo/.gitignore": "*.log\nbuild/\n",
	}
	m := Load("/repo", fs.readFile)

	assert.False(t, m.Match("a.txt", false))
	assert.True(t, m.Match("b.log", false))
	assert.True(t, m.Match("build", true))
	assert.True(t, m.Match("build/out.bin", false))
}

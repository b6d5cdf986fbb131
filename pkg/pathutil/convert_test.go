package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToRelative(t *testing.T) {
	root := filepath.FromSlash("/home/user/project")

	tests := []struct {
		name     string
		absPath  string
		expected string
	}{
		{
			name:     "file under root",
			absPath:  filepath.FromSlash("/home/user/project/src/main.go"),
			expected: "src/main.go",
		},
		{
			name:     "deeply nested file",
			absPath:  filepath.FromSlash("/home/user/project/a/b/c/d.txt"),
			expected: "a/b/c/d.txt",
		},
		{
			name:     "root itself",
			absPath:  filepath.FromSlash("/home/user/project"),
			expected: "",
		},
		{
			name:     "outside root",
			absPath:  filepath.FromSlash("/other/place/file.go"),
			expected: "",
		},
		{
			name:     "sibling with shared prefix",
			absPath:  filepath.FromSlash("/home/user/project-backup/file.go"),
			expected: "",
		},
		{
			name:     "unclean path normalized",
			absPath:  filepath.FromSlash("/home/user/project/./src/../src/main.go"),
			expected: "src/main.go",
		},
		{
			name:     "empty path",
			absPath:  "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToRelative(tt.absPath, root))
		})
	}
}

func TestToAbsolute(t *testing.T) {
	root := filepath.FromSlash("/home/user/project")
	got := ToAbsolute("src/main.go", root)
	assert.Equal(t, filepath.Join(root, "src", "main.go"), got)
}

func TestRoundTrip(t *testing.T) {
	root := filepath.FromSlash("/repo")
	rel := "src/deep/util.go"
	assert.Equal(t, rel, ToRelative(ToAbsolute(rel, root), root))
}

func TestWithin(t *testing.T) {
	root := filepath.FromSlash("/repo")
	assert.True(t, Within(filepath.FromSlash("/repo/a.txt"), root))
	assert.False(t, Within(filepath.FromSlash("/elsewhere/a.txt"), root))
	assert.False(t, Within(root, root))
}

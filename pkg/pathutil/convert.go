// Package pathutil converts between the two path representations the
// engine uses: absolute OS paths at the filesystem boundary, and
// slash-separated root-relative paths everywhere inside the index.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to the slash-relative form used
// by index entries. Returns "" when the path is the root itself or
// falls outside it, which callers treat as "not indexable".
//
// Examples:
//   - ToRelative("/home/user/project/src/main.go", "/home/user/project") → "src/main.go"
//   - ToRelative("/home/user/project", "/home/user/project") → ""
//   - ToRelative("/other/place/file.go", "/home/user/project") → ""
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return ""
	}

	rel, err := filepath.Rel(filepath.Clean(rootDir), filepath.Clean(absPath))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}

// ToAbsolute converts a slash-relative index path back to an absolute
// OS path under the root.
func ToAbsolute(relPath, rootDir string) string {
	return filepath.Join(rootDir, filepath.FromSlash(relPath))
}

// Within reports whether absPath lies inside rootDir (the root itself
// does not count).
func Within(absPath, rootDir string) bool {
	return ToRelative(absPath, rootDir) != ""
}

package ignore

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/fidx/internal/debug"
)

// ReadFileFunc is the injected file-access capability used to read
// ignore files. The engine never embeds I/O policy; tests supply an
// in-memory implementation.
type ReadFileFunc func(path string) ([]byte, error)

// OSReadFile reads ignore files from the real filesystem.
func OSReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// IgnoreFileName is the ignore file recognized at the root and in
// nested directories.
const IgnoreFileName = ".gitignore"

// PatternType classifies rules for fast matching
type PatternType int

const (
	PatternExact PatternType = iota
	PatternSuffix
	PatternGlob
)

// Rule is a single compiled ignore pattern
type Rule struct {
	Pattern  string
	Negate   bool
	DirOnly  bool
	Anchored bool

	// baseDir scopes rules from nested ignore files to their subtree
	// (slash-separated, relative to the matcher root; "" for the root file)
	baseDir string

	patternType PatternType
	suffix      string // fast suffix matching for "*.ext" patterns
}

// Matcher holds the compiled rule set for one root. Rules from nested
// ignore files are appended after the root file's rules, so the nearer
// file wins under last-match-wins evaluation.
type Matcher struct {
	mu      sync.RWMutex
	rules   []Rule
	skipped int // malformed patterns dropped during compilation

	readFile ReadFileFunc
	root     string
}

// NewMatcher creates an empty matcher for the given root directory.
// Pass nil to use OS file access.
func NewMatcher(root string, readFile ReadFileFunc) *Matcher {
	if readFile == nil {
		readFile = OSReadFile
	}
	return &Matcher{readFile: readFile, root: root}
}

// Load builds a matcher for root and compiles its top-level ignore
// file. Nested ignore files are registered by the walker as it
// descends, via AddDir. A missing or unreadable ignore file is skipped,
// never fatal.
func Load(root string, readFile ReadFileFunc) *Matcher {
	m := NewMatcher(root, readFile)
	m.AddDir("")
	return m
}

// AddDir reads and compiles the ignore file in the given directory
// (slash-separated, relative to the root; "" for the root itself).
// Safe for concurrent use by parallel walkers: nested rules only affect
// their own subtree, so registration order across subtrees is
// immaterial.
func (m *Matcher) AddDir(relDir string) {
	path := filepath.Join(m.root, filepath.FromSlash(relDir), IgnoreFileName)
	content, err := m.readFile(path)
	if err != nil {
		// Missing or unreadable ignore files are fine
		return
	}
	m.AddFile(relDir, content)
}

// AddFile compiles the content of an ignore file found in relDir.
func (m *Matcher) AddFile(relDir string, content []byte) {
	var rules []Rule
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule, ok := compilePattern(line, relDir)
		if !ok {
			debug.LogIndex("skipping malformed ignore pattern %q in %s\n", line, relDir)
			m.mu.Lock()
			m.skipped++
			m.mu.Unlock()
			continue
		}
		rules = append(rules, rule)
	}

	if len(rules) == 0 {
		return
	}

	m.mu.Lock()
	m.rules = append(m.rules, rules...)
	m.mu.Unlock()
}

// AddPattern compiles a single root-level pattern (used by tests and by
// callers layering extra exclusions).
func (m *Matcher) AddPattern(line string) {
	rule, ok := compilePattern(line, "")
	if !ok {
		m.mu.Lock()
		m.skipped++
		m.mu.Unlock()
		return
	}
	m.mu.Lock()
	m.rules = append(m.rules, rule)
	m.mu.Unlock()
}

// SkippedPatterns reports how many malformed patterns were dropped.
func (m *Matcher) SkippedPatterns() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skipped
}

// compilePattern parses one ignore-file line into a Rule.
func compilePattern(line, baseDir string) (Rule, bool) {
	rule := Rule{baseDir: strings.Trim(baseDir, "/")}

	if strings.HasPrefix(line, "!") {
		rule.Negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		rule.DirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		rule.Anchored = true
		line = line[1:]
	} else if strings.Contains(line, "/") {
		// A slash anywhere in the pattern anchors it to the ignore
		// file's directory, per gitignore semantics
		rule.Anchored = true
	}

	if line == "" {
		return Rule{}, false
	}
	rule.Pattern = line

	// Classify for fast matching
	switch {
	case !strings.ContainsAny(line, "*?["):
		rule.patternType = PatternExact
	case strings.HasPrefix(line, "*") && !strings.ContainsAny(line[1:], "*?[/"):
		rule.patternType = PatternSuffix
		rule.suffix = line[1:]
	default:
		rule.patternType = PatternGlob
		// Validate the glob now so malformed patterns are skipped with
		// a warning instead of failing at match time
		if !doublestar.ValidatePattern(line) {
			return Rule{}, false
		}
	}

	return rule, true
}

// Match reports whether relPath (slash-separated, relative to the
// matcher root) is excluded. Later rules override earlier ones; a
// matching negated rule re-includes the path.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	if relPath == "" || relPath == "." {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for i := range m.rules {
		if m.rules[i].matches(relPath, isDir) {
			ignored = !m.rules[i].Negate
		}
	}
	return ignored
}

// matches checks one rule against a path.
func (r *Rule) matches(relPath string, isDir bool) bool {
	// Scope nested-file rules to their subtree
	if r.baseDir != "" {
		if !strings.HasPrefix(relPath, r.baseDir+"/") {
			return false
		}
		relPath = relPath[len(r.baseDir)+1:]
	}

	if r.Anchored {
		if r.matchPath(relPath, isDir) {
			return true
		}
		// An excluded directory excludes everything beneath it
		return r.matchesAncestor(relPath)
	}

	// Un-anchored patterns match any path component at any depth
	parts := strings.Split(relPath, "/")
	for i, part := range parts {
		last := i == len(parts)-1
		if r.DirOnly && last && !isDir {
			continue
		}
		if r.matchComponent(part) {
			return true
		}
	}
	return false
}

// matchPath matches the full (base-relative) path against the pattern.
func (r *Rule) matchPath(relPath string, isDir bool) bool {
	if r.DirOnly && !isDir {
		return false
	}
	switch r.patternType {
	case PatternExact:
		return r.Pattern == relPath
	case PatternSuffix:
		return strings.HasSuffix(relPath, r.suffix) && !strings.Contains(relPath, "/")
	default:
		matched, err := doublestar.Match(r.Pattern, relPath)
		return err == nil && matched
	}
}

// matchesAncestor reports whether any ancestor directory of relPath
// matches the pattern (contents of excluded directories are excluded).
func (r *Rule) matchesAncestor(relPath string) bool {
	for i := strings.IndexByte(relPath, '/'); i > 0; {
		if r.matchPath(relPath[:i], true) {
			return true
		}
		next := strings.IndexByte(relPath[i+1:], '/')
		if next < 0 {
			return false
		}
		i += next + 1
	}
	return false
}

// matchComponent matches a single path component.
func (r *Rule) matchComponent(name string) bool {
	switch r.patternType {
	case PatternExact:
		return r.Pattern == name
	case PatternSuffix:
		return strings.HasSuffix(name, r.suffix)
	default:
		matched, err := doublestar.Match(r.Pattern, name)
		return err == nil && matched
	}
}

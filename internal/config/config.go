package config

import (
	"fmt"
	"path/filepath"

	"github.com/standardbeagle/fidx/internal/fidxerr"
)

// Default tuning values. These match the behavior the interactive CLI
// expects: short debounce so completions feel live, a mass-change
// threshold low enough that a branch checkout rebuilds instead of
// patching thousands of entries.
const (
	DefaultDebounceMs           = 150
	DefaultMassChangeThreshold  = 500
	DefaultMaxWorkers           = 4
	DefaultEnsureReadyTimeoutMs = 2000
	DefaultPollIntervalMs       = 30000
	DefaultMaxFileSize          = 10 * 1024 * 1024
	DefaultMaxWatcherRetries    = 5
	DefaultWatcherBackoffMs     = 250
	DefaultWatcherBackoffCapMs  = 8000
)

// Config holds the consumed tuning surface of the index engine.
// The engine does not own persistence; values arrive here from the
// .fidx.kdl file or from CLI flag overrides.
type Config struct {
	// Root is the initially indexed subtree. May be switched at runtime.
	Root string

	// DebounceMs is the coalescing window for filesystem events.
	DebounceMs int

	// MassChangeThreshold is the coalesced-event count above which a
	// full rebuild replaces incremental patching.
	MassChangeThreshold int

	// ParallelWalk partitions top-level subdirectories across workers.
	ParallelWalk bool

	// MaxWorkers bounds the parallel walk worker pool.
	MaxWorkers int

	// EnsureReadyTimeoutMs bounds every blocking wait for a snapshot.
	EnsureReadyTimeoutMs int

	// PollIntervalMs is the rescan interval used when a root's watcher
	// is degraded and the engine falls back to periodic polling.
	PollIntervalMs int

	// MaxFileSize excludes oversized files from the index.
	MaxFileSize int64

	// FollowSymlinks enables descending through symlinked directories
	// (cycle detection still applies).
	FollowSymlinks bool

	// MaxWatcherRetries caps supervised watcher restarts before the
	// root is marked degraded.
	MaxWatcherRetries int

	// WatcherBackoffMs is the initial restart delay; doubled per retry
	// up to WatcherBackoffCapMs.
	WatcherBackoffMs    int
	WatcherBackoffCapMs int

	// Exclude holds glob patterns applied ahead of ignore-file rules.
	Exclude []string
}

// Default returns a Config with production defaults and the standard
// junk-directory exclusions.
func Default() *Config {
	return &Config{
		DebounceMs:           DefaultDebounceMs,
		MassChangeThreshold:  DefaultMassChangeThreshold,
		ParallelWalk:         true,
		MaxWorkers:           DefaultMaxWorkers,
		EnsureReadyTimeoutMs: DefaultEnsureReadyTimeoutMs,
		PollIntervalMs:       DefaultPollIntervalMs,
		MaxFileSize:          DefaultMaxFileSize,
		FollowSymlinks:       false,
		MaxWatcherRetries:    DefaultMaxWatcherRetries,
		WatcherBackoffMs:     DefaultWatcherBackoffMs,
		WatcherBackoffCapMs:  DefaultWatcherBackoffCapMs,
		Exclude:              DefaultExcludes(),
	}
}

// DefaultExcludes returns glob patterns for directories that are never
// useful completion targets.
func DefaultExcludes() []string {
	return []string{
		"**/.git/**",
		"**/node_modules/**",
		"**/__pycache__/**",
		"**/.venv/**",
		"**/venv/**",
		"**/target/**",
		"**/dist/**",
		"**/.idea/**",
		"**/.vscode/**",
	}
}

// Validate checks value ranges. Invalid fields produce typed errors so
// callers can report the offending field.
func (c *Config) Validate() error {
	if c.DebounceMs <= 0 {
		return fidxerr.NewConfigError("debounce_ms", fmt.Sprintf("%d", c.DebounceMs),
			fmt.Errorf("must be positive"))
	}
	if c.MassChangeThreshold <= 0 {
		return fidxerr.NewConfigError("mass_change_threshold", fmt.Sprintf("%d", c.MassChangeThreshold),
			fmt.Errorf("must be positive"))
	}
	if c.MaxWorkers <= 0 {
		return fidxerr.NewConfigError("max_workers", fmt.Sprintf("%d", c.MaxWorkers),
			fmt.Errorf("must be positive"))
	}
	if c.EnsureReadyTimeoutMs <= 0 {
		return fidxerr.NewConfigError("ensure_ready_timeout_ms", fmt.Sprintf("%d", c.EnsureReadyTimeoutMs),
			fmt.Errorf("must be positive"))
	}
	if c.PollIntervalMs <= 0 {
		return fidxerr.NewConfigError("poll_interval_ms", fmt.Sprintf("%d", c.PollIntervalMs),
			fmt.Errorf("must be positive"))
	}
	if c.MaxFileSize <= 0 {
		return fidxerr.NewConfigError("max_file_size", fmt.Sprintf("%d", c.MaxFileSize),
			fmt.Errorf("must be positive"))
	}
	if c.MaxWatcherRetries < 0 {
		return fidxerr.NewConfigError("max_watcher_retries", fmt.Sprintf("%d", c.MaxWatcherRetries),
			fmt.Errorf("must not be negative"))
	}
	return nil
}

// Load reads configuration for the given root directory: defaults,
// overlaid with .fidx.kdl if present, enriched with build-artifact
// exclusions detected from the project's build files.
func Load(root string) (*Config, error) {
	cfg := Default()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fidxerr.NewConfigError("root", root, err)
	}
	cfg.Root = absRoot

	if err := loadKDL(cfg, absRoot); err != nil {
		return nil, err
	}

	cfg.EnrichExclusionsWithBuildArtifacts()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnrichExclusionsWithBuildArtifacts appends output-directory patterns
// discovered from build configuration files at the root.
func (c *Config) EnrichExclusionsWithBuildArtifacts() {
	if c.Root == "" {
		return
	}
	detector := NewBuildArtifactDetector(c.Root)
	c.Exclude = DeduplicatePatterns(append(c.Exclude, detector.DetectOutputDirectories()...))
}

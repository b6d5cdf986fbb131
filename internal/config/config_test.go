package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultDebounceMs, cfg.DebounceMs)
	assert.Equal(t, DefaultMassChangeThreshold, cfg.MassChangeThreshold)
	assert.True(t, cfg.ParallelWalk)
	assert.Equal(t, DefaultMaxWorkers, cfg.MaxWorkers)
	assert.False(t, cfg.FollowSymlinks)
	assert.Contains(t, cfg.Exclude, "**/.git/**")
	assert.Contains(t, cfg.Exclude, "**/node_modules/**")
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero debounce", func(c *Config) { c.DebounceMs = 0 }, "debounce_ms"},
		{"negative threshold", func(c *Config) { c.MassChangeThreshold = -1 }, "mass_change_threshold"},
		{"zero workers", func(c *Config) { c.MaxWorkers = 0 }, "max_workers"},
		{"zero ready timeout", func(c *Config) { c.EnsureReadyTimeoutMs = 0 }, "ensure_ready_timeout_ms"},
		{"zero poll interval", func(c *Config) { c.PollIntervalMs = 0 }, "poll_interval_ms"},
		{"zero max file size", func(c *Config) { c.MaxFileSize = 0 }, "max_file_size"},
		{"negative retries", func(c *Config) { c.MaxWatcherRetries = -1 }, "max_watcher_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestParseKDL_FullConfig(t *testing.T) {
	content := `
index {
    debounce_ms 300
    mass_change_threshold 1000
    parallel_walk false
    max_workers 8
    ensure_ready_timeout_ms 5000
    poll_interval_ms 60000
    max_file_size "25MB"
    follow_symlinks true
}

watcher {
    max_retries 10
    backoff_ms 100
    backoff_cap_ms 3000
}

exclude "**/vendor/**" "**/tmp/**"
`
	cfg := Default()
	require.NoError(t, parseKDL(cfg, content))

	assert.Equal(t, 300, cfg.DebounceMs)
	assert.Equal(t, 1000, cfg.MassChangeThreshold)
	assert.False(t, cfg.ParallelWalk)
	assert.Equal(t, 8, cfg.MaxWorkers)
	assert.Equal(t, 5000, cfg.EnsureReadyTimeoutMs)
	assert.Equal(t, 60000, cfg.PollIntervalMs)
	assert.Equal(t, int64(25*1024*1024), cfg.MaxFileSize)
	assert.True(t, cfg.FollowSymlinks)
	assert.Equal(t, 10, cfg.MaxWatcherRetries)
	assert.Equal(t, 100, cfg.WatcherBackoffMs)
	assert.Equal(t, 3000, cfg.WatcherBackoffCapMs)
	assert.Equal(t, []string{"**/vendor/**", "**/tmp/**"}, cfg.Exclude)
}

func TestParseKDL_PartialConfigKeepsDefaults(t *testing.T) {
	content := `
index {
    debounce_ms 75
}
`
	cfg := Default()
	require.NoError(t, parseKDL(cfg, content))

	assert.Equal(t, 75, cfg.DebounceMs)
	assert.Equal(t, DefaultMassChangeThreshold, cfg.MassChangeThreshold)
	assert.Equal(t, DefaultExcludes(), cfg.Exclude)
}

func TestParseKDL_NumericFileSize(t *testing.T) {
	cfg := Default()
	require.NoError(t, parseKDL(cfg, "index {\n  max_file_size 4096\n}\n"))
	assert.Equal(t, int64(4096), cfg.MaxFileSize)
}

func TestParseKDL_Malformed(t *testing.T) {
	cfg := Default()
	err := parseKDL(cfg, "index {\n  debounce_ms 300\n")
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"10MB", 10 * 1024 * 1024, false},
		{"500KB", 500 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"2048B", 2048, false},
		{"123", 123, false},
		{" 5mb ", 5 * 1024 * 1024, false},
		{"abc", 0, true},
		{"MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLoad_MissingConfigFileUsesDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounceMs, cfg.DebounceMs)

	abs, _ := filepath.Abs(root)
	assert.Equal(t, abs, cfg.Root)
}

func TestLoad_ReadsConfigFromRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName),
		[]byte("index {\n  debounce_ms 99\n}\n"), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.DebounceMs)
}

func TestLoad_InvalidValueRejected(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName),
		[]byte("index {\n  debounce_ms 0\n}\n"), 0o644))

	_, err := Load(root)
	assert.Error(t, err)
}

func TestDeduplicatePatterns(t *testing.T) {
	got := DeduplicatePatterns([]string{"a", "b", "a", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

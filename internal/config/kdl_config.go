package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	"github.com/standardbeagle/fidx/internal/fidxerr"
)

// ConfigFileName is the per-project configuration file.
const ConfigFileName = ".fidx.kdl"

// loadKDL overlays settings from root/.fidx.kdl onto cfg. A missing
// file is not an error; a malformed file is.
func loadKDL(cfg *Config, root string) error {
	kdlPath := filepath.Join(root, ConfigFileName)

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fidxerr.NewConfigError("config_file", kdlPath, err)
	}

	return parseKDL(cfg, string(content))
}

func parseKDL(cfg *Config, content string) error {
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return fidxerr.NewConfigError("config_file", ConfigFileName,
			fmt.Errorf("failed to parse KDL config: %w", err))
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.DebounceMs = v
					}
				case "mass_change_threshold":
					if v, ok := firstIntArg(cn); ok {
						cfg.MassChangeThreshold = v
					}
				case "parallel_walk":
					if b, ok := firstBoolArg(cn); ok {
						cfg.ParallelWalk = b
					}
				case "max_workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.MaxWorkers = v
					}
				case "ensure_ready_timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.EnsureReadyTimeoutMs = v
					}
				case "poll_interval_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.PollIntervalMs = v
					}
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.MaxFileSize = int64(v)
					}
					if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.MaxFileSize = sz
						}
					}
				case "follow_symlinks":
					if b, ok := firstBoolArg(cn); ok {
						cfg.FollowSymlinks = b
					}
				}
			}
		case "watcher":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_retries":
					if v, ok := firstIntArg(cn); ok {
						cfg.MaxWatcherRetries = v
					}
				case "backoff_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.WatcherBackoffMs = v
					}
				case "backoff_cap_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.WatcherBackoffCapMs = v
					}
				}
			}
		case "exclude":
			// Replace default exclusions if an exclude block is present
			cfg.Exclude = collectStringArgs(n)
		}
	}

	return nil
}

// Helper functions leveraging the kdl-go document model
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block format: exclude { "pattern" } puts strings as child node names
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}

// parseSize handles size strings like "10MB", "500KB", "1GB"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	numStr := s

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n * multiplier, nil
}

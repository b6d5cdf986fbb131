package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/standardbeagle/fidx/internal/config"
	"github.com/standardbeagle/fidx/internal/debug"
	"github.com/standardbeagle/fidx/internal/service"
	"github.com/standardbeagle/fidx/internal/version"

	"github.com/urfave/cli/v2"
)

// loadConfigWithOverrides loads configuration for the chosen root and
// applies CLI flag overrides on top.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		root = "."
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config for %s: %w", root, err)
	}

	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Exclude = config.DeduplicatePatterns(append(cfg.Exclude, excludeFlags...))
	}
	if c.IsSet("debounce-ms") {
		cfg.DebounceMs = c.Int("debounce-ms")
	}
	if c.IsSet("workers") {
		cfg.MaxWorkers = c.Int("workers")
	}
	if c.IsSet("serial") {
		cfg.ParallelWalk = !c.Bool("serial")
	}
	if c.IsSet("follow-symlinks") {
		cfg.FollowSymlinks = c.Bool("follow-symlinks")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	_, _ = debug.InitDebugLogFile()

	app := &cli.App{
		Name:                   "fidx",
		Usage:                  "Incremental file index for interactive path completion",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Root directory to index (default: current directory)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude paths matching glob patterns (e.g., --exclude '**/vendor/**')",
			},
			&cli.IntFlag{
				Name:  "debounce-ms",
				Usage: "Event coalescing window in milliseconds",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Parallel scan worker count",
			},
			&cli.BoolFlag{
				Name:  "serial",
				Usage: "Disable the parallel scan",
			},
			&cli.BoolFlag{
				Name:  "follow-symlinks",
				Usage: "Descend through symlinked directories",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "scan",
				Usage: "Scan the root once and print the indexed entries",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
					&cli.BoolFlag{
						Name:    "long",
						Aliases: []string{"l"},
						Usage:   "Show kind, size and modification time",
					},
				},
				Action: scanCommand,
			},
			{
				Name:      "suggest",
				Usage:     "Print completion candidates for a path pattern",
				ArgsUsage: "<pattern>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of suggestions",
						Value:   service.DefaultLimit,
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: suggestCommand,
			},
			{
				Name:  "watch",
				Usage: "Keep the index live; patterns on stdin get completions on stdout",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of suggestions per pattern",
						Value:   service.DefaultLimit,
					},
				},
				Action: watchCommand,
			},
			{
				Name:    "status",
				Aliases: []string{"st"},
				Usage:   "Show index state, generation and watcher health",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: statusCommand,
			},
		},
	}

	err := app.Run(os.Args)
	_ = debug.CloseDebugLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fidx: %v\n", err)
		os.Exit(1)
	}
}

func newEngine(c *cli.Context) (*service.Engine, *config.Config, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, nil, err
	}
	eng, err := service.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}

func scanCommand(c *cli.Context) error {
	eng, cfg, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Shutdown()

	entries, stale, err := eng.Suggest(c.Context, "", 1<<30)
	if err != nil && len(entries) == 0 {
		return err
	}
	if stale {
		fmt.Fprintln(os.Stderr, "fidx: scan did not finish in time, listing may be incomplete")
	}

	if c.Bool("json") {
		return printJSON(entries)
	}
	for _, e := range entries {
		if c.Bool("long") {
			fmt.Printf("%-7s %10d  %s  %s\n", e.Kind, e.Size, e.ModTime.Format(time.RFC3339), e.Path)
		} else {
			fmt.Println(e.Path)
		}
	}
	fmt.Fprintf(os.Stderr, "%d entries under %s\n", len(entries), cfg.Root)
	return nil
}

func suggestCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: fidx suggest <pattern>")
	}
	pattern := filepath.ToSlash(c.Args().First())

	eng, _, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Shutdown()

	entries, stale, err := eng.Suggest(c.Context, pattern, c.Int("limit"))
	if err != nil && len(entries) == 0 {
		return err
	}
	if stale {
		fmt.Fprintln(os.Stderr, "fidx: answering from a stale snapshot")
	}

	if c.Bool("json") {
		return printJSON(entries)
	}
	for _, e := range entries {
		fmt.Println(e.Path)
	}
	return nil
}

func watchCommand(c *cli.Context) error {
	eng, cfg, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, _, err := eng.Suggest(ctx, "", 1); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "fidx: watching %s (one pattern per line, ctrl-c to stop)\n", cfg.Root)

	// One pattern per stdin line, one blank-line-terminated suggestion
	// block per pattern
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	limit := c.Int("limit")
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "fidx: stopping")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			pattern := filepath.ToSlash(strings.TrimSpace(line))
			entries, stale, err := eng.Suggest(ctx, pattern, limit)
			if err != nil && len(entries) == 0 {
				fmt.Fprintf(os.Stderr, "fidx: %v\n", err)
			}
			if stale {
				fmt.Fprintln(os.Stderr, "fidx: answering from a stale snapshot")
			}
			for _, e := range entries {
				fmt.Println(e.Path)
			}
			fmt.Println()
		}
	}
}

func statusCommand(c *cli.Context) error {
	eng, _, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Shutdown()

	// Wait for the initial scan so the report reflects a real snapshot
	if _, _, err := eng.Suggest(c.Context, "", 1); err != nil {
		return err
	}

	st, err := eng.Status()
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return printJSON(map[string]any{
			"root":              st.Root,
			"state":             st.State.String(),
			"generation":        st.Generation,
			"target_generation": st.TargetGeneration,
			"entries":           st.Entries,
			"skipped":           st.Skipped,
			"watcher":           st.Watcher.String(),
		})
	}

	fmt.Printf("Root:       %s\n", st.Root)
	fmt.Printf("State:      %s\n", st.State)
	fmt.Printf("Generation: %d (target %d)\n", st.Generation, st.TargetGeneration)
	fmt.Printf("Entries:    %d (%d skipped)\n", st.Entries, st.Skipped)
	fmt.Printf("Watcher:    %s\n", st.Watcher)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

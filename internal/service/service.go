// Package service is the embedding surface for the index engine: one
// façade type wiring configuration, the coordinator and the query path
// together for interactive callers.
package service

import (
	"context"

	"github.com/standardbeagle/fidx/internal/config"
	"github.com/standardbeagle/fidx/internal/coordinator"
	"github.com/standardbeagle/fidx/internal/index"
)

// DefaultLimit is the suggestion count interactive completion asks for
// when the caller does not specify one.
const DefaultLimit = 20

// Engine is the top-level handle. Safe for concurrent use; Suggest
// calls never block behind rebuilds longer than the configured
// readiness timeout.
type Engine struct {
	cfg   *config.Config
	coord *coordinator.Coordinator
}

// New creates an engine from the given configuration. When cfg.Root is
// set the root is indexed immediately.
func New(cfg *config.Config) (*Engine, error) {
	e := &Engine{
		cfg:   cfg,
		coord: coordinator.New(cfg, coordinator.Options{}),
	}
	if cfg.Root != "" {
		if err := e.coord.SetRoot(cfg.Root); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// NewWithOptions is New with injectable coordinator capabilities,
// used by tests to fake the filesystem notification layer.
func NewWithOptions(cfg *config.Config, opts coordinator.Options) (*Engine, error) {
	e := &Engine{
		cfg:   cfg,
		coord: coordinator.New(cfg, opts),
	}
	if cfg.Root != "" {
		if err := e.coord.SetRoot(cfg.Root); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SetRoot switches the indexed subtree. Previous in-flight work is
// cancelled; the call returns before the new scan completes.
func (e *Engine) SetRoot(root string) error {
	return e.coord.SetRoot(root)
}

// Root returns the active root ("" when none is set).
func (e *Engine) Root() string {
	return e.coord.ActiveRoot()
}

// Suggest returns up to limit completion candidates for pattern,
// ranked prefix-first with substring and edit-distance fallbacks.
// The call waits (bounded) for the index to catch up with pending
// changes; on timeout it answers from the last published snapshot and
// reports stale=true instead of failing.
func (e *Engine) Suggest(ctx context.Context, pattern string, limit int) (entries []index.Entry, stale bool, err error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	root := e.coord.ActiveRoot()
	if root == "" {
		return nil, false, nil
	}

	snap, stale, waitErr := e.coord.EnsureReady(ctx, root)
	if snap == nil {
		// Nothing published at all; the wait error explains why
		return nil, stale, waitErr
	}

	store, err := e.coord.Store(root)
	if err != nil {
		// Root switched while we waited; answer from the snapshot we have
		return snap.Query(pattern, limit), true, nil
	}
	return store.QueryFuzzy(pattern, limit), stale, nil
}

// Status reports the active root's lifecycle state, or a zero Status
// when no root is set.
func (e *Engine) Status() (coordinator.Status, error) {
	root := e.coord.ActiveRoot()
	if root == "" {
		return coordinator.Status{}, nil
	}
	return e.coord.Status(root)
}

// Cancel flags the active root's in-flight rebuild tasks.
func (e *Engine) Cancel() {
	if root := e.coord.ActiveRoot(); root != "" {
		e.coord.Cancel(root)
	}
}

// Shutdown tears the engine down and waits for background work.
func (e *Engine) Shutdown() {
	e.coord.Shutdown()
}

package runner

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dsh2dsh/nbkp/internal/preflight"
)

// runLevel runs every sync slug in level, bounded to opts.MaxParallel
// concurrent syncs (default 1, i.e. sequential). Syncs within a level
// never depend on each other (see internal/depgraph.Levels), so running
// them out of order or concurrently is always safe; only the scheduling
// changes.
func (r *Runner) runLevel(ctx context.Context, level []string, selected map[string]preflight.SyncStatus, opts Options) ([]SyncResult, error) {
	limit := opts.MaxParallel
	if limit < 1 {
		limit = 1
	}

	results := make([]SyncResult, len(level))
	if limit == 1 {
		for i, slug := range level {
			results[i] = r.runOne(ctx, slug, selected[slug], opts)
		}
		return results, nil
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	for i, slug := range level {
		i, slug := i, slug
		group.Go(func() error {
			results[i] = r.runOne(gctx, slug, selected[slug], opts)
			return nil
		})
	}
	// runOne never returns an error itself (failures are recorded in
	// SyncResult.Error) and no goroutine returns one, so Wait returns nil.
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].SyncSlug < results[j].SyncSlug })
	return results, nil
}

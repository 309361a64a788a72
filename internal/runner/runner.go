// Package runner executes syncs in dependency order, dispatching to the
// plain, btrfs, or hard-link pipeline according to each sync's
// destination snapshot mode.
package runner

import (
	"context"
	"fmt"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/depgraph"
	"github.com/dsh2dsh/nbkp/internal/logging"
	"github.com/dsh2dsh/nbkp/internal/metrics"
	"github.com/dsh2dsh/nbkp/internal/preflight"
	"github.com/dsh2dsh/nbkp/internal/snapshot"
	"github.com/dsh2dsh/nbkp/internal/snapshot/btrfs"
	"github.com/dsh2dsh/nbkp/internal/snapshot/hardlink"
	"github.com/dsh2dsh/nbkp/internal/transfer"
)

// SyncResult is the outcome of running (or skipping) one sync.
type SyncResult struct {
	SyncSlug      string
	Success       bool
	DryRun        bool
	RsyncExitCode int
	Output        string
	SnapshotPath  string
	PrunedPaths   []string
	Error         string
}

// PruneResult is the outcome of pruning one sync's snapshots on its own,
// outside of a full run (see the "prune" CLI subcommand).
type PruneResult struct {
	SyncSlug string
	Deleted  []string
	Kept     int
	DryRun   bool
	Error    string
}

// Options configures a run across every selected sync.
type Options struct {
	DryRun      bool
	OnlySyncs   []string
	Prune       bool
	// MaxParallel bounds how many syncs within the same dependency level
	// (see internal/depgraph.Levels) run concurrently. Defaults to 1,
	// i.e. fully sequential, preserving the original single-threaded
	// behavior for configurations that don't opt in.
	MaxParallel int
	OnRsyncLine func(syncSlug, line string)
	OnSyncStart func(syncSlug string)
	OnSyncEnd   func(syncSlug string, result SyncResult)
}

// Runner ties together the resolved config, preflight statuses, and
// endpoint resolution needed to actually execute syncs.
type Runner struct {
	cfg       *config.Config
	endpoints transfer.Endpoints
}

// New builds a Runner. endpoints should come from resolve.All(cfg).
func New(cfg *config.Config, endpoints transfer.Endpoints) *Runner {
	return &Runner{cfg: cfg, endpoints: endpoints}
}

// RunAll runs every active sync named in statuses (or only those in
// opts.OnlySyncs, if non-empty) in dependency order.
func (r *Runner) RunAll(ctx context.Context, statuses map[string]preflight.SyncStatus, opts Options) ([]SyncResult, error) {
	selected := statuses
	if len(opts.OnlySyncs) > 0 {
		selected = make(map[string]preflight.SyncStatus, len(opts.OnlySyncs))
		for _, slug := range opts.OnlySyncs {
			if st, ok := statuses[slug]; ok {
				selected[slug] = st
			}
		}
	}

	syncsForOrdering := make(map[string]*config.SyncConfig, len(selected))
	for slug := range selected {
		syncsForOrdering[slug] = r.cfg.Syncs[slug]
	}
	levels, err := depgraph.Levels(syncsForOrdering)
	if err != nil {
		return nil, fmt.Errorf("order syncs: %w", err)
	}

	results := make([]SyncResult, 0, len(selected))
	for _, level := range levels {
		levelResults, err := r.runLevel(ctx, level, selected, opts)
		if err != nil {
			return nil, err
		}
		results = append(results, levelResults...)
	}
	return results, nil
}

// runOne executes (or skips) a single sync and records its logging and
// metrics, independent of how it's scheduled relative to others.
func (r *Runner) runOne(ctx context.Context, slug string, status preflight.SyncStatus, opts Options) SyncResult {
	log := logging.GetLogger(ctx, logging.SubsysRunner)
	if opts.OnSyncStart != nil {
		opts.OnSyncStart(slug)
	}
	log.Info("starting sync", "sync", slug, "dry_run", opts.DryRun)

	start := nowFunc()
	var result SyncResult
	if !status.Active() {
		reasons := ""
		for i, reason := range status.Reasons {
			if i > 0 {
				reasons += ", "
			}
			reasons += string(reason)
		}
		result = SyncResult{
			SyncSlug:      slug,
			Success:       false,
			DryRun:        opts.DryRun,
			RsyncExitCode: -1,
			Error:         "sync not active: " + reasons,
		}
	} else {
		result = r.runSingle(ctx, slug, status.Config, opts)
	}
	elapsed := nowFunc().Sub(start)

	metricsResult := metrics.ResultOK
	switch {
	case !status.Active():
		metricsResult = metrics.ResultSkip
	case !result.Success:
		metricsResult = metrics.ResultFailed
	}
	metrics.ObserveRun(slug, metricsResult, elapsed.Seconds())
	if result.SnapshotPath != "" {
		metrics.ObserveSnapshot(slug)
	}
	if len(result.PrunedPaths) > 0 {
		metrics.ObservePruned(slug, len(result.PrunedPaths))
	}

	if result.Success {
		log.Info("sync finished", "sync", slug, "elapsed", elapsed, "snapshot", result.SnapshotPath)
	} else {
		log.Error("sync failed", "sync", slug, "error", result.Error)
	}

	if opts.OnSyncEnd != nil {
		opts.OnSyncEnd(slug, result)
	}
	return result
}

func (r *Runner) runSingle(ctx context.Context, slug string, sync *config.SyncConfig, opts Options) SyncResult {
	switch sync.Destination.Mode() {
	case config.SnapshotModeHardLink:
		return r.runHardLinkSync(ctx, slug, sync, opts)
	case config.SnapshotModeBtrfs:
		return r.runBtrfsSync(ctx, slug, sync, opts)
	default:
		return r.runPlainSync(ctx, slug, sync, opts)
	}
}

func (r *Runner) volumes(sync *config.SyncConfig) (src, dst config.Volume) {
	return r.cfg.Volumes[sync.Source.Volume], r.cfg.Volumes[sync.Destination.Volume]
}

func (r *Runner) onOutputFor(slug string, opts Options) func(string) {
	if opts.OnRsyncLine == nil {
		return nil
	}
	return func(line string) { opts.OnRsyncLine(slug, line) }
}

func (r *Runner) runPlainSync(ctx context.Context, slug string, sync *config.SyncConfig, opts Options) SyncResult {
	srcVol, dstVol := r.volumes(sync)
	code, output, err := transfer.Run(ctx, sync, srcVol, dstVol, r.endpoints, transfer.Options{DryRun: opts.DryRun}, r.onOutputFor(slug, opts))
	if err != nil {
		return SyncResult{SyncSlug: slug, DryRun: opts.DryRun, RsyncExitCode: -1, Error: err.Error()}
	}
	if code != 0 {
		return SyncResult{SyncSlug: slug, DryRun: opts.DryRun, RsyncExitCode: code, Output: output, Error: fmt.Sprintf("rsync exited with code %d", code)}
	}
	return SyncResult{SyncSlug: slug, Success: true, DryRun: opts.DryRun, RsyncExitCode: code, Output: output}
}

func (r *Runner) snapshotEndpoints() snapshot.Endpoints {
	return snapshot.Endpoints(r.endpoints)
}

// PruneAll removes old snapshots for every sync named in slugs (or every
// configured sync, if slugs is empty), without running rsync first. Used
// by the standalone "prune" subcommand, independent of a full sync run.
func (r *Runner) PruneAll(ctx context.Context, slugs []string, dryRun bool) ([]PruneResult, error) {
	if len(slugs) == 0 {
		slugs = make([]string, 0, len(r.cfg.Syncs))
		for slug := range r.cfg.Syncs {
			slugs = append(slugs, slug)
		}
	}

	log := logging.GetLogger(ctx, logging.SubsysRunner)
	endpoints := r.snapshotEndpoints()
	results := make([]PruneResult, 0, len(slugs))
	for _, slug := range slugs {
		sync, ok := r.cfg.Syncs[slug]
		if !ok {
			results = append(results, PruneResult{SyncSlug: slug, Error: "unknown sync"})
			continue
		}
		_, dstVol := r.volumes(sync)

		var deleted, remaining []string
		var err error
		switch sync.Destination.Mode() {
		case config.SnapshotModeBtrfs:
			if max := sync.Destination.BtrfsSnapshots.MaxSnapshots; max != nil {
				deleted, err = btrfs.PruneSnapshots(ctx, sync, dstVol, endpoints, *max, dryRun)
				if err == nil {
					remaining, _ = btrfs.ListSnapshots(ctx, sync, dstVol, endpoints)
				}
			}
		case config.SnapshotModeHardLink:
			if max := sync.Destination.HardLinkSnapshots.MaxSnapshots; max != nil {
				deleted, err = hardlink.PruneSnapshots(ctx, sync, dstVol, endpoints, *max, dryRun)
				if err == nil {
					remaining, _ = hardlink.ListSnapshots(ctx, sync, dstVol, endpoints)
				}
			}
		}

		result := PruneResult{SyncSlug: slug, Deleted: deleted, Kept: len(remaining), DryRun: dryRun}
		if err != nil {
			result.Error = err.Error()
			log.Error("prune failed", "sync", slug, "error", err)
		} else {
			if !dryRun {
				metrics.ObservePruned(slug, len(deleted))
			}
			log.Info("prune finished", "sync", slug, "deleted", len(deleted))
		}
		results = append(results, result)
	}
	return results, nil
}

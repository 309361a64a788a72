package runner

import (
	"context"
	"fmt"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/snapshot/btrfs"
	"github.com/dsh2dsh/nbkp/internal/transfer"
)

func (r *Runner) runBtrfsSync(ctx context.Context, slug string, sync *config.SyncConfig, opts Options) SyncResult {
	srcVol, dstVol := r.volumes(sync)
	code, output, err := transfer.Run(ctx, sync, srcVol, dstVol, r.endpoints, transfer.Options{DryRun: opts.DryRun}, r.onOutputFor(slug, opts))
	if err != nil {
		return SyncResult{SyncSlug: slug, DryRun: opts.DryRun, RsyncExitCode: -1, Error: err.Error()}
	}
	if code != 0 {
		return SyncResult{SyncSlug: slug, DryRun: opts.DryRun, RsyncExitCode: code, Output: output, Error: fmt.Sprintf("rsync exited with code %d", code)}
	}

	result := SyncResult{SyncSlug: slug, Success: true, DryRun: opts.DryRun, RsyncExitCode: code, Output: output}
	if opts.DryRun {
		return result
	}

	btrfsCfg := sync.Destination.BtrfsSnapshots
	snapPath, err := btrfs.CreateSnapshot(ctx, sync, dstVol, r.snapshotEndpoints(), nowFunc())
	if err != nil {
		return SyncResult{SyncSlug: slug, DryRun: opts.DryRun, RsyncExitCode: code, Output: output, Error: fmt.Sprintf("snapshot failed: %s", err)}
	}
	result.SnapshotPath = snapPath

	if opts.Prune && btrfsCfg.MaxSnapshots != nil {
		pruned, err := btrfs.PruneSnapshots(ctx, sync, dstVol, r.snapshotEndpoints(), *btrfsCfg.MaxSnapshots, false)
		if err != nil {
			result.Error = fmt.Sprintf("prune failed: %s", err)
			return result
		}
		result.PrunedPaths = pruned
	}
	return result
}

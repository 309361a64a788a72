package runner

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/snapshot/hardlink"
	"github.com/dsh2dsh/nbkp/internal/transfer"
)

func (r *Runner) runHardLinkSync(ctx context.Context, slug string, sync *config.SyncConfig, opts Options) SyncResult {
	_, dstVol := r.volumes(sync)
	endpoints := r.snapshotEndpoints()
	hlCfg := sync.Destination.HardLinkSnapshots

	// Best-effort: remove directories left behind by a sync that was
	// interrupted after creating its snapshot dir but before retargeting
	// "latest".
	_, _ = hardlink.CleanupOrphanedSnapshots(ctx, sync, dstVol, endpoints)

	var linkDest string
	if latest, err := hardlink.ListSnapshots(ctx, sync, dstVol, endpoints); err == nil && len(latest) > 0 {
		linkDest = "../" + filepath.Base(latest[len(latest)-1])
	}

	snapPath, err := hardlink.CreateSnapshotDir(ctx, sync, dstVol, endpoints, nowFunc())
	if err != nil {
		return SyncResult{SyncSlug: slug, DryRun: opts.DryRun, RsyncExitCode: -1, Error: fmt.Sprintf("failed to create snapshot dir: %s", err)}
	}
	snapName := filepath.Base(snapPath)

	srcVol, _ := r.volumes(sync)
	transferOpts := transfer.Options{DryRun: opts.DryRun, LinkDest: linkDest, DestSuffix: "snapshots/" + snapName}
	code, output, err := transfer.Run(ctx, sync, srcVol, dstVol, r.endpoints, transferOpts, r.onOutputFor(slug, opts))
	if err != nil {
		_ = hardlink.DeleteSnapshot(ctx, snapPath, dstVol, endpoints)
		return SyncResult{SyncSlug: slug, DryRun: opts.DryRun, RsyncExitCode: -1, Error: err.Error()}
	}
	if code != 0 {
		_ = hardlink.DeleteSnapshot(ctx, snapPath, dstVol, endpoints)
		return SyncResult{SyncSlug: slug, DryRun: opts.DryRun, RsyncExitCode: code, Output: output, Error: fmt.Sprintf("rsync exited with code %d", code)}
	}

	if opts.DryRun {
		_ = hardlink.DeleteSnapshot(ctx, snapPath, dstVol, endpoints)
		return SyncResult{SyncSlug: slug, Success: true, DryRun: true, RsyncExitCode: code, Output: output}
	}

	if err := hardlink.UpdateLatestSymlink(ctx, sync, dstVol, endpoints, snapName); err != nil {
		return SyncResult{SyncSlug: slug, DryRun: opts.DryRun, RsyncExitCode: code, Output: output, Error: fmt.Sprintf("symlink update failed: %s", err)}
	}

	result := SyncResult{SyncSlug: slug, Success: true, DryRun: opts.DryRun, RsyncExitCode: code, Output: output, SnapshotPath: snapPath}
	if opts.Prune && hlCfg.MaxSnapshots != nil {
		pruned, err := hardlink.PruneSnapshots(ctx, sync, dstVol, endpoints, *hlCfg.MaxSnapshots, false)
		if err != nil {
			result.Error = fmt.Sprintf("prune failed: %s", err)
			return result
		}
		result.PrunedPaths = pruned
	}
	return result
}

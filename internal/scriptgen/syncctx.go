package scriptgen

import (
	"fmt"
	"strings"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/resolve"
	"github.com/dsh2dsh/nbkp/internal/snapshot/hardlink"
	"github.com/dsh2dsh/nbkp/internal/transfer"
)

// syncFunc is one rendered bash function plus the bookkeeping needed to
// wire it into the dispatch loop.
type syncFunc struct {
	Slug    string
	FnName  string
	Enabled bool
	Body    string // includes the "fn() { ... }" wrapper
}

func buildSyncBody(slug string, sync *config.SyncConfig, cfg *config.Config, endpoints map[string]resolve.Endpoint) (string, error) {
	srcVol := cfg.Volumes[sync.Source.Volume]
	dstVol := cfg.Volumes[sync.Destination.Volume]
	srcPath := transfer.ResolvePath(srcVol, sync.Source.Subdir)
	dstPath := transfer.ResolvePath(dstVol, sync.Destination.Subdir)
	dstSlug := sync.Destination.Volume
	txEndpoints := transfer.Endpoints(endpoints)

	var parts []string
	parts = append(parts, fmt.Sprintf(`nbkp_log "Starting sync: %s"`, slug), "")
	parts = append(parts, "# Pre-flight checks", preflightBlock(sync, cfg, endpoints, srcPath, dstPath), "")
	parts = append(parts, "# Build runtime flags", runtimeFlagsBlock)

	switch sync.Destination.Mode() {
	case config.SnapshotModeBtrfs:
		rsync, err := rsyncBlock(sync, srcVol, dstVol, txEndpoints, "", false)
		if err != nil {
			return "", err
		}
		parts = append(parts, "", "# Rsync", rsync)
		parts = append(parts, "", "# Btrfs snapshot (skip if dry-run)", btrfsSnapshotBlock(dstVol, dstSlug, endpoints, dstPath))
		if maxSnaps := sync.Destination.BtrfsSnapshots.MaxSnapshots; maxSnaps != nil {
			snapsDir := dstPath + "/snapshots"
			lsCmd := lsSnapshotsCommand(dstVol, dstSlug, endpoints, snapsDir)
			propCmd := btrfsPropSetLine(dstVol, dstSlug, endpoints, snapsDir)
			delCmd := btrfsDeleteLine(dstVol, dstSlug, endpoints, snapsDir)
			parts = append(parts, "", fmt.Sprintf("# Prune old snapshots (max: %d)", *maxSnaps),
				pruneBlock(lsCmd, propCmd, delCmd, *maxSnaps))
		}

	case config.SnapshotModeHardLink:
		snapsDir := dstPath + "/snapshots"
		parts = append(parts, "", "# Link-dest resolution (latest snapshot for incremental backup)",
			linkDestBlock(dstVol, dstSlug, endpoints, snapsDir))
		parts = append(parts, "", "# Create a fresh snapshot directory",
			`NBKP_TS=$(date -u +%Y-%m-%dT%H:%M:%S.000Z)`,
			hostCommandLine(dstVol, dstSlug, endpoints, hardlink.MkdirArgs(snapsDir+"/$NBKP_TS")))

		rsync, err := rsyncBlock(sync, srcVol, dstVol, txEndpoints, "snapshots/$NBKP_TS", true)
		if err != nil {
			return "", err
		}
		parts = append(parts, "", "# Rsync into the new snapshot directory", rsync)

		symlinkCmd := hardlinkSymlinkLine(dstVol, dstSlug, endpoints, "snapshots/$NBKP_TS", dstPath+"/latest")
		parts = append(parts, "", "# Retarget latest (skip if dry-run)",
			fmt.Sprintf("if [ \"$NBKP_DRY_RUN\" = false ]; then\n    %s\nfi", symlinkCmd))

		if maxSnaps := sync.Destination.HardLinkSnapshots.MaxSnapshots; maxSnaps != nil {
			lsCmd := lsSnapshotsCommand(dstVol, dstSlug, endpoints, snapsDir)
			delCmd := hardlinkDeleteLine(dstVol, dstSlug, endpoints, snapsDir)
			parts = append(parts, "", fmt.Sprintf("# Prune old snapshots (max: %d)", *maxSnaps),
				pruneBlock(lsCmd, "", delCmd, *maxSnaps))
		}

	default:
		rsync, err := rsyncBlock(sync, srcVol, dstVol, txEndpoints, "", false)
		if err != nil {
			return "", err
		}
		parts = append(parts, "", "# Rsync", rsync)
	}

	parts = append(parts, "", fmt.Sprintf(`nbkp_log "Completed sync: %s"`, slug))
	return strings.Join(parts, "\n"), nil
}

func buildSyncFunc(slug string, sync *config.SyncConfig, cfg *config.Config, endpoints map[string]resolve.Endpoint) (syncFunc, error) {
	fnName := slugToFn(slug)

	if sync.Enabled {
		body, err := buildSyncBody(slug, sync, cfg, endpoints)
		if err != nil {
			return syncFunc{}, fmt.Errorf("sync %q: %w", slug, err)
		}
		fn := fnName + "() {\n" + indentLines(body, "    ") + "\n}"
		return syncFunc{Slug: slug, FnName: fnName, Enabled: true, Body: fn}, nil
	}

	enabled := *sync
	enabled.Enabled = true
	body, err := buildSyncBody(slug, &enabled, cfg, endpoints)
	if err != nil {
		return syncFunc{}, fmt.Errorf("sync %q (disabled): %w", slug, err)
	}
	fn := fnName + "() {\n" + indentLines(body, "    ") + "\n}"
	return syncFunc{Slug: slug, FnName: fnName, Enabled: false, Body: commentOutLines(fn)}, nil
}

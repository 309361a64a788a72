// Package btrfs creates, lists and prunes read-only btrfs subvolume
// snapshots of a sync destination's "latest" mirror.
package btrfs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/snapshot"
)

// SnapshotArgs returns the argv for a read-only btrfs snapshot of
// latestPath into snapshotPath. Exported so internal/scriptgen can render
// the identical command into its generated shell script.
func SnapshotArgs(latestPath, snapshotPath string) []string {
	return []string{"btrfs", "subvolume", "snapshot", "-r", latestPath, snapshotPath}
}

// PropertySetArgs returns the argv that clears the read-only property on
// path, the first step of deleting a snapshot.
func PropertySetArgs(path string) []string {
	return []string{"btrfs", "property", "set", path, "ro", "false"}
}

// SubvolumeDeleteArgs returns the argv that deletes the subvolume at path.
func SubvolumeDeleteArgs(path string) []string {
	return []string{"btrfs", "subvolume", "delete", path}
}

// CreateSnapshot creates a read-only snapshot of dest/latest into
// dest/snapshots/<timestamp> and returns its path.
func CreateSnapshot(ctx context.Context, sync *config.SyncConfig, dstVol config.Volume, endpoints snapshot.Endpoints, now time.Time) (string, error) {
	destPath := snapshot.ResolveDestPath(sync, dstVol)
	timestamp := formatTimestamp(now)
	snapshotPath := fmt.Sprintf("%s/snapshots/%s", destPath, timestamp)
	latestPath := destPath + "/latest"

	res, err := snapshot.RunOn(ctx, dstVol, endpoints, SnapshotArgs(latestPath, snapshotPath))
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("btrfs snapshot failed: %s", res.Stderr)
	}
	return snapshotPath, nil
}

// formatTimestamp mirrors the original's isoformat(timespec="milliseconds")
// with a trailing "Z" rather than "+00:00", so snapshot directory names
// sort lexicographically in creation order.
func formatTimestamp(now time.Time) string {
	return now.UTC().Format("2006-01-02T15:04:05.000") + "Z"
}

// ListSnapshots lists every snapshot path for sync's destination, oldest
// first.
func ListSnapshots(ctx context.Context, sync *config.SyncConfig, dstVol config.Volume, endpoints snapshot.Endpoints) ([]string, error) {
	destPath := snapshot.ResolveDestPath(sync, dstVol)
	snapshotsDir := destPath + "/snapshots"

	res, err := snapshot.RunOn(ctx, dstVol, endpoints, []string{"ls", snapshotsDir})
	if err != nil {
		return nil, err
	}
	out := strings.TrimSpace(res.Stdout)
	if res.ExitCode != 0 || out == "" {
		return nil, nil
	}
	entries := strings.Split(out, "\n")
	sort.Strings(entries)
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = snapshotsDir + "/" + e
	}
	return paths, nil
}

// GetLatestSnapshot returns the most recent snapshot path, or "" if none.
func GetLatestSnapshot(ctx context.Context, sync *config.SyncConfig, dstVol config.Volume, endpoints snapshot.Endpoints) (string, error) {
	snapshots, err := ListSnapshots(ctx, sync, dstVol, endpoints)
	if err != nil {
		return "", err
	}
	if len(snapshots) == 0 {
		return "", nil
	}
	return snapshots[len(snapshots)-1], nil
}

// makeWritable unsets the readonly property so the subvolume can be
// deleted: needed when the filesystem is mounted with
// user_subvol_rm_allowed instead of granting CAP_SYS_ADMIN.
func makeWritable(ctx context.Context, path string, vol config.Volume, endpoints snapshot.Endpoints) error {
	res, err := snapshot.RunOn(ctx, vol, endpoints, PropertySetArgs(path))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("btrfs property set ro=false failed: %s", res.Stderr)
	}
	return nil
}

// DeleteSnapshot unsets readonly and deletes a single snapshot subvolume.
func DeleteSnapshot(ctx context.Context, path string, vol config.Volume, endpoints snapshot.Endpoints) error {
	if err := makeWritable(ctx, path, vol, endpoints); err != nil {
		return err
	}
	res, err := snapshot.RunOn(ctx, vol, endpoints, SubvolumeDeleteArgs(path))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("btrfs delete failed: %s", res.Stderr)
	}
	return nil
}

// PruneSnapshots deletes the oldest snapshots exceeding maxSnapshots,
// returning the (would-be) deleted paths.
func PruneSnapshots(ctx context.Context, sync *config.SyncConfig, dstVol config.Volume, endpoints snapshot.Endpoints, maxSnapshots int, dryRun bool) ([]string, error) {
	snapshots, err := ListSnapshots(ctx, sync, dstVol, endpoints)
	if err != nil {
		return nil, err
	}
	excess := len(snapshots) - maxSnapshots
	if excess <= 0 {
		return nil, nil
	}

	toDelete := snapshots[:excess]
	if !dryRun {
		for _, path := range toDelete {
			if err := DeleteSnapshot(ctx, path, dstVol, endpoints); err != nil {
				return nil, err
			}
		}
	}
	return toDelete, nil
}

// Package hardlink creates, lists and prunes hard-link-based snapshot
// directories for filesystems without btrfs: each snapshot is a plain
// directory populated by rsync --link-dest against the previous one, with
// a "latest" symlink retargeted atomically after each successful sync.
package hardlink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/snapshot"
)

func formatTimestamp(now time.Time) string {
	return now.UTC().Format("2006-01-02T15:04:05.000") + "Z"
}

// MkdirArgs returns the argv that creates a snapshot directory.
func MkdirArgs(snapshotPath string) []string {
	return []string{"mkdir", "-p", snapshotPath}
}

// SymlinkArgs returns the argv that atomically retargets the "latest"
// symlink on a remote destination (the local case uses a temp-then-rename
// sequence instead; see UpdateLatestSymlink).
func SymlinkArgs(target, latestPath string) []string {
	return []string{"ln", "-sfn", target, latestPath}
}

// CreateSnapshotDir creates (mkdir -p) a new, empty snapshot directory and
// returns its path.
func CreateSnapshotDir(ctx context.Context, sync *config.SyncConfig, dstVol config.Volume, endpoints snapshot.Endpoints, now time.Time) (string, error) {
	destPath := snapshot.ResolveDestPath(sync, dstVol)
	snapshotPath := fmt.Sprintf("%s/snapshots/%s", destPath, formatTimestamp(now))

	res, err := snapshot.RunOn(ctx, dstVol, endpoints, MkdirArgs(snapshotPath))
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("mkdir snapshot dir failed: %s", res.Stderr)
	}
	return snapshotPath, nil
}

// ReadLatestSymlink returns the snapshot name the "latest" symlink points
// to, or "" if it does not exist.
func ReadLatestSymlink(ctx context.Context, sync *config.SyncConfig, dstVol config.Volume, endpoints snapshot.Endpoints) (string, error) {
	destPath := snapshot.ResolveDestPath(sync, dstVol)
	latestPath := destPath + "/latest"

	var target string
	switch dstVol.(type) {
	case *config.LocalVolume:
		t, err := os.Readlink(latestPath)
		if err != nil {
			return "", nil
		}
		target = t
	case *config.RemoteVolume:
		res, err := snapshot.RunOn(ctx, dstVol, endpoints, []string{"readlink", latestPath})
		if err != nil {
			return "", err
		}
		if res.ExitCode != 0 {
			return "", nil
		}
		target = strings.TrimSpace(res.Stdout)
	}

	if idx := strings.LastIndex(target, "/"); idx >= 0 {
		return target[idx+1:], nil
	}
	return target, nil
}

// UpdateLatestSymlink atomically retargets (or creates) the "latest"
// symlink to point at snapshotName.
func UpdateLatestSymlink(ctx context.Context, sync *config.SyncConfig, dstVol config.Volume, endpoints snapshot.Endpoints, snapshotName string) error {
	destPath := snapshot.ResolveDestPath(sync, dstVol)
	latestPath := destPath + "/latest"
	target := "snapshots/" + snapshotName

	switch dstVol.(type) {
	case *config.LocalVolume:
		tmp := latestPath + ".tmp"
		_ = os.Remove(tmp)
		if err := os.Symlink(target, tmp); err != nil {
			return fmt.Errorf("symlink update failed: %w", err)
		}
		if err := os.Rename(tmp, latestPath); err != nil {
			return fmt.Errorf("symlink update failed: %w", err)
		}
		return nil
	case *config.RemoteVolume:
		res, err := snapshot.RunOn(ctx, dstVol, endpoints, SymlinkArgs(target, latestPath))
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("symlink update failed: %s", res.Stderr)
		}
		return nil
	default:
		return fmt.Errorf("unsupported volume kind %T", dstVol)
	}
}

// ListSnapshots lists every snapshot directory for sync's destination,
// oldest first (names are ISO-8601 timestamps, so lexicographic order is
// chronological order).
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

// CleanupOrphanedSnapshots removes snapshot directories newer than the
// "latest" symlink target: leftovers from a sync that created its
// directory but never finished. Returns the deleted paths.
func CleanupOrphanedSnapshots(ctx context.Context, sync *config.SyncConfig, dstVol config.Volume, endpoints snapshot.Endpoints) ([]string, error) {
	latestName, err := ReadLatestSymlink(ctx, sync, dstVol, endpoints)
	if err != nil {
		return nil, err
	}
	if latestName == "" {
		return nil, nil
	}

	all, err := ListSnapshots(ctx, sync, dstVol, endpoints)
	if err != nil {
		return nil, err
	}

	var deleted []string
	for _, snapPath := range all {
		name := filepath.Base(snapPath)
		if name > latestName {
			if err := DeleteSnapshot(ctx, snapPath, dstVol, endpoints); err != nil {
				return deleted, err
			}
			deleted = append(deleted, snapPath)
		}
	}
	return deleted, nil
}

// DeleteSnapshot removes a single hard-link snapshot directory.
func DeleteSnapshot(ctx context.Context, path string, vol config.Volume, endpoints snapshot.Endpoints) error {
	switch vol.(type) {
	case *config.LocalVolume:
		return os.RemoveAll(path)
	case *config.RemoteVolume:
		res, err := snapshot.RunOn(ctx, vol, endpoints, []string{"rm", "-rf", path})
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("rm -rf snapshot failed: %s", res.Stderr)
		}
		return nil
	default:
		return fmt.Errorf("unsupported volume kind %T", vol)
	}
}

// PruneSnapshots deletes the oldest snapshots exceeding maxSnapshots,
// never the one "latest" currently points to. Returns (would-be) deleted
// paths.
func PruneSnapshots(ctx context.Context, sync *config.SyncConfig, dstVol config.Volume, endpoints snapshot.Endpoints, maxSnapshots int, dryRun bool) ([]string, error) {
	snapshots, err := ListSnapshots(ctx, sync, dstVol, endpoints)
	if err != nil {
		return nil, err
	}
	excess := len(snapshots) - maxSnapshots
	if excess <= 0 {
		return nil, nil
	}

	latestName, err := ReadLatestSymlink(ctx, sync, dstVol, endpoints)
	if err != nil {
		return nil, err
	}

	var toDelete []string
	for _, snapPath := range snapshots {
		if len(toDelete) >= excess {
			break
		}
		if filepath.Base(snapPath) == latestName {
			continue
		}
		toDelete = append(toDelete, snapPath)
	}

	if !dryRun {
		for _, path := range toDelete {
			if err := DeleteSnapshot(ctx, path, dstVol, endpoints); err != nil {
				return nil, err
			}
		}
	}
	return toDelete, nil
}

package hardlink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/snapshot"
)

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 30, 45, 123000000, time.UTC)
	assert.Equal(t, "2026-03-05T12:30:45.123Z", formatTimestamp(now))
}

func TestCreateSnapshotDirAndSymlinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dstVol := &config.LocalVolume{Slug: "dst", Path: dir}
	sync := &config.SyncConfig{Slug: "s", Destination: config.DestinationSyncEndpoint{}}

	ctx := context.Background()
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	snapPath, err := CreateSnapshotDir(ctx, sync, dstVol, snapshot.Endpoints{}, now)
	require.NoError(t, err)
	require.DirExists(t, snapPath)

	name := filepath.Base(snapPath)
	require.NoError(t, UpdateLatestSymlink(ctx, sync, dstVol, nil, name))

	got, err := ReadLatestSymlink(ctx, sync, dstVol, nil)
	require.NoError(t, err)
	assert.Equal(t, name, got)
}

func TestListSnapshots_ordersOldestFirst(t *testing.T) {
	dir := t.TempDir()
	snapshotsDir := filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(snapshotsDir, 0o755))
	for _, name := range []string{"2026-03-05T10:00:00.000Z", "2026-03-05T09:00:00.000Z", "2026-03-05T11:00:00.000Z"} {
		require.NoError(t, os.Mkdir(filepath.Join(snapshotsDir, name), 0o755))
	}

	dstVol := &config.LocalVolume{Slug: "dst", Path: dir}
	sync := &config.SyncConfig{Slug: "s"}

	got, err := ListSnapshots(context.Background(), sync, dstVol, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2026-03-05T09:00:00.000Z", filepath.Base(got[0]))
	assert.Equal(t, "2026-03-05T11:00:00.000Z", filepath.Base(got[2]))
}

func TestPruneSnapshots_neverDeletesLatest(t *testing.T) {
	dir := t.TempDir()
	snapshotsDir := filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(snapshotsDir, 0o755))
	names := []string{
		"2026-03-05T09:00:00.000Z",
		"2026-03-05T10:00:00.000Z",
		"2026-03-05T11:00:00.000Z",
	}
	for _, name := range names {
		require.NoError(t, os.Mkdir(filepath.Join(snapshotsDir, name), 0o755))
	}
	require.NoError(t, os.Symlink("snapshots/"+names[0], filepath.Join(dir, "latest")))

	dstVol := &config.LocalVolume{Slug: "dst", Path: dir}
	sync := &config.SyncConfig{Slug: "s"}

	deleted, err := PruneSnapshots(context.Background(), sync, dstVol, nil, 1, false)
	require.NoError(t, err)
	assert.NotContains(t, deleted, filepath.Join(snapshotsDir, names[0]))
	assert.Len(t, deleted, 2)

	remaining, err := ListSnapshots(context.Background(), sync, dstVol, nil)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestCleanupOrphanedSnapshots_removesNewerThanLatest(t *testing.T) {
	dir := t.TempDir()
	snapshotsDir := filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(snapshotsDir, 0o755))
	older := "2026-03-05T09:00:00.000Z"
	orphan := "2026-03-05T10:00:00.000Z"
	require.NoError(t, os.Mkdir(filepath.Join(snapshotsDir, older), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(snapshotsDir, orphan), 0o755))
	require.NoError(t, os.Symlink("snapshots/"+older, filepath.Join(dir, "latest")))

	dstVol := &config.LocalVolume{Slug: "dst", Path: dir}
	sync := &config.SyncConfig{Slug: "s"}

	deleted, err := CleanupOrphanedSnapshots(context.Background(), sync, dstVol, nil)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, filepath.Join(snapshotsDir, orphan), deleted[0])
	assert.NoDirExists(t, filepath.Join(snapshotsDir, orphan))
	assert.DirExists(t, filepath.Join(snapshotsDir, older))
}

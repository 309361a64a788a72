package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/preflight"
	"github.com/dsh2dsh/nbkp/internal/testkit"
	"github.com/dsh2dsh/nbkp/internal/transfer"
)

// installFakeTool drops an executable shell script named name onto a fresh
// PATH entry, so tests can exercise the real exec.Command plumbing without
// depending on rsync/btrfs actually being installed.
func installFakeTool(t *testing.T, name, body string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool shims are POSIX shell scripts")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func localSync(slug, srcDir, dstDir string) (*config.SyncConfig, *config.LocalVolume, *config.LocalVolume) {
	srcVol := &config.LocalVolume{Slug: config.Slug(slug + "-src"), Path: srcDir}
	dstVol := &config.LocalVolume{Slug: config.Slug(slug + "-dst"), Path: dstDir}
	sync := &config.SyncConfig{
		Slug:    config.Slug(slug),
		Enabled: true,
		Source:  config.SyncEndpoint{Volume: srcVol.Slug.String()},
		Destination: config.DestinationSyncEndpoint{
			SyncEndpoint: config.SyncEndpoint{Volume: dstVol.Slug.String()},
		},
	}
	return sync, srcVol, dstVol
}

func newTestRunner(t *testing.T, syncs map[string]*config.SyncConfig, volumes map[string]config.Volume) *Runner {
	t.Helper()
	cfg := &config.Config{Volumes: volumes, Syncs: syncs}
	return New(cfg, transfer.Endpoints{})
}

func activeStatus(sync *config.SyncConfig) preflight.SyncStatus {
	return preflight.SyncStatus{Slug: sync.Slug.String(), Config: sync}
}

func TestRunAll_plainSyncSucceeds(t *testing.T) {
	installFakeTool(t, "rsync", "exit 0")

	srcDir, dstDir := t.TempDir(), t.TempDir()
	sync, srcVol, dstVol := localSync("plain", srcDir, dstDir)
	r := newTestRunner(t, map[string]*config.SyncConfig{"plain": sync}, map[string]config.Volume{
		srcVol.Slug.String(): srcVol,
		dstVol.Slug.String(): dstVol,
	})

	statuses := map[string]preflight.SyncStatus{"plain": activeStatus(sync)}
	results, err := r.RunAll(context.Background(), statuses, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 0, results[0].RsyncExitCode)
	assert.Empty(t, results[0].Error)
}

func TestRunAll_rsyncFailureIsReported(t *testing.T) {
	installFakeTool(t, "rsync", "exit 23")

	srcDir, dstDir := t.TempDir(), t.TempDir()
	sync, srcVol, dstVol := localSync("plain", srcDir, dstDir)
	r := newTestRunner(t, map[string]*config.SyncConfig{"plain": sync}, map[string]config.Volume{
		srcVol.Slug.String(): srcVol,
		dstVol.Slug.String(): dstVol,
	})

	statuses := map[string]preflight.SyncStatus{"plain": activeStatus(sync)}
	results, err := r.RunAll(context.Background(), statuses, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, 23, results[0].RsyncExitCode)
	assert.NotEmpty(t, results[0].Error)
}

func TestRunAll_inactiveSyncIsSkippedWithReasons(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	sync, srcVol, dstVol := localSync("plain", srcDir, dstDir)
	r := newTestRunner(t, map[string]*config.SyncConfig{"plain": sync}, map[string]config.Volume{
		srcVol.Slug.String(): srcVol,
		dstVol.Slug.String(): dstVol,
	})

	statuses := map[string]preflight.SyncStatus{
		"plain": {
			Slug:    "plain",
			Config:  sync,
			Reasons: []preflight.SyncReason{preflight.SyncDisabled},
		},
	}
	results, err := r.RunAll(context.Background(), statuses, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "disabled")
}

func TestRunAll_respectsDependencyOrder(t *testing.T) {
	installFakeTool(t, "rsync", "exit 0")

	rawDir, stagingDir, archiveDir := t.TempDir(), t.TempDir(), t.TempDir()
	rawVol := &config.LocalVolume{Slug: "raw", Path: rawDir}
	stagingVol := &config.LocalVolume{Slug: "staging", Path: stagingDir}
	archiveVol := &config.LocalVolume{Slug: "archive", Path: archiveDir}

	consumer := &config.SyncConfig{
		Slug:    "consumer",
		Enabled: true,
		Source:  config.SyncEndpoint{Volume: "staging"},
		Destination: config.DestinationSyncEndpoint{
			SyncEndpoint: config.SyncEndpoint{Volume: "archive"},
		},
	}
	producer := &config.SyncConfig{
		Slug:    "producer",
		Enabled: true,
		Source:  config.SyncEndpoint{Volume: "raw"},
		Destination: config.DestinationSyncEndpoint{
			SyncEndpoint: config.SyncEndpoint{Volume: "staging"},
		},
	}

	r := newTestRunner(t, map[string]*config.SyncConfig{
		"producer": producer,
		"consumer": consumer,
	}, map[string]config.Volume{
		"raw":     rawVol,
		"staging": stagingVol,
		"archive": archiveVol,
	})

	statuses := map[string]preflight.SyncStatus{
		"producer": activeStatus(producer),
		"consumer": activeStatus(consumer),
	}

	var order []string
	results, err := r.RunAll(context.Background(), statuses, Options{
		OnSyncStart: func(slug string) { order = append(order, slug) },
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, order, 2)
	assert.Equal(t, []string{"producer", "consumer"}, order)
}

func TestRunAll_onlySyncsFiltersSelection(t *testing.T) {
	installFakeTool(t, "rsync", "exit 0")

	srcDir, dstDir := t.TempDir(), t.TempDir()
	keep, srcVol, dstVol := localSync("keep", srcDir, dstDir)
	skip, srcVol2, dstVol2 := localSync("skip", t.TempDir(), t.TempDir())

	r := newTestRunner(t, map[string]*config.SyncConfig{
		"keep": keep,
		"skip": skip,
	}, map[string]config.Volume{
		srcVol.Slug.String():  srcVol,
		dstVol.Slug.String():  dstVol,
		srcVol2.Slug.String(): srcVol2,
		dstVol2.Slug.String(): dstVol2,
	})

	statuses := map[string]preflight.SyncStatus{
		"keep": activeStatus(keep),
		"skip": activeStatus(skip),
	}
	results, err := r.RunAll(context.Background(), statuses, Options{OnlySyncs: []string{"keep"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "keep", results[0].SyncSlug)
}

func TestRunAll_hardLinkSyncCreatesSnapshotAndSymlink(t *testing.T) {
	installFakeTool(t, "rsync", "exit 0")

	srcDir, dstDir := t.TempDir(), t.TempDir()
	sync, srcVol, dstVol := localSync("hl", srcDir, dstDir)
	maxSnaps := 2
	sync.Destination.HardLinkSnapshots = config.HardLinkSnapshotConfig{Enabled: true, MaxSnapshots: &maxSnaps}

	r := newTestRunner(t, map[string]*config.SyncConfig{"hl": sync}, map[string]config.Volume{
		srcVol.Slug.String(): srcVol,
		dstVol.Slug.String(): dstVol,
	})

	oldNow := nowFunc
	defer func() { nowFunc = oldNow }()
	nowFunc = func() time.Time { return time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC) }

	statuses := map[string]preflight.SyncStatus{"hl": activeStatus(sync)}
	results, err := r.RunAll(context.Background(), statuses, Options{Prune: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	result := results[0]
	assert.True(t, result.Success)
	require.NotEmpty(t, result.SnapshotPath)
	assert.DirExists(t, result.SnapshotPath)

	latest := filepath.Join(dstDir, "latest")
	target, err := os.Readlink(latest)
	require.NoError(t, err)
	assert.Equal(t, "snapshots/2026-03-05T12:00:00.000Z", target)
}

func TestRunAll_btrfsSyncCreatesSnapshot(t *testing.T) {
	installFakeTool(t, "rsync", "exit 0")
	installFakeTool(t, "btrfs", `
case "$1 $2" in
  "subvolume snapshot")
    # usage: btrfs subvolume snapshot -r <src> <dst>
    shift 3
    mkdir -p "$2"
    exit 0
    ;;
  "subvolume delete")
    exit 0
    ;;
  "property set")
    exit 0
    ;;
esac
exit 1
`)

	srcDir, dstDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dstDir, "latest"), 0o755))
	sync, srcVol, dstVol := localSync("bt", srcDir, dstDir)
	sync.Destination.BtrfsSnapshots = config.BtrfsSnapshotConfig{Enabled: true}

	r := newTestRunner(t, map[string]*config.SyncConfig{"bt": sync}, map[string]config.Volume{
		srcVol.Slug.String(): srcVol,
		dstVol.Slug.String(): dstVol,
	})

	oldNow := nowFunc
	defer func() { nowFunc = oldNow }()
	nowFunc = func() time.Time { return time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC) }

	statuses := map[string]preflight.SyncStatus{"bt": activeStatus(sync)}
	results, err := r.RunAll(context.Background(), statuses, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	result := results[0]
	assert.True(t, result.Success)
	assert.Equal(t, filepath.Join(dstDir, "snapshots", "2026-03-05T12:00:00.000Z"), result.SnapshotPath)
	assert.DirExists(t, result.SnapshotPath)
}

// TestRunAll_seededConfigPassesPreflightThenSyncs exercises the full
// preflight-then-run path (rather than a hand-built SyncStatus) against a
// config seeded by internal/testkit, so it's grounded in the same
// fixture layout internal/testkit's own tests use instead of a bespoke
// marker-file dance.
func TestRunAll_seededConfigPassesPreflightThenSyncs(t *testing.T) {
	installFakeTool(t, "rsync", "exit 0")

	srcDir, dstDir := t.TempDir(), t.TempDir()
	sync, srcVol, dstVol := localSync("seeded", srcDir, dstDir)
	cfg := &config.Config{
		Volumes: map[string]config.Volume{
			srcVol.Slug.String(): srcVol,
			dstVol.Slug.String(): dstVol,
		},
		Syncs: map[string]*config.SyncConfig{"seeded": sync},
	}
	require.NoError(t, testkit.CreateSeedSentinels(cfg, nil))
	require.NoError(t, testkit.SeedData(srcVol, "", 0))

	checker, err := preflight.NewChecker(cfg)
	require.NoError(t, err)
	_, syncStatuses := checker.CheckAll(context.Background())
	require.True(t, syncStatuses["seeded"].Active(), "reasons: %v", syncStatuses["seeded"].Reasons)

	r := New(cfg, transfer.Endpoints{})
	results, err := r.RunAll(context.Background(), syncStatuses, Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success, results[0].Error)
}

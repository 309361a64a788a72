package testkit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsh2dsh/nbkp/config"
)

func localOnlyConfig(t *testing.T) (*config.Config, *config.LocalVolume, *config.LocalVolume) {
	t.Helper()
	srcDir, dstDir := t.TempDir(), t.TempDir()
	srcVol := &config.LocalVolume{Slug: "src", Path: srcDir}
	dstVol := &config.LocalVolume{Slug: "dst", Path: dstDir}
	maxSnaps := 5
	sync := &config.SyncConfig{
		Slug:    "plain",
		Enabled: true,
		Source:  config.SyncEndpoint{Volume: "src"},
		Destination: config.DestinationSyncEndpoint{
			SyncEndpoint:      config.SyncEndpoint{Volume: "dst"},
			HardLinkSnapshots: config.HardLinkSnapshotConfig{Enabled: true, MaxSnapshots: &maxSnaps},
		},
	}
	cfg := &config.Config{
		Volumes: map[string]config.Volume{"src": srcVol, "dst": dstVol},
		Syncs:   map[string]*config.SyncConfig{"plain": sync},
	}
	return cfg, srcVol, dstVol
}

func TestCreateSeedSentinels_local(t *testing.T) {
	cfg, srcVol, dstVol := localOnlyConfig(t)
	require.NoError(t, CreateSeedSentinels(cfg, nil))

	assert.FileExists(t, filepath.Join(srcVol.Path, ".nbkp-vol"))
	assert.FileExists(t, filepath.Join(dstVol.Path, ".nbkp-vol"))
	assert.FileExists(t, filepath.Join(srcVol.Path, ".nbkp-src"))
	assert.FileExists(t, filepath.Join(dstVol.Path, ".nbkp-dst"))
	assert.DirExists(t, filepath.Join(dstVol.Path, "snapshots"))
}

func TestSeedData_writesSampleFiles(t *testing.T) {
	cfg, srcVol, _ := localOnlyConfig(t)
	require.NoError(t, CreateSeedSentinels(cfg, nil))
	require.NoError(t, SeedData(srcVol, "", 0))

	assert.FileExists(t, filepath.Join(srcVol.Path, "sample.txt"))
	assert.FileExists(t, filepath.Join(srcVol.Path, "photo.jpg"))
	assert.FileExists(t, filepath.Join(srcVol.Path, "document.pdf"))
}

func TestSeedData_bigFile(t *testing.T) {
	srcVol := &config.LocalVolume{Slug: "src", Path: t.TempDir()}
	require.NoError(t, SeedData(srcVol, "", 2<<20))

	info, err := os.Stat(filepath.Join(srcVol.Path, "large-file.bin"))
	require.NoError(t, err)
	assert.EqualValues(t, 2<<20, info.Size())
}

func TestSampleConfig_isWellFormed(t *testing.T) {
	cfg := SampleConfig()
	assert.Len(t, cfg.Volumes, 3)
	assert.Len(t, cfg.Syncs, 3)
	assert.False(t, cfg.Syncs["disabled-backup"].Enabled)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testValidConfig(t *testing.T, input string) *Config {
	t.Helper()
	conf, err := LoadBytes([]byte(input))
	require.NoError(t, err)
	require.NotNil(t, conf)
	return conf
}

func testConfig(t *testing.T, input string) (*Config, error) {
	t.Helper()
	return LoadBytes([]byte(input))
}

func TestEmptyConfig(t *testing.T) {
	cases := []string{
		"",
		"\n",
		"---",
		"---\n",
	}
	for _, input := range cases {
		_, err := testConfig(t, input)
		t.Log(err)
		require.Error(t, err)
	}
}

const minimalValid = `
ssh-endpoints:
  backup-host:
    host: backup.example.com
    user: backup

volumes:
  photos:
    type: local
    path: /srv/photos
  offsite:
    type: remote
    ssh-endpoint: backup-host
    path: /mnt/backup/photos

syncs:
  photos-to-offsite:
    source:
      volume: photos
    destination:
      volume: offsite
`

func TestLoadBytes_minimalValid(t *testing.T) {
	c := testValidConfig(t, minimalValid)

	ep, ok := c.Endpoint("backup-host")
	require.True(t, ok)
	assert.Equal(t, "backup.example.com", ep.Host)
	assert.Equal(t, 22, ep.Port, "port should default to 22")
	assert.True(t, ep.ConnectionOptions.StrictHostKeyCheck, "strict host key checking defaults true")

	vol, ok := c.Vol("offsite")
	require.True(t, ok)
	assert.Equal(t, VolumeKindRemote, vol.Kind())

	sync, ok := c.Sync("photos-to-offsite")
	require.True(t, ok)
	assert.True(t, sync.Enabled, "sync enabled defaults true")
	assert.Equal(t, DefaultRsyncOptions, sync.EffectiveRsyncOptions())
}

func TestLoadBytes_volumeMissingType(t *testing.T) {
	_, err := testConfig(t, `
volumes:
  photos:
    path: /srv/photos
syncs:
  x:
    source: {volume: photos}
    destination: {volume: photos}
`)
	require.Error(t, err)
}

func TestLoadBytes_unknownProxyJump(t *testing.T) {
	_, err := testConfig(t, `
ssh-endpoints:
  leaf:
    host: leaf.example.com
    proxy-jump: ghost
volumes:
  photos:
    type: local
    path: /srv/photos
syncs: {}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown proxy-jump")
}

func TestLoadBytes_proxyJumpCycle(t *testing.T) {
	_, err := testConfig(t, `
ssh-endpoints:
  a:
    host: a.example.com
    proxy-jump: b
  b:
    host: b.example.com
    proxy-jump: a
volumes:
  photos:
    type: local
    path: /srv/photos
syncs: {}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular proxy-jump")
}

func TestLoadBytes_syncReferencesUnknownVolume(t *testing.T) {
	_, err := testConfig(t, `
volumes:
  photos:
    type: local
    path: /srv/photos
syncs:
  bad:
    source: {volume: photos}
    destination: {volume: nonexistent}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown destination volume")
}

func TestLoadBytes_bothSnapshotStrategiesRejected(t *testing.T) {
	_, err := testConfig(t, `
volumes:
  photos:
    type: local
    path: /srv/photos
  backups:
    type: local
    path: /srv/backups
syncs:
  bad:
    source: {volume: photos}
    destination:
      volume: backups
      btrfs-snapshots: {enabled: true}
      hard-link-snapshots: {enabled: true}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most one may be active")
}

func TestLoadBytes_filterNormalization(t *testing.T) {
	c := testValidConfig(t, `
volumes:
  photos:
    type: local
    path: /srv/photos
  backups:
    type: local
    path: /srv/backups
syncs:
  withfilters:
    source: {volume: photos}
    destination: {volume: backups}
    filters:
      - "+ *.jpg"
      - include: "*.png"
      - exclude: "*.tmp"
`)

	sync, ok := c.Sync("withfilters")
	require.True(t, ok)
	require.Len(t, sync.Filters, 3)
	assert.Equal(t, FilterRule("+ *.jpg"), sync.Filters[0])
	assert.Equal(t, FilterRule("+ *.png"), sync.Filters[1])
	assert.Equal(t, FilterRule("- *.tmp"), sync.Filters[2])
}

func TestLoadBytes_remoteVolumeUnknownEndpoint(t *testing.T) {
	_, err := testConfig(t, `
volumes:
  offsite:
    type: remote
    ssh-endpoint: ghost
    path: /mnt/backup
syncs: {}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ssh-endpoint")
}

func TestSlug_Valid(t *testing.T) {
	cases := map[string]bool{
		"photos":       true,
		"photos-2":     true,
		"a":            true,
		"":             false,
		"Photos":       false,
		"photos_2":     false,
		"-photos":      false,
		"photos-":      false,
	}
	for slug, want := range cases {
		assert.Equal(t, want, Slug(slug).Valid(), "slug %q", slug)
	}
}

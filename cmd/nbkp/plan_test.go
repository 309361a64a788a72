package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoSyncManifest = `
volumes:
  laptop:
    type: local
    path: /mnt/data
  usb:
    type: local
    path: /mnt/usb

syncs:
  photos:
    source:
      volume: laptop
      subdir: photos
    destination:
      volume: usb
  docs:
    source:
      volume: laptop
      subdir: docs
    destination:
      volume: usb
`

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestPlanCmd_printsDependencyOrder(t *testing.T) {
	path := writeManifest(t, twoSyncManifest)

	cmd := newPlanCmd()
	cmd.PersistentFlags().String("config", "", "")
	cmd.PersistentFlags().String("log-level", "", "")
	require.NoError(t, cmd.PersistentFlags().Set("config", path))
	cmd.SetArgs([]string{})

	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())

	output := out.String()
	assert.Contains(t, output, "photos")
	assert.Contains(t, output, "docs")
	assert.Contains(t, output, "[enabled]")
}

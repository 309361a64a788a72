// Package testkit seeds synthetic filesystem trees and sample
// configurations for tests.
package testkit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/preflight"
)

var sampleFiles = []struct{ name, content string }{
	{"sample.txt", "Sample data for backup testing\n"},
	{"photo.jpg", "fake jpeg data\n"},
	{"document.pdf", "fake pdf data\n"},
}

// RemoteExec runs a shell command on a remote volume's host, for tests
// exercising remote topologies against a real (or faked) SSH target.
// Left nil, remote volumes in the config are simply skipped.
type RemoteExec func(host, command string) error

// CreateSeedSentinels creates the volume/source/destination marker
// files (preflight.LocalVolumeMarker etc.) that internal/preflight
// probes for, for every volume and sync in cfg. Local volumes are
// populated directly; remote volumes only if remoteExec is non-nil.
func CreateSeedSentinels(cfg *config.Config, remoteExec RemoteExec) error {
	for _, vol := range cfg.Volumes {
		if err := seedVolumeMarker(vol, remoteExec); err != nil {
			return err
		}
	}
	for _, sync := range cfg.Syncs {
		if err := seedSourceSentinels(cfg, sync, remoteExec); err != nil {
			return err
		}
		if err := seedDestSentinels(cfg, sync, remoteExec); err != nil {
			return err
		}
	}
	return nil
}

func seedVolumeMarker(vol config.Volume, remoteExec RemoteExec) error {
	switch v := vol.(type) {
	case *config.LocalVolume:
		if err := os.MkdirAll(v.Path, 0o755); err != nil {
			return err
		}
		return touch(filepath.Join(v.Path, preflight.LocalVolumeMarker))
	case *config.RemoteVolume:
		if remoteExec == nil {
			return nil
		}
		if err := remoteExec(v.SshEndpoint, "mkdir -p "+v.Path); err != nil {
			return err
		}
		return remoteExec(v.SshEndpoint, "touch "+v.Path+"/"+preflight.LocalVolumeMarker)
	default:
		return fmt.Errorf("testkit: unsupported volume kind %T", vol)
	}
}

// seedSourceSentinels creates a source volume's directory and marker
// file. Unlike the Python original, this port's SyncEndpoint has no
// snapshot awareness on the source side (see DESIGN.md) — only
// destinations carry btrfs/hard-link config — so there is no
// snapshots/latest seeding to do here.
func seedSourceSentinels(cfg *config.Config, sync *config.SyncConfig, remoteExec RemoteExec) error {
	vol := cfg.Volumes[sync.Source.Volume]
	subdir := sync.Source.Subdir

	switch v := vol.(type) {
	case *config.LocalVolume:
		path := joinSubdir(v.Path, subdir)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
		return touch(filepath.Join(path, preflight.SourceEndpointMarker))
	case *config.RemoteVolume:
		if remoteExec == nil {
			return nil
		}
		rp := joinSubdir(v.Path, subdir)
		if err := remoteExec(v.SshEndpoint, "mkdir -p "+rp); err != nil {
			return err
		}
		return remoteExec(v.SshEndpoint, "touch "+rp+"/"+preflight.SourceEndpointMarker)
	default:
		return fmt.Errorf("testkit: unsupported volume kind %T", vol)
	}
}

func seedDestSentinels(cfg *config.Config, sync *config.SyncConfig, remoteExec RemoteExec) error {
	vol := cfg.Volumes[sync.Destination.Volume]
	subdir := sync.Destination.Subdir
	hardLink := sync.Destination.HardLinkSnapshots.Enabled
	btrfsEnabled := sync.Destination.BtrfsSnapshots.Enabled

	switch v := vol.(type) {
	case *config.LocalVolume:
		path := joinSubdir(v.Path, subdir)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
		if err := touch(filepath.Join(path, preflight.DestEndpointMarker)); err != nil {
			return err
		}
		switch {
		case hardLink:
			return os.MkdirAll(filepath.Join(path, "snapshots"), 0o755)
		case btrfsEnabled:
			if err := os.MkdirAll(filepath.Join(path, "latest"), 0o755); err != nil {
				return err
			}
			return os.MkdirAll(filepath.Join(path, "snapshots"), 0o755)
		default:
			return os.MkdirAll(filepath.Join(path, "latest"), 0o755)
		}
	case *config.RemoteVolume:
		if remoteExec == nil {
			return nil
		}
		rp := joinSubdir(v.Path, subdir)
		if err := remoteExec(v.SshEndpoint, "mkdir -p "+rp); err != nil {
			return err
		}
		if err := remoteExec(v.SshEndpoint, "touch "+rp+"/"+preflight.DestEndpointMarker); err != nil {
			return err
		}
		switch {
		case hardLink:
			return remoteExec(v.SshEndpoint, "mkdir -p "+rp+"/snapshots")
		case btrfsEnabled:
			if err := remoteExec(v.SshEndpoint, "test -e "+rp+"/latest || btrfs subvolume create "+rp+"/latest"); err != nil {
				return err
			}
			return remoteExec(v.SshEndpoint, "mkdir -p "+rp+"/snapshots")
		default:
			return remoteExec(v.SshEndpoint, "mkdir -p "+rp+"/latest")
		}
	default:
		return fmt.Errorf("testkit: unsupported volume kind %T", vol)
	}
}

// SeedData writes the sample-file set (plus, if bigFileSizeBytes > 0,
// a zeroed filler file) into a single local source volume's path.
func SeedData(vol *config.LocalVolume, subdir string, bigFileSizeBytes int64) error {
	path := joinSubdir(vol.Path, subdir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	for _, f := range sampleFiles {
		if err := os.WriteFile(filepath.Join(path, f.name), []byte(f.content), 0o644); err != nil {
			return err
		}
	}
	if bigFileSizeBytes > 0 {
		return writeZeroedFile(filepath.Join(path, "large-file.bin"), bigFileSizeBytes)
	}
	return nil
}

func writeZeroedFile(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	const chunkSize = 1 << 20
	chunk := make([]byte, chunkSize)
	for remaining := size; remaining > 0; {
		n := int64(chunkSize)
		if remaining < n {
			n = remaining
		}
		if _, err := f.Write(chunk[:n]); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

func joinSubdir(base, subdir string) string {
	if subdir == "" {
		return base
	}
	return filepath.Join(base, subdir)
}

func touch(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}

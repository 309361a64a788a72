package testkit

import "github.com/dsh2dsh/nbkp/config"

// BastionEndpoint returns a sample jump-host SSH endpoint.
func BastionEndpoint() *config.SshEndpoint {
	return &config.SshEndpoint{Slug: "bastion", Host: "bastion.example.com", Port: 22, User: "admin"}
}

// NasEndpoint returns a sample endpoint reached through BastionEndpoint.
func NasEndpoint() *config.SshEndpoint {
	return &config.SshEndpoint{
		Slug:      "nas",
		Host:      "nas.example.com",
		Port:      5022,
		User:      "backup",
		Key:       "~/.ssh/nas_ed25519",
		ProxyJump: "bastion",
	}
}

// BaseVolumes returns a small mixed local/remote volume set, keyed by
// slug, for tests that need more than one volume wired together.
func BaseVolumes() map[string]config.Volume {
	return map[string]config.Volume{
		"laptop":    &config.LocalVolume{Slug: "laptop", Path: "/mnt/data"},
		"usb-drive": &config.LocalVolume{Slug: "usb-drive", Path: "/mnt/usb-backup"},
		"nas-backup": &config.RemoteVolume{
			Slug:        "nas-backup",
			SshEndpoint: "nas",
			Path:        "/volume1/backups",
		},
	}
}

// SampleConfig returns a Config exercising a btrfs-backed sync, a
// plain-mirror remote sync, and a disabled sync, for tests and demos
// that need a representative manifest without hand-rolling one.
func SampleConfig() *config.Config {
	maxSnaps := 10
	return &config.Config{
		SshEndpoints: map[string]*config.SshEndpoint{
			"bastion": BastionEndpoint(),
			"nas":     NasEndpoint(),
		},
		Volumes: BaseVolumes(),
		Syncs: map[string]*config.SyncConfig{
			"photos-to-usb": {
				Slug:    "photos-to-usb",
				Enabled: true,
				Source:  config.SyncEndpoint{Volume: "laptop", Subdir: "photos"},
				Destination: config.DestinationSyncEndpoint{
					SyncEndpoint:   config.SyncEndpoint{Volume: "usb-drive"},
					BtrfsSnapshots: config.BtrfsSnapshotConfig{Enabled: true, MaxSnapshots: &maxSnaps},
				},
				Filters: []config.FilterRule{"+ *.jpg", "- *.tmp"},
			},
			"docs-to-nas": {
				Slug:    "docs-to-nas",
				Enabled: true,
				Source:  config.SyncEndpoint{Volume: "laptop", Subdir: "documents"},
				Destination: config.DestinationSyncEndpoint{
					SyncEndpoint: config.SyncEndpoint{Volume: "nas-backup", Subdir: "docs"},
				},
			},
			"disabled-backup": {
				Slug:    "disabled-backup",
				Enabled: false,
				Source:  config.SyncEndpoint{Volume: "laptop"},
				Destination: config.DestinationSyncEndpoint{
					SyncEndpoint: config.SyncEndpoint{Volume: "usb-drive"},
				},
			},
		},
	}
}

// Package preflight probes every configured volume and sync before a run,
// accumulating every reason a target is unavailable instead of stopping at
// the first one.
package preflight

import "github.com/dsh2dsh/nbkp/config"

// VolumeReason names one specific cause of a volume being inactive.
type VolumeReason string

const (
	VolumeMarkerNotFound VolumeReason = "marker not found"
	VolumeUnreachable    VolumeReason = "unreachable"
)

func (r VolumeReason) String() string { return string(r) }

// SyncReason names one specific cause of a sync being inactive.
type SyncReason string

const (
	SyncDisabled                   SyncReason = "disabled"
	SyncSourceUnavailable          SyncReason = "source unavailable"
	SyncDestinationUnavailable     SyncReason = "destination unavailable"
	SyncSourceMarkerNotFound       SyncReason = "source marker not found"
	SyncDestinationMarkerNotFound  SyncReason = "destination marker not found"
	SyncRsyncNotFoundOnSource      SyncReason = "rsync not found on source"
	SyncRsyncNotFoundOnDestination SyncReason = "rsync not found on destination"
	SyncBtrfsNotFoundOnDestination SyncReason = "btrfs not found on destination"

	SyncStatNotFoundOnDestination         SyncReason = "stat not found on destination"
	SyncFindmntNotFoundOnDestination      SyncReason = "findmnt not found on destination"
	SyncDestinationNotBtrfs               SyncReason = "destination not btrfs"
	SyncDestinationNotBtrfsSubvolume      SyncReason = "destination not a btrfs subvolume"
	SyncDestinationNotMountedUserSubvolRm SyncReason = "destination not mounted with user_subvol_rm_allowed"
	SyncDestinationLatestNotFound         SyncReason = "destination latest directory not found"
	SyncDestinationSnapshotsDirNotFound   SyncReason = "destination snapshots directory not found"
	SyncDestinationNoHardlinkSupport      SyncReason = "destination filesystem has no hard-link support"
)

func (r SyncReason) String() string { return string(r) }

// VolumeStatus is the runtime status of one configured volume.
type VolumeStatus struct {
	Slug    string
	Config  config.Volume
	Reasons []VolumeReason
}

// Active reports whether the volume passed every check.
func (s VolumeStatus) Active() bool { return len(s.Reasons) == 0 }

// SyncStatus is the runtime status of one configured sync.
type SyncStatus struct {
	Slug              string
	Config            *config.SyncConfig
	SourceStatus      VolumeStatus
	DestinationStatus VolumeStatus
	Reasons           []SyncReason
}

// Active reports whether the sync passed every check and may run.
func (s SyncStatus) Active() bool { return len(s.Reasons) == 0 }

package preflight

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"strings"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/logging"
	"github.com/dsh2dsh/nbkp/internal/resolve"
	"github.com/dsh2dsh/nbkp/internal/sshexec"
)

// fsTypesWithoutHardlinkSupport lists the `stat -f -c %T` filesystem type
// names the hard-link strategy cannot run on.
var fsTypesWithoutHardlinkSupport = map[string]bool{
	"vfat":  true,
	"exfat": true,
	"msdos": true,
}

// Marker file names probed on volumes and sync endpoints. Exported so
// internal/scriptgen can render the same checks into its generated shell
// script instead of hardcoding a second copy of these names.
const (
	LocalVolumeMarker    = ".nbkp-vol"
	SourceEndpointMarker = ".nbkp-src"
	DestEndpointMarker   = ".nbkp-dst"
)

// Checker runs volume and sync probes against a resolved configuration.
type Checker struct {
	cfg       *config.Config
	endpoints map[string]resolve.Endpoint
}

// NewChecker builds a Checker for cfg, resolving every remote volume's SSH
// endpoint and proxy chain up front.
func NewChecker(cfg *config.Config) (*Checker, error) {
	endpoints, err := resolve.All(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve endpoints: %w", err)
	}
	return &Checker{cfg: cfg, endpoints: endpoints}, nil
}

// CheckAll probes every volume, then every sync, caching volume results so
// a volume shared by several syncs is only probed once.
func (c *Checker) CheckAll(ctx context.Context) (map[string]VolumeStatus, map[string]SyncStatus) {
	log := logging.GetLogger(ctx, logging.SubsysPreflight)

	volStatuses := make(map[string]VolumeStatus, len(c.cfg.Volumes))
	for slug, vol := range c.cfg.Volumes {
		status := c.checkVolume(ctx, slug, vol)
		if !status.Active() {
			log.Warn("volume check failed", "volume", slug, "reasons", status.Reasons)
		}
		volStatuses[slug] = status
	}

	syncStatuses := make(map[string]SyncStatus, len(c.cfg.Syncs))
	for slug, sync := range c.cfg.Syncs {
		status := c.checkSync(ctx, slug, sync, volStatuses)
		if !status.Active() {
			log.Info("sync inactive", "sync", slug, "reasons", status.Reasons)
		}
		syncStatuses[slug] = status
	}
	return volStatuses, syncStatuses
}

func (c *Checker) checkVolume(ctx context.Context, slug string, vol config.Volume) VolumeStatus {
	var reasons []VolumeReason
	switch v := vol.(type) {
	case *config.LocalVolume:
		marker := path.Join(v.Path, LocalVolumeMarker)
		if _, err := os.Stat(marker); err != nil {
			reasons = append(reasons, VolumeMarkerNotFound)
		}
	case *config.RemoteVolume:
		ep := c.endpoints[slug]
		marker := path.Join(v.Path, LocalVolumeMarker)
		res, err := sshexec.Run(ctx, ep.Server, []string{"test", "-f", marker}, ep.ProxyChain)
		if err != nil || res.ExitCode != 0 {
			reasons = append(reasons, VolumeUnreachable)
		}
	}
	return VolumeStatus{Slug: slug, Config: vol, Reasons: reasons}
}

func (c *Checker) checkEndpointMarker(ctx context.Context, volSlug string, vol config.Volume, subdir, markerName string) bool {
	relPath := path.Join(vol.GetPath(), subdir, markerName)
	switch v := vol.(type) {
	case *config.LocalVolume:
		_, err := os.Stat(relPath)
		return err == nil
	case *config.RemoteVolume:
		_ = v
		ep := c.endpoints[volSlug]
		res, err := sshexec.Run(ctx, ep.Server, []string{"test", "-f", relPath}, ep.ProxyChain)
		return err == nil && res.ExitCode == 0
	}
	return false
}

func (c *Checker) commandAvailable(ctx context.Context, volSlug string, vol config.Volume, command string) bool {
	switch vol.(type) {
	case *config.LocalVolume:
		_, err := exec.LookPath(command)
		return err == nil
	case *config.RemoteVolume:
		ep := c.endpoints[volSlug]
		res, err := sshexec.Run(ctx, ep.Server, []string{"which", command}, ep.ProxyChain)
		return err == nil && res.ExitCode == 0
	}
	return false
}

// runCommand runs args against vol's host (locally via exec.CommandContext,
// or over SSH via sshexec.Run) and captures stdout. Like sshexec.Run, a
// non-zero exit is reported through exitCode rather than err.
func (c *Checker) runCommand(ctx context.Context, volSlug string, vol config.Volume, args []string) (stdout string, exitCode int, err error) {
	switch vol.(type) {
	case *config.LocalVolume:
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		var out bytes.Buffer
		cmd.Stdout = &out
		runErr := cmd.Run()
		var exitErr *exec.ExitError
		switch {
		case runErr == nil:
			return out.String(), 0, nil
		case errors.As(runErr, &exitErr):
			return out.String(), exitErr.ExitCode(), nil
		default:
			return "", -1, runErr
		}
	case *config.RemoteVolume:
		ep := c.endpoints[volSlug]
		res, err := sshexec.Run(ctx, ep.Server, args, ep.ProxyChain)
		if err != nil {
			return "", -1, err
		}
		return res.Stdout, res.ExitCode, nil
	default:
		return "", -1, fmt.Errorf("preflight: unsupported volume kind %T", vol)
	}
}

// dirExists reports whether dirPath is a directory on vol's host.
func (c *Checker) dirExists(ctx context.Context, volSlug string, vol config.Volume, dirPath string) bool {
	switch vol.(type) {
	case *config.LocalVolume:
		info, err := os.Stat(dirPath)
		return err == nil && info.IsDir()
	case *config.RemoteVolume:
		_, code, err := c.runCommand(ctx, volSlug, vol, []string{"test", "-d", dirPath})
		return err == nil && code == 0
	}
	return false
}

// checkBtrfsDestination implements spec's btrfs destination taxonomy:
// stat/findmnt presence, filesystem type, subvolume inode sentinel, mount
// options, and the latest/snapshots directory layout. Every applicable
// reason is accumulated; a missing tool only disables the probes that
// depend on it.
func (c *Checker) checkBtrfsDestination(ctx context.Context, dstSlug string, dstVol config.Volume, subdir string) []SyncReason {
	var reasons []SyncReason
	volPath := dstVol.GetPath()
	endpointPath := path.Join(volPath, subdir)

	hasStat := c.commandAvailable(ctx, dstSlug, dstVol, "stat")
	if !hasStat {
		reasons = append(reasons, SyncStatNotFoundOnDestination)
	}
	hasFindmnt := c.commandAvailable(ctx, dstSlug, dstVol, "findmnt")
	if !hasFindmnt {
		reasons = append(reasons, SyncFindmntNotFoundOnDestination)
	}

	if hasStat {
		out, code, err := c.runCommand(ctx, dstSlug, dstVol, []string{"stat", "-f", "-c", "%T", volPath})
		if err != nil || code != 0 || strings.TrimSpace(out) != "btrfs" {
			reasons = append(reasons, SyncDestinationNotBtrfs)
		}

		out, code, err = c.runCommand(ctx, dstSlug, dstVol, []string{"stat", "-c", "%i", endpointPath})
		if err != nil || code != 0 || strings.TrimSpace(out) != "256" {
			reasons = append(reasons, SyncDestinationNotBtrfsSubvolume)
		}
	}

	if hasFindmnt {
		out, code, err := c.runCommand(ctx, dstSlug, dstVol, []string{"findmnt", "-n", "-o", "OPTIONS", volPath})
		if err != nil || code != 0 || !strings.Contains(out, "user_subvol_rm_allowed") {
			reasons = append(reasons, SyncDestinationNotMountedUserSubvolRm)
		}
	}

	if !c.dirExists(ctx, dstSlug, dstVol, path.Join(endpointPath, "latest")) {
		reasons = append(reasons, SyncDestinationLatestNotFound)
	}
	if !c.dirExists(ctx, dstSlug, dstVol, path.Join(endpointPath, "snapshots")) {
		reasons = append(reasons, SyncDestinationSnapshotsDirNotFound)
	}
	return reasons
}

// checkHardLinkDestination implements spec's hard-link destination
// taxonomy: stat presence, the snapshots directory, and a denylist of
// filesystem types (vfat/exfat/msdos) that don't support hard links.
func (c *Checker) checkHardLinkDestination(ctx context.Context, dstSlug string, dstVol config.Volume, subdir string) []SyncReason {
	var reasons []SyncReason
	volPath := dstVol.GetPath()
	endpointPath := path.Join(volPath, subdir)

	hasStat := c.commandAvailable(ctx, dstSlug, dstVol, "stat")
	if !hasStat {
		reasons = append(reasons, SyncStatNotFoundOnDestination)
	}

	if !c.dirExists(ctx, dstSlug, dstVol, path.Join(endpointPath, "snapshots")) {
		reasons = append(reasons, SyncDestinationSnapshotsDirNotFound)
	}

	if hasStat {
		out, code, err := c.runCommand(ctx, dstSlug, dstVol, []string{"stat", "-f", "-c", "%T", volPath})
		if err != nil || code != 0 || fsTypesWithoutHardlinkSupport[strings.TrimSpace(out)] {
			reasons = append(reasons, SyncDestinationNoHardlinkSupport)
		}
	}
	return reasons
}

func (c *Checker) checkSync(ctx context.Context, slug string, sync *config.SyncConfig, volStatuses map[string]VolumeStatus) SyncStatus {
	srcSlug := sync.Source.Volume
	dstSlug := sync.Destination.Volume
	srcStatus := volStatuses[srcSlug]
	dstStatus := volStatuses[dstSlug]

	if !sync.Enabled {
		return SyncStatus{
			Slug:              slug,
			Config:            sync,
			SourceStatus:      srcStatus,
			DestinationStatus: dstStatus,
			Reasons:           []SyncReason{SyncDisabled},
		}
	}

	var reasons []SyncReason
	srcVol := c.cfg.Volumes[srcSlug]
	dstVol := c.cfg.Volumes[dstSlug]

	if !srcStatus.Active() {
		reasons = append(reasons, SyncSourceUnavailable)
	}
	if !dstStatus.Active() {
		reasons = append(reasons, SyncDestinationUnavailable)
	}

	if srcStatus.Active() {
		if !c.checkEndpointMarker(ctx, srcSlug, srcVol, sync.Source.Subdir, SourceEndpointMarker) {
			reasons = append(reasons, SyncSourceMarkerNotFound)
		}
		if !c.commandAvailable(ctx, srcSlug, srcVol, "rsync") {
			reasons = append(reasons, SyncRsyncNotFoundOnSource)
		}
	}

	if dstStatus.Active() {
		if !c.checkEndpointMarker(ctx, dstSlug, dstVol, sync.Destination.Subdir, DestEndpointMarker) {
			reasons = append(reasons, SyncDestinationMarkerNotFound)
		}
		if !c.commandAvailable(ctx, dstSlug, dstVol, "rsync") {
			reasons = append(reasons, SyncRsyncNotFoundOnDestination)
		}
		switch sync.Destination.Mode() {
		case config.SnapshotModeBtrfs:
			if !c.commandAvailable(ctx, dstSlug, dstVol, "btrfs") {
				reasons = append(reasons, SyncBtrfsNotFoundOnDestination)
			}
			reasons = append(reasons, c.checkBtrfsDestination(ctx, dstSlug, dstVol, sync.Destination.Subdir)...)
		case config.SnapshotModeHardLink:
			reasons = append(reasons, c.checkHardLinkDestination(ctx, dstSlug, dstVol, sync.Destination.Subdir)...)
		}
	}

	return SyncStatus{
		Slug:              slug,
		Config:            sync,
		SourceStatus:      srcStatus,
		DestinationStatus: dstStatus,
		Reasons:           reasons,
	}
}

package scriptgen

import (
	"fmt"
	"strings"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/preflight"
	"github.com/dsh2dsh/nbkp/internal/resolve"
	"github.com/dsh2dsh/nbkp/internal/sshexec"
)

func remoteShellWords(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = sq(a)
	}
	return strings.Join(parts, " ")
}

func formatRemoteCommand(ep resolve.Endpoint, argv []string, suffix string) string {
	sshArgs := sshexec.BuildBaseArgs(ep.Server, ep.ProxyChain)
	remoteCmd := strings.Join(argvQuote(argv), " ")
	return remoteShellWords(sshArgs) + " " + sq(remoteCmd) + suffix
}

func argvQuote(argv []string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = shQuote(a)
	}
	return out
}

// shQuote quotes one word of a command that will run inside a remote
// `sh -c`-style string, as opposed to qp's local script-source quoting.
func shQuote(s string) string { return sq(s) }

func testCommand(vol config.Volume, slug string, endpoints map[string]resolve.Endpoint, testArgs []string) string {
	switch vol.(type) {
	case *config.LocalVolume:
		words := make([]string, len(testArgs))
		for i, a := range testArgs {
			words[i] = qp(a)
		}
		return "test " + strings.Join(words, " ")
	case *config.RemoteVolume:
		ep := endpoints[slug]
		return formatRemoteCommand(ep, append([]string{"test"}, testArgs...), "")
	default:
		return "true"
	}
}

func whichCommand(vol config.Volume, slug string, endpoints map[string]resolve.Endpoint, command string) string {
	switch vol.(type) {
	case *config.LocalVolume:
		return fmt.Sprintf("command -v %s >/dev/null 2>&1", sq(command))
	case *config.RemoteVolume:
		ep := endpoints[slug]
		return formatRemoteCommand(ep, []string{"which", command}, " >/dev/null 2>&1")
	default:
		return "false"
	}
}

func lsSnapshotsCommand(vol config.Volume, slug string, endpoints map[string]resolve.Endpoint, snapsDir string) string {
	switch vol.(type) {
	case *config.LocalVolume:
		return "ls " + qp(snapsDir)
	case *config.RemoteVolume:
		ep := endpoints[slug]
		return formatRemoteCommand(ep, []string{"ls", snapsDir}, "")
	default:
		return "true"
	}
}

func checkLine(cmd, errMsg string) string {
	return fmt.Sprintf(`%s || { nbkp_log "ERROR: %s"; return 1; }`, cmd, errMsg)
}

func whichLine(vol config.Volume, slug string, endpoints map[string]resolve.Endpoint, command, errMsg string) string {
	return checkLine(whichCommand(vol, slug, endpoints, command), errMsg)
}

// volumeCheckLine renders the best-effort marker warning emitted once per
// configured volume, regardless of whether any sync references it.
func volumeCheckLine(slug string, vol config.Volume, endpoints map[string]resolve.Endpoint) string {
	marker := vol.GetPath() + "/" + preflight.LocalVolumeMarker
	cmd := testCommand(vol, slug, endpoints, []string{"-f", marker})
	return fmt.Sprintf(`%s || nbkp_log "WARN: volume %s: marker %s not found"`, cmd, slug, marker)
}

// preflightBlock renders the marker/tooling checks run at the top of a
// sync function, mirroring internal/preflight.Checker's own checks.
func preflightBlock(sync *config.SyncConfig, cfg *config.Config, endpoints map[string]resolve.Endpoint, srcPath, dstPath string) string {
	srcSlug, dstSlug := sync.Source.Volume, sync.Destination.Volume
	srcVol, dstVol := cfg.Volumes[srcSlug], cfg.Volumes[dstSlug]

	var lines []string
	srcMarker := srcPath + "/" + preflight.SourceEndpointMarker
	lines = append(lines, checkLine(testCommand(srcVol, srcSlug, endpoints, []string{"-f", srcMarker}),
		fmt.Sprintf("source marker %s not found", srcMarker)))

	dstMarker := dstPath + "/" + preflight.DestEndpointMarker
	lines = append(lines, checkLine(testCommand(dstVol, dstSlug, endpoints, []string{"-f", dstMarker}),
		fmt.Sprintf("destination marker %s not found", dstMarker)))

	lines = append(lines, whichLine(srcVol, srcSlug, endpoints, "rsync", "rsync not found on source"))
	lines = append(lines, whichLine(dstVol, dstSlug, endpoints, "rsync", "rsync not found on destination"))

	switch sync.Destination.Mode() {
	case config.SnapshotModeBtrfs:
		lines = append(lines, whichLine(dstVol, dstSlug, endpoints, "btrfs", "btrfs not found on destination"))
		latestDir := dstPath + "/latest"
		lines = append(lines, checkLine(testCommand(dstVol, dstSlug, endpoints, []string{"-d", latestDir}),
			fmt.Sprintf("destination latest/ directory not found (%s)", latestDir)))
		snapsDir := dstPath + "/snapshots"
		lines = append(lines, checkLine(testCommand(dstVol, dstSlug, endpoints, []string{"-d", snapsDir}),
			fmt.Sprintf("destination snapshots/ directory not found (%s)", snapsDir)))
	case config.SnapshotModeHardLink:
		lines = append(lines, whichLine(dstVol, dstSlug, endpoints, "cp", "cp/ln not found on destination"))
		snapsDir := dstPath + "/snapshots"
		lines = append(lines, checkLine(testCommand(dstVol, dstSlug, endpoints, []string{"-d", snapsDir}),
			fmt.Sprintf("destination snapshots/ directory not found (%s)", snapsDir)))
	}

	return strings.Join(lines, "\n")
}

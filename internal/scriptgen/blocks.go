package scriptgen

import (
	"fmt"
	"strings"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/resolve"
	"github.com/dsh2dsh/nbkp/internal/snapshot/btrfs"
	"github.com/dsh2dsh/nbkp/internal/snapshot/hardlink"
	"github.com/dsh2dsh/nbkp/internal/sshexec"
	"github.com/dsh2dsh/nbkp/internal/transfer"
)

// hostCommandLine renders argv as a shell command for vol: a plain
// single line for a local volume, or the argv wrapped in the matching
// ssh invocation for a remote one.
func hostCommandLine(vol config.Volume, slug string, endpoints map[string]resolve.Endpoint, argv []string) string {
	switch vol.(type) {
	case *config.LocalVolume:
		words := make([]string, len(argv))
		for i, a := range argv {
			words[i] = qp(a)
		}
		return strings.Join(words, " ")
	case *config.RemoteVolume:
		ep := endpoints[slug]
		return formatRemoteCommand(ep, argv, "")
	default:
		return "true"
	}
}

const runtimeFlagsBlock = `NBKP_DRY_RUN_FLAG=""
if [ "$NBKP_DRY_RUN" = true ]; then NBKP_DRY_RUN_FLAG="--dry-run"; fi
NBKP_VERBOSE_FLAG=""
if [ "$NBKP_VERBOSE" -ge 3 ]; then NBKP_VERBOSE_FLAG="-vvv"
elif [ "$NBKP_VERBOSE" -ge 2 ]; then NBKP_VERBOSE_FLAG="-vv"
elif [ "$NBKP_VERBOSE" -ge 1 ]; then NBKP_VERBOSE_FLAG="-v"
fi`

func linkDestBlock(dstVol config.Volume, dstSlug string, endpoints map[string]resolve.Endpoint, snapsDir string) string {
	lsCmd := lsSnapshotsCommand(dstVol, dstSlug, endpoints, snapsDir)
	return fmt.Sprintf(`NBKP_LATEST_SNAP=$(%s 2>/dev/null | sort | tail -1)
NBKP_LINK_DEST=""
if [ -n "$NBKP_LATEST_SNAP" ]; then
    NBKP_LINK_DEST="--link-dest=../$NBKP_LATEST_SNAP"
fi`, lsCmd)
}

// rsyncBlock renders the rsync invocation, with the dry-run/verbose flags
// (and, for snapshot strategies, link-dest) spliced in at runtime rather
// than baked into the static argv.
func rsyncBlock(sync *config.SyncConfig, srcVol, dstVol config.Volume, endpoints transfer.Endpoints, destSuffix string, withLinkDest bool) (string, error) {
	argv, err := transfer.BuildCommand(sync, srcVol, dstVol, endpoints, transfer.Options{DestSuffix: destSuffix})
	if err != nil {
		return "", err
	}
	runtimeVars := []string{
		`${NBKP_DRY_RUN_FLAG:+"$NBKP_DRY_RUN_FLAG"}`,
		`${NBKP_VERBOSE_FLAG:+"$NBKP_VERBOSE_FLAG"}`,
	}
	if withLinkDest {
		runtimeVars = append([]string{`${NBKP_LINK_DEST:+"$NBKP_LINK_DEST"}`}, runtimeVars...)
	}
	formatted := formatShellCommand(argv, "    ")
	return formatted + " \\\n    " + strings.Join(runtimeVars, " \\\n    "), nil
}

func btrfsSnapshotBlock(dstVol config.Volume, dstSlug string, endpoints map[string]resolve.Endpoint, destPath string) string {
	latest := destPath + "/latest"
	snapsDir := destPath + "/snapshots"
	snapCmd := hostCommandLine(dstVol, dstSlug, endpoints, btrfs.SnapshotArgs(latest, snapsDir+"/$NBKP_TS"))
	return fmt.Sprintf(`if [ "$NBKP_DRY_RUN" = false ]; then
    NBKP_TS=$(date -u +%%Y-%%m-%%dT%%H:%%M:%%S.000Z)
    %s
fi`, snapCmd)
}

func btrfsPropSetLine(dstVol config.Volume, dstSlug string, endpoints map[string]resolve.Endpoint, snapsDir string) string {
	switch dstVol.(type) {
	case *config.LocalVolume:
		return fmt.Sprintf(`btrfs property set %s/"$snap" ro false`, qp(snapsDir))
	case *config.RemoteVolume:
		ep := endpoints[dstSlug]
		sshArgs := sshexec.BuildBaseArgs(ep.Server, ep.ProxyChain)
		return remoteShellWords(sshArgs) + ` "btrfs property set ` + snapsDir + `/$snap ro false"`
	default:
		return "true"
	}
}

func btrfsDeleteLine(dstVol config.Volume, dstSlug string, endpoints map[string]resolve.Endpoint, snapsDir string) string {
	switch dstVol.(type) {
	case *config.LocalVolume:
		return fmt.Sprintf(`btrfs subvolume delete %s/"$snap"`, qp(snapsDir))
	case *config.RemoteVolume:
		ep := endpoints[dstSlug]
		sshArgs := sshexec.BuildBaseArgs(ep.Server, ep.ProxyChain)
		return remoteShellWords(sshArgs) + ` "btrfs subvolume delete ` + snapsDir + `/$snap"`
	default:
		return "true"
	}
}

func hardlinkDeleteLine(dstVol config.Volume, dstSlug string, endpoints map[string]resolve.Endpoint, snapsDir string) string {
	switch dstVol.(type) {
	case *config.LocalVolume:
		return fmt.Sprintf(`rm -rf %s/"$snap"`, qp(snapsDir))
	case *config.RemoteVolume:
		ep := endpoints[dstSlug]
		sshArgs := sshexec.BuildBaseArgs(ep.Server, ep.ProxyChain)
		return remoteShellWords(sshArgs) + ` "rm -rf ` + snapsDir + `/$snap"`
	default:
		return "true"
	}
}

// pruneBlock renders the excess-snapshot cleanup loop shared by both
// snapshot strategies; propCmd is empty for hard-link, which has no
// read-only property to clear first.
func pruneBlock(lsCmd, propCmd, delCmd string, maxSnapshots int) string {
	var body strings.Builder
	body.WriteString("        nbkp_log \"Pruning snapshot: $snap\"\n")
	if propCmd != "" {
		fmt.Fprintf(&body, "            %s\n", propCmd)
	}
	fmt.Fprintf(&body, "            %s\n", delCmd)

	return fmt.Sprintf(`if [ "$NBKP_DRY_RUN" = false ]; then
    NBKP_SNAPS=$(%s | sort)
    NBKP_COUNT=$(echo "$NBKP_SNAPS" | wc -l | tr -d ' ')
    NBKP_EXCESS=$((NBKP_COUNT - %d))
    if [ "$NBKP_EXCESS" -gt 0 ]; then
        echo "$NBKP_SNAPS" | head -n "$NBKP_EXCESS" | while IFS= read -r snap; do
%s        done
    fi
fi`, lsCmd, maxSnapshots, body.String())
}

// hardlinkSymlinkLine retargets "latest" to point at the new snapshot.
func hardlinkSymlinkLine(dstVol config.Volume, dstSlug string, endpoints map[string]resolve.Endpoint, target, latestPath string) string {
	return hostCommandLine(dstVol, dstSlug, endpoints, hardlink.SymlinkArgs(target, latestPath))
}

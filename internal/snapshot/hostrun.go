// Package snapshot holds what's shared between the btrfs and hard-link
// snapshot strategies: running a shell command against whichever kind of
// volume a destination happens to be.
package snapshot

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/resolve"
	"github.com/dsh2dsh/nbkp/internal/sshexec"
)

// Endpoints resolves a volume slug to its SSH endpoint + proxy chain.
type Endpoints map[string]resolve.Endpoint

// HostResult is the outcome of a command run via RunOn.
type HostResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// RunOn runs args against vol: locally via os/exec for a LocalVolume, over
// SSH for a RemoteVolume. Returns an error only for failures to even
// launch the command (a non-zero exit is reported via HostResult).
func RunOn(ctx context.Context, vol config.Volume, endpoints Endpoints, args []string) (HostResult, error) {
	switch v := vol.(type) {
	case *config.LocalVolume:
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		out, err := cmd.Output()
		var stderr string
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = string(ee.Stderr)
			return HostResult{ExitCode: ee.ExitCode(), Stdout: string(out), Stderr: stderr}, nil
		} else if err != nil {
			return HostResult{}, fmt.Errorf("run %v: %w", args, err)
		}
		return HostResult{ExitCode: 0, Stdout: string(out)}, nil
	case *config.RemoteVolume:
		ep, ok := endpoints[string(v.Slug)]
		if !ok {
			return HostResult{}, fmt.Errorf("no resolved endpoint for volume %q", v.Slug)
		}
		res, err := sshexec.Run(ctx, ep.Server, args, ep.ProxyChain)
		if err != nil {
			return HostResult{}, err
		}
		return HostResult{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}, nil
	default:
		return HostResult{}, fmt.Errorf("unsupported volume kind %T", vol)
	}
}

// ResolveDestPath returns the destination path for a sync (volume root
// plus optional subdir).
func ResolveDestPath(sync *config.SyncConfig, dstVol config.Volume) string {
	if sync.Destination.Subdir == "" {
		return dstVol.GetPath()
	}
	return dstVol.GetPath() + "/" + sync.Destination.Subdir
}

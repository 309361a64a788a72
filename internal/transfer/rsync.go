// Package transfer builds and runs the rsync command for a sync
// operation, across the four local/remote source/destination topologies.
package transfer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/resolve"
	"github.com/dsh2dsh/nbkp/internal/sshexec"
)

// Options configures one rsync invocation.
type Options struct {
	DryRun bool
	// LinkDest, if set, is passed as rsync's --link-dest, relative to the
	// destination directory.
	LinkDest string
	Verbose  int // 0-3, maps to -v/-vv/-vvv
	// DestSuffix overrides the destination subdirectory appended after the
	// volume+subdir path ("latest" for plain/btrfs syncs; a fresh
	// "snapshots/<timestamp>" directory for the hard-link strategy).
	// Defaults to "latest" when empty.
	DestSuffix string
}

func (o Options) destSuffix() string {
	if o.DestSuffix == "" {
		return "latest"
	}
	return o.DestSuffix
}

// ResolvePath joins a volume's root path with an optional subdir.
func ResolvePath(vol config.Volume, subdir string) string {
	if subdir == "" {
		return vol.GetPath()
	}
	return vol.GetPath() + "/" + subdir
}

func baseRsyncArgs(sync *config.SyncConfig, opts Options) []string {
	args := []string{"rsync"}
	args = append(args, sync.EffectiveRsyncOptions()...)
	args = append(args, sync.ExtraRsyncOptions...)
	if opts.Verbose > 0 {
		n := opts.Verbose
		if n > 3 {
			n = 3
		}
		args = append(args, "-"+strings.Repeat("v", n))
	}
	if opts.DryRun {
		args = append(args, "--dry-run")
	}
	if opts.LinkDest != "" {
		args = append(args, "--link-dest="+opts.LinkDest)
	}
	return args
}

func filterArgs(sync *config.SyncConfig) []string {
	var args []string
	for _, rule := range sync.Filters {
		args = append(args, "--filter="+string(rule))
	}
	if sync.FilterFile != "" {
		args = append(args, "--filter=merge "+sync.FilterFile)
	}
	return args
}

// Endpoints resolves the SSH endpoint+proxy chain for a remote volume,
// keyed by volume slug. Built once per run by internal/resolve and passed
// through to BuildCommand so it doesn't need to re-resolve per sync.
type Endpoints map[string]resolve.Endpoint

// BuildCommand builds the full argv for running sync, including any SSH
// wrapping needed for a remote endpoint. dstPath is suffixed with
// opts.destSuffix() (defaulting to "latest", the live mirror directory
// snapshot strategies hard-link or rename against).
func BuildCommand(sync *config.SyncConfig, srcVol, dstVol config.Volume, endpoints Endpoints, opts Options) ([]string, error) {
	srcPath := ResolvePath(srcVol, sync.Source.Subdir)
	dstPath := ResolvePath(dstVol, sync.Destination.Subdir) + "/" + opts.destSuffix()

	srcRemote, srcIsRemote := srcVol.(*config.RemoteVolume)
	dstRemote, dstIsRemote := dstVol.(*config.RemoteVolume)

	switch {
	case srcIsRemote && dstIsRemote:
		return buildRemoteToRemote(sync, srcRemote, dstRemote, srcPath, dstPath, endpoints, opts)
	case srcIsRemote && !dstIsRemote:
		srcEp, ok := endpoints[srcRemote.Slug.String()]
		if !ok {
			return nil, fmt.Errorf("no resolved endpoint for volume %q", srcRemote.Slug)
		}
		args := baseRsyncArgs(sync, opts)
		args = append(args, filterArgs(sync)...)
		args = append(args, sshexec.BuildEOption(srcEp.Server, srcEp.ProxyChain)...)
		args = append(args, sshexec.FormatRemotePath(srcEp.Server, srcPath)+"/")
		args = append(args, dstPath+"/")
		return args, nil
	case !srcIsRemote && dstIsRemote:
		dstEp, ok := endpoints[dstRemote.Slug.String()]
		if !ok {
			return nil, fmt.Errorf("no resolved endpoint for volume %q", dstRemote.Slug)
		}
		args := baseRsyncArgs(sync, opts)
		args = append(args, filterArgs(sync)...)
		args = append(args, sshexec.BuildEOption(dstEp.Server, dstEp.ProxyChain)...)
		args = append(args, srcPath+"/")
		args = append(args, sshexec.FormatRemotePath(dstEp.Server, dstPath)+"/")
		return args, nil
	default:
		args := baseRsyncArgs(sync, opts)
		args = append(args, filterArgs(sync)...)
		args = append(args, srcPath+"/")
		args = append(args, dstPath+"/")
		return args, nil
	}
}

func buildRemoteToRemote(sync *config.SyncConfig, srcVol, dstVol *config.RemoteVolume, srcPath, dstPath string, endpoints Endpoints, opts Options) ([]string, error) {
	srcEp, ok := endpoints[srcVol.Slug.String()]
	if !ok {
		return nil, fmt.Errorf("no resolved endpoint for volume %q", srcVol.Slug)
	}
	dstEp, ok := endpoints[dstVol.Slug.String()]
	if !ok {
		return nil, fmt.Errorf("no resolved endpoint for volume %q", dstVol.Slug)
	}

	inner := baseRsyncArgs(sync, opts)
	inner = append(inner, filterArgs(sync)...)
	inner = append(inner, sshexec.BuildEOption(srcEp.Server, srcEp.ProxyChain)...)
	inner = append(inner, sshexec.FormatRemotePath(srcEp.Server, srcPath)+"/")
	inner = append(inner, dstPath+"/")

	quoted := make([]string, len(inner))
	for i, p := range inner {
		quoted[i] = shellQuote(p)
	}
	innerCmd := strings.Join(quoted, " ")

	args := sshexec.BuildBaseArgs(dstEp.Server, dstEp.ProxyChain)
	return append(args, innerCmd), nil
}

func shellQuote(s string) string {
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			strings.ContainsRune("@%_+=:,./-", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Run builds and executes the rsync command for sync. If onOutput is
// non-nil, stdout+stderr are streamed to it line-by-line as the command
// runs; otherwise output is only captured and returned at the end.
func Run(ctx context.Context, sync *config.SyncConfig, srcVol, dstVol config.Volume, endpoints Endpoints, opts Options, onOutput func(string)) (exitCode int, output string, err error) {
	argv, err := BuildCommand(sync, srcVol, dstVol, endpoints, opts)
	if err != nil {
		return 0, "", err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if onOutput == nil {
		out, runErr := cmd.CombinedOutput()
		code, wrapErr := exitCodeOf(runErr)
		if wrapErr != nil {
			return 0, string(out), wrapErr
		}
		return code, string(out), nil
	}

	stdout, pipeErr := cmd.StdoutPipe()
	if pipeErr != nil {
		return 0, "", pipeErr
	}
	cmd.Stderr = cmd.Stdout // best effort: merge streams for one reader

	var collected strings.Builder
	if startErr := cmd.Start(); startErr != nil {
		return 0, "", startErr
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		line := scanner.Text()
		collected.WriteString(line)
		collected.WriteByte('\n')
		onOutput(line)
	}
	if scanErr := scanner.Err(); scanErr != nil && scanErr != io.EOF {
		_ = cmd.Wait()
		return 0, collected.String(), scanErr
	}

	waitErr := cmd.Wait()
	code, wrapErr := exitCodeOf(waitErr)
	if wrapErr != nil {
		return 0, collected.String(), wrapErr
	}
	return code, collected.String(), nil
}

// scanProgressLines is bufio.ScanLines extended to also split on a bare
// '\r', the terminator rsync's --progress option uses to redraw an
// in-place progress line. Without this, the default newline-only split
// withholds each progress update until the next '\n' arrives.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func exitCodeOf(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return 0, err
}

// Package sshexec builds and runs OpenSSH command lines for a chain of
// proxy-jump endpoints, and renders the equivalent rsync -e argument.
//
// There's no attempt to speak the SSH protocol in-process: every hop is
// shelled out to the system ssh(1) binary, the same way the orchestrator
// shells out to rsync and btrfs. That keeps host-key checking, agent
// forwarding and config file rules exactly as an operator already has
// them configured for interactive use.
package sshexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dsh2dsh/nbkp/config"
)

// Result is the captured outcome of a remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func sshOOptions(opts config.SshConnectionOptions) []string {
	result := []string{
		fmt.Sprintf("ConnectTimeout=%d", opts.ConnectTimeout),
		"BatchMode=yes",
	}
	if opts.Compress {
		result = append(result, "Compression=yes")
	}
	if opts.KeepaliveInterval != nil {
		result = append(result, fmt.Sprintf("ServerAliveInterval=%d", *opts.KeepaliveInterval))
	}
	if !opts.StrictHostKeyCheck {
		result = append(result, "StrictHostKeyChecking=no")
	}
	if opts.KnownHostsFile != "" {
		result = append(result, fmt.Sprintf("UserKnownHostsFile=%s", opts.KnownHostsFile))
	}
	if opts.ForwardAgent {
		result = append(result, "ForwardAgent=yes")
	}
	return result
}

// FormatProxyJumpChain renders proxies as a comma-separated
// [user@]host[:port] list, the format ssh -J expects. Kept around for
// diagnostics even though the base args use nested ProxyCommand instead.
func FormatProxyJumpChain(proxies []*config.SshEndpoint) string {
	parts := make([]string, 0, len(proxies))
	for _, p := range proxies {
		parts = append(parts, hostPart(p))
	}
	return strings.Join(parts, ",")
}

func hostPart(e *config.SshEndpoint) string {
	host := e.Host
	if e.User != "" {
		host = e.User + "@" + host
	}
	if e.Port != 22 {
		host += ":" + strconv.Itoa(e.Port)
	}
	return host
}

// buildProxyCommand constructs a nested ProxyCommand string for the given
// proxy chain. ProxyCommand is used instead of -J so that each hop's own
// connection options (in particular StrictHostKeyChecking) travel with it.
func buildProxyCommand(proxies []*config.SshEndpoint) string {
	proxy := proxies[0]
	parts := []string{"ssh"}
	for _, opt := range sshOOptions(proxy.ConnectionOptions) {
		parts = append(parts, "-o", opt)
	}
	if proxy.Port != 22 {
		parts = append(parts, "-p", strconv.Itoa(proxy.Port))
	}
	if proxy.Key != "" {
		parts = append(parts, "-i", proxy.Key)
	}
	parts = append(parts, "-W", "%h:%p", hostFor(proxy))
	innerCmd := strings.Join(parts, " ")

	for _, proxy := range proxies[1:] {
		escaped := strings.ReplaceAll(innerCmd, "%", "%%")
		parts = []string{"ssh"}
		for _, opt := range sshOOptions(proxy.ConnectionOptions) {
			parts = append(parts, "-o", opt)
		}
		parts = append(parts, "-o", "ProxyCommand="+escaped)
		if proxy.Port != 22 {
			parts = append(parts, "-p", strconv.Itoa(proxy.Port))
		}
		if proxy.Key != "" {
			parts = append(parts, "-i", proxy.Key)
		}
		parts = append(parts, "-W", "%h:%p", hostFor(proxy))
		innerCmd = strings.Join(parts, " ")
	}
	return innerCmd
}

func hostFor(e *config.SshEndpoint) string {
	if e.User != "" {
		return e.User + "@" + e.Host
	}
	return e.Host
}

// BuildBaseArgs builds the base ssh(1) argv for reaching server, routed
// through proxyChain (outermost hop first) if non-empty. The returned
// slice ends in the destination host and is ready to have a remote
// command string appended.
func BuildBaseArgs(server *config.SshEndpoint, proxyChain []*config.SshEndpoint) []string {
	args := []string{"ssh"}
	for _, opt := range sshOOptions(server.ConnectionOptions) {
		args = append(args, "-o", opt)
	}
	if server.Port != 22 {
		args = append(args, "-p", strconv.Itoa(server.Port))
	}
	if server.Key != "" {
		args = append(args, "-i", server.Key)
	}
	if len(proxyChain) > 0 {
		args = append(args, "-o", "ProxyCommand="+buildProxyCommand(proxyChain))
	}
	args = append(args, hostFor(server))
	return args
}

// BuildEOption builds rsync's "-e ssh ..." argument pair for reaching
// server through proxyChain.
func BuildEOption(server *config.SshEndpoint, proxyChain []*config.SshEndpoint) []string {
	parts := []string{"ssh"}
	for _, opt := range sshOOptions(server.ConnectionOptions) {
		parts = append(parts, "-o", opt)
	}
	if server.Port != 22 {
		parts = append(parts, "-p", strconv.Itoa(server.Port))
	}
	if server.Key != "" {
		parts = append(parts, "-i", server.Key)
	}
	if len(proxyChain) > 0 {
		parts = append(parts, "-o", shellQuote("ProxyCommand="+buildProxyCommand(proxyChain)))
	}
	return []string{"-e", strings.Join(parts, " ")}
}

// FormatRemotePath renders path as [user@]host:path, the form rsync and
// scp expect for a remote source/destination argument.
func FormatRemotePath(server *config.SshEndpoint, path string) string {
	return hostFor(server) + ":" + path
}

// Run executes command on server, through proxyChain if non-empty, and
// captures its output. It does not return an error for a non-zero exit;
// callers inspect Result.ExitCode the same way they would a local
// exec.Cmd.
func Run(ctx context.Context, server *config.SshEndpoint, command []string, proxyChain []*config.SshEndpoint) (Result, error) {
	quoted := make([]string, len(command))
	for i, arg := range command {
		quoted[i] = shellQuote(arg)
	}
	cmdString := strings.Join(quoted, " ")

	args := BuildBaseArgs(server, proxyChain)
	args = append(args, cmdString)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		res.ExitCode = 0
	case errorsAsExitError(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("run remote command on %s: %w", server.Host, runErr)
	}
	return res, nil
}

func errorsAsExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	*target = ee
	return true
}

// shellQuote quotes s for safe inclusion in a POSIX shell command line,
// the way Python's shlex.quote does.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
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

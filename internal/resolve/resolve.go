// Package resolve pre-resolves SSH endpoints for remote volumes: walking
// each endpoint's proxy-jump chain once per run and classifying hosts as
// private or public for diagnostics.
package resolve

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/singleflight"

	"github.com/dsh2dsh/nbkp/config"
)

// Endpoint is a pre-resolved SSH endpoint with its proxy-jump chain,
// outermost hop first.
type Endpoint struct {
	Server     *config.SshEndpoint
	ProxyChain []*config.SshEndpoint
}

// All resolves every remote volume's SSH endpoint and proxy chain.
// Local volumes are absent from the result. Returns an error on the
// first dangling or circular proxy-jump reference found; Config.Validate
// is expected to have already rejected those during Load, so this should
// only trigger when All is called with a Config built by hand.
func All(cfg *config.Config) (map[string]Endpoint, error) {
	result := make(map[string]Endpoint, len(cfg.Volumes))
	for slug, vol := range cfg.Volumes {
		rv, ok := vol.(*config.RemoteVolume)
		if !ok {
			continue
		}
		server, ok := cfg.Endpoint(rv.SshEndpoint)
		if !ok {
			return nil, fmt.Errorf("volume %q: unknown ssh-endpoint %q", slug, rv.SshEndpoint)
		}
		chain, err := proxyChain(cfg, server)
		if err != nil {
			return nil, fmt.Errorf("volume %q: %w", slug, err)
		}
		result[slug] = Endpoint{Server: server, ProxyChain: chain}
	}
	return result, nil
}

// proxyChain walks server's proxy-jump references, outermost hop first.
func proxyChain(cfg *config.Config, server *config.SshEndpoint) ([]*config.SshEndpoint, error) {
	var chain []*config.SshEndpoint
	visited := map[string]bool{string(server.Slug): true}
	current := server
	for current.ProxyJump != "" {
		if visited[current.ProxyJump] {
			return nil, fmt.Errorf("circular proxy-jump chain at %q", current.ProxyJump)
		}
		next, ok := cfg.Endpoint(current.ProxyJump)
		if !ok {
			return nil, fmt.Errorf("unknown proxy-jump endpoint %q", current.ProxyJump)
		}
		visited[current.ProxyJump] = true
		chain = append([]*config.SshEndpoint{next}, chain...)
		current = next
	}
	return chain, nil
}

// Resolver merges concurrent host resolutions: simultaneous IsPrivateHost
// calls for the same hostname share one DNS lookup. Results are not
// cached, so a later call for the same host looks it up again.
type Resolver struct {
	group singleflight.Group
}

// NewResolver returns a ready-to-use Resolver.
func NewResolver() *Resolver { return &Resolver{} }

// IsPrivateHost reports whether every address hostname resolves to is a
// private (RFC1918/ULA/loopback) address. ok is false if the hostname
// could not be resolved at all.
func (r *Resolver) IsPrivateHost(ctx context.Context, hostname string) (private bool, ok bool) {
	v, err, _ := r.group.Do(hostname, func() (interface{}, error) {
		return resolveHost(ctx, hostname)
	})
	if err != nil {
		return false, false
	}
	addrs := v.([]net.IP)
	if len(addrs) == 0 {
		return false, false
	}
	for _, a := range addrs {
		if !a.IsPrivate() && !a.IsLoopback() {
			return false, true
		}
	}
	return true, true
}

func resolveHost(ctx context.Context, hostname string) ([]net.IP, error) {
	var r net.Resolver
	addrs, err := r.LookupIP(ctx, "ip", hostname)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsh2dsh/nbkp/config"
)

func buildConfig() *config.Config {
	return &config.Config{
		SshEndpoints: map[string]*config.SshEndpoint{
			"jump": {Slug: "jump", Host: "jump.example.com"},
			"leaf": {Slug: "leaf", Host: "leaf.example.com", ProxyJump: "jump"},
		},
		Volumes: map[string]config.Volume{
			"local-vol": &config.LocalVolume{Slug: "local-vol", Path: "/srv/data"},
			"remote-vol": &config.RemoteVolume{
				Slug:        "remote-vol",
				SshEndpoint: "leaf",
				Path:        "/srv/data",
			},
		},
	}
}

func TestAll_resolvesRemoteVolumesOnly(t *testing.T) {
	cfg := buildConfig()
	resolved, err := All(cfg)
	require.NoError(t, err)

	assert.Len(t, resolved, 1)
	ep, ok := resolved["remote-vol"]
	require.True(t, ok)
	assert.Equal(t, "leaf.example.com", ep.Server.Host)
	require.Len(t, ep.ProxyChain, 1)
	assert.Equal(t, "jump.example.com", ep.ProxyChain[0].Host)
}

func TestAll_danglingEndpointReference(t *testing.T) {
	cfg := buildConfig()
	cfg.Volumes["remote-vol"].(*config.RemoteVolume).SshEndpoint = "ghost"

	_, err := All(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ssh-endpoint")
}

func TestResolver_IsPrivateHost_unresolvable(t *testing.T) {
	r := NewResolver()
	_, ok := r.IsPrivateHost(context.Background(), "this-host-does-not-exist.invalid")
	assert.False(t, ok)
}

package sshexec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dsh2dsh/nbkp/config"
)

func endpoint(slug, host string) *config.SshEndpoint {
	return &config.SshEndpoint{
		Slug: config.Slug(slug),
		Host: host,
		Port: 22,
		ConnectionOptions: config.SshConnectionOptions{
			ConnectTimeout:     10,
			StrictHostKeyCheck: true,
		},
	}
}

func TestBuildBaseArgs_noProxy(t *testing.T) {
	e := endpoint("backup", "backup.example.com")
	e.User = "svc"
	args := BuildBaseArgs(e, nil)

	assert.Equal(t, "ssh", args[0])
	assert.Contains(t, args, "-o")
	assert.Contains(t, args, "ConnectTimeout=10")
	assert.Equal(t, "svc@backup.example.com", args[len(args)-1])
}

func TestBuildBaseArgs_customPortAndKey(t *testing.T) {
	e := endpoint("backup", "backup.example.com")
	e.Port = 2222
	e.Key = "/home/svc/.ssh/id_ed25519"
	args := BuildBaseArgs(e, nil)

	assert.Contains(t, args, "-p")
	assert.Contains(t, args, "2222")
	assert.Contains(t, args, "-i")
	assert.Contains(t, args, "/home/svc/.ssh/id_ed25519")
}

func TestBuildBaseArgs_proxyChain(t *testing.T) {
	jump1 := endpoint("jump1", "jump1.example.com")
	jump2 := endpoint("jump2", "jump2.example.com")
	dest := endpoint("dest", "dest.example.com")

	args := BuildBaseArgs(dest, []*config.SshEndpoint{jump1, jump2})

	joined := ""
	for _, a := range args {
		joined += a + " "
	}
	assert.Contains(t, joined, "ProxyCommand=")
	assert.Contains(t, joined, "jump1.example.com")
	assert.Contains(t, joined, "jump2.example.com")
	// The second hop's ProxyCommand value must have its % escaped to %%
	// so ssh doesn't try to token-expand the nested command.
	assert.Contains(t, joined, "%%h:%%p")
}

func TestFormatRemotePath(t *testing.T) {
	e := endpoint("backup", "backup.example.com")
	e.User = "svc"
	assert.Equal(t, "svc@backup.example.com:/srv/data", FormatRemotePath(e, "/srv/data"))
}

func TestFormatRemotePath_noUser(t *testing.T) {
	e := endpoint("backup", "backup.example.com")
	assert.Equal(t, "backup.example.com:/srv/data", FormatRemotePath(e, "/srv/data"))
}

func TestBuildEOption(t *testing.T) {
	e := endpoint("backup", "backup.example.com")
	opt := BuildEOption(e, nil)
	assert.Equal(t, "-e", opt[0])
	assert.Contains(t, opt[1], "ssh")
	assert.Contains(t, opt[1], "ConnectTimeout=10")
}

func TestFormatProxyJumpChain(t *testing.T) {
	jump1 := endpoint("jump1", "jump1.example.com")
	jump1.User = "relay"
	jump2 := endpoint("jump2", "jump2.example.com")
	jump2.Port = 2200

	got := FormatProxyJumpChain([]*config.SshEndpoint{jump1, jump2})
	assert.Equal(t, "relay@jump1.example.com,jump2.example.com:2200", got)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "hello", shellQuote("hello"))
	assert.Equal(t, "''", shellQuote(""))
	assert.Equal(t, `'it'"'"'s'`, shellQuote("it's"))
	assert.Equal(t, "'rm -rf /'", shellQuote("rm -rf /"))
}

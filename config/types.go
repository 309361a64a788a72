// Package config implements the declarative manifest for nbkp: SSH
// endpoints, volumes, and sync definitions, plus the cross-reference and
// cycle validation described by the backup orchestrator's data model.
package config

// SshConnectionOptions holds the tunables for an SSH control channel.
// Field names mirror the ssh(1) -o options they control; see
// internal/sshexec for how they're rendered onto the command line.
type SshConnectionOptions struct {
	ConnectTimeout     int             `mapstructure:"connect-timeout" validate:"min=1" default:"10"`
	KeepaliveInterval  *int            `mapstructure:"keepalive-interval" validate:"omitempty,min=1"`
	Compress           bool            `mapstructure:"compress"`
	AllowAgent         bool            `mapstructure:"allow-agent" default:"true"`
	LookForKeys        bool            `mapstructure:"look-for-keys" default:"true"`
	BannerTimeout      *float64        `mapstructure:"banner-timeout" validate:"omitempty,min=0"`
	AuthTimeout        *float64        `mapstructure:"auth-timeout" validate:"omitempty,min=0"`
	ChannelTimeout     *float64        `mapstructure:"channel-timeout" validate:"omitempty,min=0"`
	StrictHostKeyCheck bool            `mapstructure:"strict-host-key-checking" default:"true"`
	KnownHostsFile     string          `mapstructure:"known-hosts-file"`
	ForwardAgent       bool            `mapstructure:"forward-agent"`
	DisabledAlgorithms map[string][]string `mapstructure:"disabled-algorithms"`
}

// SshEndpoint is a reachable SSH target.
type SshEndpoint struct {
	Slug              Slug                 `mapstructure:"slug" validate:"required,slug"`
	Host              string               `mapstructure:"host" validate:"required"`
	Port              int                  `mapstructure:"port" validate:"min=1,max=65535" default:"22"`
	User              string               `mapstructure:"user"`
	Key               string               `mapstructure:"key"`
	ProxyJump         string               `mapstructure:"proxy-jump"`
	ConnectionOptions SshConnectionOptions `mapstructure:"connection-options"`
}

// VolumeKind discriminates the Volume tagged union.
type VolumeKind string

const (
	VolumeKindLocal  VolumeKind = "local"
	VolumeKindRemote VolumeKind = "remote"
)

// Volume is the tagged union {LocalVolume, RemoteVolume}. Concrete
// implementations are *LocalVolume and *RemoteVolume.
type Volume interface {
	Kind() VolumeKind
	GetSlug() Slug
	GetPath() string
}

// LocalVolume is a path on the host running the orchestrator.
type LocalVolume struct {
	Slug Slug   `mapstructure:"slug" validate:"required,slug"`
	Path string `mapstructure:"path" validate:"required"`
}

func (v *LocalVolume) Kind() VolumeKind { return VolumeKindLocal }
func (v *LocalVolume) GetSlug() Slug    { return v.Slug }
func (v *LocalVolume) GetPath() string  { return v.Path }

// RemoteVolume is a path on a remote host, reached through an SshEndpoint.
type RemoteVolume struct {
	Slug        Slug   `mapstructure:"slug" validate:"required,slug"`
	SshEndpoint string `mapstructure:"ssh-endpoint" validate:"required"`
	Path        string `mapstructure:"path" validate:"required"`
}

func (v *RemoteVolume) Kind() VolumeKind { return VolumeKindRemote }
func (v *RemoteVolume) GetSlug() Slug    { return v.Slug }
func (v *RemoteVolume) GetPath() string  { return v.Path }

// SyncEndpoint points into a volume for use by a sync.
type SyncEndpoint struct {
	Volume string `mapstructure:"volume" validate:"required"`
	Subdir string `mapstructure:"subdir"`
}

// Key returns a hashable, comparable identity for this endpoint, used by
// the dependency grapher (internal/depgraph) to match writers to readers.
func (e SyncEndpoint) Key() string {
	if e.Subdir == "" {
		return e.Volume
	}
	return e.Volume + "/" + e.Subdir
}

// BtrfsSnapshotConfig configures btrfs-based snapshotting for a destination.
type BtrfsSnapshotConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MaxSnapshots *int `mapstructure:"max-snapshots" validate:"omitempty,min=1"`
}

// HardLinkSnapshotConfig configures hard-link-based snapshotting for a
// destination. Same shape as BtrfsSnapshotConfig.
type HardLinkSnapshotConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MaxSnapshots *int `mapstructure:"max-snapshots" validate:"omitempty,min=1"`
}

// DestinationSyncEndpoint is a SyncEndpoint plus at most one active
// snapshot configuration.
type DestinationSyncEndpoint struct {
	SyncEndpoint     `mapstructure:",squash"`
	BtrfsSnapshots    BtrfsSnapshotConfig    `mapstructure:"btrfs-snapshots"`
	HardLinkSnapshots HardLinkSnapshotConfig `mapstructure:"hard-link-snapshots"`
}

// SnapshotMode identifies which strategy (if any) governs a destination.
type SnapshotMode string

const (
	SnapshotModeNone     SnapshotMode = ""
	SnapshotModeBtrfs    SnapshotMode = "btrfs"
	SnapshotModeHardLink SnapshotMode = "hard-link"
)

// Mode reports which snapshot strategy is active for this destination, or
// SnapshotModeNone for a plain mirror. Both enabled is a config error
// caught by Config.Validate.
func (d DestinationSyncEndpoint) Mode() SnapshotMode {
	switch {
	case d.BtrfsSnapshots.Enabled:
		return SnapshotModeBtrfs
	case d.HardLinkSnapshots.Enabled:
		return SnapshotModeHardLink
	default:
		return SnapshotModeNone
	}
}

// FilterRule is one normalized rsync --filter rule string, e.g. "+ *.jpg".
type FilterRule string

// SyncConfig configures a single sync operation.
type SyncConfig struct {
	Slug              Slug                    `mapstructure:"slug" validate:"required,slug"`
	Source            SyncEndpoint            `mapstructure:"source" validate:"required"`
	Destination       DestinationSyncEndpoint `mapstructure:"destination" validate:"required"`
	Enabled           bool                    `mapstructure:"enabled" default:"true"`
	RsyncOptions      []string                `mapstructure:"rsync-options"`
	ExtraRsyncOptions []string                `mapstructure:"extra-rsync-options"`
	Filters           []FilterRule            `mapstructure:"filters"`
	FilterFile        string                  `mapstructure:"filter-file"`
}

// DefaultRsyncOptions are used whenever SyncConfig.RsyncOptions is unset.
var DefaultRsyncOptions = []string{"-a", "--delete", "--delete-excluded", "--safe-links"}

// EffectiveRsyncOptions returns RsyncOptions if set, else DefaultRsyncOptions.
func (s *SyncConfig) EffectiveRsyncOptions() []string {
	if s.RsyncOptions != nil {
		return s.RsyncOptions
	}
	return DefaultRsyncOptions
}

// LoggingOutletKind discriminates the logging outlet tagged union.
type LoggingOutletKind string

const (
	LoggingOutletStdout LoggingOutletKind = "stdout"
	LoggingOutletSyslog LoggingOutletKind = "syslog"
)

// LoggingOutletConfig configures one destination a log record is
// written to. Several may be configured at once (e.g. colorized stdout
// plus syslog).
type LoggingOutletConfig struct {
	Type LoggingOutletKind `mapstructure:"type" validate:"required,oneof=stdout syslog"`
	// Color applies to the stdout outlet only.
	Color bool `mapstructure:"color" default:"true"`
	// Facility applies to the syslog outlet only.
	Facility string `mapstructure:"facility" default:"local0"`
}

// LoggingConfig is Global.Logging: the level filter plus the set of
// configured outlets. Defaults to a single colorized stdout outlet at
// info level when the manifest omits it entirely.
type LoggingConfig struct {
	Level   string                `mapstructure:"level" default:"info" validate:"omitempty,oneof=debug info warn error"`
	Outlets []LoggingOutletConfig `mapstructure:"outlets" validate:"dive"`
}

// PrometheusMonitoring starts an HTTP listener serving a /metrics
// endpoint for internal/metrics' registry.
type PrometheusMonitoring struct {
	Listen string `mapstructure:"listen" validate:"required,hostname_port"`
}

// GlobalConfig holds settings that apply to the whole run rather than
// to an individual volume or sync.
type GlobalConfig struct {
	Logging    LoggingConfig         `mapstructure:"logging"`
	Monitoring *PrometheusMonitoring `mapstructure:"monitoring"`
}

// Config is the top-level, immutable-once-built manifest value.
type Config struct {
	Global       GlobalConfig            `mapstructure:"global"`
	SshEndpoints map[string]*SshEndpoint `mapstructure:"ssh-endpoints" validate:"dive"`
	Volumes      map[string]Volume       `mapstructure:"volumes" validate:"dive"`
	Syncs        map[string]*SyncConfig  `mapstructure:"syncs" validate:"dive"`
}

// Job-free helpers for looking up configured entities by slug.

func (c *Config) Endpoint(slug string) (*SshEndpoint, bool) {
	e, ok := c.SshEndpoints[slug]
	return e, ok
}

func (c *Config) Vol(slug string) (Volume, bool) {
	v, ok := c.Volumes[slug]
	return v, ok
}

func (c *Config) Sync(slug string) (*SyncConfig, bool) {
	s, ok := c.Syncs[slug]
	return s, ok
}

// ResolveProxy returns the proxy-jump endpoint for server, or nil if it has
// none configured.
func (c *Config) ResolveProxy(server *SshEndpoint) *SshEndpoint {
	if server.ProxyJump == "" {
		return nil
	}
	return c.SshEndpoints[server.ProxyJump]
}

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// searchPaths returns the config file search order from spec.md §6:
// explicit path first, then $XDG_CONFIG_HOME/nbkp/config.yaml (falling
// back to ~/.config), then /etc/nbkp/config.yaml.
func searchPaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}

	var paths []string
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		if home, err := os.UserHomeDir(); err == nil {
			xdg = filepath.Join(home, ".config")
		}
	}
	if xdg != "" {
		paths = append(paths, filepath.Join(xdg, "nbkp", "config.yaml"))
	}
	paths = append(paths, "/etc/nbkp/config.yaml")
	return paths
}

// Load locates, parses, defaults, overrides and validates the manifest.
// path, if non-empty, is used verbatim instead of the search order. The
// NBKP_CONFIG environment variable is consulted when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("NBKP_CONFIG")
	}

	var resolved string
	for _, candidate := range searchPaths(path) {
		if st, err := os.Stat(candidate); err == nil && st.Mode().IsRegular() {
			resolved = candidate
			break
		}
	}
	if resolved == "" {
		return nil, fmt.Errorf("no config file found (checked %v)", searchPaths(path))
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", resolved, err)
	}

	cfg, err := LoadBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", resolved, err)
	}
	return cfg, nil
}

// LoadBytes parses, defaults, overrides and validates a manifest already
// read into memory. Split out from Load so tests can exercise the full
// pipeline without touching the filesystem search path.
func LoadBytes(raw []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NBKP")
	v.AutomaticEnv()
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(v.AllKeys()) == 0 {
		return nil, fmt.Errorf("read config: empty manifest")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := applyDefaults(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := structValidate(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			volumeDecodeHook,
			filterDecodeHook,
		),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, err
	}

	// The map key is the canonical slug; inject it into the value so
	// downstream code can take a *SshEndpoint/Volume/*SyncConfig without
	// also carrying its map key around (mirrors protocol.py's
	// inject_*_slugs field validators).
	for slug, e := range cfg.SshEndpoints {
		if e.Slug == "" {
			e.Slug = Slug(slug)
		}
	}
	for slug, vol := range cfg.Volumes {
		switch v := vol.(type) {
		case *LocalVolume:
			if v.Slug == "" {
				v.Slug = Slug(slug)
			}
		case *RemoteVolume:
			if v.Slug == "" {
				v.Slug = Slug(slug)
			}
		}
	}
	for slug, s := range cfg.Syncs {
		if s.Slug == "" {
			s.Slug = Slug(slug)
		}
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) error {
	if err := defaults.Set(&cfg.Global.Logging); err != nil {
		return err
	}
	if len(cfg.Global.Logging.Outlets) == 0 {
		cfg.Global.Logging.Outlets = []LoggingOutletConfig{{Type: LoggingOutletStdout, Color: true}}
	}
	for i := range cfg.Global.Logging.Outlets {
		if err := defaults.Set(&cfg.Global.Logging.Outlets[i]); err != nil {
			return err
		}
	}

	for _, e := range cfg.SshEndpoints {
		if err := defaults.Set(e); err != nil {
			return err
		}
	}
	for _, s := range cfg.Syncs {
		if err := defaults.Set(s); err != nil {
			return err
		}
	}
	return nil
}

// envOverrides describes the per-endpoint secret overrides read from the
// environment. Never stored in the YAML manifest itself: SSH keys and
// known_hosts paths are deployment secrets, not declarative config.
type envOverrides struct {
	Key          string `env:"SSH_KEY"`
	KnownHosts   string `env:"KNOWN_HOSTS"`
}

// applyEnvOverrides looks up NBKP_SSH_KEY_<SLUG> / NBKP_KNOWN_HOSTS_<SLUG>
// (slug upper-cased, '-' -> '_') for every configured SshEndpoint and
// overwrites the corresponding field when set.
func applyEnvOverrides(cfg *Config) error {
	for slug, e := range cfg.SshEndpoints {
		name := envSlugName(slug)
		var o envOverrides
		opts := env.Options{Environment: map[string]string{
			"SSH_KEY":     os.Getenv("NBKP_SSH_KEY_" + name),
			"KNOWN_HOSTS": os.Getenv("NBKP_KNOWN_HOSTS_" + name),
		}}
		if err := env.ParseWithOptions(&o, opts); err != nil {
			return fmt.Errorf("endpoint %q: %w", slug, err)
		}
		if o.Key != "" {
			e.Key = o.Key
		}
		if o.KnownHosts != "" {
			e.ConnectionOptions.KnownHostsFile = o.KnownHosts
		}
	}
	return nil
}

func envSlugName(slug string) string {
	out := make([]rune, 0, len(slug))
	for _, r := range slug {
		if r == '-' {
			out = append(out, '_')
			continue
		}
		if r >= 'a' && r <= 'z' {
			r = r - 'a' + 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

var globalValidator *validator.Validate

func structValidate(cfg *Config) error {
	if globalValidator == nil {
		globalValidator = newValidator()
	}
	if err := globalValidator.Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return validateSlugField(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

package config

// Validate runs the structural (per-field, via go-playground/validator,
// see Load) and then the cross-reference / cycle checks from spec.md's
// invariant I5:
//
//	(a) slugs already validated per-field via the "slug" tag;
//	(b) every RemoteVolume references an existing SshEndpoint;
//	(c) every sync references existing source/destination volumes;
//	(d) every proxy-jump chain terminates without revisiting a node.
//
// Grounded on original_source/nbkp/config/protocol.py's
// Config.validate_cross_references: every violation is accumulated into
// one ConfigError rather than returned on the first failure.
func (c *Config) Validate() error {
	errs := &ConfigError{}

	for slug, server := range c.SshEndpoints {
		if server.ProxyJump == "" {
			continue
		}
		if _, ok := c.SshEndpoints[server.ProxyJump]; !ok {
			errs.Add("ssh endpoint %q references unknown proxy-jump endpoint %q", slug, server.ProxyJump)
			continue
		}
		if cycle := detectProxyCycle(c.SshEndpoints, slug); cycle != nil {
			errs.Add("circular proxy-jump chain detected: %s", formatCycle(cycle))
		}
	}

	for slug, vol := range c.Volumes {
		rv, ok := vol.(*RemoteVolume)
		if !ok {
			continue
		}
		if _, ok := c.SshEndpoints[rv.SshEndpoint]; !ok {
			errs.Add("volume %q references unknown ssh-endpoint %q", slug, rv.SshEndpoint)
		}
	}

	for slug, sync := range c.Syncs {
		if _, ok := c.Volumes[sync.Source.Volume]; !ok {
			errs.Add("sync %q references unknown source volume %q", slug, sync.Source.Volume)
		}
		if _, ok := c.Volumes[sync.Destination.Volume]; !ok {
			errs.Add("sync %q references unknown destination volume %q", slug, sync.Destination.Volume)
		}
		if sync.Destination.BtrfsSnapshots.Enabled && sync.Destination.HardLinkSnapshots.Enabled {
			errs.Add("sync %q enables both btrfs and hard-link snapshots; at most one may be active", slug)
		}
	}

	return errs.ErrOrNil()
}

// detectProxyCycle walks the proxy-jump chain starting at start, returning
// the cycle (as a slice of slugs, starting and ending at the repeated
// node) if one is found, or nil otherwise.
func detectProxyCycle(endpoints map[string]*SshEndpoint, start string) []string {
	visited := map[string]bool{start: true}
	order := []string{start}
	current := endpoints[start].ProxyJump
	for current != "" {
		if visited[current] {
			for i, s := range order {
				if s == current {
					return append(order[i:], current)
				}
			}
		}
		visited[current] = true
		order = append(order, current)
		next, ok := endpoints[current]
		if !ok {
			return nil // dangling reference, already reported separately
		}
		current = next.ProxyJump
	}
	return nil
}

func formatCycle(cycle []string) string {
	s := ""
	for i, c := range cycle {
		if i > 0 {
			s += " -> "
		}
		s += c
	}
	return s
}

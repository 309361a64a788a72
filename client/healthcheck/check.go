// Package healthcheck adapts nbkp's preflight and snapshot state into a
// Nagios/Icinga-compatible check plugin.
package healthcheck

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dsh2dsh/go-monitoringplugin/v2"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/preflight"
	"github.com/dsh2dsh/nbkp/internal/snapshot"
	"github.com/dsh2dsh/nbkp/internal/snapshot/btrfs"
	"github.com/dsh2dsh/nbkp/internal/snapshot/hardlink"
)

const snapshotTimeLayout = "2006-01-02T15:04:05.000Z"

// Check accumulates Nagios/Icinga status across every sync it's asked to
// examine, reporting the worst severity seen (CRITICAL beats WARNING
// beats OK) through a single monitoringplugin.Response.
type Check struct {
	resp *monitoringplugin.Response
	warn time.Duration
	crit time.Duration

	failed    bool
	okCount   int
	snapCount int
}

func New(resp *monitoringplugin.Response) *Check {
	return &Check{resp: resp}
}

// WithThresholds sets the warn/crit snapshot-age thresholds used by
// CheckSnapshotAge. Zero disables that severity.
func (c *Check) WithThresholds(warn, crit time.Duration) *Check {
	c.warn, c.crit = warn, crit
	return c
}

// CheckStatuses reports every inactive sync (among slugs, or every
// configured sync if slugs is empty) as CRITICAL, naming its
// accumulated reasons, and rolls the rest up into a final OK summary.
func (c *Check) CheckStatuses(statuses map[string]preflight.SyncStatus, slugs []string) {
	for _, slug := range selectSlugs(statuses, slugs) {
		status, ok := statuses[slug]
		if !ok {
			c.updateStatus(monitoringplugin.UNKNOWN, "sync %q: no status reported", slug)
			continue
		}
		if status.Active() {
			c.okCount++
			continue
		}
		reasons := make([]string, len(status.Reasons))
		for i, r := range status.Reasons {
			reasons[i] = r.String()
		}
		c.updateStatus(monitoringplugin.CRITICAL, "sync %q inactive: %s", slug, strings.Join(reasons, ", "))
	}

	if !c.failed {
		c.resp.UpdateStatus(monitoringplugin.OK, fmt.Sprintf("%d sync(s) active", c.okCount))
	}
}

func selectSlugs(statuses map[string]preflight.SyncStatus, slugs []string) []string {
	if len(slugs) > 0 {
		return slugs
	}
	out := make([]string, 0, len(statuses))
	for slug := range statuses {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// CheckSnapshotAge reports the age of the newest snapshot for every sync
// (among slugs, or every snapshot-backed sync if slugs is empty) that
// uses a btrfs or hard-link destination, flagging any whose newest
// snapshot is older than the configured warn/crit thresholds.
func (c *Check) CheckSnapshotAge(ctx context.Context, cfg *config.Config, endpoints snapshot.Endpoints, slugs []string) error {
	if c.warn == 0 && c.crit == 0 {
		return fmt.Errorf("healthcheck: no warn/crit thresholds configured")
	}

	for _, slug := range selectSyncSlugs(cfg, slugs) {
		sync, ok := cfg.Syncs[slug]
		if !ok || sync.Destination.Mode() == config.SnapshotModeNone {
			continue
		}
		dstVol := cfg.Volumes[sync.Destination.Volume]

		var paths []string
		var err error
		switch sync.Destination.Mode() {
		case config.SnapshotModeBtrfs:
			paths, err = btrfs.ListSnapshots(ctx, sync, dstVol, endpoints)
		case config.SnapshotModeHardLink:
			paths, err = hardlink.ListSnapshots(ctx, sync, dstVol, endpoints)
		}
		if err != nil {
			return fmt.Errorf("healthcheck: list snapshots for %q: %w", slug, err)
		}
		c.checkNewestSnapshot(slug, paths)
	}

	if !c.failed {
		c.resp.UpdateStatus(monitoringplugin.OK, fmt.Sprintf("%d snapshot(s) within thresholds", c.snapCount))
	}
	return nil
}

func selectSyncSlugs(cfg *config.Config, slugs []string) []string {
	if len(slugs) > 0 {
		return slugs
	}
	out := make([]string, 0, len(cfg.Syncs))
	for slug := range cfg.Syncs {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

func (c *Check) checkNewestSnapshot(slug string, paths []string) {
	if len(paths) == 0 {
		c.updateStatus(monitoringplugin.CRITICAL, "sync %q: no snapshots found", slug)
		return
	}

	// ListSnapshots returns oldest-first; names are ISO-8601 timestamps.
	newest := paths[len(paths)-1]
	name := newest[strings.LastIndex(newest, "/")+1:]
	created, err := time.Parse(snapshotTimeLayout, name)
	if err != nil {
		c.updateStatus(monitoringplugin.CRITICAL, "sync %q: unparsable snapshot name %q", slug, name)
		return
	}

	age := time.Since(created).Truncate(time.Second)
	switch {
	case c.crit > 0 && age >= c.crit:
		c.updateStatus(monitoringplugin.CRITICAL, "sync %q: newest snapshot %q too old: %v > %v", slug, name, age, c.crit)
	case c.warn > 0 && age >= c.warn:
		c.updateStatus(monitoringplugin.WARNING, "sync %q: newest snapshot %q too old: %v > %v", slug, name, age, c.warn)
	default:
		c.snapCount++
	}
}

func (c *Check) updateStatus(statusCode int, format string, a ...any) {
	c.failed = c.failed || statusCode != monitoringplugin.OK
	c.resp.UpdateStatus(statusCode, fmt.Sprintf(format, a...))
}

// Reset clears accumulated state so a Check can be reused across runs.
func (c *Check) Reset() *Check {
	c.failed = false
	c.okCount = 0
	c.snapCount = 0
	return c
}

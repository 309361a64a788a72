// Package scriptgen renders a nbkp configuration into a single
// self-contained POSIX shell script that performs the same syncs as
// `nbkp run`, for hosts where installing the nbkp binary itself isn't an
// option (an init ramdisk, a vendor appliance, a cron box someone refuses
// to put Go on). The rsync, btrfs
// snapshot, mkdir and ln argv come from the same builders
// internal/transfer and internal/snapshot/* use at runtime; the prune
// loop's ls, btrfs property set, btrfs subvolume delete and rm -rf lines
// are written out in this package.
package scriptgen

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/dsh2dsh/nbkp/config"
	"github.com/dsh2dsh/nbkp/internal/resolve"
)

// Options configures script generation.
type Options struct {
	// ConfigPath, if set, is recorded in a header comment so the generated
	// script documents which manifest produced it.
	ConfigPath string
}

type scriptContext struct {
	Timestamp    string
	ConfigLine   string
	VolumeChecks []string
	Syncs        []syncFunc
}

var scriptTemplate = template.Must(template.New("nbkp-script").Parse(`#!/usr/bin/env bash
# Generated by nbkp gen-script on {{.Timestamp}}.
{{.ConfigLine}}
# Do not edit by hand; re-run gen-script to regenerate.
set -u

NBKP_DRY_RUN=false
NBKP_VERBOSE=0
NBKP_ONLY=""

nbkp_log() {
    printf '[%s] %s\n' "$(date -u +%Y-%m-%dT%H:%M:%SZ)" "$1" >&2
}

nbkp_usage() {
    echo "usage: $0 [--dry-run] [--verbose] [--only SLUG]..." >&2
    exit 2
}

while [ $# -gt 0 ]; do
    case "$1" in
        --dry-run) NBKP_DRY_RUN=true; shift ;;
        --verbose) NBKP_VERBOSE=$((NBKP_VERBOSE + 1)); shift ;;
        --only)
            [ $# -ge 2 ] || nbkp_usage
            NBKP_ONLY="$NBKP_ONLY $2"
            shift 2
            ;;
        -h|--help) nbkp_usage ;;
        *) echo "unknown argument: $1" >&2; nbkp_usage ;;
    esac
done

nbkp_should_run() {
    [ -z "$NBKP_ONLY" ] && return 0
    for slug in $NBKP_ONLY; do
        [ "$slug" = "$1" ] && return 0
    done
    return 1
}

nbkp_log "Checking configured volumes"
{{range .VolumeChecks}}
{{.}}
{{- end}}
{{range .Syncs}}
{{.Body}}
{{end}}
NBKP_FAILED=0
{{range .Syncs}}{{if .Enabled}}
if nbkp_should_run "{{.Slug}}"; then
    {{.FnName}} || NBKP_FAILED=1
fi
{{end}}{{end}}
exit "$NBKP_FAILED"
`))

// Generate renders cfg into a complete shell script. endpoints must hold
// every remote volume's resolved SSH endpoint (as returned by
// internal/resolve.All); now stamps the header comment.
func Generate(cfg *config.Config, endpoints map[string]resolve.Endpoint, opts Options, now time.Time) (string, error) {
	volSlugs := make([]string, 0, len(cfg.Volumes))
	for slug := range cfg.Volumes {
		volSlugs = append(volSlugs, slug)
	}
	sort.Strings(volSlugs)

	volChecks := make([]string, 0, len(volSlugs))
	for _, slug := range volSlugs {
		volChecks = append(volChecks, volumeCheckLine(slug, cfg.Volumes[slug], endpoints))
	}

	syncSlugs := make([]string, 0, len(cfg.Syncs))
	for slug := range cfg.Syncs {
		syncSlugs = append(syncSlugs, slug)
	}
	sort.Strings(syncSlugs)

	syncs := make([]syncFunc, 0, len(syncSlugs))
	for _, slug := range syncSlugs {
		fn, err := buildSyncFunc(slug, cfg.Syncs[slug], cfg, endpoints)
		if err != nil {
			return "", fmt.Errorf("scriptgen: %w", err)
		}
		syncs = append(syncs, fn)
	}

	configLine := "#"
	if opts.ConfigPath != "" {
		configLine = "# Source configuration: " + opts.ConfigPath
	}

	ctx := scriptContext{
		Timestamp:    now.UTC().Format(time.RFC3339),
		ConfigLine:   configLine,
		VolumeChecks: volChecks,
		Syncs:        syncs,
	}

	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("scriptgen: render template: %w", err)
	}
	return collapseBlankLines(buf.String()), nil
}

// collapseBlankLines squeezes every run of blank lines (an artifact of
// joining per-sync blocks that each already end on a blank line) down to
// a single one, purely for readability of the generated file.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

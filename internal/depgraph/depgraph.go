// Package depgraph orders syncs so that a sync reading from a volume
// another sync writes to runs after its writer.
package depgraph

import (
	"sort"

	"github.com/dsh2dsh/nbkp/config"
)

// CycleError reports a dependency cycle among the given sync slugs.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	s := ""
	for i, c := range e.Cycle {
		if i > 0 {
			s += " -> "
		}
		s += c
	}
	return "cyclic sync dependency detected: " + s
}

// Sort topologically orders syncs by their endpoint dependencies: a sync
// B depends on sync A when A's destination matches B's source (same
// volume and subdir). Returns sync slugs with dependees before
// dependents, in deterministic (slug-sorted) order among ties.
func Sort(syncs map[string]*config.SyncConfig) ([]string, error) {
	levels, err := Levels(syncs)
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(syncs))
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}

// Levels groups syncs into dependency batches: every sync in levels[i]
// only depends (if at all) on syncs in levels[0..i-1], so everything
// within one batch may safely run concurrently. Used by
// internal/runner's bounded-parallel scheduler.
func Levels(syncs map[string]*config.SyncConfig) ([][]string, error) {
	// writers maps a destination endpoint key to the sync slugs that
	// write to it.
	writers := make(map[string][]string)
	for slug, sync := range syncs {
		key := sync.Destination.SyncEndpoint.Key()
		writers[key] = append(writers[key], slug)
	}

	// graph[slug] = set of predecessor slugs (must run first).
	graph := make(map[string]map[string]bool, len(syncs))
	for slug, sync := range syncs {
		deps := make(map[string]bool)
		for _, writer := range writers[sync.Source.Key()] {
			if writer != slug {
				deps[writer] = true
			}
		}
		graph[slug] = deps
	}

	return kahnLevels(graph)
}

// kahnLevels runs Kahn's algorithm over graph (node -> set of predecessors),
// breaking ties between simultaneously-ready nodes by slug so the result
// is deterministic across runs. Each round's ready batch becomes one
// level of the result.
func kahnLevels(graph map[string]map[string]bool) ([][]string, error) {
	remaining := make(map[string]map[string]bool, len(graph))
	for node, deps := range graph {
		cp := make(map[string]bool, len(deps))
		for d := range deps {
			cp[d] = true
		}
		remaining[node] = cp
	}

	var levels [][]string
	for len(remaining) > 0 {
		var ready []string
		for node, deps := range remaining {
			if len(deps) == 0 {
				ready = append(ready, node)
			}
		}
		if len(ready) == 0 {
			return nil, &CycleError{Cycle: remainingCycle(remaining)}
		}
		sort.Strings(ready)

		for _, node := range ready {
			delete(remaining, node)
		}
		for _, deps := range remaining {
			for _, node := range ready {
				delete(deps, node)
			}
		}
		levels = append(levels, ready)
	}
	return levels, nil
}

// remainingCycle returns the slugs still blocked when no node is ready,
// sorted for a stable error message.
func remainingCycle(remaining map[string]map[string]bool) []string {
	cycle := make([]string, 0, len(remaining))
	for node := range remaining {
		cycle = append(cycle, node)
	}
	sort.Strings(cycle)
	return cycle
}

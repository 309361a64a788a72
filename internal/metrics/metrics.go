// Package metrics exposes Prometheus counters and histograms tracking
// sync runs, snapshots and pruning, plus the HTTP listener serving them
// when the manifest configures Global.Monitoring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels the outcome of a sync run for nbkp_sync_runs_total.
type Result string

const (
	ResultOK     Result = "ok"
	ResultFailed Result = "failed"
	ResultSkip   Result = "skipped"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbkp_sync_runs_total",
		Help: "Total number of sync runs, by sync and result.",
	}, []string{"sync", "result"})

	SyncDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nbkp_sync_duration_seconds",
		Help:    "Wall-clock duration of a sync run, including any snapshot and prune steps.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s .. ~2h16m
	}, []string{"sync"})

	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbkp_snapshots_total",
		Help: "Total number of snapshots created, by sync.",
	}, []string{"sync"})

	PrunedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbkp_pruned_total",
		Help: "Total number of old snapshots removed by pruning, by sync.",
	}, []string{"sync"})
)

// ObserveRun records the outcome and duration of one sync run.
func ObserveRun(sync string, result Result, seconds float64) {
	SyncRunsTotal.WithLabelValues(sync, string(result)).Inc()
	SyncDurationSeconds.WithLabelValues(sync).Observe(seconds)
}

// ObserveSnapshot records one snapshot created for sync.
func ObserveSnapshot(sync string) {
	SnapshotsTotal.WithLabelValues(sync).Inc()
}

// ObservePruned records count snapshots removed for sync.
func ObservePruned(sync string, count int) {
	PrunedTotal.WithLabelValues(sync).Add(float64(count))
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsh2dsh/nbkp/internal/metrics"
	"github.com/dsh2dsh/nbkp/internal/preflight"
	"github.com/dsh2dsh/nbkp/internal/runner"
)

func newRunCmd() *cobra.Command {
	var dryRun bool
	var prune bool
	var parallel int
	var only []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute every active sync in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, err := withLogging(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			mon, err := metrics.Start(cfg.Global.Monitoring)
			if err != nil {
				return fmt.Errorf("start metrics: %w", err)
			}
			if mon != nil {
				defer mon.Shutdown(ctx)
			}

			endpoints, err := resolveEndpoints(cfg)
			if err != nil {
				return err
			}

			checker, err := preflight.NewChecker(cfg)
			if err != nil {
				return fmt.Errorf("build checker: %w", err)
			}
			_, syncStatuses := checker.CheckAll(ctx)

			out := cmd.OutOrStdout()
			r := runner.New(cfg, endpoints)
			results, err := r.RunAll(ctx, syncStatuses, runner.Options{
				DryRun:      dryRun,
				Prune:       prune,
				MaxParallel: parallel,
				OnlySyncs:   only,
				OnRsyncLine: func(slug, line string) {
					fmt.Fprintf(out, "[%s] %s\n", slug, line)
				},
			})
			if err != nil {
				return err
			}

			failed := 0
			for _, res := range results {
				status := "OK"
				if !res.Success {
					status = "FAIL: " + res.Error
					failed++
				}
				fmt.Fprintf(out, "%-20s %s\n", res.SyncSlug, status)
			}
			if failed > 0 {
				return fmt.Errorf("%d sync(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run rsync with --dry-run, skip snapshot/prune side effects")
	cmd.Flags().BoolVar(&prune, "prune", false, "prune old snapshots after a successful sync")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "max syncs to run concurrently within a dependency level")
	cmd.Flags().StringSliceVar(&only, "only", nil, "restrict the run to these sync slugs")
	return cmd
}

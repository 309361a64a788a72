package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsh2dsh/nbkp/internal/runner"
)

func newPruneCmd() *cobra.Command {
	var dryRun bool
	var only []string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old snapshots beyond each sync's configured retention, without syncing first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, err := withLogging(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			endpoints, err := resolveEndpoints(cfg)
			if err != nil {
				return err
			}

			r := runner.New(cfg, endpoints)
			results, err := r.PruneAll(ctx, only, dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, res := range results {
				if res.Error != "" {
					failed++
					fmt.Fprintf(out, "%-20s FAIL: %s\n", res.SyncSlug, res.Error)
					continue
				}
				fmt.Fprintf(out, "%-20s deleted %d, kept %d\n", res.SyncSlug, len(res.Deleted), res.Kept)
			}
			if failed > 0 {
				return fmt.Errorf("%d sync(s) failed to prune", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	cmd.Flags().StringSliceVar(&only, "only", nil, "restrict pruning to these sync slugs")
	return cmd
}

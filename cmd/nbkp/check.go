package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsh2dsh/nbkp/internal/preflight"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report which volumes and syncs are currently reachable and usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, err := withLogging(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			checker, err := preflight.NewChecker(cfg)
			if err != nil {
				return fmt.Errorf("build checker: %w", err)
			}
			volStatuses, syncStatuses := checker.CheckAll(ctx)

			out := cmd.OutOrStdout()
			anyInactive := false
			for _, slug := range sortedKeys(volStatuses) {
				st := volStatuses[slug]
				if st.Active() {
					fmt.Fprintf(out, "volume %-20s OK\n", slug)
					continue
				}
				anyInactive = true
				fmt.Fprintf(out, "volume %-20s FAIL: %v\n", slug, st.Reasons)
			}
			for _, slug := range sortedKeys(syncStatuses) {
				st := syncStatuses[slug]
				if st.Active() {
					fmt.Fprintf(out, "sync   %-20s OK\n", slug)
					continue
				}
				anyInactive = true
				fmt.Fprintf(out, "sync   %-20s FAIL: %v\n", slug, st.Reasons)
			}

			if anyInactive {
				return fmt.Errorf("one or more volumes or syncs are not usable")
			}
			return nil
		},
	}
}

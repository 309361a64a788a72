package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsh2dsh/nbkp/internal/depgraph"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the dependency-ordered list of syncs without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			order, err := depgraph.Sort(cfg.Syncs)
			if err != nil {
				return fmt.Errorf("order syncs: %w", err)
			}
			for i, slug := range order {
				sync := cfg.Syncs[slug]
				state := "enabled"
				if !sync.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %-20s %s -> %s  [%s]\n",
					i+1, slug, sync.Source.Volume, sync.Destination.Volume, state)
			}
			return nil
		},
	}
}

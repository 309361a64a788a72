package main

import (
	"fmt"
	"time"

	"github.com/dsh2dsh/go-monitoringplugin/v2"
	"github.com/spf13/cobra"

	"github.com/dsh2dsh/nbkp/client/healthcheck"
	"github.com/dsh2dsh/nbkp/internal/preflight"
	"github.com/dsh2dsh/nbkp/internal/snapshot"
)

func newHealthcheckCmd() *cobra.Command {
	var warn, crit time.Duration
	var only []string

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Run a Nagios/Icinga-compatible check of sync status and snapshot age",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			endpoints, err := resolveEndpoints(cfg)
			if err != nil {
				return err
			}

			checker, err := preflight.NewChecker(cfg)
			if err != nil {
				return fmt.Errorf("build checker: %w", err)
			}
			_, syncStatuses := checker.CheckAll(ctx)

			resp := monitoringplugin.NewResponse("nbkp healthcheck")
			check := healthcheck.New(resp).WithThresholds(warn, crit)
			check.CheckStatuses(syncStatuses, only)
			if warn > 0 || crit > 0 {
				if err := check.CheckSnapshotAge(ctx, cfg, snapshot.Endpoints(endpoints), only); err != nil {
					return fmt.Errorf("check snapshot age: %w", err)
				}
			}

			resp.OutputAndExit()
			return nil
		},
	}

	cmd.Flags().DurationVar(&warn, "warn", 0, "warn if the newest snapshot is older than this (0 disables)")
	cmd.Flags().DurationVar(&crit, "crit", 0, "critical if the newest snapshot is older than this (0 disables)")
	cmd.Flags().StringSliceVar(&only, "only", nil, "restrict checks to these sync slugs")
	return cmd
}

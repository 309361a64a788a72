// Command nbkp is a declarative backup orchestrator: it plans, checks,
// and runs file-tree syncs described by a YAML manifest, optionally
// taking btrfs or hard-link snapshots of their destinations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dsh2dsh/nbkp/config"
)

var rootCmd = &cobra.Command{
	Use:   "nbkp",
	Short: "Declarative file-tree backup orchestrator",
	Long: `nbkp plans, validates, and executes file-tree syncs described by a
YAML manifest, over local paths or SSH-chained remote hosts, with
optional btrfs or hard-link snapshot retention.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to the manifest (default: search order from docs)")
	rootCmd.PersistentFlags().String("log-level", "", "override Global.logging.level (debug, info, warn, error)")

	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		fmt.Fprintf(os.Stderr, "bind flag config: %v\n", err)
		os.Exit(1)
	}

	viper.SetEnvPrefix("NBKP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newPruneCmd())
	rootCmd.AddCommand(newGenScriptCmd())
	rootCmd.AddCommand(newHealthcheckCmd())
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig resolves --config (or the manifest search order, if unset),
// loads the manifest and applies any --log-level override to it. It does
// not install logging or start metrics; subcommands do that themselves.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Global.Logging.Level = level
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nbkp: %v\n", err)
		os.Exit(1)
	}
}

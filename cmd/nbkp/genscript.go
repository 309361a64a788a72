package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsh2dsh/nbkp/internal/scriptgen"
)

func newGenScriptCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "gen-script",
		Short: "Render the manifest into a self-contained POSIX shell script",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			endpoints, err := resolveEndpoints(cfg)
			if err != nil {
				return err
			}

			configPath, _ := cmd.Flags().GetString("config")
			script, err := scriptgen.Generate(cfg, endpoints, scriptgen.Options{ConfigPath: configPath}, time.Now())
			if err != nil {
				return fmt.Errorf("generate script: %w", err)
			}

			if output == "" || output == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), script)
				return err
			}
			return os.WriteFile(output, []byte(script), 0o755)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the script here instead of stdout")
	return cmd
}

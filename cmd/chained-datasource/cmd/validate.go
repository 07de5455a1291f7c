// file: cmd/chained-datasource/cmd/validate.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and print each descriptor's effective scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "client id source: %s (entity %s)\n", cfg.Host.ClientIDSource, cfg.Host.StorageEntity)
		fmt.Fprintf(out, "descriptors: %d\n", len(cfg.Descriptors))
		for i, d := range cfg.Descriptors {
			scope, err := d.Scope()
			if err != nil {
				return fmt.Errorf("descriptor %d: %w", i, err)
			}
			client := d.ClientID
			if client == "" {
				client = "(default)"
			}
			fmt.Fprintf(out, "  %d. %-7s %s\n     scope: %s  client: %s\n", i+1, d.Method, d.URL, scope, client)
		}
		return nil
	},
}

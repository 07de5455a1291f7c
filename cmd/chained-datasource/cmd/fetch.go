// file: cmd/chained-datasource/cmd/fetch.go
package cmd

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"chained-datasource/internal/app"
	"chained-datasource/internal/datasource"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [--output json|yaml]",
	Short: "Run the descriptor chain once and print the items",
	Long: `fetch resolves the client id, acquires a token per descriptor from cached
sessions, calls each endpoint and prints {"items": [...]}. Descriptors without a
session or whose call fails contribute an empty list.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output != "json" && output != "yaml" {
			return fmt.Errorf("unsupported output format %q", output)
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		base, err := app.NewAppBuilder(cmd.Context(), cfg).
			WithLogger().
			WithStorage().
			WithAuth().
			WithDataSource().
			Build()
		if err != nil {
			return err
		}
		defer base.Close()

		data, err := base.DataSource.GetData(cmd.Context())
		if err != nil {
			return err
		}
		return writeData(cmd.OutOrStdout(), data, output)
	},
}

func writeData(w io.Writer, data *datasource.Data, output string) error {
	if output == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	}

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func init() {
	fetchCmd.Flags().StringP("output", "o", "json", "output format: json or yaml")
}

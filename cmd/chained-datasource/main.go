// file: cmd/chained-datasource/main.go

package main

import (
	"os"

	"github.com/spf13/cobra"

	"chained-datasource/cmd/chained-datasource/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "chained-datasource",
	Short: "Fetch data from chained, individually authenticated APIs.",
	Long: `chained-datasource calls an ordered list of API endpoints, each with its own
delegated OAuth2 token, and returns their responses as one item list. Tokens are
acquired silently from cached sessions and refreshed before they expire.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	cmd.AddCommands(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

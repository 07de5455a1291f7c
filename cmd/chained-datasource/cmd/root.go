// file: cmd/chained-datasource/cmd/root.go
package cmd

import (
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"chained-datasource/config"
)

var configPath string

// AddCommands adds the shared flags and all subcommands to the root command.
func AddCommands(root *cobra.Command) {
	root.PersistentFlags().AddFlagSet(configFlags())

	root.AddCommand(serveCmd)
	root.AddCommand(fetchCmd)
	root.AddCommand(loginCmd)
	root.AddCommand(validateCmd)
}

func configFlags() *flag.FlagSet {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.StringVarP(&configPath, "config", "c", "config/config.yaml", "path to config file (YAML or JSON); empty reads the environment only")
	return fs
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

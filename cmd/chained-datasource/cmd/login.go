// file: cmd/chained-datasource/cmd/login.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"chained-datasource/internal/app"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a device code so silent acquisition can succeed",
	Long: `login signs the configured user in once per client id used by the descriptors.
Enable auth.tokenCache so the session is stored in NATS KV and reused by serve
and fetch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		results, err := base.Login(cmd.Context(), func(message string) {
			fmt.Fprintln(cmd.ErrOrStderr(), message)
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, r := range results {
			status := "ok"
			switch {
			case !r.Authenticated:
				status = "no session"
				failed++
			case r.Interactive:
				status = "signed in"
			}
			fmt.Fprintf(out, "%-40s %-50s %s\n", r.Key.Client, r.Key.Scope, status)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d scopes have no session", failed, len(results))
		}
		return nil
	},
}

// file: cmd/chained-datasource/cmd/serve.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"chained-datasource/internal/app"
	"chained-datasource/internal/lifecycle"
	"chained-datasource/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP data source with background token refresh",
	Long: `serve exposes GET /data, GET and PUT /descriptors, /healthz and the metrics
endpoint. SIGHUP re-reads the configuration and rebuilds every component.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		appLogger, err := logger.NewLogger(&cfg.Logging)
		if err != nil {
			return err
		}
		defer appLogger.Sync()

		// The first build reuses the config loaded above
		first := true
		create := func(ctx context.Context) (lifecycle.Application, error) {
			if !first {
				if cfg, err = loadConfig(); err != nil {
					return nil, fmt.Errorf("failed to reload config: %w", err)
				}
			}
			first = false
			return app.NewApp(ctx, cfg)
		}

		return lifecycle.RunWithReload(cmd.Context(), create, appLogger)
	},
}

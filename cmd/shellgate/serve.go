package main

import (
	apihttp "github.com/artpar/shellgate/adapters/http"
	"github.com/artpar/shellgate/bootstrap"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the shell host HTTP server",
	Long: `Start the shellgate HTTP server.

The server will:
  - Load configuration from shellgate.yaml (or --config)
  - Or load configuration from SHELLGATE_* environment variables
  - Open the override store (sqlite or memory)
  - Serve remote resolution, module lifecycle, state and event endpoints

Environment variables (for container deployments):
  SHELLGATE_SERVER_PORT                 - Server port (default: 8080)
  SHELLGATE_STORAGE_DRIVER              - Override store: sqlite or memory
  SHELLGATE_STORAGE_DSN                 - Database path (default: shellgate.db)
  SHELLGATE_LOG_LEVEL                   - Log level: debug, info, warn, error
  SHELLGATE_REMOTES_0_NAME              - First remote module name
  SHELLGATE_REMOTES_0_DEFAULT_ADDRESS   - First remote module default address

Examples:
  shellgate serve
  shellgate serve --config /etc/shellgate/config.yaml
  shellgate serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload the config file on change and SIGHUP")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.NewWithConfig(bootstrap.Config{
		ConfigPath: cfgFile,
		Watch:      hotReload,
		Version: apihttp.VersionResponse{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		},
	})
	if err != nil {
		return err
	}

	// Run blocks until SIGINT or SIGTERM.
	return app.Run()
}

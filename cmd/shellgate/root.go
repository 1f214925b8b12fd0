package main

import (
	"fmt"
	"os"

	"github.com/artpar/shellgate/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shellgate",
	Short: "Shell host for pluggable UI modules",
	Long: `shellgate hosts independently deployed UI modules inside one shell.

It resolves which build of each remote module a request should load,
validates module contracts, and carries shared state and events between
mounted modules.

Quick start:
  shellgate serve               # Start the HTTP server
  shellgate resolve             # Show where every remote resolves to
  shellgate overrides staging   # Point every remote at staging

Checks:
  shellgate validate            # Validate configuration
  shellgate contract tab.yaml   # Validate a tab module manifest
  shellgate admin-token         # Generate an admin token and hash`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "shellgate.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

// loadConfig reads the config file, or SHELLGATE_* variables when it is absent.
func loadConfig() (*config.Config, error) {
	return config.LoadWithFallback(cfgFile)
}

// cliLogger writes human-readable warnings to stderr.
func cliLogger(cmd *cobra.Command) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: true}).
		Level(level).
		With().Timestamp().Logger()
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/artpar/shellgate/adapters/remote"
	"github.com/artpar/shellgate/bootstrap"
	"github.com/artpar/shellgate/config"
	"github.com/artpar/shellgate/core/contract"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the shellgate configuration file.

Checks:
  - YAML syntax is valid
  - Remote names are unique and safe to use in query strings and cookies
  - Override patterns carry their placeholders
  - Override store is writable (optional)
  - Every remote serves a manifest that passes contract validation (optional)

Examples:
  shellgate validate
  shellgate validate --check-remotes
  shellgate validate --config /etc/shellgate/config.yaml`,
	RunE: runValidate,
}

var (
	validateCheckRemotes bool
	validateCheckStorage bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckRemotes, "check-remotes", false, "fetch and validate every remote's manifest")
	validateCmd.Flags().BoolVar(&validateCheckStorage, "check-storage", false, "check the override store opens")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	fmt.Fprintf(out, "  %s Storage: %s %s\n", checkMark, cfg.Storage.Driver, cfg.Storage.DSN)
	fmt.Fprintf(out, "  %s Remotes configured: %d\n", checkMark, len(cfg.Remotes))
	for _, r := range cfg.Remotes {
		fmt.Fprintf(out, "      %s -> %s\n", r.Name, r.DefaultAddress)
	}

	if validateCheckStorage {
		if err := checkStorage(cfg.Storage); err != nil {
			fmt.Fprintf(out, "  %s Override store opens\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Override store opens\n", checkMark)
		}
	}

	failed := 0
	if validateCheckRemotes {
		failed = checkRemotes(cmd, cfg)
	}

	fmt.Fprintln(out)
	if failed > 0 {
		return fmt.Errorf("%d remote(s) failed validation", failed)
	}
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkStorage(cfg config.StorageConfig) error {
	_, closeFn, err := bootstrap.OpenKVStore(cfg)
	if err != nil {
		return err
	}
	return closeFn()
}

// checkRemotes loads each remote's default manifest and returns the number
// that could not be loaded or failed contract validation.
func checkRemotes(cmd *cobra.Command, cfg *config.Config) int {
	out := cmd.OutOrStdout()
	client := remote.NewClient(remote.ClientConfig{
		Timeout:      cfg.Loader.Timeout,
		Headers:      cfg.Loader.Headers,
		AllowedHosts: cfg.Loader.AllowedHosts,
	})
	loader := remote.NewManifestLoader(client, cliLogger(cmd))

	failed := 0
	for _, r := range cfg.Remotes {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		exports, err := loader.Load(ctx, r.DefaultAddress)
		cancel()
		if err != nil {
			failed++
			fmt.Fprintf(out, "  %s %s reachable\n", crossMark, r.Name)
			fmt.Fprintf(out, "      Error: %v\n", err)
			continue
		}

		result := contract.ValidateTabModuleContract(exports.Tab)
		if !result.Valid {
			failed++
			fmt.Fprintf(out, "  %s %s contract\n", crossMark, r.Name)
			fmt.Fprintln(out, indent(contract.FormatValidationErrors(result), "      "))
			continue
		}
		fmt.Fprintf(out, "  %s %s contract (%d state slice(s))\n", checkMark, r.Name, len(exports.Slices))
	}
	return failed
}

package main

import (
	"fmt"
	"strconv"

	"github.com/artpar/shellgate/app"
	"github.com/artpar/shellgate/bootstrap"
	"github.com/spf13/cobra"
)

var overridesCmd = &cobra.Command{
	Use:   "overrides",
	Short: "Manage persisted remote overrides",
	Long: `Manage the override blob that points remotes at non-default builds.

Overrides are stored in the configured override store and apply to every
request that does not carry a query parameter or cookie for the module.

Examples:
  shellgate overrides list
  shellgate overrides set orders http://localhost:3001/remoteEntry.js
  shellgate overrides pr orders 1234
  shellgate overrides staging
  shellgate overrides clear orders
  shellgate overrides clear-all`,
}

var overridesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted overrides",
	Args:  cobra.NoArgs,
	RunE: withOverrides(func(cmd *cobra.Command, svc *app.OverrideService, args []string) error {
		blob := svc.ListOverrides(cmd.Context())
		out := cmd.OutOrStdout()
		if len(blob) == 0 {
			fmt.Fprintln(out, "No overrides set.")
			return nil
		}
		for _, name := range app.SortedOverrideNames(blob) {
			fmt.Fprintf(out, "%s\t%s\n", name, blob[name])
		}
		return nil
	}),
}

var overridesSetCmd = &cobra.Command{
	Use:   "set <module> <address>",
	Short: "Point one module at an address",
	Args:  cobra.ExactArgs(2),
	RunE: withOverrides(func(cmd *cobra.Command, svc *app.OverrideService, args []string) error {
		if err := svc.Override(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], args[1])
		return nil
	}),
}

var overridesClearCmd = &cobra.Command{
	Use:   "clear <module>",
	Short: "Remove one override",
	Args:  cobra.ExactArgs(1),
	RunE: withOverrides(func(cmd *cobra.Command, svc *app.OverrideService, args []string) error {
		if err := svc.ClearOverride(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared override for %s.\n", args[0])
		return nil
	}),
}

var overridesClearAllCmd = &cobra.Command{
	Use:   "clear-all",
	Short: "Remove every override",
	Args:  cobra.NoArgs,
	RunE: withOverrides(func(cmd *cobra.Command, svc *app.OverrideService, args []string) error {
		if err := svc.ClearOverrides(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cleared all overrides.")
		return nil
	}),
}

var overridesStagingCmd = &cobra.Command{
	Use:   "staging",
	Short: "Point every configured remote at its staging build",
	Args:  cobra.NoArgs,
	RunE: withOverrides(func(cmd *cobra.Command, svc *app.OverrideService, args []string) error {
		written, err := svc.UseStaging(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range app.SortedOverrideNames(written) {
			fmt.Fprintf(out, "%s -> %s\n", name, written[name])
		}
		return nil
	}),
}

var overridesPRCmd = &cobra.Command{
	Use:   "pr <module> <number>",
	Short: "Point one module at a pull request preview build",
	Args:  cobra.ExactArgs(2),
	RunE: withOverrides(func(cmd *cobra.Command, svc *app.OverrideService, args []string) error {
		pr, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("pr number must be an integer: %q", args[1])
		}
		addr, err := svc.TestPR(cmd.Context(), args[0], pr)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], addr)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(overridesCmd)

	overridesCmd.AddCommand(overridesListCmd)
	overridesCmd.AddCommand(overridesSetCmd)
	overridesCmd.AddCommand(overridesClearCmd)
	overridesCmd.AddCommand(overridesClearAllCmd)
	overridesCmd.AddCommand(overridesStagingCmd)
	overridesCmd.AddCommand(overridesPRCmd)
}

type overridesFunc func(cmd *cobra.Command, svc *app.OverrideService, args []string) error

// withOverrides opens the configured override store around fn.
func withOverrides(fn overridesFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := openOverrides(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(cmd, svc, args)
	}
}

func openOverrides(cmd *cobra.Command) (*app.OverrideService, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.Driver == "memory" {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: storage driver is memory, changes are not persisted")
	}

	kv, closeFn, err := bootstrap.OpenKVStore(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open override store: %w", err)
	}
	return app.NewOverrideService(kv, bootstrap.OverrideConfig(cfg), cliLogger(cmd)), closeFn, nil
}

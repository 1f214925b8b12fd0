package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/artpar/shellgate/domain/remote"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [module...]",
	Short: "Show where remote modules resolve to",
	Long: `Resolve remote modules the way the server would for a request.

Query parameters and cookies can be simulated with --query and --cookie.
Persisted overrides come from the configured override store.

Examples:
  shellgate resolve
  shellgate resolve orders --query remote_orders=http://localhost:3001/remoteEntry.js
  shellgate resolve search --default https://cdn.example.com/search/remoteEntry.js
  shellgate resolve --json`,
	RunE: runResolve,
}

var (
	resolveQuery   []string
	resolveCookies []string
	resolveDefault string
	resolveJSON    bool
)

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringArrayVar(&resolveQuery, "query", nil, "query parameter as name=value (repeatable)")
	resolveCmd.Flags().StringArrayVar(&resolveCookies, "cookie", nil, "cookie as name=value (repeatable)")
	resolveCmd.Flags().StringVar(&resolveDefault, "default", "", "default address for modules that are not configured")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "print descriptors as JSON")
}

func runResolve(cmd *cobra.Command, args []string) error {
	in, err := requestInputs(resolveQuery, resolveCookies)
	if err != nil {
		return err
	}

	svc, closeFn, err := openOverrides(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	var descriptors []remote.Descriptor
	if len(args) == 0 {
		descriptors = svc.ResolveAll(ctx, in)
	}
	for _, name := range args {
		def := resolveDefault
		if m, ok := svc.Lookup(name); ok {
			def = m.DefaultAddress
		} else if def == "" {
			msg := fmt.Sprintf("remote %q is not configured; pass --default to resolve it anyway", name)
			if s := svc.Suggest(name); s != "" {
				msg += fmt.Sprintf(" (did you mean %q?)", s)
			}
			return errors.New(msg)
		}
		descriptors = append(descriptors, svc.Resolve(ctx, in, name, def))
	}

	out := cmd.OutOrStdout()
	if resolveJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(descriptors)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSOURCE\tADDRESS")
	for _, d := range descriptors {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.Source, d.ResolvedAddress)
	}
	return tw.Flush()
}

// requestInputs builds simulated request inputs from name=value pairs.
func requestInputs(query, cookies []string) (remote.Inputs, error) {
	q := url.Values{}
	for _, kv := range query {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return remote.Inputs{}, fmt.Errorf("--query %q must be name=value", kv)
		}
		q.Add(name, value)
	}

	jar := make(map[string]string, len(cookies))
	for _, kv := range cookies {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return remote.Inputs{}, fmt.Errorf("--cookie %q must be name=value", kv)
		}
		jar[name] = value
	}

	return remote.Inputs{
		Query: q,
		Cookie: func(name string) (string, bool) {
			v, ok := jar[name]
			return v, ok
		},
	}, nil
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/artpar/shellgate/core/contract"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var contractCmd = &cobra.Command{
	Use:   "contract <manifest>",
	Short: "Validate a tab module manifest",
	Long: `Validate a tab module manifest against the module contract.

The manifest is YAML or JSON. It is either the tab object itself or a
remote manifest whose "tab" key holds it. Use "-" to read from stdin.

Examples:
  shellgate contract tab.yaml
  curl -s https://cdn.example.com/orders/manifest.json | shellgate contract -`,
	Args: cobra.ExactArgs(1),
	RunE: runContract,
}

func init() {
	rootCmd.AddCommand(contractCmd)
}

func runContract(cmd *cobra.Command, args []string) error {
	data, err := readManifest(cmd, args[0])
	if err != nil {
		return err
	}

	tab, err := parseTab(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	result := contract.ValidateTabModuleContract(contract.FromManifest(tab))
	if result.Valid {
		fmt.Fprintf(out, "%s %s: contract valid\n", checkMark, args[0])
		return nil
	}

	fmt.Fprintf(out, "%s %s: contract invalid\n", crossMark, args[0])
	fmt.Fprintln(out, indent(contract.FormatValidationErrors(result), "  "))
	return fmt.Errorf("manifest %s failed contract validation", args[0])
}

func readManifest(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return data, nil
}

// parseTab decodes a manifest and unwraps its "tab" key when present.
func parseTab(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parse manifest: document is empty")
	}
	if tab, ok := doc["tab"].(map[string]any); ok {
		return tab, nil
	}
	return doc, nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

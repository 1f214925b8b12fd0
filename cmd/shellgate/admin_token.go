package main

import (
	"fmt"

	"github.com/artpar/shellgate/adapters/hasher"
	"github.com/artpar/shellgate/adapters/random"
	"github.com/artpar/shellgate/ports"
	"github.com/spf13/cobra"
)

var (
	adminTokenValue string
	adminTokenCost  int
)

// tokenSource is replaced in tests.
var tokenSource ports.TokenSource = random.Real{}

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Generate an admin token and its bcrypt hash",
	Long: `Generate a token for the /admin API and print the bcrypt hash to put
in admin.token_hash (or SHELLGATE_ADMIN_TOKEN_HASH).

The token is printed once. Send it in the X-Admin-Token header.

Examples:
  shellgate admin-token
  shellgate admin-token --token "$EXISTING_TOKEN"`,
	Args: cobra.NoArgs,
	RunE: runAdminToken,
}

func init() {
	adminTokenCmd.Flags().StringVar(&adminTokenValue, "token", "", "hash this token instead of generating one")
	adminTokenCmd.Flags().IntVar(&adminTokenCost, "cost", 0, "bcrypt cost (default 10)")
	rootCmd.AddCommand(adminTokenCmd)
}

func runAdminToken(cmd *cobra.Command, args []string) error {
	token := adminTokenValue
	if token == "" {
		t, err := tokenSource.Token()
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		token = t
	}

	h := hasher.NewBcrypt(adminTokenCost)
	hash, err := h.Hash(token)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "token:      %s\n", token)
	fmt.Fprintf(out, "token_hash: %s\n", hash)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Add to shellgate.yaml:")
	fmt.Fprintln(out, "  admin:")
	fmt.Fprintf(out, "    token_hash: %q\n", hash)
	return nil
}

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/enrichment-cli/internal/config"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage provider API keys in the OS keychain",
	Long: fmt.Sprintf(`Stores provider keys in the OS keychain under the %q service.
Keys from config.yaml or ENRICH_* environment variables take precedence.`, config.KeyringService),
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store a key read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return eris.Wrap(err, "read secret from stdin")
		}
		if err := config.SetSecret(args[0], strings.TrimSpace(line)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s key\n", args[0])
		return nil
	},
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Remove a stored key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.DeleteSecret(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s key\n", args[0])
		return nil
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers whose keys can be stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range config.SecretProviders() {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd, secretsDeleteCmd, secretsListCmd)
	rootCmd.AddCommand(secretsCmd)
}

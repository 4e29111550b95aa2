package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/felixgeelhaar/recall/internal/credential"
	"github.com/spf13/cobra"
)

var reveal bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stored configuration and API keys",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a configuration value. Keys ending in api_key, password or token are
encrypted at rest, e.g. openai.api_key, mail.password.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *credential.Vault) error {
			return setConfig(ctx, v, cmd.OutOrStdout(), args[0], args[1])
		})
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(cmd, func(ctx context.Context, v *credential.Vault) error {
			return getConfig(ctx, v, cmd.OutOrStdout(), args[0], reveal)
		})
	},
}

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configGetCmd.Flags().BoolVar(&reveal, "reveal", false, "Print secrets in full")
}

func withVault(cmd *cobra.Command, fn func(context.Context, *credential.Vault) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st.vault)
}

func setConfig(ctx context.Context, v *credential.Vault, w io.Writer, key, value string) error {
	if err := v.Set(ctx, key, value); err != nil {
		return fmt.Errorf("failed to set config: %w", err)
	}
	fmt.Fprintf(w, "Configuration saved: %s\n", key)
	return nil
}

func getConfig(ctx context.Context, v *credential.Vault, w io.Writer, key string, reveal bool) error {
	val, err := v.Get(ctx, key)
	if err != nil {
		return err
	}
	switch {
	case val == "":
		fmt.Fprintln(w, "(not set)")
	case credential.IsSecretKey(key) && !reveal:
		fmt.Fprintln(w, credential.MaskSecret(val))
	default:
		fmt.Fprintln(w, val)
	}
	return nil
}

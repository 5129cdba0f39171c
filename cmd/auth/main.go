// Command auth manages the API keys the gateway accepts. Each key acts as one
// principal.
//
// Usage:
//
//	auth create <principal> [--rate-limit 600] [--expires-in 720h]
//	auth revoke <raw-key>
//	auth list
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/postgres"
)

var (
	flagConfig    string
	flagRateLimit int
	flagExpiresIn time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "auth",
	Short:        "Manage gateway API keys",
	SilenceUsage: true,
}

var createCmd = &cobra.Command{
	Use:   "create <principal>",
	Short: "Issue a key that searches and publishes as <principal>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withValidator(cmd.Context(), func(v *apikey.Validator) error {
			var expiresAt *time.Time
			if flagExpiresIn > 0 {
				t := time.Now().Add(flagExpiresIn).UTC()
				expiresAt = &t
			}
			raw, info, err := v.CreateKey(cmd.Context(), args[0], flagRateLimit, expiresAt)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Store this key securely; it cannot be retrieved again.")
			fmt.Fprintf(out, "  Key:        %s\n", raw)
			fmt.Fprintf(out, "  ID:         %s\n", info.ID)
			fmt.Fprintf(out, "  Principal:  %s\n", info.Principal)
			fmt.Fprintf(out, "  Rate limit: %s\n", describeLimit(info.RateLimit))
			fmt.Fprintf(out, "  Expires:    %s\n", describeExpiry(info.ExpiresAt))
			return nil
		})
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <raw-key>",
	Short: "Deactivate a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withValidator(cmd.Context(), func(v *apikey.Validator) error {
			if err := v.RevokeKey(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key revoked.")
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withValidator(cmd.Context(), func(v *apikey.Validator) error {
			keys, err := v.ListKeys(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRINCIPAL\tRATE LIMIT\tEXPIRES")
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k.ID, k.Principal, describeLimit(k.RateLimit), describeExpiry(k.ExpiresAt))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d active key(s)\n", len(keys))
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "configs/development.yaml", "path to config file")
	createCmd.Flags().IntVar(&flagRateLimit, "rate-limit", 0, "requests per window (0 uses the gateway default)")
	createCmd.Flags().DurationVar(&flagExpiresIn, "expires-in", 0, "key lifetime, e.g. 720h (0 never expires)")
	rootCmd.AddCommand(createCmd, revokeCmd, listCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withValidator(ctx context.Context, fn func(v *apikey.Validator) error) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Setup(cfg.Logging.Level, "text")
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	store := apikey.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	return fn(apikey.NewValidator(store, 0, 0))
}

func describeLimit(n int) string {
	if n == 0 {
		return "default"
	}
	return fmt.Sprintf("%d/window", n)
}

func describeExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}

package main

import (
	"fmt"

	"github.com/goliatone/go-gradspeech/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply record store migrations",
		Long: `Apply the embedded migrations for the configured store driver.

Examples:
  gradspeech migrate
  gradspeech migrate --store-driver sqlite3 --store-url file:gradspeech.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := root.loadConfig(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			client, err := openDatabase(cfg.Store)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := migrate(ctx, client, cfg.Store.Driver); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", migrations.DialectForDriver(cfg.Store.Driver))
			return nil
		},
	}
}

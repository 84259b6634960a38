package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadflow/backend/internal/config"
	"github.com/leadflow/backend/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.StoreDriver != config.StoreDriverPostgres {
			return eris.Errorf("migrate requires STORE_DRIVER=%s", config.StoreDriverPostgres)
		}
		ctx := cmd.Context()

		store, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "migrate")
		}
		defer store.Close()

		if err := db.Migrate(ctx, store.Pool, logger); err != nil {
			return eris.Wrap(err, "migrate")
		}
		logger.Info().Msg("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

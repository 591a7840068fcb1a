package cmd

import (
	"github.com/spf13/cobra"

	"glucoheart/internal/bootstrap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the messaging tables and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := bootstrap.OpenDatabase(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err == nil {
			defer sqlDB.Close()
		}

		if err := bootstrap.Migrate(db); err != nil {
			return err
		}
		logger.Info("migration complete", "driver", cfg.Database.Driver)
		return nil
	},
}

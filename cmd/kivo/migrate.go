package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eddykim0118/kivo/internal/app"
	"github.com/eddykim0118/kivo/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema, seed configured locations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log, err := app.NewLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer log.Sync()
		return app.Migrate(cmd.Context(), cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpattn/incidentetl/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate up|down",
	Short:     "Apply or revert the bundled database migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(db.Up), string(db.Down)},
	RunE:      runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	direction := db.Direction(args[0])
	if err := db.RunMigrations(cfg.Database, direction); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrations %s applied to %s\n", direction, cfg.Database.DBName)
	return nil
}

package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-billing-connector/app/migration"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Run: func(_ *cobra.Command, _ []string) {
		cfg := mustLoadConfig()
		db := mustOpenDB(cfg)
		defer db.Close()

		if err := migration.Up(db); err != nil {
			logrus.WithError(err).Fatal("Failed to apply migrations")
		}
		logrus.Info("Migrations applied")
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Run: func(_ *cobra.Command, _ []string) {
		cfg := mustLoadConfig()
		db := mustOpenDB(cfg)
		defer db.Close()

		if err := migration.Down(db, migrateSteps); err != nil {
			logrus.WithError(err).Fatal("Failed to roll back migrations")
		}
		logrus.WithField("steps", migrateSteps).Info("Migrations rolled back")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "Number of migrations to roll back")
}

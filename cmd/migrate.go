package cmd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the billing tables if they do not exist",
	Run: func(_ *cobra.Command, _ []string) {
		cfg := mustLoadConfig()
		db := mustOpenDB(cfg)
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := repository.Migrate(ctx, db); err != nil {
			logrus.WithError(err).Fatal("Failed to apply schema")
		}
		logrus.WithField("statements", len(repository.SchemaStatements())).Info("Schema applied")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"raggingwatch/internal/db"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, sqdb, err := bootstrap(cmd.Context(), "raggingwatch-migrate")
			if err != nil {
				return err
			}
			defer log.Sync()
			defer sqdb.Close()
			applied, err := db.Migrate(cmd.Context(), sqdb, cfg.DBDriver)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrate up: ok", zap.Int64s("applied", applied))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, sqdb, err := bootstrap(cmd.Context(), "raggingwatch-migrate")
			if err != nil {
				return err
			}
			defer log.Sync()
			defer sqdb.Close()
			states, err := db.MigrationStatus(cmd.Context(), sqdb, cfg.DBDriver)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tAPPLIED\tSOURCE")
			for _, s := range states {
				fmt.Fprintf(tw, "%d\t%t\t%s\n", s.Version, s.Applied, s.Path)
			}
			return tw.Flush()
		},
	})
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"raggingwatch/internal/db"
	"raggingwatch/internal/notify"
	"raggingwatch/internal/service"
	"raggingwatch/internal/store"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	var email, password, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account, or promote and re-key an existing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, sqdb, err := bootstrap(cmd.Context(), "raggingwatch-admin")
			if err != nil {
				return err
			}
			defer log.Sync()
			defer sqdb.Close()
			if _, err := db.Migrate(cmd.Context(), sqdb, cfg.DBDriver); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			st := store.New(sqdb, cfg.DBDriver)
			accounts := service.New(cfg, st, notify.NewSender(cfg, log), log)
			if err := accounts.CreateAdmin(cmd.Context(), email, password, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s ready\n", email)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "admin e-mail address")
	create.Flags().StringVar(&password, "password", "", "admin password")
	create.Flags().StringVar(&name, "name", "Administrator", "display name")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"raggingwatch/internal/config"
	"raggingwatch/internal/db"
	"raggingwatch/internal/logging"
)

func newRootCmd() *cobra.Command {
	var envFiles []string
	root := &cobra.Command{
		Use:           "raggingwatch",
		Short:         "Anonymous ragging complaint reporting service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFiles...)
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	serve := newServeCmd()
	root.AddCommand(serve, newMigrateCmd(), newAdminCmd(), newVersionCmd())
	// running the binary without a subcommand starts the server
	root.RunE = serve.RunE
	return root
}

// bootstrap loads configuration, builds the logger and opens the database.
// The caller owns both the logger and the connection.
func bootstrap(ctx context.Context, service string) (config.Config, *zap.Logger, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, service)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("logger: %w", err)
	}
	sqdb, err := db.Open(cfg.DBDriver, cfg.DBDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	if err != nil {
		_ = log.Sync()
		return config.Config{}, nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqdb.PingContext(ctx); err != nil {
		_ = sqdb.Close()
		_ = log.Sync()
		return config.Config{}, nil, nil, fmt.Errorf("ping db: %w", err)
	}
	return cfg, log, sqdb, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"raggingwatch/internal/analytics"
	"raggingwatch/internal/api"
	"raggingwatch/internal/captcha"
	"raggingwatch/internal/complaint"
	"raggingwatch/internal/db"
	"raggingwatch/internal/evidence"
	"raggingwatch/internal/notify"
	"raggingwatch/internal/rate"
	"raggingwatch/internal/service"
	"raggingwatch/internal/session"
	"raggingwatch/internal/store"
	"raggingwatch/internal/version"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, !skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply pending migrations on start")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	cfg, log, sqdb, err := bootstrap(ctx, "raggingwatch")
	if err != nil {
		return err
	}
	defer log.Sync()
	defer sqdb.Close()

	if migrate {
		applied, err := db.Migrate(ctx, sqdb, cfg.DBDriver)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			log.Info("migrations applied", zap.Int64s("versions", applied))
		}
	}

	st := store.New(sqdb, cfg.DBDriver)
	deny, err := session.NewDenylist(cfg.RedisURL, st)
	if err != nil {
		return fmt.Errorf("session denylist: %w", err)
	}
	ev, err := evidence.New(cfg)
	if err != nil {
		return fmt.Errorf("evidence store: %w", err)
	}
	accounts := service.New(cfg, st, notify.NewSender(cfg, log.Named("notify")), log.Named("accounts"))
	if err := accounts.EnsureBootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	router := api.NewRouter(api.Deps{
		Config:   cfg,
		Store:    st,
		Accounts: accounts,
		Sessions: session.NewManager(cfg.SessionSigningKey, cfg.SessionIssuer, cfg.SessionTTL(), deny),
		Engine: complaint.NewEngine(st, ev, log.Named("complaints"), complaint.Options{
			ViewTTL:    cfg.EvidenceViewTTL,
			ReceiptTTL: cfg.EvidenceReceiptTTL,
		}),
		Analytics: analytics.NewAggregator(st, log.Named("analytics")),
		Evidence:  ev,
		Captcha:   captcha.NewVerifier(cfg),
		Limiter:   rate.NewLimiter(),
		Log:       log.Named("http"),
	})

	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("db_driver", cfg.DBDriver),
			zap.String("evidence_backend", cfg.EvidenceBackend),
			zap.String("version", version.Current().String()),
		)
		if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hsrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

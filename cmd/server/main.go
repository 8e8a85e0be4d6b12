// Command server runs the layover matching API: REST endpoints for
// accounts, journeys, matches, chats and messages, plus the realtime
// WebSocket channel.
//
// @title                      Layover Connect API
// @version                    1.0
// @description                Match travelers sharing a flight or a layover and chat with them in real time.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/internal/config"
	httpapi "github.com/tbourn/go-layover-backend/internal/http"
	"github.com/tbourn/go-layover-backend/internal/observability"
	"github.com/tbourn/go-layover-backend/internal/repo"
	"github.com/tbourn/go-layover-backend/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout    = 15 * time.Second
	idempotencySweep   = 10 * time.Minute
	idempotencyTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile     string
		migrateOnly bool
	)
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags.StringVar(&envFile, "env-file", ".env", "optional KEY=VALUE file merged into the environment")
	flags.BoolVar(&migrateOnly, "migrate-only", false, "apply schema migrations and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := config.LoadEnvFile(envFile, !flags.Changed("env-file")); err != nil {
		return fmt.Errorf("env file: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	level := sysutil.SetLogLevel(cfg.LogLevel)
	logger := sysutil.NewLogger(os.Stdout, cfg.LogPretty).With().Str("version", version).Logger()
	log.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	dsn := cfg.DBPath
	if cfg.DBDriver == "postgres" {
		dsn = cfg.DatabaseURL
	}
	db, err := repo.Open(repo.Options{
		Driver:  cfg.DBDriver,
		DSN:     dsn,
		Tracing: cfg.OTEL.Enabled,
		Log:     logger,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Str("driver", cfg.DBDriver).Msg("schema up to date")
	if migrateOnly {
		return nil
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	hub := httpapi.RegisterRoutes(r, httpapi.Deps{DB: db, Log: logger}, cfg)
	go hub.Run(ctx)
	go sweepIdempotency(ctx, db, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("base", cfg.APIBasePath).Stringer("log_level", level).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// sweepIdempotency deletes expired Idempotency-Key records until ctx ends.
func sweepIdempotency(ctx context.Context, db *gorm.DB, logger zerolog.Logger) {
	t := time.NewTicker(idempotencySweep)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			sctx, cancel := context.WithTimeout(ctx, idempotencyTimeout)
			n, err := repo.PurgeExpiredIdempotency(sctx, db, now)
			cancel()
			if err != nil {
				logger.Warn().Err(err).Msg("idempotency sweep failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("deleted", n).Msg("expired idempotency keys purged")
			}
		}
	}
}

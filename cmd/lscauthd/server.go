package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lsc-studio/lscauth"
	"github.com/lsc-studio/lscauth/httpapi"
	"github.com/lsc-studio/lscauth/mailer/smtp"
	"github.com/lsc-studio/lscauth/metrics/export/prometheus"
	"github.com/lsc-studio/lscauth/password"
	"github.com/lsc-studio/lscauth/store/postgres"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	logger := newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	builder := lscauth.New().
		WithConfig(cfg.authConfig()).
		WithLogger(logger)

	// Store
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		if err := postgres.Migrate(db); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		builder.WithStore(postgres.New(db))
		logger.Info("using postgres store")
	} else {
		builder.WithStore(lscauth.NewMemoryStore())
		logger.Warn("no database configured, state is kept in memory")
	}

	// Rate limit counters
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		builder.WithRedis(client)
		logger.Info("using redis rate limit counters", "addr", opts.Addr)
	}

	// Mail
	if cfg.SMTP.Host != "" {
		sender, err := smtp.NewSender(cfg.SMTP)
		if err != nil {
			return fmt.Errorf("configuring smtp: %w", err)
		}
		builder.WithMailer(sender)
	} else {
		builder.WithMailer(lscauth.LogMailer{Logger: logger})
		logger.Warn("no smtp host configured, emails are logged")
	}

	if cfg.PwnedCheck {
		builder.WithBreachChecker(password.NewPwnedClient(password.PwnedConfig{}, nil))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("building auth engine: %w", err)
	}
	defer engine.Close()

	var handler http.Handler = httpapi.NewHandler(engine, logger)
	if cfg.Metrics {
		exporter := prometheus.NewPrometheusExporter(engine)
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", exporter.Handler())
		mux.Handle("/", exporter.Instrument(handler))
		handler = mux
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	go purgeLoop(purgeCtx, engine, cfg.PurgeInterval, logger)

	// Channel to listen for errors from the server
	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// purgeLoop deletes expired tokens every interval until ctx is done.
func purgeLoop(ctx context.Context, engine *lscauth.Engine, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := engine.PurgeExpired(ctx)
			if err != nil {
				logger.Error("purging expired tokens", "error", err)
				continue
			}
			logger.Debug("purged expired tokens",
				"refresh", res.RefreshTokens,
				"verification", res.VerificationTokens,
				"reset", res.ResetTokens,
			)
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"passkeep/internal/api"
	"passkeep/internal/config"
	"passkeep/internal/database"
	"passkeep/internal/mail"
	"passkeep/internal/storage/postgres"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Convenience for local dev: load .env if present (does not override existing env vars).
	if os.Getenv("ENV") != "production" {
		_ = config.LoadDotEnvIfPresent(".env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	dbURL, err := cfg.PostgresURL()
	if err != nil {
		slog.Error("db url error", "err", err)
		os.Exit(1)
	}

	conn, err := database.OpenPostgres(ctx, dbURL)
	if err != nil {
		slog.Error("db connection error", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	migrator := database.NewMigrator(conn)
	applied, err := migrator.Migrate(ctx)
	if err != nil {
		slog.Error("migration error", "err", err)
		os.Exit(1)
	}
	if len(applied) > 0 {
		slog.Info("migrations applied", "count", len(applied))
	}

	var mailer mail.Sender
	if cfg.SMTPHost != "" {
		mailer, err = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
		if err != nil {
			slog.Error("smtp client error", "err", err)
			os.Exit(1)
		}
	} else {
		// Development fallback: emails go to the log instead of the wire.
		mailer = logSender{}
	}

	store := postgres.New(conn.DB())
	srv := api.NewServer(cfg, store, store, mailer)
	defer srv.Close()

	go runTokenReaper(ctx, slog.Default(), store, tokenReaperInterval, time.Now)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}

// logSender logs outbound mail instead of delivering it. Dev only.
type logSender struct{}

func (logSender) Send(_ context.Context, to, subject, _ string) error {
	slog.Info("mail (not sent; SMTP_HOST unset)", "to", to, "subject", subject)
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

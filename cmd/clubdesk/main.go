package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/dwrenner/clubdesk/internal/config"
	"github.com/dwrenner/clubdesk/internal/database"
	"github.com/dwrenner/clubdesk/internal/logging"
	"github.com/dwrenner/clubdesk/internal/ratelimit"
	"github.com/dwrenner/clubdesk/internal/server"
)

const cleanupInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.Production())

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	srv, err := server.New(cfg, db, logger)
	if err != nil {
		log.Fatalf("failed to build server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.Poller().Run(ctx)
	go runCleanup(ctx, srv, logger.With("component", "cleanup"))

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("clubdesk listening", "port", cfg.Port, "env", cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

// runCleanup purges expired codes, spent-token ledger rows past retention,
// expired sessions, and stale rate-limit windows on a fixed interval.
func runCleanup(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweep(srv, logger); err != nil {
				logger.Error("cleanup", "error", err)
			}
		}
	}
}

func sweep(srv *server.Server, logger *slog.Logger) error {
	var errs error

	codes, err := srv.VerificationCodeStore().DeleteExpired()
	errs = multierr.Append(errs, err)

	tokens, err := srv.UsedTokenStore().DeleteExpired()
	errs = multierr.Append(errs, err)

	sessions, err := srv.SessionStore().DeleteExpired()
	errs = multierr.Append(errs, err)

	counters, err := srv.RateLimitStore().DeleteExpired()
	errs = multierr.Append(errs, err)

	windows := 0
	if ml, ok := srv.Limiter().(*ratelimit.MemoryLimiter); ok {
		windows = ml.Sweep()
	}

	logger.Info("cleanup pass",
		"codes", codes,
		"used_tokens", tokens,
		"sessions", sessions,
		"counters", counters,
		"memory_windows", windows,
	)
	return errs
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daniacca/reactorsim/internal/transport"
)

func main() {
	cfg, err := loadServerConfig(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	logger := NewLogger(cfg.LogLevel)
	srv := NewServer(logger)
	srv.SetSnapshotDir(cfg.SnapshotDir)
	srv.SetSnapshotEveryTicks(cfg.SnapshotEveryTicks)

	if cfg.ReactorFile != "" {
		if err := srv.applyReactorFile(cfg.ReactorFile, transport.ReactorID(cfg.ReactorID)); err != nil {
			logger.Fatalf("Failed to load reactor file: file=%s error=%v", cfg.ReactorFile, err)
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("reactorsim-server listening: addr=%s snapshot_dir=%s snapshot_every_ticks=%d log_level=%s",
			cfg.Addr, cfg.SnapshotDir, cfg.SnapshotEveryTicks, logger.Level())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP shutdown failed: %v", err)
	}
	if err := srv.Close(); err != nil {
		logger.Errorf("Closing notifiers failed: %v", err)
	}
}

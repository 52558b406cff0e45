package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto_exchange/internal/app"
	"crypto_exchange/internal/infra"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(ctx, infra.ConfigPath()); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := bootstrap.Close(); err != nil {
			slog.Error("Failed to release resources", slog.Any("error", err))
		}
	}()

	// 3. HTTP Server
	server := bootstrap.Server
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()
	slog.InfoContext(ctx, "✨ Conversion service listening. Press Ctrl+C to exit.", slog.String("addr", server.Addr()))

	// Wait for shutdown signal or a server failure
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("❌ HTTP server failed", slog.Any("error", err))
		}
	}

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", slog.Any("error", err))
	}
}

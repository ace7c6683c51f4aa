package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tainment-service/internal/app"
	"tainment-service/internal/config"
	"tainment-service/internal/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[MAIN] No .env file found, relying on system env vars")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[MAIN] invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("[MAIN] failed to build logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := app.NewServer(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to start", zap.Error(err))
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		zl.Error("server stopped with error", zap.Error(err))
		return
	}
	zl.Info("server stopped gracefully")
}

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"miniapp-wallet-client/internal/config"
	"miniapp-wallet-client/internal/logger"
	"miniapp-wallet-client/internal/mockapi"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogFormat, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	server, err := mockapi.New(cfg)
	if err != nil {
		log.Fatalf("Failed to build mock backend: %v", err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("mock wallet backend starting", "addr", cfg.MockAddr, "telegram_verification", cfg.BotToken != "")
		serverErrors <- server.Start(cfg.MockAddr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}

	case sig := <-shutdown:
		slog.Info("received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
		slog.Info("server stopped")
	}
}

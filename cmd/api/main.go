package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ctleak/adapters/httpapi"
	"ctleak/internal"
	"ctleak/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewLoggerTo(os.Stderr, internal.ParseLogLevel(cfg.Logging.Level), cfg.Logging.Format == "json")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := httpapi.Serve(ctx, cfg, logger); err != nil {
		logger.Error("server failed: %v", err)
		stop()
		os.Exit(1)
	}
}

// cmd/uarmbridge/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tamzrod/uarm-bridge/internal/bridge"
	"github.com/tamzrod/uarm-bridge/internal/config"
	"github.com/tamzrod/uarm-bridge/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: uarmbridge <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	logger, closeLog, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		log.Fatalf("logging setup failed: %v", err)
	}
	defer closeLog.Close()

	// --------------------
	// Build (device connect is a startup failure)
	// --------------------

	b, err := bridge.Build(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		closeLog.Close()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Run until shutdown completes
	// --------------------

	if err := b.Run(ctx); err != nil {
		logger.Error("bridge exited with error", "err", err)
		stop()
		closeLog.Close()
		os.Exit(1)
	}
}

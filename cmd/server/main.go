// Package main implements the entry point for the Tributary API server,
// which runs resumable batch generation of training conversations with
// crash recovery and pre-delete backups.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/phrazzld/tributary-api/internal/config"
	"github.com/phrazzld/tributary-api/internal/platform/logger"
)

func main() {
	migrateCmd := flag.String(
		"migrate",
		"",
		"Run database migrations (up, down, status) and exit",
	)
	flag.Parse()

	cfg, appLogger, err := initialize()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if *migrateCmd != "" {
		if err := runMigrations(cfg, *migrateCmd); err != nil {
			appLogger.Error("Migration failed", "command", *migrateCmd, "error", err)
			log.Fatalf("Migration failed: %v", err)
		}
		appLogger.Info("Migration completed", "command", *migrateCmd)
		return
	}

	app, err := newApplication(context.Background(), cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}

	if err := app.startHTTPServer(context.Background(), app.setupRouter()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// initialize loads configuration and sets up structured logging.
func initialize() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	return cfg, appLogger, nil
}

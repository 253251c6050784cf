package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/phrazzld/tributary-api/internal/config"
)

// migrationsSubdir is where migration files live relative to the project root.
var migrationsSubdir = filepath.Join("internal", "platform", "postgres", "migrations")

// slogGooseLogger adapts goose's logger interface to slog.
type slogGooseLogger struct{}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	slog.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrations")
	os.Exit(1)
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	slog.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrations")
}

// runMigrations executes the given goose command (up, down, status) against
// the configured database.
func runMigrations(cfg *config.Config, command string) error {
	dir, err := findMigrationsDir()
	if err != nil {
		return err
	}

	goose.SetLogger(&slogGooseLogger{})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	db, err := goose.OpenDBWithDriver("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close migration database connection", "error", closeErr)
		}
	}()

	switch command {
	case "up":
		err = goose.Up(db, dir)
	case "down":
		err = goose.Down(db, dir)
	case "status":
		err = goose.Status(db, dir)
	default:
		return fmt.Errorf("unknown migration command %q (expected up, down, or status)", command)
	}

	if err != nil {
		return fmt.Errorf("goose %s failed: %w", command, err)
	}
	return nil
}

// findMigrationsDir walks up from the working directory to the go.mod root
// and returns the migrations directory beneath it.
func findMigrationsDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			path := filepath.Join(dir, migrationsSubdir)
			if _, err := os.Stat(path); err != nil {
				return "", fmt.Errorf("migrations directory not found at %s", path)
			}
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("project root not found above %s", dir)
		}
		dir = parent
	}
}

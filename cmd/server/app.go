package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/tributary-api/internal/api"
	"github.com/phrazzld/tributary-api/internal/backup"
	"github.com/phrazzld/tributary-api/internal/batch"
	"github.com/phrazzld/tributary-api/internal/config"
	"github.com/phrazzld/tributary-api/internal/platform/gemini"
	"github.com/phrazzld/tributary-api/internal/platform/postgres"
	"github.com/phrazzld/tributary-api/internal/recovery"
	"github.com/phrazzld/tributary-api/internal/service"
	"github.com/phrazzld/tributary-api/internal/service/auth"
)

// application holds the wired dependency graph for the server: one database
// handle, the stores over it, and the services and handlers over those.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jwtService      auth.JWTService
	jobHandler      *api.BatchJobHandler
	recoveryHandler *api.RecoveryHandler
	backupHandler   *api.BackupHandler
}

// newApplication builds the full dependency graph from configuration.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	appLogger *slog.Logger,
) (*application, error) {
	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	generator, err := gemini.NewGeminiGenerator(ctx, appLogger, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	jobStore := postgres.NewPostgresJobStore(db, appLogger)
	jobLogStore := postgres.NewPostgresJobLogStore(db, appLogger)
	checkpointStore := postgres.NewPostgresCheckpointStore(db, appLogger)
	conversationStore := postgres.NewPostgresConversationStore(db, appLogger)
	templateStore := postgres.NewPostgresTemplateStore(db, appLogger)
	draftStore := postgres.NewPostgresDraftStore(db, appLogger)
	backupStore := postgres.NewPostgresBackupStore(db, appLogger)
	exportLogStore := postgres.NewPostgresExportLogStore(db, appLogger)

	processor := batch.NewProcessor(checkpointStore, appLogger)

	jobService := service.NewJobExecutionService(
		service.NewSQLTxRunner(db),
		jobStore,
		jobLogStore,
		templateStore,
		conversationStore,
		generator,
		processor,
		appLogger,
	)

	fileStore, err := backup.NewLocalFileStore(cfg.Backup.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup file store: %w", err)
	}
	backupService := backup.NewService(
		conversationStore,
		backupStore,
		fileStore,
		cfg.Backup.RetentionDays,
		appLogger,
	)

	detector := recovery.NewDetector(
		draftStore,
		checkpointStore,
		backupStore,
		exportLogStore,
		appLogger,
	)
	executor := recovery.NewExecutor(draftStore, checkpointStore, appLogger)

	return &application{
		config:          cfg,
		logger:          appLogger,
		db:              db,
		jwtService:      jwtService,
		jobHandler:      api.NewBatchJobHandler(jobService),
		recoveryHandler: api.NewRecoveryHandler(detector, executor),
		backupHandler:   api.NewBackupHandler(backupService),
	}, nil
}

// cleanup releases resources held by the application.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Failed to close database connection", "error", err)
		}
	}
}

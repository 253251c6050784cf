package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/tributary-api/internal/api/middleware"
)

// setupRouter configures the application router with all routes and
// middleware. Every /api route requires a valid bearer token.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Route("/batch-jobs", func(r chi.Router) {
			r.Post("/", app.jobHandler.CreateJob)
			r.Get("/{id}", app.jobHandler.GetJob)
			r.Post("/{id}/cancel", app.jobHandler.CancelJob)
			r.Post("/{id}/process-next", app.jobHandler.ProcessNextItem)
			r.Post("/{id}/resume", app.jobHandler.ResumeJob)
		})

		r.Route("/recovery", func(r chi.Router) {
			r.Get("/items", app.recoveryHandler.DetectRecoverableData)
			r.Post("/recover", app.recoveryHandler.RecoverItems)
		})

		r.Route("/backups", func(r chi.Router) {
			r.Post("/", app.backupHandler.CreateBackup)
			r.Get("/", app.backupHandler.ListBackups)
			r.Get("/{backupId}", app.backupHandler.GetBackup)
			r.Post("/cleanup", app.backupHandler.CleanupExpiredBackups)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}

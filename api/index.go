// Package api assembles the HTTP surface of the gateway: global middleware,
// the authenticated /api route table and the health endpoint.
package api

import (
	"fmt"
	"net/http"
	"time"

	"ecdar-gateway/pkg/access"
	"ecdar-gateway/pkg/config"
	"ecdar-gateway/pkg/database"
	"ecdar-gateway/pkg/engine"
	"ecdar-gateway/pkg/handlers"
	customMiddleware "ecdar-gateway/pkg/middleware"
	"ecdar-gateway/pkg/services"
	"ecdar-gateway/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// timeoutSlack is added on top of the engine timeout for the request deadline
const timeoutSlack = 5 * time.Second

// NewRouter wires services and handlers onto a chi router
func NewRouter(cfg *config.Config, db database.DatabaseInterface, eng engine.Engine, logger zerolog.Logger) http.Handler {
	router := chi.NewRouter()

	setupMiddleware(router, cfg, logger)
	setupRoutes(router, cfg, db, eng, logger)

	return router
}

func setupMiddleware(router *chi.Mux, cfg *config.Config, logger zerolog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	// Normalize path before logging and routing
	router.Use(customMiddleware.Normalize())
	router.Use(customMiddleware.Logger(logger))
	router.Use(customMiddleware.Recovery(cfg, logger))

	router.Use(customMiddleware.CORS(cfg))

	router.Use(middleware.Timeout(cfg.EngineTimeout + timeoutSlack))

	if cfg.IsDevelopment() {
		router.Use(middleware.Heartbeat("/ping"))
	}
}

func setupRoutes(router *chi.Mux, cfg *config.Config, db database.DatabaseInterface, eng engine.Engine, logger zerolog.Logger) {
	evaluator := access.NewEvaluator(db)

	projectService := services.NewProjectService(db, evaluator, logger)
	queryService := services.NewQueryService(db, evaluator, eng, logger).
		WithSettings(engine.Settings{DisableClockReduction: cfg.EngineDisableClockReduction})
	accessService := services.NewAccessService(db, evaluator, logger)

	healthHandler := handlers.NewHealthHandler(cfg, db, logger)
	projectHandler := handlers.NewProjectHandler(cfg, projectService, queryService, accessService)
	queryHandler := handlers.NewQueryHandler(cfg, queryService)
	accessHandler := handlers.NewAccessHandler(cfg, accessService)

	router.Get("/", healthHandler.HealthCheck)

	router.Route("/api", func(r chi.Router) {
		r.Use(customMiddleware.AuthMiddleware(cfg, logger))
		r.Use(customMiddleware.ContentTypeJSON)
		r.Use(customMiddleware.MaxBodySize(customMiddleware.DefaultMaxBodySize))

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", projectHandler.ListProjects)
			r.Post("/", projectHandler.CreateProject)
			r.Get("/{id}", projectHandler.GetProject)
			r.Put("/{id}", projectHandler.UpdateProject)
			r.Delete("/{id}", projectHandler.DeleteProject)
			r.Get("/{id}/queries", projectHandler.ListQueries)
			r.Get("/{id}/access", projectHandler.ListAccess)
		})

		r.Route("/queries", func(r chi.Router) {
			r.Post("/", queryHandler.CreateQuery)
			r.Put("/{id}", queryHandler.UpdateQuery)
			r.Delete("/{id}", queryHandler.DeleteQuery)
			r.Post("/{id}/send", queryHandler.SendQuery)
		})

		r.Route("/access", func(r chi.Router) {
			r.Post("/", accessHandler.CreateAccess)
			r.Put("/{id}", accessHandler.UpdateAccess)
			r.Delete("/{id}", accessHandler.DeleteAccess)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFoundResponse(w, fmt.Sprintf("Route not found: %s %s", r.Method, r.URL.Path))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteErrorResponseWithCode(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path), "")
	})
}

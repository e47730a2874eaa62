package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/handler"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/middleware"
)

// Config holds the configuration for creating a router.
type Config struct {
	HealthHandler   *handler.HealthHandler
	WardrobeHandler *handler.WardrobeHandler
	SyncHandler     *handler.SyncHandler
	QueueHandler    *handler.QueueHandler
	OntologyHandler *handler.OntologyHandler
	EventsHandler   *handler.EventsHandler
	Logger          zerolog.Logger
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.HealthHandler != nil {
			r.Get("/health", cfg.HealthHandler.Health)
			r.Get("/ready", cfg.HealthHandler.Ready)
		}

		if cfg.WardrobeHandler != nil {
			r.Route("/wardrobe", func(r chi.Router) {
				r.Get("/", cfg.WardrobeHandler.List)
				r.Post("/", cfg.WardrobeHandler.Upsert)
				r.Route("/{local_id}", func(r chi.Router) {
					r.Delete("/", cfg.WardrobeHandler.Delete)
					r.Post("/push", cfg.WardrobeHandler.Push)
					r.Post("/edit", cfg.WardrobeHandler.Edit)
					r.Post("/pull", cfg.WardrobeHandler.Pull)
					r.Post("/visibility", cfg.WardrobeHandler.SetVisibility)
					r.Post("/hydrate", cfg.WardrobeHandler.Hydrate)
					r.Get("/completeness", cfg.WardrobeHandler.Completeness)
				})
			})
			r.Get("/items/{remote_id}", cfg.WardrobeHandler.GetDetail)
		}

		if cfg.SyncHandler != nil {
			r.Post("/sync/pull", cfg.SyncHandler.Pull)
		}

		if cfg.QueueHandler != nil {
			r.Route("/relist/queue", func(r chi.Router) {
				r.Get("/", cfg.QueueHandler.Get)
				r.Post("/", cfg.QueueHandler.Enqueue)
				r.Delete("/", cfg.QueueHandler.Clear)
				r.Delete("/{local_id}", cfg.QueueHandler.Dequeue)
			})
		}

		if cfg.OntologyHandler != nil {
			r.Route("/ontology/{type}", func(r chi.Router) {
				r.Get("/", cfg.OntologyHandler.Get)
				r.Post("/refresh", cfg.OntologyHandler.Refresh)
				r.Get("/path/{entity_id}", cfg.OntologyHandler.Path)
				r.Get("/lookup", cfg.OntologyHandler.Lookup)
			})
		}

		if cfg.EventsHandler != nil {
			r.Get("/events", cfg.EventsHandler.Stream)
		}
	})

	return r
}

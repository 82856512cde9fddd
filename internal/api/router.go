package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openlot/openlot/marketplace/internal/api/handlers"
	"github.com/openlot/openlot/marketplace/internal/api/middleware"
	"github.com/openlot/openlot/marketplace/internal/config"
)

// NewRouter creates the HTTP router with all marketplace routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.WorkspaceExtractor)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Workspace", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auctions", func(r chi.Router) {
			r.Get("/", h.ListActive)
			r.Post("/run", h.RunAuction)
			r.Get("/history", h.History)
			r.Route("/{auctionID}", func(r chi.Router) {
				r.Get("/", h.GetAuction)
				r.Post("/archive", h.ArchiveAuction)
			})
		})

		r.Get("/analytics", h.Analytics)
		r.Post("/patterns/detect", h.DetectPatterns)
	})

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "openlot-marketplace",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "openlot-marketplace",
		})
	}
}

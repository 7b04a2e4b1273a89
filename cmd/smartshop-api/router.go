// Package main provides the API router setup.
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/smartshop-engine/cmd/smartshop-api/handlers"
	"github.com/spherical-ai/smartshop-engine/cmd/smartshop-api/middleware"
	"github.com/spherical-ai/smartshop-engine/internal/cache"
	"github.com/spherical-ai/smartshop-engine/internal/catalog"
	"github.com/spherical-ai/smartshop-engine/internal/dialogue"
	"github.com/spherical-ai/smartshop-engine/internal/features"
	"github.com/spherical-ai/smartshop-engine/internal/negotiation"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
	"github.com/spherical-ai/smartshop-engine/internal/recommend"
)

// Services are the engines the API exposes.
type Services struct {
	Catalog      catalog.Provider
	Features     *features.Cache
	Recommender  *recommend.Engine
	Negotiations *negotiation.Store
	Renderer     dialogue.Renderer
	// Cache stores rendered recommendation responses. May be nil.
	Cache cache.Client
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, svc *Services, cfg *AppConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"smartshop"}`))
	})

	catalogHandler := handlers.NewCatalogHandler(logger, svc.Catalog, svc.Features, cfg.MaxListLimit)
	extractHandler := handlers.NewExtractHandler(logger, svc.Features.Extractor())
	recommendationHandler := handlers.NewRecommendationHandler(logger, svc.Catalog, svc.Recommender, svc.Renderer, svc.Cache, handlers.RecommendationConfig{
		DefaultK:     cfg.DefaultK,
		MaxK:         cfg.MaxK,
		CacheResults: cfg.CacheResults,
		CacheTTL:     cfg.CacheTTL,
	})
	negotiationHandler := handlers.NewNegotiationHandler(logger, svc.Catalog, svc.Negotiations, svc.Renderer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/extract", extractHandler.Extract)
		r.Get("/categories", catalogHandler.Categories)
		r.Get("/search", recommendationHandler.Search)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", catalogHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", catalogHandler.Get)
				r.Get("/recommendations", recommendationHandler.Recommend)
				r.Get("/similar", recommendationHandler.Similar)
				r.Get("/better", recommendationHandler.Better)
			})
		})

		r.Post("/recommendations/personalized", recommendationHandler.Personalized)

		r.Route("/negotiations", func(r chi.Router) {
			r.Post("/", negotiationHandler.Start)
			r.Get("/", negotiationHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", negotiationHandler.Get)
				r.Post("/offers", negotiationHandler.Offer)
				r.Post("/expire", negotiationHandler.Expire)
			})
		})
	})

	return r
}

// AppConfig holds HTTP-level settings.
type AppConfig struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	DefaultK       int
	MaxK           int
	MaxListLimit   int
	CacheResults   bool
	CacheTTL       time.Duration
}

// DefaultAppConfig returns default configuration values.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		RequestTimeout: 30 * time.Second,
		AllowedOrigins: []string{"*"},
		DefaultK:       5,
		MaxK:           50,
		MaxListLimit:   100,
		CacheResults:   true,
		CacheTTL:       5 * time.Minute,
	}
}

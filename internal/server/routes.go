package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/cortexai/finops-insight/internal/handler"
	"github.com/cortexai/finops-insight/internal/middleware"
	"github.com/cortexai/finops-insight/internal/observability"
)

func (s *Server) routes() http.Handler {
	cfg := s.cfg

	log.Info().
		Str("backend", string(s.ds.Backend())).
		Int("tools", len(s.registry.List())).
		Bool("auth_enabled", cfg.EnableAuth && len(cfg.APIKeys) > 0).
		Bool("audit_logging", cfg.EnableAuditLogging).
		Bool("audit_elasticsearch", cfg.ElasticsearchEnabled).
		Msg("service configuration")

	healthH := handler.NewHealthHandler(s.ds)
	toolsH := handler.NewToolsHandler(s.registry)
	resourcesH := handler.NewResourcesHandler(s.registry)

	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(chiMiddleware.RealIP)
	r.Use(observability.MetricsMiddleware)

	// Public routes
	r.Get("/health", healthH.Health)
	r.Get("/", healthH.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.EnableAuth {
			r.Use(middleware.Auth(cfg.APIKeys, cfg.APIKeyHeader))
		}
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute))

		r.Route(cfg.APIPrefix, func(r chi.Router) {
			r.Get("/tools", toolsH.List)
			r.Post("/tools/{name}", toolsH.Call)
			r.Get("/resources", resourcesH.List)
			r.Get("/resources/{name}", resourcesH.Read)
		})
	})

	return r
}

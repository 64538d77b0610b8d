package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/medspa-winback/internal/http/middleware"
	"github.com/wolfman30/medspa-winback/internal/winback"
	"github.com/wolfman30/medspa-winback/pkg/logging"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	Winback         *winback.Handler
	AdminAuthSecret string
	SchedulerSecret string
	MetricsHandler  http.Handler
	// Checks run on /ready, keyed by dependency name.
	Checks map[string]HealthChecker
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		public.Get("/ready", ready(cfg.Checks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.Winback != nil {
		r.Route("/api/v1/orgs/{orgID}/winback", func(r chi.Router) {
			r.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			r.Use(httpmiddleware.RequireOrgAccess)
			cfg.Winback.RegisterRoutes(r)
		})
		r.Route("/internal/winback", func(r chi.Router) {
			r.Use(httpmiddleware.SchedulerSecret(cfg.SchedulerSecret))
			cfg.Winback.RegisterSchedulerRoutes(r)
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func ready(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"checks": results})
	}
}

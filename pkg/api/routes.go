package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	api := s.cfg.API

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	// Rendered dashboard pages. Ref paths contain a slash
	// ("heads/master", "tags/v0.20") so the info page uses a wildcard.
	r.Get("/", s.handleDashboard)
	r.Get("/info/*", s.handleInfoPage)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints.
		r.Get("/health", s.handleHealth)
		r.Get("/config", s.handleConfig)

		// Auth endpoints.
		r.Route("/auth", func(r chi.Router) {
			if api.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(api.Server.RateLimit.Auth))
			}

			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Get("/me", s.handleMe)
			})
		})

		// Report data endpoints.
		r.Group(func(r chi.Router) {
			if !api.Auth.AnonymousRead {
				r.Use(s.requireAuth)
			}

			if api.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(api.Server.RateLimit.Public))
			}

			r.Get("/info", s.handleInfo)
			r.Get("/refs", s.handleRefs)
			r.Get("/latest/*", s.handleLatest)
			r.Get("/history/*", s.handleHistory)
			r.Get("/releases", s.handleReleases)
		})

		// Archived report document serving.
		r.Route("/files", func(r chi.Router) {
			if !api.Auth.AnonymousRead {
				r.Use(s.requireAuth)
			}

			if api.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					api.Server.RateLimit.Authenticated,
				))
			}

			r.Get("/*", s.handleFileRequest)
			r.Head("/*", s.handleFileRequest)
		})

		// Admin endpoints (require auth + admin role).
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(s.requireRole("admin"))

			if api.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					api.Server.RateLimit.Authenticated,
				))
			}

			r.Post("/collect", s.handleTriggerCollect)
			r.Delete("/snapshots/{id}", s.handleDeleteSnapshot)

			// User management.
			r.Get("/users", s.handleListUsers)
			r.Post("/users", s.handleCreateUser)
			r.Put("/users/{id}", s.handleUpdateUser)
			r.Delete("/users/{id}", s.handleDeleteUser)
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the API config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.API.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}

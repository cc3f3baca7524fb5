package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/auth-service/app"
	"github.com/upb/auth-service/internal/observability"
	"github.com/upb/auth-service/middleware"
	"github.com/upb/auth-service/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", observability.Handler(deps.Registry))
	}

	r.Route("/auth", func(r chi.Router) {
		// Browser redirect flow
		r.Get("/google", deps.BrowserAuth.HandleLogin)
		r.Get("/google/callback", deps.BrowserAuth.HandleCallback)

		// Front end posts a Google ID token
		r.Post("/google", deps.AuthHandler.HandleProviderLogin)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Post("/session", deps.AuthHandler.HandleRenew)
			r.Post("/logout", deps.AuthHandler.HandleLogout)
			r.Delete("/sessions", deps.AuthHandler.HandleLogoutEverywhere)
			r.Get("/me", deps.AuthHandler.HandleMe)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

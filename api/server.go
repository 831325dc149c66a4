/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind a proxy
  3. Logger:     One structured zap line per request
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend
  6. Metrics:    Prometheus request count and latency (optional)

ROUTE GROUPS:
  /api/auth/*     Register (optional auth), login, logout, me
  /api/leaves/*   Leave requests (auth)
  /api/users/*    User administration and profile (auth)
  /healthz        Storage health
  /metrics        Prometheus scrape endpoint (optional)

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: bearer token authentication
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/leave-engine/logging"
)

// RouterOptions are the optional pieces of the router.
type RouterOptions struct {
	AllowedOrigins []string

	// Metrics, when set, instruments every request and serves /metrics.
	Metrics interface {
		Middleware(http.Handler) http.Handler
		Handler() http.Handler
	}
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, tokens TokenValidator, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Get("/healthz", h.Health)

	requireAuth := RequireAuth(tokens)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(OptionalAuth(tokens)).Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.With(requireAuth).Post("/logout", h.Logout)
			r.With(requireAuth).Get("/me", h.Me)
		})

		r.Route("/leaves", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", h.ListLeaves)
			r.Post("/", h.ApplyLeave)
			r.Get("/calendar", h.Calendar)
			r.Get("/{id}", h.GetLeave)
			r.Get("/{id}/history", h.LeaveHistory)
			r.Put("/{id}", h.SetLeaveStatus)
			r.Delete("/{id}", h.DeleteLeave)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", h.ListUsers)
			r.Put("/profile", h.UpdateProfile)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpdateUser)
			r.Delete("/{id}", h.DeleteUser)
		})
	})

	return r
}

// Package router assembles the HTTP interceptor chain and mounts the API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/williamsbolu/natours/internal/http/handlers"
	mw "github.com/williamsbolu/natours/internal/http/middleware"
	"github.com/williamsbolu/natours/internal/http/response"
	"github.com/williamsbolu/natours/internal/service"
	"github.com/williamsbolu/natours/pkg/config"
	"github.com/williamsbolu/natours/pkg/metrics"
	pkgmw "github.com/williamsbolu/natours/pkg/middleware"
)

const maxJSONBody = 10 << 10

type Deps struct {
	Config   *config.Config
	Gate     service.Gate
	Auth     service.AuthService
	Users    service.UserService
	Reviews  service.ReviewService
	Bookings service.BookingService
	Metrics  *metrics.Metrics
	Redis    *redis.Client
	Health   map[string]pkgmw.Check
}

func New(d Deps) http.Handler {
	cfg := d.Config

	r := chi.NewRouter()
	r.Use(pkgmw.RequestID)
	r.Use(pkgmw.ServiceName("natours-api"))
	r.Use(pkgmw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(pkgmw.SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(pkgmw.Health(d.Health))

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	bookings := handlers.NewBookingsHandler(d.Bookings, d.Gate)
	// Registered outside /api so the raw body reaches signature verification.
	r.Post("/webhook-checkout", bookings.Webhook)

	apiLimiter := mw.NewRateLimiter(d.Redis, mw.RateLimitConfig{
		Prefix:   "api",
		Requests: cfg.RateLimit.Requests,
		Window:   cfg.RateLimit.Window,
	}, d.Metrics)
	authLimiter := mw.NewRateLimiter(d.Redis, mw.RateLimitConfig{
		Prefix:   "auth",
		Requests: cfg.RateLimit.AuthRequests,
		Window:   cfg.RateLimit.AuthWindow,
		Message:  "Too many login attempts from this IP, please try again later.",
	}, d.Metrics)

	auth := handlers.NewAuthHandler(d.Auth, d.Users, d.Gate, cfg.Auth.CookieTTL)
	auth.Limit = authLimiter.Middleware()
	reviews := handlers.NewReviewsHandler(d.Reviews, d.Gate)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiLimiter.Middleware())
		r.Use(pkgmw.MaxBodySize(maxJSONBody))

		r.Route("/v1", func(r chi.Router) {
			r.Mount("/users", auth.Routes())
			r.Mount("/reviews", reviews.Routes())
			r.Mount("/tours/{tourId}/reviews", reviews.Routes())
			r.Mount("/bookings", bookings.Routes())
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.NotFound(w, "Can't find "+req.URL.Path+" on this server!")
	})
	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aswatji/serverchat/internal/api/middleware"
	"github.com/aswatji/serverchat/internal/handlers"
	"github.com/aswatji/serverchat/internal/realtime"
	"github.com/aswatji/serverchat/internal/store"
)

// Options holds router settings that come from configuration.
type Options struct {
	RateLimit    middleware.RateLimiterConfig
	MaxBodyBytes int64
}

// NewRouter creates and configures the HTTP router. redisStore, engine and
// ws may be nil; the matching features are then disabled.
func NewRouter(logger zerolog.Logger, db store.DataStore, redisStore *store.RedisStore, engine *realtime.Engine, ws http.Handler, opts Options) *chi.Mux {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 * 1024
	}

	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(opts.MaxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, opts.RateLimit)
		r.Use(limiter.Middleware)
	}

	// CORS - allow all origins
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, redisStore, engine, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	if ws != nil {
		r.Get("/ws", ws.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/", h.APIIndex)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{userId}", h.GetUser)
			r.Put("/{userId}", h.UpdateUser)
			r.Delete("/{userId}", h.DeleteUser)
			r.Get("/{userId}/recent", h.RecentChats)
		})

		r.Route("/chats", func(r chi.Router) {
			r.Post("/", h.CreateChat)
			r.Get("/chat/{chatId}", h.GetChat)
			r.Delete("/chat/{chatId}", h.DeleteChat)
			r.Get("/{userId}", h.ListUserChats)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/", h.CreateMessage)
			r.Get("/message/{messageId}", h.GetMessage)
			r.Put("/message/{messageId}", h.UpdateMessage)
			r.Delete("/message/{messageId}", h.DeleteMessage)
			r.Get("/{chatId}", h.ListChatMessages)
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		h.Error(w, http.StatusNotFound, "route "+req.URL.Path+" not found")
	})

	return r
}

package handlers

import (
	"net/http"

	"marshmallow-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	User      *UserHandler
	Couple    *CoupleHandler
	Event     *EventHandler
	Device    *DeviceHandler
	Media     *MediaHandler
	WebSocket *WebSocketHandler
}

// RouterOptions configures cross-cutting HTTP behavior
type RouterOptions struct {
	AllowedOrigins []string
	RequestLogging bool
}

// NewRouter builds the API router
func NewRouter(h Handlers, tokens middleware.TokenValidator, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if opts.RequestLogging {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/sign-in", h.User.SignIn)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(tokens))

			r.Get("/me", h.User.Me)
			r.Put("/me/settings", h.User.UpdateSettings)
			r.Put("/devices", h.Device.Register)

			r.Get("/couple", h.Couple.GetCouple)
			r.Post("/couples", h.Couple.CreateCouple)
			r.Post("/couples/{couple_id}/join", h.Couple.JoinCouple)

			r.Get("/messages", h.Event.ListMessages)
			r.Post("/messages", h.Event.SendMessage)
			r.Post("/messages/{message_id}/read", h.Event.MarkRead)
			r.Get("/checkins", h.Event.ListCheckIns)
			r.Post("/checkins", h.Event.CreateCheckIn)
			r.Get("/memories", h.Event.ListMemories)
			r.Post("/memories", h.Event.CreateMemory)
			r.Get("/presets", h.Event.ListPresets)

			if h.Media != nil {
				r.Post("/media/upload", h.Media.CreateUploadURL)
			}
		})
	})

	// WebSocket route
	r.Get("/ws", h.WebSocket.HandleWebSocket)

	return r
}

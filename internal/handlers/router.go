package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"medwaste-backend/internal/middleware"
	"medwaste-backend/internal/models"
	"medwaste-backend/internal/services"
	"medwaste-backend/internal/websocket"
)

// Deps is everything the HTTP surface needs
type Deps struct {
	Store      services.Store
	Users      *services.UserService
	Sessions   *services.SessionService
	Handoffs   *services.HandoffService
	Containers *services.ContainerService
	Plants     *services.PlantService
	Hub        *websocket.Hub // nil disables /ws
	JWTSecret  string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// WebSocket endpoint (authentication handled in handler via query param)
	if d.Hub != nil {
		r.Get("/ws", websocket.HandleWebSocket(d.Hub, d.JWTSecret))
	}

	r.Route("/api", func(r chi.Router) {
		// Authentication routes (no auth required)
		r.Post("/auth/login", Login(d.Users, d.JWTSecret))

		// Confirmation links for plant operators (the token is the credential)
		r.Get("/public/handoffs/{token}", GetHandoffByToken(d.Handoffs))
		r.Post("/public/handoffs/{token}/confirm", ConfirmHandoffByToken(d.Handoffs))
		r.Post("/public/handoffs/{token}/dispute", DisputeHandoffByToken(d.Handoffs))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(d.JWTSecret))

			r.Get("/auth/status", GetAuthStatus(d.Store))
			r.Post("/users/fcm-token", RegisterFCMToken(d.Users))

			r.Get("/containers", GetContainers(d.Containers))
			r.Get("/containers/{id}", GetContainer(d.Containers))
			r.Get("/incineration-plants", GetPlants(d.Plants))

			r.Get("/handoffs", GetHandoffs(d.Handoffs))
			r.Get("/handoffs/{id}", GetHandoff(d.Handoffs))
			r.Post("/handoffs", CreateHandoff(d.Handoffs))
			r.Post("/handoffs/{id}/confirm", ConfirmHandoff(d.Handoffs))
			r.Post("/handoffs/{id}/dispute", DisputeHandoff(d.Handoffs))
			r.Post("/handoffs/{id}/resend", ResendHandoff(d.Handoffs))

			// Driver session management
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleDriver))

				r.Get("/driver/session/current", GetCurrentSession(d.Sessions))
				r.Post("/driver/session/start", StartSession(d.Sessions))
				r.Post("/driver/location", UpdateLocation(d.Sessions))
			})
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleDriver, models.RoleAdmin))

				r.Post("/driver/session/{id}/visit", MarkVisited(d.Sessions))
				r.Post("/driver/session/{id}/stop", StopSession(d.Sessions))
				r.Get("/driver/session/{id}/next-stop", GetNextStop(d.Sessions))
			})

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))

				r.Post("/admin/handoffs/{id}/resolving", BeginResolving(d.Handoffs))
				r.Post("/admin/handoffs/{id}/resolve", ResolveHandoff(d.Handoffs))
				r.Post("/users", CreateUser(d.Users))
			})
		})
	})

	return r
}

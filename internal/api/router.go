package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type RouterConfig struct {
	Handler        *Handler
	PgPool         *pgxpool.Pool // nil when running on the memory store
	Redis          *redis.Client // nil when running with in-process locking
	AllowedOrigins []string
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", PrincipalHeader},
			AllowCredentials: true,
		}))
	}

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := cfg.Handler
	r.Route("/api", func(r chi.Router) {
		r.Post("/businesses", h.CreateBusiness)
		r.Route("/businesses/{businessID}", func(r chi.Router) {
			r.Get("/", h.GetBusiness)

			r.Route("/services", func(r chi.Router) {
				r.Get("/", h.ListServices)
				r.Post("/", h.AddService)
				r.Get("/{serviceID}", h.GetService)
			})

			r.Route("/staff", func(r chi.Router) {
				r.Get("/", h.ListStaff)
				r.Post("/", h.AddStaff)
				r.Get("/{staffID}", h.GetStaff)
				r.Put("/{staffID}/availability", h.SetAvailability)
				r.Get("/{staffID}/availability", h.GetAvailability)
				r.Get("/{staffID}/availability/all", h.ListAvailability)
			})

			r.Route("/clients", func(r chi.Router) {
				r.Get("/", h.ListClients)
				r.Post("/", h.AddClient)
				r.Get("/{clientID}", h.GetClient)
			})

			r.Get("/slots", h.GetAvailableSlots)
			r.Post("/bookings", h.BookPublic)

			r.Route("/appointments", func(r chi.Router) {
				r.Get("/", h.ListAppointments)
				r.Post("/", h.CreateAppointment)
				r.Get("/{appointmentID}", h.GetAppointment)
				r.Post("/{appointmentID}/cancel", h.CancelAppointment())
				r.Post("/{appointmentID}/complete", h.CompleteAppointment())
				r.Post("/{appointmentID}/no-show", h.MarkNoShow())
			})
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Post("/profile", h.SaveProfile)
			r.Get("/profile", h.GetProfile)
			r.Get("/role", h.GetRole)
		})

		r.Post("/admin/roles", h.AssignRole)
	})

	return r
}

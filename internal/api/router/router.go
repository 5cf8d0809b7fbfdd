package router

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/medpractice-booking/internal/auth"
	"github.com/wolfman30/medpractice-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/medpractice-booking/internal/http/middleware"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger        *logging.Logger
	Authenticator httpmiddleware.PrincipalAuthenticator
	Availability  *handlers.AvailabilityHandler
	Reservations  *handlers.ReservationHandler
	VisitTypes    *handlers.VisitTypeHandler

	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimiter        *httpmiddleware.RateLimiter

	// HealthCheck, when set, backs /health (typically a database ping).
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthCheck))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.Authenticate(cfg.Authenticator, cfg.Logger))
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}

		api.Get("/visit-types", cfg.VisitTypes.List)

		api.Route("/doctor/availability", func(av chi.Router) {
			av.Use(httpmiddleware.RequireRoles(auth.RoleDoctor, auth.RoleAdmin))
			av.Post("/", cfg.Availability.Create)
			av.Get("/", cfg.Availability.List)
			av.Delete("/{id}", cfg.Availability.Delete)
		})

		api.Route("/reservations", func(res chi.Router) {
			doctor := res.With(httpmiddleware.RequireRoles(auth.RoleDoctor, auth.RoleAdmin))
			doctor.Get("/", cfg.Reservations.List)
			doctor.Get("/count", cfg.Reservations.CountPending)
			doctor.Patch("/{id}/confirm", cfg.Reservations.Confirm)
			doctor.Patch("/{id}/decline", cfg.Reservations.Decline)
			doctor.Get("/{id}/history", cfg.Reservations.History)
			doctor.Get("/patients/{patientID}", cfg.Reservations.PatientHistory)

			patient := res.With(httpmiddleware.RequireRoles(auth.RolePatient, auth.RoleAdmin))
			patient.Get("/slots", cfg.Reservations.FreeSlots)
			patient.Post("/", cfg.Reservations.Create)
			patient.Get("/patient", cfg.Reservations.ListForPatient)
			patient.Get("/next", cfg.Reservations.Next)
			patient.Get("/first-visit", cfg.Reservations.FirstVisit)
		})
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, map[string]string{"status": "ok"}
		if check != nil {
			if err := check(r.Context()); err != nil {
				status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

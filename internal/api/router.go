package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/scheduling-ledger/internal/clinic"
	"github.com/clinicdesk/scheduling-ledger/internal/identity"
	"github.com/clinicdesk/scheduling-ledger/internal/metrics"
	"github.com/clinicdesk/scheduling-ledger/internal/scheduling"
)

type RouterConfig struct {
	Gateway *identity.Gateway
	Clinic  *clinic.Repository
	Engine  *scheduling.Engine
	Metrics *metrics.Metrics
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}

	// Health and metrics endpoints
	if cfg.PgPool != nil && cfg.Redis != nil {
		health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
		r.Get("/health/live", health.Liveness)
		r.Get("/health/ready", health.Readiness)
	}
	r.Handle("/metrics", promhttp.Handler())

	// Identity endpoints
	r.Post("/auth/register", registerHandler(cfg.Gateway))
	r.Post("/auth/login", loginHandler(cfg.Gateway))
	r.Post("/auth/logout", logoutHandler(cfg.Gateway))

	// Everything below revalidates the session token per call.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Gateway))

		r.Route("/doctors", func(r chi.Router) {
			r.Post("/", createDoctorHandler(cfg.Clinic))
			r.Get("/", listDoctorsHandler(cfg.Clinic))
			r.Get("/{id}", getDoctorHandler(cfg.Clinic))
			r.Patch("/{id}", updateDoctorHandler(cfg.Clinic))
			r.Delete("/{id}", deleteDoctorHandler(cfg.Clinic))
		})

		r.Route("/patients", func(r chi.Router) {
			r.Post("/", createPatientHandler(cfg.Clinic))
			r.Get("/{id}", getPatientHandler(cfg.Clinic))
			r.Patch("/{id}", updatePatientHandler(cfg.Clinic))
			r.Delete("/{id}", deletePatientHandler(cfg.Clinic))
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", bookAppointmentHandler(cfg.Engine, cfg.Metrics))
			r.Get("/", listAppointmentsHandler(cfg.Engine))
			r.Get("/{id}", getAppointmentHandler(cfg.Engine))
			r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Engine))
			r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Engine))
			r.Post("/{id}/complete", completeAppointmentHandler(cfg.Engine))
		})
	})

	return r
}

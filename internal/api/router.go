package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-engine/internal/appointment"
	"github.com/hackgods/clinic-booking-engine/internal/auth"
	"github.com/hackgods/clinic-booking-engine/internal/profile"
	"github.com/hackgods/clinic-booking-engine/internal/timeslot"
)

// BookingService is the part of appointment.Service the handlers use.
type BookingService interface {
	ListSpecialties(ctx context.Context) ([]appointment.Specialty, error)
	ListProvidersFor(ctx context.Context, specialtyID string) ([]appointment.Provider, error)
	ListFreeSlots(ctx context.Context, providerID, date string) ([]timeslot.Clock, error)
	Book(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
	Confirm(ctx context.Context, id string) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id, patientID string) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id, patientID, date, at string) (*appointment.Appointment, error)
	ListPatientAppointments(ctx context.Context, patientID string, limit, offset int) ([]appointment.Appointment, error)
}

type ProfileService interface {
	Upsert(ctx context.Context, p profile.Profile) (*profile.Profile, error)
}

type RouterConfig struct {
	Service        BookingService
	Profiles       ProfileService
	Auth           auth.Authenticator
	Postgres       Pinger
	Redis          Pinger
	Logger         zerolog.Logger
	Env            string
	Version        string
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		r.Use(AuthMiddleware(cfg.Auth))

		r.Get("/specialties", listSpecialtiesHandler(cfg.Service))
		r.Get("/specialties/{id}/providers", listProvidersHandler(cfg.Service))
		r.Get("/providers/{id}/slots", listFreeSlotsHandler(cfg.Service))

		r.Post("/appointments", bookAppointmentHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))

		r.Put("/profile", upsertProfileHandler(cfg.Profiles))
	})

	return r
}

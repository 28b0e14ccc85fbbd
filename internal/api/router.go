package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-access-scheduling/internal/identity"
)

type RouterConfig struct {
	Booking      BookingService
	Availability AvailabilityService
	Appointments AppointmentService
	Emergency    EmergencyRegistry
	Authorizer   Authorizer
	Patients     PatientDirectory
	Tokens       *identity.Tokens
	Postgres     Pinger
	Redis        Pinger
	// Metrics serves /metrics; promhttp.Handler() when nil.
	Metrics http.Handler
	// Location defines "today" for patient ages; UTC when nil.
	Location *time.Location
	// Now defaults to time.Now.
	Now     func() time.Time
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoverMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Handle("/metrics", metrics)

	h := &handlers{
		booking:      cfg.Booking,
		availability: cfg.Availability,
		appointments: cfg.Appointments,
		emergency:    cfg.Emergency,
		authorizer:   cfg.Authorizer,
		patients:     cfg.Patients,
		now:          cfg.Now,
		loc:          cfg.Location,
		logger:       cfg.Logger,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.loc == nil {
		h.loc = time.UTC
	}

	r.Group(func(r chi.Router) {
		r.Use(identity.Authenticate(cfg.Tokens, cfg.Logger))

		r.Get("/specialties", h.listSpecialties)
		r.Get("/doctors", h.listDoctors)
		r.Get("/doctors/{id}/availability", h.getWeek)
		r.Put("/doctors/{id}/availability/{weekday}", h.setDay)
		r.Get("/doctors/{id}/slots", h.doctorSlots)

		r.Post("/appointments", h.createAppointment)
		r.Delete("/appointments/{id}", h.cancelAppointment)
		r.Get("/patients/{id}", h.getPatient)
		r.Get("/patients/{id}/appointments", h.listPatientAppointments)
		r.Get("/patients/{id}/emergency-access", h.listPatientEmergencyAccess)

		r.Get("/access/check", h.checkAccess)

		r.Route("/admin/emergency-access", func(r chi.Router) {
			r.Use(identity.RequireRole(identity.RoleAdmin))
			r.Post("/", h.grantEmergencyAccess)
			r.Get("/", h.listEmergencyAccess)
			r.Delete("/{id}", h.revokeEmergencyAccess)
		})
	})

	return r
}

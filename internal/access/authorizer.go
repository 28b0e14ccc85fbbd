package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-access-scheduling/internal/identity"
	"github.com/hackgods/clinic-access-scheduling/internal/metrics"
)

const (
	PathSelf        = "self"
	PathGuardian    = "guardian"
	PathAppointment = "appointment"
	PathEmergency   = "emergency"
	PathNone        = "none"
)

type Decision struct {
	Allowed     bool   `json:"allowed"`
	Path        string `json:"path"`
	ReadOnly    bool   `json:"read_only"`
	DocumentKey string `json:"document_key,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// AppointmentChecker is the normal path: a confirmed appointment.
type AppointmentChecker interface {
	HasAppointment(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
}

// EmergencyChecker is the emergency grant path.
type EmergencyChecker interface {
	IsAuthorized(ctx context.Context, patientID, doctorID uuid.UUID, now time.Time) (bool, error)
}

type GuardianChecker interface {
	IsGuardian(ctx context.Context, guardianID, dependentID uuid.UUID) (bool, error)
}

// Authorizer decides whether a subject may open a record scope. Appointment
// and emergency access are independent: either one is enough for a doctor.
type Authorizer struct {
	appointments AppointmentChecker
	emergency    EmergencyChecker
	guardians    GuardianChecker
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	now          func() time.Time
}

type Option func(*Authorizer)

func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) { a.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authorizer) { a.metrics = m }
}

func NewAuthorizer(appointments AppointmentChecker, emergency EmergencyChecker, guardians GuardianChecker, logger zerolog.Logger, opts ...Option) *Authorizer {
	a := &Authorizer{
		appointments: appointments,
		emergency:    emergency,
		guardians:    guardians,
		logger:       logger.With().Str("component", "access").Logger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize evaluates one access attempt. It never caches: every call goes
// back to the appointment store and the emergency index. On a lookup error
// the decision is a denial and the error is returned.
func (a *Authorizer) Authorize(ctx context.Context, subject identity.Subject, scope Scope) (Decision, error) {
	key, err := DocumentKey(scope)
	if err != nil {
		return Decision{Path: PathNone}, err
	}

	d, err := a.decide(ctx, subject, scope)
	d.ReadOnly = ReadOnly(scope)
	if d.Allowed {
		d.DocumentKey = key
	}
	if err != nil {
		d.Allowed = false
		d.DocumentKey = ""
	}
	a.metrics.ObserveAuthorization(d.Path, d.Allowed)
	return d, err
}

func (a *Authorizer) decide(ctx context.Context, subject identity.Subject, scope Scope) (Decision, error) {
	switch s := scope.(type) {
	case PatientScope:
		if subject.Is(identity.RolePatient) && subject.ID == s.PatientID {
			return Decision{Allowed: true, Path: PathSelf}, nil
		}
		return denied("only the patient may open this record"), nil

	case DependentScope:
		if !subject.Is(identity.RolePatient) || subject.ID != s.GuardianID {
			return denied("only the guardian may open this record"), nil
		}
		ok, err := a.guardians.IsGuardian(ctx, s.GuardianID, s.DependentID)
		if err != nil {
			return denied(""), fmt.Errorf("check guardian: %w", err)
		}
		if !ok {
			return denied("not a dependent of this patient"), nil
		}
		return Decision{Allowed: true, Path: PathGuardian}, nil

	case DoctorReadOnlyScope:
		if !subject.Is(identity.RoleDoctor) || subject.ID != s.DoctorID {
			return denied("only the named doctor may use this scope"), nil
		}
		return a.doctorAccess(ctx, s.DoctorID, s.PatientID, s.PatientID)

	case DoctorReadOnlyDependentScope:
		if !subject.Is(identity.RoleDoctor) || subject.ID != s.DoctorID {
			return denied("only the named doctor may use this scope"), nil
		}
		ok, err := a.guardians.IsGuardian(ctx, s.PatientID, s.DependentID)
		if err != nil {
			return denied(""), fmt.Errorf("check guardian: %w", err)
		}
		if !ok {
			return denied("not a dependent of this patient"), nil
		}
		// dependents are booked through their guardian's account
		return a.doctorAccess(ctx, s.DoctorID, s.PatientID, s.DependentID)

	default:
		return denied(""), fmt.Errorf("%w: %T", ErrUnknownScope, scope)
	}
}

// doctorAccess tries the appointment path, then the emergency grant on the
// record owner.
func (a *Authorizer) doctorAccess(ctx context.Context, doctorID, bookedPatientID, ownerID uuid.UUID) (Decision, error) {
	booked := []uuid.UUID{bookedPatientID}
	if ownerID != bookedPatientID {
		booked = append(booked, ownerID)
	}
	for _, patientID := range booked {
		ok, err := a.appointments.HasAppointment(ctx, doctorID, patientID)
		if err != nil {
			return denied(""), fmt.Errorf("check appointment: %w", err)
		}
		if ok {
			return Decision{Allowed: true, Path: PathAppointment}, nil
		}
	}

	now := a.now()
	ok, err := a.emergency.IsAuthorized(ctx, ownerID, doctorID, now)
	if err != nil {
		return denied(""), fmt.Errorf("check emergency access: %w", err)
	}
	if !ok {
		return denied("no appointment or emergency grant"), nil
	}

	a.logger.Warn().
		Str("type", "emergency_access_use").
		Str("doctor_id", doctorID.String()).
		Str("patient_id", ownerID.String()).
		Time("timestamp", now).
		Msg("record opened under emergency grant")
	return Decision{Allowed: true, Path: PathEmergency}, nil
}

func denied(reason string) Decision {
	return Decision{Allowed: false, Path: PathNone, Reason: reason}
}

package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-access-scheduling/internal/redis"
	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

const (
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

var (
	ErrSlotBeingBooked  = errors.New("slot is currently being booked")
	ErrAlreadyCancelled = errors.New("appointment is already cancelled")
	ErrIncompleteDraft  = errors.New("appointment draft is incomplete")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	logger zerolog.Logger
}

// NewService wires the appointment service. locker may be nil, in which case
// the database unique key alone arbitrates concurrent bookings.
func NewService(repo Repository, locker redisclient.Locker, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		logger: logger.With().Str("component", "appointment").Logger(),
	}
}

// Book persists draft as a confirmed appointment. The slot lock keeps
// concurrent replicas off the database for the same key; the insert itself is
// create-if-absent, so a lost race always surfaces as ErrSlotTaken or
// ErrSlotBeingBooked and never overwrites.
func (s *Service) Book(ctx context.Context, draft Appointment) (*Appointment, error) {
	if draft.DoctorID == uuid.Nil || draft.PatientID == uuid.Nil || draft.TimeSlotID == "" || draft.Date.IsZero() {
		return nil, ErrIncompleteDraft
	}
	if err := draft.Window().Validate(); err != nil {
		return nil, err
	}
	draft.Date = timewindow.DateOf(draft.Date)

	var created *Appointment
	err := s.withSlotLock(ctx, draft.SlotKey(), func(lockCtx context.Context) error {
		appt, err := s.repo.CreateIfAbsent(lockCtx, draft)
		if err != nil {
			return err
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentConfirmed, map[string]any{
			"doctor_id":    appt.DoctorID.String(),
			"patient_id":   appt.PatientID.String(),
			"date":         appt.Date.Format(timewindow.DateLayout),
			"time_slot_id": appt.TimeSlotID,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("book appointment: %w", err)
	}

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("slot_key", created.SlotKey()).
		Msg("appointment confirmed")
	return created, nil
}

func (s *Service) withSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, key, fn)
}

// BookedWindows lists the windows held by live appointments of the doctor on
// date.
func (s *Service) BookedWindows(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]timewindow.Window, error) {
	windows, err := s.repo.ListBookedWindows(ctx, doctorID, timewindow.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("list booked windows: %w", err)
	}
	return windows, nil
}

// HasAppointment reports whether the doctor holds a confirmed appointment
// with the patient. This is the normal, non-emergency path to a patient's
// records.
func (s *Service) HasAppointment(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	return s.repo.HasLiveAppointment(ctx, doctorID, patientID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// Cancel releases the slot held by a confirmed appointment.
func (s *Service) Cancel(ctx context.Context, id, by uuid.UUID) (*Appointment, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	updated, err := s.repo.Cancel(ctx, id, by)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// cancelled concurrently between the read and the update
			return nil, ErrAlreadyCancelled
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"cancelled_by": by.String(),
	})
	return updated, nil
}

// ListByPatient retrieves appointments for a specific patient, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}

// IsContention reports whether err means the slot went to someone else.
func IsContention(err error) bool {
	return errors.Is(err, ErrSlotTaken) || errors.Is(err, ErrSlotBeingBooked)
}

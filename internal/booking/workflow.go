package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-access-scheduling/internal/appointment"
	"github.com/hackgods/clinic-access-scheduling/internal/availability"
	"github.com/hackgods/clinic-access-scheduling/internal/metrics"
	"github.com/hackgods/clinic-access-scheduling/internal/slotcatalog"
	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

type State int

const (
	StateSelectSpecialty State = iota + 1
	StateSelectDoctor
	StateSelectDateTime
	StateConfirm
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSelectSpecialty:
		return "select_specialty"
	case StateSelectDoctor:
		return "select_doctor"
	case StateSelectDateTime:
		return "select_date_time"
	case StateConfirm:
		return "confirm"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateSuccess || s == StateFailed }

var (
	ErrInvalidTransition = errors.New("invalid booking transition")
	ErrUnknownSpecialty  = errors.New("no doctors for specialty")
	ErrUnknownDoctor     = errors.New("doctor not found")
	ErrUnknownSlot       = errors.New("time slot not offered on this date")
	ErrDateInPast        = errors.New("date is in the past")
	// ErrSlotNoLongerAvailable is the contention outcome: pick again.
	ErrSlotNoLongerAvailable = appointment.ErrSlotTaken
)

// SlotSource derives a doctor's slots for a date. availability.Service
// implements it.
type SlotSource interface {
	SlotsForDate(ctx context.Context, doctorID uuid.UUID, date time.Time, booked []timewindow.Window) ([]availability.TimeSlot, error)
}

// Scheduler reads live occupancy and persists appointments.
// appointment.Service implements it.
type Scheduler interface {
	BookedWindows(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]timewindow.Window, error)
	Book(ctx context.Context, draft appointment.Appointment) (*appointment.Appointment, error)
}

type Service struct {
	directory DoctorDirectory
	slots     SlotSource
	scheduler Scheduler
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
	loc       *time.Location
}

type Option func(*Service)

// WithClock overrides time.Now, used to decide which dates are in the past.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the clinic time zone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(directory DoctorDirectory, slots SlotSource, scheduler Scheduler, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		directory: directory,
		slots:     slots,
		scheduler: scheduler,
		logger:    logger.With().Str("component", "booking").Logger(),
		now:       time.Now,
		loc:       time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Specialties(ctx context.Context) ([]string, error) {
	return s.directory.ListSpecialties(ctx)
}

func (s *Service) Doctors(ctx context.Context, specialty string) ([]Doctor, error) {
	return s.directory.ListDoctors(ctx, strings.TrimSpace(specialty))
}

// DoctorSlots is the read-only slot view for a doctor and date, outside any
// workflow.
func (s *Service) DoctorSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]availability.TimeSlot, error) {
	if _, err := s.directory.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	day := timewindow.DateOf(date)
	booked, err := s.scheduler.BookedWindows(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}
	return s.slots.SlotsForDate(ctx, doctorID, day, booked)
}

// Start opens a new workflow for the patient in StateSelectSpecialty.
func (s *Service) Start(patientID uuid.UUID) *Workflow {
	return &Workflow{svc: s, patientID: patientID, state: StateSelectSpecialty}
}

// Workflow walks one patient through specialty, doctor, date/time and
// confirmation. All collected state lives here; abandoning a workflow needs no
// cleanup. A Workflow is not safe for concurrent use.
type Workflow struct {
	svc       *Service
	patientID uuid.UUID
	state     State

	specialty string
	doctors   []Doctor
	doctor    *Doctor
	date      time.Time
	slot      *availability.TimeSlot

	appointment *appointment.Appointment
	failure     error
}

func (w *Workflow) State() State { return w.state }
func (w *Workflow) PatientID() uuid.UUID { return w.patientID }
func (w *Workflow) Specialty() string { return w.specialty }
func (w *Workflow) Doctors() []Doctor { return w.doctors }
func (w *Workflow) Doctor() *Doctor { return w.doctor }
func (w *Workflow) Date() time.Time { return w.date }
func (w *Workflow) Slot() *availability.TimeSlot { return w.slot }
func (w *Workflow) Appointment() *appointment.Appointment { return w.appointment }

// Failure is the reason the workflow ended in StateFailed.
func (w *Workflow) Failure() error { return w.failure }

func (w *Workflow) expect(state State) error {
	if w.state != state {
		return fmt.Errorf("%w: in %s, need %s", ErrInvalidTransition, w.state, state)
	}
	return nil
}

// SelectSpecialty moves 1 -> 2 and loads the doctors offering specialty.
func (w *Workflow) SelectSpecialty(ctx context.Context, specialty string) (State, error) {
	if err := w.expect(StateSelectSpecialty); err != nil {
		return w.state, err
	}
	specialty = strings.TrimSpace(specialty)
	if specialty == "" {
		return w.state, ErrUnknownSpecialty
	}

	doctors, err := w.svc.directory.ListDoctors(ctx, specialty)
	if err != nil {
		return w.state, fmt.Errorf("load doctors: %w", err)
	}
	if len(doctors) == 0 {
		return w.state, fmt.Errorf("%w: %q", ErrUnknownSpecialty, specialty)
	}

	w.specialty = specialty
	w.doctors = doctors
	w.state = StateSelectDoctor
	return w.state, nil
}

// SelectDoctor moves 2 -> 3. The doctor must be one of Doctors().
func (w *Workflow) SelectDoctor(_ context.Context, doctorID uuid.UUID) (State, error) {
	if err := w.expect(StateSelectDoctor); err != nil {
		return w.state, err
	}
	for i := range w.doctors {
		if w.doctors[i].ID == doctorID {
			doc := w.doctors[i]
			w.doctor = &doc
			w.state = StateSelectDateTime
			return w.state, nil
		}
	}
	return w.state, ErrUnknownDoctor
}

// Slots returns the chosen doctor's slots for date against live bookings.
// It does not change state.
func (w *Workflow) Slots(ctx context.Context, date time.Time) ([]availability.TimeSlot, error) {
	if err := w.expect(StateSelectDateTime); err != nil {
		return nil, err
	}
	if err := w.checkDate(date); err != nil {
		return nil, err
	}
	return w.liveSlots(ctx, timewindow.DateOf(date))
}

// Sections is Slots grouped into catalog sections for display.
func (w *Workflow) Sections(ctx context.Context, date time.Time) ([]slotcatalog.Section, error) {
	slots, err := w.Slots(ctx, date)
	if err != nil {
		return nil, err
	}
	return slotcatalog.Sections(slots), nil
}

// SelectSlot moves 3 -> 4. The slot must be offered and available right now;
// a taken slot returns ErrSlotNoLongerAvailable and leaves the workflow in
// StateSelectDateTime so another slot can be picked.
func (w *Workflow) SelectSlot(ctx context.Context, date time.Time, slotID string) (State, error) {
	if err := w.expect(StateSelectDateTime); err != nil {
		return w.state, err
	}
	if err := w.checkDate(date); err != nil {
		return w.state, err
	}
	day := timewindow.DateOf(date)

	slots, err := w.liveSlots(ctx, day)
	if err != nil {
		return w.state, err
	}
	slot, ok := slotcatalog.Find(slots, slotID)
	if !ok {
		return w.state, ErrUnknownSlot
	}
	if !slot.IsAvailable {
		return w.state, ErrSlotNoLongerAvailable
	}

	w.date = day
	w.slot = &slot
	w.state = StateConfirm
	return w.state, nil
}

// Confirm moves 4 -> 5. The slot is re-checked against live bookings and then
// created with create-if-absent semantics. Losing a race ends the workflow in
// StateFailed with ErrSlotNoLongerAvailable. Store errors leave the workflow
// in StateConfirm so the caller can retry.
func (w *Workflow) Confirm(ctx context.Context) (State, error) {
	if err := w.expect(StateConfirm); err != nil {
		return w.state, err
	}

	slots, err := w.liveSlots(ctx, w.date)
	if err != nil {
		w.svc.metrics.ObserveBooking("error")
		return w.state, err
	}
	live, ok := slotcatalog.Find(slots, w.slot.ID)
	if !ok || !live.IsAvailable {
		return w.fail(ErrSlotNoLongerAvailable)
	}

	appt, err := w.svc.scheduler.Book(ctx, appointment.Appointment{
		DoctorID:   w.doctor.ID,
		PatientID:  w.patientID,
		Specialty:  w.specialty,
		Date:       w.date,
		TimeSlotID: live.ID,
		StartTime:  live.StartTime,
		EndTime:    live.EndTime,
		Status:     appointment.StatusDraft,
	})
	if err != nil {
		if appointment.IsContention(err) {
			return w.fail(ErrSlotNoLongerAvailable)
		}
		w.svc.metrics.ObserveBooking("error")
		return w.state, err
	}

	w.appointment = appt
	w.state = StateSuccess
	w.svc.metrics.ObserveBooking("success")
	w.svc.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Str("slot_key", appt.SlotKey()).
		Msg("booking workflow succeeded")
	return w.state, nil
}

func (w *Workflow) fail(reason error) (State, error) {
	w.failure = reason
	w.state = StateFailed
	w.svc.metrics.ObserveBooking("slot_no_longer_available")
	w.svc.logger.Info().
		Str("doctor_id", w.doctor.ID.String()).
		Str("date", w.date.Format(timewindow.DateLayout)).
		Str("slot_id", w.slot.ID).
		Msg("booking workflow lost the slot")
	return w.state, reason
}

// Back re-enters an earlier step and drops everything collected after it.
func (w *Workflow) Back(to State) (State, error) {
	if w.state.Terminal() || to < StateSelectSpecialty || to >= w.state {
		return w.state, fmt.Errorf("%w: back from %s to %s", ErrInvalidTransition, w.state, to)
	}

	switch to {
	case StateSelectSpecialty:
		w.specialty = ""
		w.doctors = nil
		w.doctor = nil
		w.date = time.Time{}
		w.slot = nil
	case StateSelectDoctor:
		w.doctor = nil
		w.date = time.Time{}
		w.slot = nil
	case StateSelectDateTime:
		w.date = time.Time{}
		w.slot = nil
	}
	w.state = to
	return w.state, nil
}

func (w *Workflow) checkDate(date time.Time) error {
	if date.IsZero() {
		return fmt.Errorf("%w: empty date", timewindow.ErrInvalidFormat)
	}
	today := timewindow.DateOf(w.svc.now().In(w.svc.loc))
	if timewindow.DateOf(date).Before(today) {
		return ErrDateInPast
	}
	return nil
}

func (w *Workflow) liveSlots(ctx context.Context, day time.Time) ([]availability.TimeSlot, error) {
	start := time.Now()
	defer func() { w.svc.metrics.ObserveSlotQuery(time.Since(start).Seconds()) }()

	booked, err := w.svc.scheduler.BookedWindows(ctx, w.doctor.ID, day)
	if err != nil {
		return nil, err
	}
	slots, err := w.svc.slots.SlotsForDate(ctx, w.doctor.ID, day, booked)
	if err != nil {
		return nil, err
	}
	return slots, nil
}

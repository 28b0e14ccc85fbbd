package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-access-scheduling/internal/appointment"
	"github.com/hackgods/clinic-access-scheduling/internal/availability"
	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

type stubDirectory struct {
	doctors []Doctor
}

func (d *stubDirectory) ListSpecialties(context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, doc := range d.doctors {
		if !seen[doc.Specialty] {
			seen[doc.Specialty] = true
			out = append(out, doc.Specialty)
		}
	}
	return out, nil
}

func (d *stubDirectory) ListDoctors(_ context.Context, specialty string) ([]Doctor, error) {
	var out []Doctor
	for _, doc := range d.doctors {
		if doc.Specialty == specialty {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (d *stubDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	for _, doc := range d.doctors {
		if doc.ID == id {
			out := doc
			return &out, nil
		}
	}
	return nil, ErrUnknownDoctor
}

type stubAvailabilityRepo struct {
	days map[timewindow.Weekday]availability.WeeklyAvailability
}

func (r *stubAvailabilityRepo) UpsertDay(_ context.Context, day availability.WeeklyAvailability) error {
	r.days[day.Weekday] = day
	return nil
}

func (r *stubAvailabilityRepo) GetDay(_ context.Context, _ uuid.UUID, wd timewindow.Weekday) (*availability.WeeklyAvailability, error) {
	d, ok := r.days[wd]
	if !ok {
		return nil, availability.ErrDayNotFound
	}
	return &d, nil
}

func (r *stubAvailabilityRepo) ListWeek(context.Context, uuid.UUID) ([]availability.WeeklyAvailability, error) {
	return nil, nil
}

// stubScheduler keeps appointments in memory with create-if-absent keys.
type stubScheduler struct {
	mu       sync.Mutex
	booked   map[string]appointment.Appointment
	bookErr  error
	readErr  error
	onLookup func()
}

func newStubScheduler() *stubScheduler {
	return &stubScheduler{booked: make(map[string]appointment.Appointment)}
}

func (s *stubScheduler) BookedWindows(_ context.Context, doctorID uuid.UUID, date time.Time) ([]timewindow.Window, error) {
	if s.onLookup != nil {
		s.onLookup()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []timewindow.Window
	for _, a := range s.booked {
		if a.DoctorID == doctorID && a.Date.Equal(date) {
			out = append(out, a.Window())
		}
	}
	return out, nil
}

func (s *stubScheduler) Book(_ context.Context, draft appointment.Appointment) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bookErr != nil {
		return nil, s.bookErr
	}
	if _, taken := s.booked[draft.SlotKey()]; taken {
		return nil, appointment.ErrSlotTaken
	}
	draft.ID = uuid.New()
	draft.Status = appointment.StatusConfirmed
	s.booked[draft.SlotKey()] = draft
	return &draft, nil
}

func tod(h, m int) timewindow.TimeOfDay { return timewindow.MustTimeOfDay(h, m) }

var (
	monday   = time.Date(2026, time.October, 26, 0, 0, 0, 0, time.UTC)
	clockNow = time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc       *Service
	scheduler *stubScheduler
	cardio    Doctor
	derm      Doctor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cardio := Doctor{ID: uuid.New(), Name: "Dr. Heart", Specialty: "Cardiology"}
	derm := Doctor{ID: uuid.New(), Name: "Dr. Skin", Specialty: "Dermatology"}
	dir := &stubDirectory{doctors: []Doctor{cardio, derm}}

	availRepo := &stubAvailabilityRepo{days: map[timewindow.Weekday]availability.WeeklyAvailability{
		timewindow.Monday: {Weekday: timewindow.Monday, IsActive: true, StartTime: tod(9, 0), EndTime: tod(12, 0)},
	}}
	avail := availability.NewService(availRepo, 30*time.Minute, zerolog.Nop())
	scheduler := newStubScheduler()

	svc := NewService(dir, avail, scheduler, zerolog.Nop(), WithClock(func() time.Time { return clockNow }))
	return &fixture{svc: svc, scheduler: scheduler, cardio: cardio, derm: derm}
}

func walkToConfirm(t *testing.T, f *fixture, slotID string) *Workflow {
	t.Helper()
	ctx := context.Background()
	w := f.svc.Start(uuid.New())

	state, err := w.SelectSpecialty(ctx, "Cardiology")
	require.NoError(t, err)
	require.Equal(t, StateSelectDoctor, state)

	state, err = w.SelectDoctor(ctx, f.cardio.ID)
	require.NoError(t, err)
	require.Equal(t, StateSelectDateTime, state)

	state, err = w.SelectSlot(ctx, monday, slotID)
	require.NoError(t, err)
	require.Equal(t, StateConfirm, state)
	return w
}

func TestWorkflowHappyPath(t *testing.T) {
	f := newFixture(t)
	w := walkToConfirm(t, f, "1000-1030")

	state, err := w.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, state)
	require.NotNil(t, w.Appointment())
	assert.Equal(t, f.cardio.ID, w.Appointment().DoctorID)
	assert.Equal(t, w.PatientID(), w.Appointment().PatientID)
	assert.Equal(t, "Cardiology", w.Appointment().Specialty)
	assert.Equal(t, tod(10, 0), w.Appointment().StartTime)

	// a repeat listing marks only the booked slot unavailable
	slots, err := f.svc.DoctorSlots(context.Background(), f.cardio.ID, monday)
	require.NoError(t, err)
	require.Len(t, slots, 6)
	for _, s := range slots {
		assert.Equal(t, s.ID != "1000-1030", s.IsAvailable, s.ID)
	}
}

func TestWorkflowRejectsOutOfOrderSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.svc.Start(uuid.New())

	_, err := w.SelectDoctor(ctx, f.cardio.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = w.SelectSlot(ctx, monday, "0900-0930")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = w.Confirm(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateSelectSpecialty, w.State())
}

func TestWorkflowSelectionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.svc.Start(uuid.New())

	_, err := w.SelectSpecialty(ctx, "Podiatry")
	assert.ErrorIs(t, err, ErrUnknownSpecialty)
	_, err = w.SelectSpecialty(ctx, "  ")
	assert.ErrorIs(t, err, ErrUnknownSpecialty)

	_, err = w.SelectSpecialty(ctx, "Cardiology")
	require.NoError(t, err)
	require.Len(t, w.Doctors(), 1)

	// dermatologist is not in the filtered list
	_, err = w.SelectDoctor(ctx, f.derm.ID)
	assert.ErrorIs(t, err, ErrUnknownDoctor)

	_, err = w.SelectDoctor(ctx, f.cardio.ID)
	require.NoError(t, err)

	_, err = w.SelectSlot(ctx, monday, "1300-1330")
	assert.ErrorIs(t, err, ErrUnknownSlot)

	_, err = w.SelectSlot(ctx, clockNow.AddDate(0, 0, -7), "0900-0930")
	assert.ErrorIs(t, err, ErrDateInPast)

	// tuesday is inactive
	slots, err := w.Slots(ctx, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.Equal(t, StateSelectDateTime, w.State())
}

func TestWorkflowSectionsGroupsSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.svc.Start(uuid.New())
	_, err := w.SelectSpecialty(ctx, "Cardiology")
	require.NoError(t, err)
	_, err = w.SelectDoctor(ctx, f.cardio.ID)
	require.NoError(t, err)

	sections, err := w.Sections(ctx, monday)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "morning", sections[0].Category)
	assert.Len(t, sections[0].Chips, 6)
}

func TestWorkflowSelectTakenSlotStaysInDateTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := walkToConfirm(t, f, "0900-0930")
	_, err := first.Confirm(ctx)
	require.NoError(t, err)

	w := f.svc.Start(uuid.New())
	_, err = w.SelectSpecialty(ctx, "Cardiology")
	require.NoError(t, err)
	_, err = w.SelectDoctor(ctx, f.cardio.ID)
	require.NoError(t, err)

	state, err := w.SelectSlot(ctx, monday, "0900-0930")
	assert.ErrorIs(t, err, ErrSlotNoLongerAvailable)
	assert.Equal(t, StateSelectDateTime, state)

	state, err = w.SelectSlot(ctx, monday, "0930-1000")
	require.NoError(t, err)
	assert.Equal(t, StateConfirm, state)
}

func TestWorkflowConfirmAfterSlotTakenFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := walkToConfirm(t, f, "1100-1130")

	// another patient books the same slot between selection and confirmation
	other := walkToConfirm(t, f, "1100-1130")
	_, err := other.Confirm(ctx)
	require.NoError(t, err)

	state, err := w.Confirm(ctx)
	assert.ErrorIs(t, err, ErrSlotNoLongerAvailable)
	assert.Equal(t, StateFailed, state)
	assert.ErrorIs(t, w.Failure(), ErrSlotNoLongerAvailable)
	assert.Nil(t, w.Appointment())

	// failed is terminal
	_, err = w.Confirm(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = w.Back(StateSelectDateTime)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWorkflowConfirmLosesCreateIfAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := walkToConfirm(t, f, "0930-1000")

	// the live re-check passes, then a competing insert lands first
	f.scheduler.onLookup = func() {
		f.scheduler.onLookup = nil
		f.scheduler.mu.Lock()
		defer f.scheduler.mu.Unlock()
		d := appointment.Appointment{DoctorID: f.cardio.ID, Date: monday, TimeSlotID: "0930-1000"}
		f.scheduler.booked[d.SlotKey()] = d
	}
	// the injected booking has no window, so only the insert can detect it
	state, err := w.Confirm(ctx)
	assert.ErrorIs(t, err, ErrSlotNoLongerAvailable)
	assert.Equal(t, StateFailed, state)
}

func TestWorkflowConfirmStoreErrorIsRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := walkToConfirm(t, f, "1000-1030")

	f.scheduler.bookErr = errors.New("i/o timeout")
	state, err := w.Confirm(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlotNoLongerAvailable)
	assert.Equal(t, StateConfirm, state)

	f.scheduler.bookErr = nil
	state, err = w.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, state)
}

func TestWorkflowBackDiscardsLaterState(t *testing.T) {
	f := newFixture(t)
	w := walkToConfirm(t, f, "1000-1030")

	state, err := w.Back(StateSelectDateTime)
	require.NoError(t, err)
	assert.Equal(t, StateSelectDateTime, state)
	assert.Nil(t, w.Slot())
	assert.True(t, w.Date().IsZero())
	require.NotNil(t, w.Doctor())

	state, err = w.Back(StateSelectSpecialty)
	require.NoError(t, err)
	assert.Equal(t, StateSelectSpecialty, state)
	assert.Empty(t, w.Specialty())
	assert.Nil(t, w.Doctors())
	assert.Nil(t, w.Doctor())

	// forward "back" is not allowed
	_, err = w.Back(StateConfirm)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// a new specialty path does not keep the old doctor
	_, err = w.SelectSpecialty(context.Background(), "Dermatology")
	require.NoError(t, err)
	_, err = w.SelectDoctor(context.Background(), f.cardio.ID)
	assert.ErrorIs(t, err, ErrUnknownDoctor)
}

func TestConcurrentConfirmExactlyOneSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := walkToConfirm(t, f, "1130-1200")
	b := walkToConfirm(t, f, "1130-1200")

	var wg sync.WaitGroup
	results := make([]State, 2)
	errs := make([]error, 2)
	for i, w := range []*Workflow{a, b} {
		wg.Add(1)
		go func(i int, w *Workflow) {
			defer wg.Done()
			results[i], errs[i] = w.Confirm(ctx)
		}(i, w)
	}
	wg.Wait()

	successes, failures := 0, 0
	for i := range results {
		switch results[i] {
		case StateSuccess:
			successes++
			assert.NoError(t, errs[i])
		case StateFailed:
			failures++
			assert.ErrorIs(t, errs[i], ErrSlotNoLongerAvailable)
		default:
			t.Fatalf("unexpected state %s", results[i])
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
}

func TestDoctorSlotsUnknownDoctor(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.DoctorSlots(context.Background(), uuid.New(), monday)
	assert.ErrorIs(t, err, ErrUnknownDoctor)
}

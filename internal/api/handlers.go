package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-access-scheduling/internal/appointment"
	"github.com/hackgods/clinic-access-scheduling/internal/availability"
	"github.com/hackgods/clinic-access-scheduling/internal/booking"
	"github.com/hackgods/clinic-access-scheduling/internal/identity"
	"github.com/hackgods/clinic-access-scheduling/internal/slotcatalog"
	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

type BookingService interface {
	Specialties(ctx context.Context) ([]string, error)
	Doctors(ctx context.Context, specialty string) ([]booking.Doctor, error)
	DoctorSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]availability.TimeSlot, error)
	Start(patientID uuid.UUID) *booking.Workflow
}

type AvailabilityService interface {
	GetWeek(ctx context.Context, doctorID uuid.UUID) ([]availability.WeeklyAvailability, error)
	SetDay(ctx context.Context, doctorID uuid.UUID, weekday timewindow.Weekday, isActive bool, start, end timewindow.TimeOfDay) error
}

type AppointmentService interface {
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id, by uuid.UUID) (*appointment.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
}

type PatientDirectory interface {
	Patient(ctx context.Context, id uuid.UUID, today time.Time) (*identity.PatientProfile, error)
}

type handlers struct {
	booking      BookingService
	availability AvailabilityService
	appointments AppointmentService
	emergency    EmergencyRegistry
	authorizer   Authorizer
	patients     PatientDirectory
	now          func() time.Time
	loc          *time.Location
	logger       zerolog.Logger
}

func subjectOf(r *http.Request) identity.Subject {
	s, _ := identity.FromContext(r.Context())
	return s
}

// canActFor reports whether the caller is the patient or an admin.
func canActFor(s identity.Subject, patientID uuid.UUID) bool {
	return s.Is(identity.RoleAdmin) || (s.Is(identity.RolePatient) && s.ID == patientID)
}

func (h *handlers) listSpecialties(w http.ResponseWriter, r *http.Request) {
	specialties, err := h.booking.Specialties(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if specialties == nil {
		specialties = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"specialties": specialties})
}

func (h *handlers) listDoctors(w http.ResponseWriter, r *http.Request) {
	specialty := strings.TrimSpace(r.URL.Query().Get("specialty"))
	if specialty == "" {
		writeError(w, http.StatusBadRequest, "missing_specialty", "specialty is required")
		return
	}
	doctors, err := h.booking.Doctors(r.Context(), specialty)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if doctors == nil {
		doctors = []booking.Doctor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctors": doctors})
}

func (h *handlers) getWeek(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	week, err := h.availability.GetWeek(r.Context(), doctorID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	days := make([]DayResponse, 0, len(week))
	for _, d := range week {
		days = append(days, toDayResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor_id": doctorID, "days": days})
}

func (h *handlers) setDay(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	s := subjectOf(r)
	if !s.Is(identity.RoleAdmin) && !(s.Is(identity.RoleDoctor) && s.ID == doctorID) {
		writeError(w, http.StatusForbidden, "forbidden", "only the doctor or an admin may edit this schedule")
		return
	}

	n, err := strconv.Atoi(chi.URLParam(r, "weekday"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_weekday", "weekday must be a number from 1 (Monday) to 7 (Sunday)")
		return
	}
	weekday, err := timewindow.ParseWeekday(n)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	var req SetDayRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, err := timewindow.ParseTimeOfDay(req.Start)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	end, err := timewindow.ParseTimeOfDay(req.End)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if err := h.availability.SetDay(r.Context(), doctorID, weekday, req.IsActive, start, end); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DayResponse{
		Weekday:  int(weekday),
		Label:    weekday.Short(),
		Name:     weekday.String(),
		IsActive: req.IsActive,
		Start:    start.String(),
		End:      end.String(),
	})
}

func (h *handlers) doctorSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	date, err := timewindow.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	slots, err := h.booking.DoctorSlots(r.Context(), doctorID, date)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	available := 0
	for _, s := range slots {
		if s.IsAvailable {
			available++
		}
	}
	writeJSON(w, http.StatusOK, SlotsResponse{
		DoctorID:  doctorID,
		Date:      date.Format(timewindow.DateLayout),
		Weekday:   timewindow.WeekdayOf(date).Short(),
		Total:     len(slots),
		Available: available,
		Sections:  slotcatalog.Sections(slots),
	})
}

// createAppointment runs a whole booking workflow in one request.
func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s := subjectOf(r)
	patientID := s.ID
	if req.PatientID != "" {
		id, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		patientID = id
	}
	if !canActFor(s, patientID) {
		writeError(w, http.StatusForbidden, "forbidden", "appointments are booked by the patient or an admin")
		return
	}

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}
	date, err := timewindow.ParseDate(req.Date)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	ctx := r.Context()
	wf := h.booking.Start(patientID)
	if _, err := wf.SelectSpecialty(ctx, req.Specialty); err != nil {
		h.handleError(w, r, err)
		return
	}
	if _, err := wf.SelectDoctor(ctx, doctorID); err != nil {
		h.handleError(w, r, err)
		return
	}
	if _, err := wf.SelectSlot(ctx, date, req.SlotID); err != nil {
		h.handleError(w, r, err)
		return
	}
	state, err := wf.Confirm(ctx)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if state != booking.StateSuccess || wf.Appointment() == nil {
		h.handleError(w, r, wf.Failure())
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(*wf.Appointment()))
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.appointments.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	s := subjectOf(r)
	if !canActFor(s, appt.PatientID) {
		// do not reveal other patients' appointments
		h.handleError(w, r, appointment.ErrAppointmentNotFound)
		return
	}

	cancelled, err := h.appointments.Cancel(r.Context(), id, s.ID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*cancelled))
}

func (h *handlers) getPatient(w http.ResponseWriter, r *http.Request) {
	patientID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if !canActFor(subjectOf(r), patientID) {
		writeError(w, http.StatusForbidden, "forbidden", "only the patient or an admin may view this profile")
		return
	}

	p, err := h.patients.Patient(r.Context(), patientID, h.now().In(h.loc))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) listPatientAppointments(w http.ResponseWriter, r *http.Request) {
	patientID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if !canActFor(subjectOf(r), patientID) {
		writeError(w, http.StatusForbidden, "forbidden", "only the patient or an admin may list appointments")
		return
	}

	appts, err := h.appointments.ListByPatient(r.Context(), patientID, intQuery(r, "limit", 20), intQuery(r, "offset", 0))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

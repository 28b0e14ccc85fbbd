package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-access-scheduling/internal/appointment"
	"github.com/hackgods/clinic-access-scheduling/internal/availability"
	"github.com/hackgods/clinic-access-scheduling/internal/slotcatalog"
	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

type CreateAppointmentRequest struct {
	PatientID string `json:"patient_id,omitempty"`
	Specialty string `json:"specialty"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	SlotID    string `json:"slot_id"`
}

type AppointmentResponse struct {
	ID          uuid.UUID  `json:"id"`
	DoctorID    uuid.UUID  `json:"doctor_id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	Specialty   string     `json:"specialty"`
	Date        string     `json:"date"`
	Weekday     string     `json:"weekday"`
	TimeSlotID  string     `json:"time_slot_id"`
	Start       string     `json:"start"`
	End         string     `json:"end"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		DoctorID:    a.DoctorID,
		PatientID:   a.PatientID,
		Specialty:   a.Specialty,
		Date:        a.Date.Format(timewindow.DateLayout),
		Weekday:     timewindow.WeekdayOf(a.Date).Short(),
		TimeSlotID:  a.TimeSlotID,
		Start:       a.StartTime.String(),
		End:         a.EndTime.String(),
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		CancelledAt: a.CancelledAt,
	}
}

type DayResponse struct {
	Weekday  int    `json:"weekday"`
	Label    string `json:"label"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

func toDayResponse(d availability.WeeklyAvailability) DayResponse {
	return DayResponse{
		Weekday:  int(d.Weekday),
		Label:    d.Weekday.Short(),
		Name:     d.Weekday.String(),
		IsActive: d.IsActive,
		Start:    d.StartTime.String(),
		End:      d.EndTime.String(),
	}
}

type SetDayRequest struct {
	IsActive bool   `json:"is_active"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

type SlotsResponse struct {
	DoctorID  uuid.UUID             `json:"doctor_id"`
	Date      string                `json:"date"`
	Weekday   string                `json:"weekday"`
	Total     int                   `json:"total"`
	Available int                   `json:"available"`
	Sections  []slotcatalog.Section `json:"sections"`
}

type GrantRequest struct {
	PatientID     string `json:"patient_id"`
	DoctorID      string `json:"doctor_id"`
	Reason        string `json:"reason"`
	DurationHours *int   `json:"duration_hours,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

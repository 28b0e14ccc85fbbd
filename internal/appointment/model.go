package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Appointment occupies one derived slot of a doctor on a calendar date. The
// (DoctorID, Date, TimeSlotID) triple is unique among live appointments.
type Appointment struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	Specialty   string
	Date        time.Time // midnight UTC of the calendar day
	TimeSlotID  string
	StartTime   timewindow.TimeOfDay
	EndTime     timewindow.TimeOfDay
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time
	CancelledBy *uuid.UUID
}

func (a Appointment) Window() timewindow.Window {
	return timewindow.Window{Start: a.StartTime, End: a.EndTime}
}

// SlotKey is the create-if-absent key, also used to name the slot lock.
func (a Appointment) SlotKey() string {
	return a.DoctorID.String() + ":" + a.Date.Format(timewindow.DateLayout) + ":" + a.TimeSlotID
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

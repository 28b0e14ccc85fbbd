package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken means a live appointment already holds the slot key.
	ErrSlotTaken = errors.New("this slot was just booked")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// CreateIfAbsent inserts a confirmed appointment unless a live one exists
	// for the same doctor, date and slot, in which case it returns ErrSlotTaken.
	CreateIfAbsent(ctx context.Context, a Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Occupancy
	ListBookedWindows(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]timewindow.Window, error)
	HasLiveAppointment(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	Cancel(ctx context.Context, id, by uuid.UUID) (*Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

package availability

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

var ErrDayNotFound = errors.New("availability day not found")

// Repository persists weekly schedules. UpsertDay must be atomic per
// (doctor, weekday) so readers never see a torn day.
type Repository interface {
	UpsertDay(ctx context.Context, day WeeklyAvailability) error
	GetDay(ctx context.Context, doctorID uuid.UUID, weekday timewindow.Weekday) (*WeeklyAvailability, error)
	ListWeek(ctx context.Context, doctorID uuid.UUID) ([]WeeklyAvailability, error)
}

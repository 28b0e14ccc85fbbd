package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

const DefaultGrain = 30 * time.Minute

type Service struct {
	repo   Repository
	grain  time.Duration
	logger zerolog.Logger
}

func NewService(repo Repository, grain time.Duration, logger zerolog.Logger) *Service {
	if grain < time.Minute {
		grain = DefaultGrain
	}
	return &Service{
		repo:   repo,
		grain:  grain.Truncate(time.Minute),
		logger: logger.With().Str("component", "availability").Logger(),
	}
}

func (s *Service) Grain() time.Duration { return s.grain }

// SetDay upserts one weekday of a doctor's schedule. The window must have
// start < end even when the day is inactive; on failure nothing is written.
func (s *Service) SetDay(ctx context.Context, doctorID uuid.UUID, weekday timewindow.Weekday, isActive bool, start, end timewindow.TimeOfDay) error {
	if !weekday.Valid() {
		return fmt.Errorf("%w: got %d", timewindow.ErrInvalidWeekday, int(weekday))
	}
	if !start.Valid() || !end.Valid() {
		return fmt.Errorf("%w: %s-%s", timewindow.ErrInvalidFormat, start, end)
	}
	if end <= start {
		return fmt.Errorf("%w: %s-%s", timewindow.ErrInvalidRange, start, end)
	}

	day := WeeklyAvailability{
		DoctorID:  doctorID,
		Weekday:   weekday,
		IsActive:  isActive,
		StartTime: start,
		EndTime:   end,
	}
	if err := s.repo.UpsertDay(ctx, day); err != nil {
		return fmt.Errorf("set availability day: %w", err)
	}

	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Str("weekday", weekday.Short()).
		Bool("active", isActive).
		Str("window", day.Window().String()).
		Msg("availability updated")
	return nil
}

// GetWeek always returns seven entries, Monday first. Days never edited come
// back as DefaultDay.
func (s *Service) GetWeek(ctx context.Context, doctorID uuid.UUID) ([]WeeklyAvailability, error) {
	stored, err := s.repo.ListWeek(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availability week: %w", err)
	}

	byDay := make(map[timewindow.Weekday]WeeklyAvailability, len(stored))
	for _, d := range stored {
		byDay[d.Weekday] = d
	}

	week := make([]WeeklyAvailability, 0, len(timewindow.AllWeekdays))
	for _, wd := range timewindow.AllWeekdays {
		if d, ok := byDay[wd]; ok {
			week = append(week, d)
			continue
		}
		week = append(week, DefaultDay(doctorID, wd))
	}
	return week, nil
}

// SlotsForDate derives the doctor's slots for date's weekday. Slots that
// overlap any of booked are returned with IsAvailable false. An inactive or
// malformed day yields no slots.
func (s *Service) SlotsForDate(ctx context.Context, doctorID uuid.UUID, date time.Time, booked []timewindow.Window) ([]TimeSlot, error) {
	weekday := timewindow.WeekdayOf(date)

	day, err := s.repo.GetDay(ctx, doctorID, weekday)
	if err != nil {
		if errors.Is(err, ErrDayNotFound) {
			return []TimeSlot{}, nil
		}
		return nil, fmt.Errorf("load availability day: %w", err)
	}

	if day.IsActive && !day.Bookable() {
		s.logger.Warn().
			Str("doctor_id", doctorID.String()).
			Str("weekday", weekday.Short()).
			Str("window", day.Window().String()).
			Msg("stored window is malformed, treating day as inactive")
	}

	return DeriveSlots(*day, s.grain, booked), nil
}

// DeriveSlots cuts the day's window into contiguous grain-sized slots. A
// trailing remainder shorter than grain is dropped. The output depends only on
// the arguments.
func DeriveSlots(day WeeklyAvailability, grain time.Duration, booked []timewindow.Window) []TimeSlot {
	slots := []TimeSlot{}
	if !day.Bookable() || grain < time.Minute {
		return slots
	}

	window := day.Window()
	for start := window.Start; ; {
		end := start.Add(grain)
		if end > window.End {
			break
		}

		w := timewindow.Window{Start: start, End: end}
		slots = append(slots, TimeSlot{
			ID:          SlotID(w),
			StartTime:   start,
			EndTime:     end,
			Category:    CategoryOf(start),
			IsAvailable: !overlapsAny(w, booked),
		})
		start = end
	}
	return slots
}

func overlapsAny(w timewindow.Window, booked []timewindow.Window) bool {
	for _, b := range booked {
		if timewindow.Overlaps(w, b) {
			return true
		}
	}
	return false
}

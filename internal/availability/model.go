package availability

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-access-scheduling/internal/timewindow"
)

var (
	DefaultStart = timewindow.MustTimeOfDay(9, 0)
	DefaultEnd   = timewindow.MustTimeOfDay(17, 0)
)

// WeeklyAvailability is one doctor's working window for one weekday. Times on
// an inactive day are kept so the schedule editor can restore them.
type WeeklyAvailability struct {
	DoctorID  uuid.UUID
	Weekday   timewindow.Weekday
	IsActive  bool
	StartTime timewindow.TimeOfDay
	EndTime   timewindow.TimeOfDay
	UpdatedAt time.Time
}

// DefaultDay is what a doctor sees for a weekday that was never edited.
func DefaultDay(doctorID uuid.UUID, weekday timewindow.Weekday) WeeklyAvailability {
	return WeeklyAvailability{
		DoctorID:  doctorID,
		Weekday:   weekday,
		IsActive:  false,
		StartTime: DefaultStart,
		EndTime:   DefaultEnd,
	}
}

func (w WeeklyAvailability) Window() timewindow.Window {
	return timewindow.Window{Start: w.StartTime, End: w.EndTime}
}

// Bookable reports whether slots can be derived from the day. A stored active
// day with a broken window counts as inactive.
func (w WeeklyAvailability) Bookable() bool {
	return w.IsActive && w.Window().Validate() == nil
}

// Category buckets slots by part of day. The numeric order is the display
// order.
type Category int

const (
	CategoryMorning Category = iota + 1
	CategoryAfternoon
	CategoryEvening
)

// Categories lists every category in display order.
var Categories = []Category{CategoryMorning, CategoryAfternoon, CategoryEvening}

var (
	afternoonStarts = timewindow.MustTimeOfDay(12, 0)
	eveningStarts   = timewindow.MustTimeOfDay(17, 0)
)

// CategoryOf buckets a slot by its start time.
func CategoryOf(start timewindow.TimeOfDay) Category {
	switch {
	case start < afternoonStarts:
		return CategoryMorning
	case start < eveningStarts:
		return CategoryAfternoon
	default:
		return CategoryEvening
	}
}

func (c Category) String() string {
	switch c {
	case CategoryMorning:
		return "morning"
	case CategoryAfternoon:
		return "afternoon"
	case CategoryEvening:
		return "evening"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// TimeSlot is a bookable unit derived for one doctor on one date. It is never
// stored; the ID is stable for a given window so it can key appointments.
type TimeSlot struct {
	ID          string
	StartTime   timewindow.TimeOfDay
	EndTime     timewindow.TimeOfDay
	Category    Category
	IsAvailable bool
}

func (s TimeSlot) Window() timewindow.Window {
	return timewindow.Window{Start: s.StartTime, End: s.EndTime}
}

// SlotID is the identifier derived for a window, e.g. "0930-1000".
func SlotID(w timewindow.Window) string {
	return fmt.Sprintf("%02d%02d-%02d%02d", w.Start.Hour(), w.Start.Minute(), w.End.Hour(), w.End.Minute())
}

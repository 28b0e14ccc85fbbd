package timewindow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidFormat = errors.New("invalid time format")
	ErrInvalidRange  = errors.New("end time must be after start time")
	ErrFutureDate    = errors.New("date is in the future")
)

// TimeOfDay is a wall-clock time with minute precision, stored as minutes
// since midnight.
type TimeOfDay int

const minutesPerDay = 24 * 60

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d out of range", ErrInvalidFormat, hour, minute)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// MustTimeOfDay is NewTimeOfDay for constants and tests.
func MustTimeOfDay(hour, minute int) TimeOfDay {
	t, err := NewTimeOfDay(hour, minute)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Valid reports whether t falls within a single day.
func (t TimeOfDay) Valid() bool { return t >= 0 && t < minutesPerDay }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Add returns t shifted by d, truncated to the minute. The result may fall
// outside the day; callers check Valid when that matters.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	return t + TimeOfDay(d/time.Minute)
}

// On places t on the calendar day of date, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, date.Location())
}

// ParseTimeOfDay accepts "HH:MM" (24h) or "hh:mm AM/PM".
func ParseTimeOfDay(text string) (TimeOfDay, error) {
	s := strings.ToUpper(strings.TrimSpace(text))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidFormat)
	}

	meridiem := ""
	if strings.HasSuffix(s, "AM") || strings.HasSuffix(s, "PM") {
		meridiem = s[len(s)-2:]
		s = strings.TrimSpace(s[:len(s)-2])
	}

	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, text)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, text)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, text)
	}

	if meridiem != "" {
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("%w: hour %d out of range for 12h clock", ErrInvalidFormat, hour)
		}
		hour %= 12
		if meridiem == "PM" {
			hour += 12
		}
	}

	return NewTimeOfDay(hour, minute)
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Validate fails with ErrInvalidRange unless Start < End.
func (w Window) Validate() error {
	if !w.Start.Valid() || !w.End.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidFormat, w)
	}
	if w.End <= w.Start {
		return fmt.Errorf("%w: %s", ErrInvalidRange, w)
	}
	return nil
}

// Contains reports whether inner lies fully inside w.
func (w Window) Contains(inner Window) bool {
	return inner.Start >= w.Start && inner.End <= w.End
}

func DurationMinutes(start, end TimeOfDay) (int, error) {
	if end <= start {
		return 0, fmt.Errorf("%w: %s-%s", ErrInvalidRange, start, end)
	}
	return int(end - start), nil
}

// Overlaps reports whether the half-open intervals intersect. Touching
// windows (a.End == b.Start) do not overlap.
func Overlaps(a, b Window) bool {
	return a.Start < b.End && b.Start < a.End
}

// AgeInYears counts whole years from birthDate to today, comparing calendar
// dates only.
func AgeInYears(birthDate, today time.Time) (int, error) {
	birth := DateOf(birthDate)
	now := DateOf(today)
	if birth.After(now) {
		return 0, ErrFutureDate
	}

	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age, nil
}

// DateOf strips the clock from t and returns midnight UTC of the same
// calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const DateLayout = "2006-01-02"

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidFormat, s)
	}
	return d, nil
}

package timewindow

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidWeekday = errors.New("weekday must be between 1 and 7")

// Weekday numbers the days of the week 1 (Monday) through 7 (Sunday).
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// AllWeekdays lists every weekday in calendar order.
var AllWeekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

var weekdayNames = [...]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func (w Weekday) Valid() bool { return w >= Monday && w <= Sunday }

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

// Short is the three letter label used by schedule screens ("Mon").
func (w Weekday) Short() string {
	if !w.Valid() {
		return "?"
	}
	return weekdayNames[w][:3]
}

func ParseWeekday(n int) (Weekday, error) {
	w := Weekday(n)
	if !w.Valid() {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidWeekday, n)
	}
	return w, nil
}

// WeekdayOf returns the weekday of t's calendar date.
func WeekdayOf(t time.Time) Weekday {
	if t.Weekday() == time.Sunday {
		return Sunday
	}
	return Weekday(t.Weekday())
}

package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies "now" for conflict checks, price resolution and task due-ness.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall clock in UTC.
var SystemClock Clock = systemClock{}

// ClockFunc adapts a function to Clock. Handy in tests.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// =============================================================================
// SLOTS - Fixed 90 minute windows
// =============================================================================

const (
	DateLayout     = "2006-01-02"
	TimeSlotLayout = "15:04"
	SlotDuration   = 90 * time.Minute
)

// StandardSlotTimes are the start times offered every day.
var StandardSlotTimes = []string{
	"08:00", "09:30", "11:00", "12:30", "14:00",
	"15:30", "17:00", "18:30", "20:00", "21:30",
}

// ParseDate parses "YYYY-MM-DD" as midnight in loc.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidSlot, date)
	}
	return d, nil
}

// SlotStart combines a date and an "HH:MM" slot into one instant in loc.
func SlotStart(date, timeSlot string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeSlotLayout, date+" "+timeSlot, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q %q", ErrInvalidSlot, date, timeSlot)
	}
	return t, nil
}

// DayBounds returns [start, end) of the calendar day containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	lt := t.In(loc)
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// DayOfWeek returns 0 = Monday ... 6 = Sunday.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// TimeOfDay formats the wall-clock start of t in loc as "HH:MM".
func TimeOfDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(TimeSlotLayout)
}

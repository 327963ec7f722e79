package types

import (
	"errors"
	"fmt"
	"time"
)

// ScheduleWindow is the immutable plan driving the scheduler. Exactly one of
// Interval or Calendar is set.
type ScheduleWindow struct {
	Interval *IntervalSchedule
	Calendar *CalendarSchedule
}

// IntervalSchedule fires every fixed duration.
type IntervalSchedule struct {
	Every time.Duration
}

// CalendarSchedule fires on selected weekdays between two dates, inclusive.
type CalendarSchedule struct {
	StartDate time.Time
	EndDate   time.Time
	Weekdays  []time.Weekday
	// TimeOfDay is the offset from local midnight at which each day fires.
	TimeOfDay time.Duration
	Zone      *time.Location
}

// Validate checks that the window is one well-formed variant.
func (w ScheduleWindow) Validate() error {
	switch {
	case w.Interval != nil && w.Calendar != nil:
		return errors.New("schedule window: interval and calendar modes are mutually exclusive")
	case w.Interval != nil:
		if w.Interval.Every <= 0 {
			return fmt.Errorf("schedule window: interval must be positive, got %s", w.Interval.Every)
		}
		return nil
	case w.Calendar != nil:
		c := w.Calendar
		if c.EndDate.Before(c.StartDate) {
			return fmt.Errorf("schedule window: end date %s precedes start date %s",
				c.EndDate.Format(time.DateOnly), c.StartDate.Format(time.DateOnly))
		}
		if len(c.Weekdays) == 0 {
			return errors.New("schedule window: calendar mode needs at least one weekday")
		}
		if c.TimeOfDay < 0 || c.TimeOfDay >= 24*time.Hour {
			return fmt.Errorf("schedule window: time of day %s out of range", c.TimeOfDay)
		}
		return nil
	default:
		return errors.New("schedule window: no mode configured")
	}
}

// Mode names the configured variant for logs.
func (w ScheduleWindow) Mode() string {
	if w.Calendar != nil {
		return "calendar"
	}
	return "interval"
}

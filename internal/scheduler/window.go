package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"climatewatch/internal/types"
)

// maxInstants bounds the precomputed calendar. Three weekdays across the
// widest accepted range stay far below it.
const maxInstants = 100_000

var calendarParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CalendarCursor walks the precomputed instants of a calendar window.
type CalendarCursor struct {
	instants []time.Time
	next     int
}

// NewCalendarCursor expands c into every selected weekday at TimeOfDay in
// c.Zone, from StartDate 00:00 through EndDate 00:00 inclusive. EndDate is
// the closing instant of the window, so its own TimeOfDay is not scheduled
// unless TimeOfDay is midnight.
func NewCalendarCursor(c types.CalendarSchedule) (*CalendarCursor, error) {
	if err := (types.ScheduleWindow{Calendar: &c}).Validate(); err != nil {
		return nil, err
	}
	spec, err := calendarSpec(c)
	if err != nil {
		return nil, err
	}
	sched, err := calendarParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar spec %q: %w", spec, err)
	}

	zone := c.Zone
	if zone == nil {
		zone = time.UTC
	}
	first := localMidnight(c.StartDate, zone)
	last := localMidnight(c.EndDate, zone)

	var instants []time.Time
	// Next is strictly after its argument; step back so midnight itself qualifies.
	for t := sched.Next(first.Add(-time.Second)); !t.IsZero() && !t.After(last); t = sched.Next(t) {
		instants = append(instants, t)
		if len(instants) > maxInstants {
			return nil, fmt.Errorf("calendar window expands to more than %d instants", maxInstants)
		}
	}
	return &CalendarCursor{instants: instants}, nil
}

// calendarSpec renders the six-field cron expression for c.
func calendarSpec(c types.CalendarSchedule) (string, error) {
	tod := c.TimeOfDay
	if tod%time.Second != 0 {
		return "", fmt.Errorf("time of day %s has sub-second precision", tod)
	}
	h := int(tod / time.Hour)
	m := int(tod % time.Hour / time.Minute)
	s := int(tod % time.Minute / time.Second)

	days := make([]string, 0, len(c.Weekdays))
	seen := make(map[time.Weekday]bool, len(c.Weekdays))
	for _, d := range c.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return "", fmt.Errorf("invalid weekday %d", d)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, strconv.Itoa(int(d)))
	}
	return fmt.Sprintf("%d %d %d * * %s", s, m, h, strings.Join(days, ",")), nil
}

// localMidnight reinterprets the calendar date of t as midnight in zone.
func localMidnight(t time.Time, zone *time.Location) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, zone)
}

// Instants returns a copy of the full sequence.
func (c *CalendarCursor) Instants() []time.Time {
	out := make([]time.Time, len(c.instants))
	copy(out, c.instants)
	return out
}

// Remaining returns the number of instants not yet handed out.
func (c *CalendarCursor) Remaining() int {
	return len(c.instants) - c.next
}

// Next returns the next instant to fire relative to now. Instants already at
// or before now collapse into one immediately due instant, the latest of
// them; missed reports how many were collapsed. ok is false once the
// sequence is exhausted.
func (c *CalendarCursor) Next(now time.Time) (due time.Time, missed int, ok bool) {
	i := c.next
	for i < len(c.instants) && !c.instants[i].After(now) {
		i++
	}
	if missed = i - c.next; missed > 0 {
		c.next = i
		return c.instants[i-1], missed, true
	}
	if c.next >= len(c.instants) {
		return time.Time{}, 0, false
	}
	due = c.instants[c.next]
	c.next++
	return due, 0, true
}

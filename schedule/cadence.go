package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrBadCadence signals a cadence expression the grammar cannot parse.
var ErrBadCadence = errors.New("schedule: invalid cadence expression")

// Cadence is the small recurring-trigger grammar: a time of day plus an
// optional set of weekdays. An empty weekday set means every day.
type Cadence struct {
	Hour    int
	Minute  int
	Days    []time.Weekday
	rawDays map[time.Weekday]bool
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// ParseCadence parses expressions of the form "HH:MM" or "HH:MM wed,sat".
// Unparseable input is rejected here, at configuration time, never at fire time.
func ParseCadence(expr string) (Cadence, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) == 0 || len(fields) > 2 {
		return Cadence{}, fmt.Errorf("%w: %q", ErrBadCadence, expr)
	}

	hm := strings.Split(fields[0], ":")
	if len(hm) != 2 {
		return Cadence{}, fmt.Errorf("%w: time of day %q", ErrBadCadence, fields[0])
	}
	hour, err := strconv.Atoi(hm[0])
	if err != nil || hour < 0 || hour > 23 {
		return Cadence{}, fmt.Errorf("%w: hour %q", ErrBadCadence, hm[0])
	}
	minute, err := strconv.Atoi(hm[1])
	if err != nil || minute < 0 || minute > 59 {
		return Cadence{}, fmt.Errorf("%w: minute %q", ErrBadCadence, hm[1])
	}

	c := Cadence{Hour: hour, Minute: minute}
	if len(fields) == 2 {
		seen := make(map[time.Weekday]bool, 7)
		for _, name := range strings.Split(fields[1], ",") {
			day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
			if !ok {
				return Cadence{}, fmt.Errorf("%w: weekday %q", ErrBadCadence, name)
			}
			if !seen[day] {
				seen[day] = true
				c.Days = append(c.Days, day)
			}
		}
		sort.Slice(c.Days, func(i, j int) bool { return c.Days[i] < c.Days[j] })
	}
	c.rawDays = daySet(c.Days)
	return c, nil
}

// DefaultCadence derives a trigger from a processing period when the policy
// supplies no explicit expression: daily periods fire every day at 03:00,
// longer periods fire on weekdays spaced periodDays apart starting Wednesday.
func DefaultCadence(periodDays int) Cadence {
	c := Cadence{Hour: 3, Minute: 0}
	if periodDays <= 1 {
		c.rawDays = daySet(nil)
		return c
	}
	if periodDays > 7 {
		periodDays = 7
	}
	for offset := 0; offset < 7; offset += periodDays {
		c.Days = append(c.Days, time.Weekday((int(time.Wednesday)+offset)%7))
	}
	sort.Slice(c.Days, func(i, j int) bool { return c.Days[i] < c.Days[j] })
	c.rawDays = daySet(c.Days)
	return c
}

// Next returns the first fire time strictly after the given instant.
func (c Cadence) Next(after time.Time) time.Time {
	days := c.rawDays
	if days == nil {
		days = daySet(c.Days)
	}
	candidate := time.Date(after.Year(), after.Month(), after.Day(), c.Hour, c.Minute, 0, 0, after.Location())
	for i := 0; i < 8; i++ {
		if candidate.After(after) && days[candidate.Weekday()] {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func (c Cadence) String() string {
	if len(c.Days) == 0 {
		return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
	}
	names := make([]string, 0, len(c.Days))
	for _, d := range c.Days {
		names = append(names, strings.ToLower(d.String()[:3]))
	}
	return fmt.Sprintf("%02d:%02d %s", c.Hour, c.Minute, strings.Join(names, ","))
}

func daySet(days []time.Weekday) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, 7)
	if len(days) == 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			set[d] = true
		}
		return set
	}
	for _, d := range days {
		set[d] = true
	}
	return set
}

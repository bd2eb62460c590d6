// Package schedule translates booking jobs into cron triggers. Jobs name the
// weekdays the user wants a seat on; because the portal only opens a booking
// window a fixed number of days ahead, the trigger has to fire that many
// days earlier.
package schedule

import (
	"errors"
	"fmt"
	"strings"
)

// Weekday counts Monday as 0 through Sunday as 6, matching the cron day
// names rather than time.Weekday.
type Weekday int

const (
	Mon Weekday = iota
	Tue
	Wed
	Thu
	Fri
	Sat
	Sun
)

var dayNames = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

func (d Weekday) String() string {
	if d < Mon || d > Sun {
		return fmt.Sprintf("weekday(%d)", int(d))
	}
	return dayNames[d]
}

// DaySet is a set of weekdays, bit i holding weekday i.
type DaySet uint8

func (s DaySet) Has(d Weekday) bool { return s&(1<<uint(d)) != 0 }

func (s DaySet) With(d Weekday) DaySet { return s | 1<<uint(d) }

func (s DaySet) Empty() bool { return s == 0 }

// Days lists the set in Monday-to-Sunday order.
func (s DaySet) Days() []Weekday {
	var days []Weekday
	for d := Mon; d <= Sun; d++ {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

// String renders the canonical comma-joined form, always in Monday-to-Sunday
// order regardless of how the set was written down.
func (s DaySet) String() string {
	var names []string
	for _, d := range s.Days() {
		names = append(names, d.String())
	}
	return strings.Join(names, ",")
}

// ParseDays reads a comma-separated weekday list like "mon,wed,fri". Tokens
// that are not a known three-letter abbreviation are dropped; whether the
// remainder is usable is the caller's call.
func ParseDays(csv string) DaySet {
	var set DaySet
	for _, tok := range strings.Split(csv, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		for i, name := range dayNames {
			if tok == name {
				set = set.With(Weekday(i))
				break
			}
		}
	}
	return set
}

// Shift moves every day in the set back by offset days, wrapping around the
// week. A negative offset shifts forward, which is how the translation is
// undone.
func (s DaySet) Shift(offset int) DaySet {
	var out DaySet
	for _, d := range s.Days() {
		shifted := Weekday((((int(d) - offset) % 7) + 7) % 7)
		out = out.With(shifted)
	}
	return out
}

// ErrNoDays means a recurring job's weekday list contained nothing usable.
// Scheduling such a job anyway would silently never fire, so translation
// refuses instead.
var ErrNoDays = errors.New("no valid weekdays")

// Trigger is a concrete fire rule: these weekdays, this wall-clock time.
type Trigger struct {
	Days   DaySet
	Hour   int
	Minute int
}

// Translate computes when a recurring job must fire so that booking the
// portal's window, offset days wide, lands on the requested target days.
func Translate(targetDays string, offset, hour, minute int) (Trigger, error) {
	if hour < 0 || hour > 23 {
		return Trigger{}, fmt.Errorf("trigger hour %d out of range", hour)
	}
	if minute < 0 || minute > 59 {
		return Trigger{}, fmt.Errorf("trigger minute %d out of range", minute)
	}
	days := ParseDays(targetDays)
	if days.Empty() {
		return Trigger{}, fmt.Errorf("%w in %q", ErrNoDays, targetDays)
	}
	return Trigger{Days: days.Shift(offset), Hour: hour, Minute: minute}, nil
}

// CronSpec renders the trigger in standard five-field cron syntax.
func (t Trigger) CronSpec() string {
	return fmt.Sprintf("%d %d * * %s", t.Minute, t.Hour, t.Days)
}

/*
rules.go - Weekly demand rules

PURPOSE:
  Operators think in ranges ("weekday evenings are high demand"), the
  engine looks up single (day, time) entries. A WeeklyRule covers a set of
  days and a [From, Until) range of start times; ExpandSchedule turns the
  rules into one generic.ScheduleSlot per covered pair.

OVERRIDES:
  Rules are applied in order and a later rule replaces an earlier one for
  the same pair. A broad default followed by narrow exceptions reads
  naturally:

    {AllWeek, "", "",      "low"}
    {Weekdays, "17:00", "", "high"}

  A (day, time) pair that no rule covers gets no entry, and booking it fails
  with generic.ErrUnschedulableSlot.

SEE ALSO:
  - policies.go: The standard facility rules
  - generic/schedule.go: Lookup structure built from the expanded slots
*/
package courts

import (
	"fmt"
	"time"

	"github.com/warp/court-engine/generic"
)

// WeeklyRule assigns Demand to slots on Days that start in [From, Until).
// An empty From means start of day; an empty Until means end of day.
type WeeklyRule struct {
	Days   []int
	From   string
	Until  string
	Demand string
}

// Matches reports whether the rule covers the slot.
// HH:MM strings compare correctly as text.
func (r WeeklyRule) Matches(day int, slot string) bool {
	if !containsDay(r.Days, day) {
		return false
	}
	if r.From != "" && slot < r.From {
		return false
	}
	if r.Until != "" && slot >= r.Until {
		return false
	}
	return true
}

func (r WeeklyRule) validate() error {
	if len(r.Days) == 0 {
		return fmt.Errorf("no days")
	}
	for _, d := range r.Days {
		if d < Monday || d > Sunday {
			return fmt.Errorf("day %d out of range", d)
		}
	}
	for _, bound := range []string{r.From, r.Until} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse(generic.TimeSlotLayout, bound); err != nil {
			return fmt.Errorf("bad time %q", bound)
		}
	}
	if r.From != "" && r.Until != "" && r.Until <= r.From {
		return fmt.Errorf("empty range %s-%s", r.From, r.Until)
	}
	return nil
}

// DemandCode returns the demand code of the last rule covering the slot.
func (c Catalog) DemandCode(day int, slot string) (string, bool) {
	code, found := "", false
	for _, r := range c.Rules {
		if r.Matches(day, slot) {
			code, found = r.Demand, true
		}
	}
	return code, found
}

// ExpandSchedule resolves every (day, slot) pair against the rules.
// ids maps demand codes to stored demand class IDs.
func ExpandSchedule(c Catalog, ids map[string]generic.DemandClassID) ([]generic.ScheduleSlot, error) {
	var out []generic.ScheduleSlot
	for day := Monday; day <= Sunday; day++ {
		for _, slot := range c.Slots() {
			code, ok := c.DemandCode(day, slot)
			if !ok {
				continue
			}
			id, ok := ids[code]
			if !ok {
				return nil, fmt.Errorf("%w: %q", generic.ErrDemandNotFound, code)
			}
			out = append(out, generic.ScheduleSlot{DayOfWeek: day, StartTime: slot, DemandClassID: id})
		}
	}
	return out, nil
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

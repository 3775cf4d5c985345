package generic

import (
	"context"
	"fmt"
	"sort"
	"time"
)

type scheduleKey struct {
	day  int
	time string
}

// DemandSchedule is the static weekly template (day, time) -> demand class.
// It is loaded once and never mutated; editing the template is an admin
// concern handled at bootstrap.
type DemandSchedule struct {
	slots map[scheduleKey]DemandClassID
}

// NewDemandSchedule builds a schedule from template entries.
// Later entries for the same (day, time) replace earlier ones.
func NewDemandSchedule(entries []ScheduleSlot) *DemandSchedule {
	s := &DemandSchedule{slots: make(map[scheduleKey]DemandClassID, len(entries))}
	for _, e := range entries {
		s.slots[scheduleKey{day: e.DayOfWeek, time: e.StartTime}] = e.DemandClassID
	}
	return s
}

// LoadDemandSchedule reads the weekly template from the store.
func LoadDemandSchedule(ctx context.Context, store PricingStore) (*DemandSchedule, error) {
	entries, err := store.ListScheduleSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("load demand schedule: %w", err)
	}
	return NewDemandSchedule(entries), nil
}

// DemandFor looks up the demand class for a weekday (0 = Monday) and "HH:MM".
func (s *DemandSchedule) DemandFor(dayOfWeek int, timeOfDay string) (DemandClassID, bool) {
	id, ok := s.slots[scheduleKey{day: dayOfWeek, time: timeOfDay}]
	return id, ok
}

// DemandAt looks up the demand class for an instant, read as wall-clock time in loc.
func (s *DemandSchedule) DemandAt(t time.Time, loc *time.Location) (DemandClassID, bool) {
	lt := t.In(loc)
	return s.DemandFor(DayOfWeek(lt), lt.Format(TimeSlotLayout))
}

// Len returns the number of template entries.
func (s *DemandSchedule) Len() int { return len(s.slots) }

// Entries returns the template ordered by day then time.
func (s *DemandSchedule) Entries() []ScheduleSlot {
	out := make([]ScheduleSlot, 0, len(s.slots))
	for k, id := range s.slots {
		out = append(out, ScheduleSlot{DayOfWeek: k.day, StartTime: k.time, DemandClassID: id})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

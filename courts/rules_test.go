package courts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/court-engine/generic"
)

var testIDs = map[string]generic.DemandClassID{DemandHigh: 1, DemandMedium: 2, DemandLow: 3}

func demandOf(t *testing.T, slots []generic.ScheduleSlot, day int, start string) generic.DemandClassID {
	t.Helper()
	for _, s := range slots {
		if s.DayOfWeek == day && s.StartTime == start {
			return s.DemandClassID
		}
	}
	t.Fatalf("no schedule entry for %s %s", DayName(day), start)
	return 0
}

func TestStandardCatalog_ExpandsToFullWeek(t *testing.T) {
	c := StandardCatalog()
	require.NoError(t, c.Validate())

	slots, err := ExpandSchedule(c, testIDs)
	require.NoError(t, err)
	assert.Len(t, slots, 70)

	tests := []struct {
		day   int
		start string
		want  string
	}{
		{Monday, "08:00", DemandLow},
		{Thursday, "15:30", DemandLow},
		{Thursday, "17:00", DemandHigh},
		{Friday, "21:30", DemandHigh},
		{Saturday, "08:00", DemandHigh},
		{Saturday, "21:30", DemandHigh},
		{Sunday, "15:30", DemandHigh},
		{Sunday, "17:00", DemandLow},
	}
	for _, tt := range tests {
		t.Run(DayName(tt.day)+" "+tt.start, func(t *testing.T) {
			assert.Equal(t, testIDs[tt.want], demandOf(t, slots, tt.day, tt.start))
		})
	}
}

func TestStandardCatalog_Courts(t *testing.T) {
	c := StandardCatalog()
	require.Len(t, c.Courts, 8)
	for _, court := range c.Courts {
		assert.Equal(t, court.ID >= 5, court.Covered, "court %d", court.ID)
	}
}

func TestWeeklyRule_LaterRuleOverrides(t *testing.T) {
	c := Catalog{
		SlotTimes: []string{"08:00", "17:00"},
		Rules: []WeeklyRule{
			{Days: AllWeek, Demand: DemandLow},
			{Days: []int{Friday}, From: "17:00", Demand: DemandHigh},
		},
	}

	code, ok := c.DemandCode(Friday, "17:00")
	require.True(t, ok)
	assert.Equal(t, DemandHigh, code)

	code, ok = c.DemandCode(Friday, "08:00")
	require.True(t, ok)
	assert.Equal(t, DemandLow, code)
}

func TestExpandSchedule_UncoveredSlotsAreSkipped(t *testing.T) {
	c := Catalog{Rules: []WeeklyRule{{Days: []int{Monday}, From: "09:30", Until: "12:30", Demand: DemandLow}}}

	slots, err := ExpandSchedule(c, testIDs)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "09:30", slots[0].StartTime)
	assert.Equal(t, "11:00", slots[1].StartTime)
}

func TestExpandSchedule_UnknownDemandCode(t *testing.T) {
	c := Catalog{Rules: []WeeklyRule{{Days: []int{Monday}, Demand: "peak"}}}

	_, err := ExpandSchedule(c, testIDs)
	assert.ErrorIs(t, err, generic.ErrDemandNotFound)
}

func TestCatalog_Validate(t *testing.T) {
	valid := func() Catalog {
		return Catalog{
			Courts: []CourtSpec{{ID: 1, Name: "Court 1"}},
			Demand: []DemandSpec{{Code: DemandLow}},
			Rules:  []WeeklyRule{{Days: []int{Monday}, Demand: DemandLow}},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Catalog)
	}{
		{"no courts", func(c *Catalog) { c.Courts = nil }},
		{"zero court id", func(c *Catalog) { c.Courts[0].ID = 0 }},
		{"duplicate court", func(c *Catalog) { c.Courts = append(c.Courts, c.Courts[0]) }},
		{"duplicate demand", func(c *Catalog) { c.Demand = append(c.Demand, c.Demand[0]) }},
		{"bad slot time", func(c *Catalog) { c.SlotTimes = []string{"8am"} }},
		{"day out of range", func(c *Catalog) { c.Rules[0].Days = []int{7} }},
		{"rule without days", func(c *Catalog) { c.Rules[0].Days = nil }},
		{"unknown demand", func(c *Catalog) { c.Rules[0].Demand = DemandHigh }},
		{"admin without email", func(c *Catalog) { c.Admin = &AdminSpec{Name: "admin"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidCatalog)
		})
	}
}

func TestParseDay(t *testing.T) {
	day, ok := ParseDay("sunday")
	assert.True(t, ok)
	assert.Equal(t, Sunday, day)

	day, ok = ParseDay("wed")
	assert.True(t, ok)
	assert.Equal(t, Wednesday, day)

	_, ok = ParseDay("someday")
	assert.False(t, ok)
	assert.Equal(t, "day(9)", DayName(9))
}

// Package courts implements the padel facility on top of the generic
// reservation engine: its catalog of courts and prices, the weekly demand
// rules, bootstrap seeding and the request-facing Service.
package courts

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/court-engine/generic"
)

// ErrInvalidCatalog is returned when a catalog fails validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Demand class codes used by the standard facility
const (
	DemandHigh   = "high"
	DemandMedium = "medium"
	DemandLow    = "low"
)

// Days of the week, 0 = Monday as in generic.DayOfWeek
const (
	Monday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var (
	Weekdays = []int{Monday, Tuesday, Wednesday, Thursday, Friday}
	AllWeek  = []int{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
)

var dayNames = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// DayName returns the lowercase English name of a day index.
func DayName(day int) string {
	if day < Monday || day > Sunday {
		return fmt.Sprintf("day(%d)", day)
	}
	return dayNames[day]
}

// ParseDay accepts a lowercase day name ("monday") or its first three letters.
func ParseDay(name string) (int, bool) {
	for i, n := range dayNames {
		if name == n || name == n[:3] {
			return i, true
		}
	}
	return 0, false
}

// =============================================================================
// CATALOG - Everything needed to bootstrap a facility
// =============================================================================

type CourtSpec struct {
	ID      generic.ResourceID
	Name    string
	Covered bool
}

// DemandSpec is a demand class with the price it starts out with.
type DemandSpec struct {
	Code        string
	Description string
	Amount      decimal.Decimal
}

type AdminSpec struct {
	Name    string
	Surname string
	Email   string
}

// Catalog describes a facility. Seed() turns it into store rows.
type Catalog struct {
	Courts     []CourtSpec
	Demand     []DemandSpec
	PricesFrom time.Time // start of the initial price versions
	SlotTimes  []string  // "HH:MM" start times offered every day
	Rules      []WeeklyRule
	Admin      *AdminSpec
}

// Validate checks the catalog is internally consistent.
func (c Catalog) Validate() error {
	if len(c.Courts) == 0 {
		return fmt.Errorf("%w: no courts", ErrInvalidCatalog)
	}
	seenCourt := make(map[generic.ResourceID]bool)
	for _, court := range c.Courts {
		if court.ID <= 0 {
			return fmt.Errorf("%w: court %q has no positive id", ErrInvalidCatalog, court.Name)
		}
		if seenCourt[court.ID] {
			return fmt.Errorf("%w: duplicate court id %d", ErrInvalidCatalog, court.ID)
		}
		seenCourt[court.ID] = true
	}

	codes := make(map[string]bool)
	for _, d := range c.Demand {
		if d.Code == "" {
			return fmt.Errorf("%w: demand class without code", ErrInvalidCatalog)
		}
		if codes[d.Code] {
			return fmt.Errorf("%w: duplicate demand class %q", ErrInvalidCatalog, d.Code)
		}
		if d.Amount.IsNegative() {
			return fmt.Errorf("%w: demand class %q has a negative price", ErrInvalidCatalog, d.Code)
		}
		codes[d.Code] = true
	}

	for _, slot := range c.SlotTimes {
		if _, err := time.Parse(generic.TimeSlotLayout, slot); err != nil {
			return fmt.Errorf("%w: slot time %q", ErrInvalidCatalog, slot)
		}
	}

	for i, r := range c.Rules {
		if err := r.validate(); err != nil {
			return fmt.Errorf("%w: rule %d: %v", ErrInvalidCatalog, i, err)
		}
		if !codes[r.Demand] {
			return fmt.Errorf("%w: rule %d references unknown demand class %q", ErrInvalidCatalog, i, r.Demand)
		}
	}

	if c.Admin != nil && c.Admin.Email == "" {
		return fmt.Errorf("%w: admin without email", ErrInvalidCatalog)
	}
	return nil
}

// Slots returns the catalog's slot times, defaulting to the standard grid.
func (c Catalog) Slots() []string {
	if len(c.SlotTimes) == 0 {
		return generic.StandardSlotTimes
	}
	return c.SlotTimes
}

/*
policies.go - Pre-built facility configuration

PURPOSE:
  Provides the ready-to-use catalog of the standard padel facility that
  `courts seed` installs when no catalog file is given.

STANDARD FACILITY:
  Courts:   8, courts 5-8 are covered
  Prices:   high 30.00, medium 20.00, low 10.00 from 2025-01-01 UTC
  Slots:    10 daily starts, 08:00 to 21:30, 90 minutes each
  Demand:
    Monday-Friday   before 17:00  low
    Monday-Friday   from 17:00    high
    Saturday        all day       high
    Sunday          before 17:00  high
    Sunday          from 17:00    low
  Admin:    admin@example.com with every permission

  The medium class is priced but unused by the default rules; operators
  map it onto slots through a catalog file.

CUSTOMIZATION:
  config := courts.StandardCatalog()
  config.Courts = config.Courts[:4]
  courts.Seed(ctx, store, config, nil)

SEE ALSO:
  - factory.go: The same catalog as JSON
  - factory/catalog.go: JSON-based catalog creation
*/
package courts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/court-engine/generic"
)

const (
	standardCourtCount = 8
	firstCoveredCourt  = 5
	peakStart          = "17:00"
)

// StandardPricesFrom is when the initial price versions start.
var StandardPricesFrom = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// StandardCatalog returns the default facility.
func StandardCatalog() Catalog {
	courts := make([]CourtSpec, 0, standardCourtCount)
	for i := 1; i <= standardCourtCount; i++ {
		courts = append(courts, CourtSpec{
			ID:      generic.ResourceID(i),
			Name:    fmt.Sprintf("Court %d", i),
			Covered: i >= firstCoveredCourt,
		})
	}

	return Catalog{
		Courts: courts,
		Demand: []DemandSpec{
			{Code: DemandHigh, Description: "High demand", Amount: decimal.NewFromInt(30)},
			{Code: DemandMedium, Description: "Medium demand", Amount: decimal.NewFromInt(20)},
			{Code: DemandLow, Description: "Low demand", Amount: decimal.NewFromInt(10)},
		},
		PricesFrom: StandardPricesFrom,
		SlotTimes:  append([]string(nil), generic.StandardSlotTimes...),
		Rules:      StandardRules(),
		Admin:      &AdminSpec{Name: "admin", Email: "admin@example.com"},
	}
}

// StandardRules returns the default weekly demand rules.
func StandardRules() []WeeklyRule {
	return []WeeklyRule{
		{Days: Weekdays, Until: peakStart, Demand: DemandLow},
		{Days: Weekdays, From: peakStart, Demand: DemandHigh},
		{Days: []int{Saturday}, Demand: DemandHigh},
		{Days: []int{Sunday}, Until: peakStart, Demand: DemandHigh},
		{Days: []int{Sunday}, From: peakStart, Demand: DemandLow},
	}
}

/*
Package factory provides JSON to Go facility catalog conversion.

PURPOSE:
  Converts JSON catalog definitions into courts.Catalog values so a facility
  (its courts, demand classes, initial prices and weekly demand rules) can
  be configured without code changes. `courts seed --catalog file.json`
  reads its input through ParseCatalog.

JSON SCHEMA:
  {
    "courts": [
      {"id": 1, "name": "Court 1", "covered": false}
    ],
    "demand_classes": [
      {"code": "high", "description": "High demand", "amount": "30.00"}
    ],
    "prices_from": "2025-01-01",
    "slot_times": ["08:00", "09:30"],
    "rules": [
      {"days": ["monday", "tue"], "until": "17:00", "demand": "low"},
      {"days": ["saturday"], "demand": "high"}
    ],
    "admin": {"name": "admin", "email": "admin@example.com"}
  }

DEFAULTS:
  - slot_times omitted: the standard 08:00-21:30 grid
  - prices_from omitted: 2025-01-01 UTC
  - rule from/until omitted: start/end of day
  - admin omitted: no admin user is created

USAGE:
  catalog, err := factory.ParseCatalog(jsonString)

  // From the built-in preset
  catalog, err := factory.ParseCatalog(courts.StandardCatalogJSON())

SEE ALSO:
  - courts/policies.go: Go-based catalog
  - courts/seed.go: Installs a catalog
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/court-engine/courts"
	"github.com/warp/court-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a facility.
type CatalogJSON struct {
	Courts        []CourtJSON  `json:"courts"`
	DemandClasses []DemandJSON `json:"demand_classes"`
	PricesFrom    string       `json:"prices_from,omitempty"` // YYYY-MM-DD, UTC
	SlotTimes     []string     `json:"slot_times,omitempty"`
	Rules         []RuleJSON   `json:"rules"`
	Admin         *AdminJSON   `json:"admin,omitempty"`
}

type CourtJSON struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Covered bool   `json:"covered,omitempty"`
}

// DemandJSON carries the initial price as a decimal string.
type DemandJSON struct {
	Code        string          `json:"code"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

type RuleJSON struct {
	Days   []string `json:"days"` // monday..sunday or mon..sun
	From   string   `json:"from,omitempty"`
	Until  string   `json:"until,omitempty"`
	Demand string   `json:"demand"`
}

type AdminJSON struct {
	Name    string `json:"name"`
	Surname string `json:"surname,omitempty"`
	Email   string `json:"email"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseCatalog converts a JSON catalog into a validated courts.Catalog.
func ParseCatalog(jsonStr string) (courts.Catalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return courts.Catalog{}, fmt.Errorf("invalid catalog JSON: %w", err)
	}

	c := courts.Catalog{
		PricesFrom: courts.StandardPricesFrom,
		SlotTimes:  cj.SlotTimes,
	}

	if cj.PricesFrom != "" {
		from, err := time.ParseInLocation(generic.DateLayout, cj.PricesFrom, time.UTC)
		if err != nil {
			return courts.Catalog{}, fmt.Errorf("%w: prices_from %q", courts.ErrInvalidCatalog, cj.PricesFrom)
		}
		c.PricesFrom = from
	}

	for _, court := range cj.Courts {
		name := court.Name
		if name == "" {
			name = fmt.Sprintf("Court %d", court.ID)
		}
		c.Courts = append(c.Courts, courts.CourtSpec{
			ID:      generic.ResourceID(court.ID),
			Name:    name,
			Covered: court.Covered,
		})
	}

	for _, d := range cj.DemandClasses {
		c.Demand = append(c.Demand, courts.DemandSpec{
			Code:        strings.ToLower(d.Code),
			Description: d.Description,
			Amount:      d.Amount,
		})
	}

	for i, r := range cj.Rules {
		rule := courts.WeeklyRule{From: r.From, Until: r.Until, Demand: strings.ToLower(r.Demand)}
		for _, name := range r.Days {
			day, ok := courts.ParseDay(strings.ToLower(name))
			if !ok {
				return courts.Catalog{}, fmt.Errorf("%w: rule %d: unknown day %q", courts.ErrInvalidCatalog, i, name)
			}
			rule.Days = append(rule.Days, day)
		}
		c.Rules = append(c.Rules, rule)
	}

	if cj.Admin != nil {
		c.Admin = &courts.AdminSpec{Name: cj.Admin.Name, Surname: cj.Admin.Surname, Email: cj.Admin.Email}
	}

	if err := c.Validate(); err != nil {
		return courts.Catalog{}, err
	}
	return c, nil
}

// LoadCatalog reads and parses a catalog file.
func LoadCatalog(path string) (courts.Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return courts.Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(string(raw))
}

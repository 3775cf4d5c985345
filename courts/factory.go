/*
Package courts provides facility catalog factory functions.

These functions create JSON catalog definitions. They construct JSON
strings directly to avoid an import cycle with the factory package.

USAGE:
  import "github.com/warp/court-engine/courts"

  jsonStr := courts.StandardCatalogJSON()
  catalog, err := factory.ParseCatalog(jsonStr)
*/
package courts

import (
	"encoding/json"

	"github.com/warp/court-engine/generic"
)

// StandardCatalogJSON returns JSON for the standard facility.
func StandardCatalogJSON() string {
	return CatalogJSON(StandardCatalog())
}

// CatalogJSON renders a catalog in the factory's JSON schema.
func CatalogJSON(c Catalog) string {
	courts := make([]map[string]interface{}, 0, len(c.Courts))
	for _, court := range c.Courts {
		courts = append(courts, map[string]interface{}{
			"id":      int64(court.ID),
			"name":    court.Name,
			"covered": court.Covered,
		})
	}

	demand := make([]map[string]interface{}, 0, len(c.Demand))
	for _, d := range c.Demand {
		demand = append(demand, map[string]interface{}{
			"code":        d.Code,
			"description": d.Description,
			"amount":      d.Amount.StringFixed(2),
		})
	}

	rules := make([]map[string]interface{}, 0, len(c.Rules))
	for _, r := range c.Rules {
		days := make([]string, 0, len(r.Days))
		for _, d := range r.Days {
			days = append(days, DayName(d))
		}
		rule := map[string]interface{}{
			"days":   days,
			"demand": r.Demand,
		}
		if r.From != "" {
			rule["from"] = r.From
		}
		if r.Until != "" {
			rule["until"] = r.Until
		}
		rules = append(rules, rule)
	}

	cj := map[string]interface{}{
		"courts":         courts,
		"demand_classes": demand,
		"prices_from":    c.PricesFrom.UTC().Format(generic.DateLayout),
		"slot_times":     c.Slots(),
		"rules":          rules,
	}
	if c.Admin != nil {
		cj["admin"] = map[string]interface{}{
			"name":    c.Admin.Name,
			"surname": c.Admin.Surname,
			"email":   c.Admin.Email,
		}
	}
	b, _ := json.MarshalIndent(cj, "", "  ")
	return string(b)
}

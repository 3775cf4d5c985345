/*
availability.go - Bookable slots for a calendar day

PURPOSE:
  Combines resource inventory, the weekly demand template, price history and
  existing bookings into the list of slots a user can still book on a date.

ALGORITHM:
  1. Resources that are not under maintenance
  2. The fixed list of standard slot start times (90 minutes each)
  3. Active bookings starting on that date -> occupied set of (resource, start)
  4. For every free (resource, slot): demand class from the template for the
     date's weekday, then the price in effect at the slot's full start instant
  5. Emit the slot. Price stays nil when nothing resolves: that is a
     configuration gap, never silently defaulted.

OCCUPIED SLOTS:
  Booked slots are omitted from the result, not returned as unavailable.

SEE ALSO:
  - pricing.go: ResolveAt
  - schedule.go: DemandSchedule
*/
package generic

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SlotOffer is one bookable (resource, slot) pair.
type SlotOffer struct {
	ResourceID    ResourceID
	Start         time.Time
	End           time.Time
	DemandClassID DemandClassID // zero when the template has no entry
	Price         *decimal.Decimal
}

type occupiedKey struct {
	resource ResourceID
	start    int64
}

// Availability resolves open slots for a date.
type Availability struct {
	store     Store
	schedule  *DemandSchedule
	location  *time.Location
	slotTimes []string
}

func NewAvailability(store Store, schedule *DemandSchedule, loc *time.Location) *Availability {
	if loc == nil {
		loc = time.UTC
	}
	return &Availability{
		store:     store,
		schedule:  schedule,
		location:  loc,
		slotTimes: StandardSlotTimes,
	}
}

// AvailableSlots lists free slots on date ("YYYY-MM-DD"), ordered by resource
// then start time.
func (a *Availability) AvailableSlots(ctx context.Context, date string) ([]SlotOffer, error) {
	day, err := ParseDate(date, a.location)
	if err != nil {
		return nil, err
	}

	resources, err := a.store.ListResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}

	dayStart, dayEnd := DayBounds(day, a.location)
	bookings, err := a.store.ActiveBookingsBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	occupied := make(map[occupiedKey]struct{}, len(bookings))
	for _, b := range bookings {
		occupied[occupiedKey{resource: b.ResourceID, start: b.Start.Unix()}] = struct{}{}
	}

	// Price history per demand class, loaded once per request
	history := make(map[DemandClassID][]PriceVersion)
	weekday := DayOfWeek(day)

	var offers []SlotOffer
	for _, r := range resources {
		if !r.Bookable() {
			continue
		}
		for _, slot := range a.slotTimes {
			start, err := SlotStart(date, slot, a.location)
			if err != nil {
				return nil, err
			}
			if _, taken := occupied[occupiedKey{resource: r.ID, start: start.Unix()}]; taken {
				continue
			}

			offer := SlotOffer{
				ResourceID: r.ID,
				Start:      start,
				End:        start.Add(SlotDuration),
			}
			if demand, ok := a.schedule.DemandFor(weekday, slot); ok {
				offer.DemandClassID = demand
				versions, loaded := history[demand]
				if !loaded {
					versions, err = a.store.PriceVersions(ctx, demand)
					if err != nil {
						return nil, fmt.Errorf("load price history: %w", err)
					}
					history[demand] = versions
				}
				if v, ok := ResolveAt(versions, start); ok {
					amount := v.Amount
					offer.Price = &amount
				}
			}
			offers = append(offers, offer)
		}
	}
	return offers, nil
}

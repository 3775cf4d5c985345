/*
pricing.go - Versioned price history per demand class

PURPOSE:
  The PriceLedger answers "which price was (or will be) in effect for this
  demand class at instant T?" and supersedes the current price with a new
  one from a given instant.

HISTORY MODEL:
  Each demand class owns an append-only list of PriceVersions:

    [2025-01-01, 2026-01-16) 20.00   (historical, Active = false)
    [2026-01-16, open)       30.00   (current, Active = true)

  Versions are never deleted. A booking made on 2026-01-10 for a slot on
  2026-01-15 keeps pointing at the 20.00 version forever.

SUPERSESSION:
  Update() is a two-step transition executed in ONE store transaction:
    1. close the current version: End = effectiveFrom, Active = false
    2. insert {Start: effectiveFrom, End: nil, Active: true}
  A partial application would leave two current versions or a gap, so
  readers must never observe the intermediate state.

FUTURE-DATED CHANGES:
  Because resolution is keyed by the slot's own start instant, a price
  change effective next week is already visible to availability queries for
  next week, and never applied retroactively to earlier slots.

SEE ALSO:
  - availability.go: Resolves prices per slot
  - booking.go: Snapshots the resolved version into the booking
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ResolveAt picks the version in effect at the given instant.
// Versions with Start <= at < End qualify. If more than one qualifies (which
// the partition invariant forbids) the latest Start wins.
func ResolveAt(versions []PriceVersion, at time.Time) (PriceVersion, bool) {
	var (
		best  PriceVersion
		found bool
	)
	for _, v := range versions {
		if !v.Covers(at) {
			continue
		}
		if !found || v.Start.After(best.Start) {
			best = v
			found = true
		}
	}
	return best, found
}

// PriceLedger resolves and supersedes demand class prices.
type PriceLedger struct {
	store Store
	clock Clock
}

func NewPriceLedger(store Store, clock Clock) *PriceLedger {
	if clock == nil {
		clock = SystemClock
	}
	return &PriceLedger{store: store, clock: clock}
}

// In returns a ledger bound to the given store, typically a transaction.
func (l *PriceLedger) In(tx Store) *PriceLedger {
	cp := *l
	cp.store = tx
	return &cp
}

// Resolve returns the version of the demand class in effect at the instant.
// Returns ErrPriceNotFound when no version covers it.
func (l *PriceLedger) Resolve(ctx context.Context, demand DemandClassID, at time.Time) (PriceVersion, error) {
	versions, err := l.store.PriceVersions(ctx, demand)
	if err != nil {
		return PriceVersion{}, fmt.Errorf("load price history: %w", err)
	}
	v, ok := ResolveAt(versions, at)
	if !ok {
		return PriceVersion{}, fmt.Errorf("%w: demand class %d at %s", ErrPriceNotFound, demand, at.Format(time.RFC3339))
	}
	return v, nil
}

// Update supersedes the current price of a demand class from effectiveFrom on.
// Returns the new version ID.
func (l *PriceLedger) Update(ctx context.Context, demand DemandClassID, amount decimal.Decimal, effectiveFrom time.Time) (PriceVersionID, error) {
	if amount.IsNegative() {
		return 0, ErrInvalidAmount
	}
	// Stores keep whole seconds; compare what will be persisted
	effectiveFrom = effectiveFrom.UTC().Truncate(time.Second)

	var newID PriceVersionID
	err := l.store.WithTx(ctx, func(tx Store) error {
		current, err := tx.CurrentPriceVersion(ctx, demand)
		if err != nil {
			return err
		}
		if !effectiveFrom.After(current.Start) {
			return fmt.Errorf("%w: current starts %s", ErrInvalidEffectiveFrom, current.Start.Format(time.RFC3339))
		}

		// Step 1: close the current version
		if err := tx.ClosePriceVersion(ctx, current.ID, effectiveFrom); err != nil {
			return err
		}

		// Step 2: open the new one
		id, err := tx.InsertPriceVersion(ctx, PriceVersion{
			DemandClassID: demand,
			Amount:        amount,
			Start:         effectiveFrom,
			Active:        true,
			Description:   current.Description,
			CreatedAt:     l.clock.Now(),
		})
		if err != nil {
			return err
		}
		newID = id
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPriceNotFound) {
			return 0, fmt.Errorf("%w: no current price for demand class %d", ErrPriceNotFound, demand)
		}
		return 0, err
	}
	return newID, nil
}

// History returns every version of the demand class ordered by Start.
func (l *PriceLedger) History(ctx context.Context, demand DemandClassID) ([]PriceVersion, error) {
	return l.store.PriceVersions(ctx, demand)
}

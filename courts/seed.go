/*
seed.go - Idempotent facility bootstrap

PURPOSE:
  Installs a Catalog into an empty store and can be re-run safely against a
  populated one. Existing rows win: a court already under maintenance stays
  under maintenance, a demand class that already has prices keeps its
  history, an existing admin keeps its flags.

WHAT IS WRITTEN (one transaction):
  1. Courts missing by ID
  2. Demand classes missing by code
  3. An initial open price version for every class without history
  4. The weekly schedule expanded from the rules (upsert per entry)
  5. The admin user when missing by email

SEE ALSO:
  - policies.go: StandardCatalog
  - cmd/server/main.go: `seed` command
*/
package courts

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/court-engine/generic"
)

// SeedResult counts what a Seed run created.
type SeedResult struct {
	CourtsCreated        int
	DemandClassesCreated int
	PricesCreated        int
	ScheduleSlots        int
	AdminCreated         bool
}

// Seed installs the catalog. Safe to call repeatedly.
func Seed(ctx context.Context, store generic.Store, catalog Catalog, clock generic.Clock) (SeedResult, error) {
	if err := catalog.Validate(); err != nil {
		return SeedResult{}, err
	}
	if clock == nil {
		clock = generic.SystemClock
	}

	var res SeedResult
	err := store.WithTx(ctx, func(tx generic.Store) error {
		res = SeedResult{}
		now := clock.Now()

		for _, c := range catalog.Courts {
			_, err := tx.GetResource(ctx, c.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, generic.ErrResourceNotFound) {
				return err
			}
			if err := tx.SaveResource(ctx, generic.Resource{ID: c.ID, Name: c.Name, Covered: c.Covered}); err != nil {
				return fmt.Errorf("save court %d: %w", c.ID, err)
			}
			res.CourtsCreated++
		}

		existing, err := tx.ListDemandClasses(ctx)
		if err != nil {
			return err
		}
		ids := make(map[string]generic.DemandClassID, len(existing))
		for _, d := range existing {
			ids[d.Code] = d.ID
		}

		for _, spec := range catalog.Demand {
			id, ok := ids[spec.Code]
			if !ok {
				id, err = tx.SaveDemandClass(ctx, generic.DemandClass{Code: spec.Code, Description: spec.Description, Active: true})
				if err != nil {
					return fmt.Errorf("save demand class %q: %w", spec.Code, err)
				}
				ids[spec.Code] = id
				res.DemandClassesCreated++
			}

			history, err := tx.PriceVersions(ctx, id)
			if err != nil {
				return err
			}
			if len(history) > 0 {
				continue
			}
			if _, err := tx.InsertPriceVersion(ctx, generic.PriceVersion{
				DemandClassID: id,
				Amount:        spec.Amount,
				Start:         catalog.PricesFrom.UTC(),
				Active:        true,
				Description:   spec.Description,
				CreatedAt:     now,
			}); err != nil {
				return fmt.Errorf("initial price for %q: %w", spec.Code, err)
			}
			res.PricesCreated++
		}

		slots, err := ExpandSchedule(catalog, ids)
		if err != nil {
			return err
		}
		for _, s := range slots {
			if err := tx.SaveScheduleSlot(ctx, s); err != nil {
				return fmt.Errorf("save schedule %s %s: %w", DayName(s.DayOfWeek), s.StartTime, err)
			}
		}
		res.ScheduleSlots = len(slots)

		if catalog.Admin == nil {
			return nil
		}
		_, err = tx.GetUserByEmail(ctx, catalog.Admin.Email)
		if err == nil {
			return nil
		}
		if !errors.Is(err, generic.ErrUserNotFound) {
			return err
		}
		if _, err := tx.SaveUser(ctx, generic.User{
			Name:            catalog.Admin.Name,
			Surname:         catalog.Admin.Surname,
			Email:           catalog.Admin.Email,
			CanRent:         true,
			CanEditPrice:    true,
			CanEditSchedule: true,
			IsAdmin:         true,
			CreatedAt:       now,
		}); err != nil {
			return fmt.Errorf("save admin: %w", err)
		}
		res.AdminCreated = true
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	return res, nil
}

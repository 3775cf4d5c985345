/*
booking.go - Conflict-free reservation ledger

PURPOSE:
  Creates and cancels bookings while guaranteeing the core invariant.

INVARIANT:
  For any (ResourceID, Start) at most one booking with Cancelled = false.

  The check in Reserve() (look for an active booking first) only gives a
  friendlier error with the conflicting booking ID. Two concurrent requests
  can both pass that check; the store's partial unique index on
  (resource, start) WHERE NOT cancelled is what makes exactly one of them
  win. InsertBooking maps that violation to ErrSlotConflict, so all losers
  see the same error whether they lost at the check or at the constraint.

CREATE STEPS (one store transaction):
  1. Parse date + time slot into the start instant (facility time zone)
  2. Resource must exist and not be under maintenance
  3. Existing active booking at (resource, start) -> SlotConflictError
  4. Demand class from the weekly template -> ErrUnschedulableSlot
  5. Price in effect at the start instant -> ErrNoPriceConfigured
  6. Insert, snapshotting the price version ID and amount

CANCELLATION:
  Flips Cancelled only; the row, its price snapshot and history stay.
  Cancelling an already-cancelled booking is a no-op that returns the
  cancelled booking (changed = false), not an error.

SEE ALSO:
  - store.go: InsertBooking contract
  - courts/service.go: Wraps Reserve with task enqueueing
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BookingRequest is a reservation attempt for one slot.
type BookingRequest struct {
	ResourceID ResourceID
	Date       string // "YYYY-MM-DD"
	TimeSlot   string // "HH:MM"
	UserID     UserID
}

// BookingLedger owns booking creation and cancellation.
type BookingLedger struct {
	store    Store
	schedule *DemandSchedule
	clock    Clock
	location *time.Location
}

func NewBookingLedger(store Store, schedule *DemandSchedule, clock Clock, loc *time.Location) *BookingLedger {
	if clock == nil {
		clock = SystemClock
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BookingLedger{store: store, schedule: schedule, clock: clock, location: loc}
}

// In returns a ledger bound to the given store, typically a transaction.
func (l *BookingLedger) In(tx Store) *BookingLedger {
	cp := *l
	cp.store = tx
	return &cp
}

// Create reserves a slot atomically.
func (l *BookingLedger) Create(ctx context.Context, req BookingRequest) (Booking, error) {
	var booking Booking
	err := l.store.WithTx(ctx, func(tx Store) error {
		b, err := l.In(tx).Reserve(ctx, req)
		if err != nil {
			return err
		}
		booking = b
		return nil
	})
	return booking, err
}

// Reserve performs the check-and-insert against the ledger's store without
// opening a transaction of its own. Callers composing several writes (the
// booking plus its follow-up tasks) run it inside their WithTx.
func (l *BookingLedger) Reserve(ctx context.Context, req BookingRequest) (Booking, error) {
	start, err := SlotStart(req.Date, req.TimeSlot, l.location)
	if err != nil {
		return Booking{}, err
	}
	start = start.UTC()

	resource, err := l.store.GetResource(ctx, req.ResourceID)
	if err != nil {
		return Booking{}, err
	}
	if !resource.Bookable() {
		return Booking{}, fmt.Errorf("%w: resource %d", ErrResourceUnavailable, resource.ID)
	}

	existing, err := l.store.FindActiveBooking(ctx, req.ResourceID, start)
	switch {
	case err == nil:
		return Booking{}, &SlotConflictError{ResourceID: req.ResourceID, Start: start, ExistingID: existing.ID}
	case !errors.Is(err, ErrBookingNotFound):
		return Booking{}, fmt.Errorf("check slot: %w", err)
	}

	demand, ok := l.schedule.DemandAt(start, l.location)
	if !ok {
		return Booking{}, fmt.Errorf("%w: %s %s", ErrUnschedulableSlot, req.Date, req.TimeSlot)
	}

	versions, err := l.store.PriceVersions(ctx, demand)
	if err != nil {
		return Booking{}, fmt.Errorf("load price history: %w", err)
	}
	price, ok := ResolveAt(versions, start)
	if !ok {
		return Booking{}, fmt.Errorf("%w: demand class %d at %s", ErrNoPriceConfigured, demand, start.Format(time.RFC3339))
	}

	booking := Booking{
		Reference:      uuid.NewString(),
		UserID:         req.UserID,
		ResourceID:     req.ResourceID,
		Start:          start,
		End:            start.Add(SlotDuration),
		PriceVersionID: price.ID,
		PriceAmount:    price.Amount,
		CreatedAt:      l.clock.Now(),
	}
	id, err := l.store.InsertBooking(ctx, booking)
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			return Booking{}, &SlotConflictError{ResourceID: req.ResourceID, Start: start}
		}
		return Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	booking.ID = id
	return booking, nil
}

// Cancel cancels a booking owned by the user. The bool reports whether this
// call changed anything (false for a repeat cancel).
func (l *BookingLedger) Cancel(ctx context.Context, id BookingID, user UserID) (Booking, bool, error) {
	b, err := l.store.GetBooking(ctx, id)
	if err != nil {
		return Booking{}, false, err
	}
	// Someone else's booking looks exactly like a missing one
	if b.UserID != user {
		return Booking{}, false, fmt.Errorf("%w: %d", ErrBookingNotFound, id)
	}
	if b.Cancelled {
		return b, false, nil
	}

	now := l.clock.Now()
	if err := l.store.MarkBookingCancelled(ctx, id, now); err != nil {
		return Booking{}, false, fmt.Errorf("cancel booking: %w", err)
	}
	b.Cancelled = true
	b.CancelledAt = &now
	return b, true, nil
}

// ForUser lists a user's bookings newest first. Zero bounds are open.
func (l *BookingLedger) ForUser(ctx context.Context, user UserID, from, to time.Time) ([]Booking, error) {
	return l.store.BookingsByUser(ctx, user, from, to)
}

// Get returns a booking by ID.
func (l *BookingLedger) Get(ctx context.Context, id BookingID) (Booking, error) {
	return l.store.GetBooking(ctx, id)
}

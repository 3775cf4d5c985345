/*
store.go - Persistence interfaces for the reservation engine

PURPOSE:
  Defines the interface between the engine and the database. The store is
  the single source of truth for the booking uniqueness invariant: the
  application-level check in BookingLedger is an optimization, the store's
  constraint is the guarantee.

KEY INTERFACES:
  ResourceStore:     Courts and their maintenance flag
  PricingStore:      Demand classes, weekly template, price versions
  BookingStore:      Reservations (InsertBooking enforces uniqueness)
  TaskStore:         Scheduled task rows
  NotificationStore: Delivery attempt records
  UserStore:         Minimal user records
  Store:             All of the above plus WithTx

STORE CONTRACT:
  - InsertBooking MUST fail with ErrSlotConflict when another non-cancelled
    booking exists for (resource, start). Implementations back this with a
    partial unique index filtered on cancelled = false.
  - InsertPriceVersion MUST fail when a second open-ended version would exist
    for a demand class.
  - ClosePriceVersion MUST only close a version that is still open, and
    report ErrConcurrentModification otherwise.
  - WithTx runs fn atomically. If fn returns an error nothing is written.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (single writer)
  - store/postgres/postgres.go: PostgreSQL via pgx

SEE ALSO:
  - booking.go, pricing.go, tasks.go: Consumers of these interfaces
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// RESOURCES
// =============================================================================

type ResourceStore interface {
	// SaveResource inserts or updates a resource by ID.
	SaveResource(ctx context.Context, r Resource) error
	// GetResource returns ErrResourceNotFound when absent.
	GetResource(ctx context.Context, id ResourceID) (Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)
}

// =============================================================================
// PRICING - Demand classes, weekly template, price history
// =============================================================================

type PricingStore interface {
	// SaveDemandClass inserts (ID == 0) or updates a demand class.
	SaveDemandClass(ctx context.Context, d DemandClass) (DemandClassID, error)
	GetDemandClass(ctx context.Context, id DemandClassID) (DemandClass, error)
	ListDemandClasses(ctx context.Context) ([]DemandClass, error)

	// SaveScheduleSlot inserts or replaces the (day, time) entry.
	SaveScheduleSlot(ctx context.Context, s ScheduleSlot) error
	ListScheduleSlots(ctx context.Context) ([]ScheduleSlot, error)

	InsertPriceVersion(ctx context.Context, p PriceVersion) (PriceVersionID, error)
	// ClosePriceVersion sets End and clears Active on a still-open version.
	ClosePriceVersion(ctx context.Context, id PriceVersionID, end time.Time) error
	// CurrentPriceVersion returns the open-ended version or ErrPriceNotFound.
	CurrentPriceVersion(ctx context.Context, demand DemandClassID) (PriceVersion, error)
	// PriceVersions returns the full history of a demand class ordered by Start.
	PriceVersions(ctx context.Context, demand DemandClassID) ([]PriceVersion, error)
	GetPriceVersion(ctx context.Context, id PriceVersionID) (PriceVersion, error)
}

// =============================================================================
// BOOKINGS
// =============================================================================

type BookingStore interface {
	// InsertBooking persists a booking. Returns ErrSlotConflict when the
	// (resource, start) pair already has an active booking.
	InsertBooking(ctx context.Context, b Booking) (BookingID, error)
	GetBooking(ctx context.Context, id BookingID) (Booking, error)
	// FindActiveBooking returns ErrBookingNotFound when the slot is free.
	FindActiveBooking(ctx context.Context, resource ResourceID, start time.Time) (Booking, error)
	// ActiveBookingsBetween returns non-cancelled bookings with Start in [from, to).
	ActiveBookingsBetween(ctx context.Context, from, to time.Time) ([]Booking, error)
	// BookingsByUser returns a user's bookings newest first. Zero bounds are open.
	BookingsByUser(ctx context.Context, user UserID, from, to time.Time) ([]Booking, error)
	MarkBookingCancelled(ctx context.Context, id BookingID, at time.Time) error
}

// =============================================================================
// SCHEDULED TASKS
// =============================================================================

type TaskStore interface {
	InsertTask(ctx context.Context, t ScheduledTask) (TaskID, error)
	GetTask(ctx context.Context, id TaskID) (ScheduledTask, error)
	// UpdateTaskExecution persists Executed, ExecutedAt, RetryCount, LastError, Outcome.
	// Only pending rows are written: a task that is already executed yields
	// ErrConcurrentModification and keeps its final state.
	UpdateTaskExecution(ctx context.Context, t ScheduledTask) error
	// DueTasks returns unexecuted tasks with FireAt <= now, oldest first.
	DueTasks(ctx context.Context, now time.Time, limit int) ([]ScheduledTask, error)
	// PendingTasksForBooking returns unexecuted tasks referencing the booking.
	PendingTasksForBooking(ctx context.Context, booking BookingID) ([]ScheduledTask, error)
	TaskStatistics(ctx context.Context, now time.Time) (TaskStats, error)
}

// =============================================================================
// NOTIFICATIONS & USERS
// =============================================================================

type NotificationStore interface {
	InsertNotification(ctx context.Context, n Notification) (NotificationID, error)
	NotificationsForBooking(ctx context.Context, booking BookingID) ([]Notification, error)
}

type UserStore interface {
	// SaveUser inserts (ID == 0) or updates a user.
	SaveUser(ctx context.Context, u User) (UserID, error)
	GetUser(ctx context.Context, id UserID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// =============================================================================
// STORE - Everything, plus transactions
// =============================================================================

// Store is the full persistence surface used by the engine.
type Store interface {
	ResourceStore
	PricingStore
	BookingStore
	TaskStore
	NotificationStore
	UserStore

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	// Calling WithTx on the Store handed to fn runs fn inline.
	WithTx(ctx context.Context, fn func(Store) error) error
}

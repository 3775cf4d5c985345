/*
Package generic provides the core reservation engine.

PURPOSE:
  This package contains the facility-agnostic types and algorithms for
  renting fixed time slots on a fixed set of resources. Whether the
  resources are padel courts, meeting rooms or studios, the same engine
  handles price history, the weekly demand template, availability,
  conflict-free booking and durable follow-up tasks.

KEY CONCEPTS IN THIS FILE (types.go):
  - Resource: A bookable physical unit (a court)
  - DemandClass: A pricing tier (high / medium / low)
  - PriceVersion: A time-bounded price for a demand class
  - ScheduleSlot: Weekly (day, time) -> demand class mapping
  - Booking: A reservation with a snapshotted price
  - ScheduledTask: A persisted, future-dated side effect
  - Notification: Record of one delivery attempt

DESIGN PRINCIPLES:
  1. Snapshots: A booking stores the price version and amount in effect
     when it was made. Later price changes never touch it.
  2. Precision: Amounts use decimal.Decimal, never float64
  3. Type Safety: Distinct ID types prevent mixing resource/booking IDs
  4. Soft state changes: Bookings are cancelled, tasks are marked executed.
     Nothing in the hot path is ever deleted.

SEE ALSO:
  - pricing.go: Price ledger (temporal price resolution)
  - booking.go: Booking ledger (conflict-free reservations)
  - tasks.go: Scheduled task queue
  - store.go: Persistence interfaces
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ResourceID int64
type DemandClassID int64
type PriceVersionID int64
type BookingID int64
type UserID int64
type TaskID int64
type NotificationID int64

// =============================================================================
// RESOURCE - Bookable unit
// =============================================================================

// Resource is a court. Provisioned once at bootstrap, never deleted.
type Resource struct {
	ID               ResourceID
	Name             string
	Covered          bool
	UnderMaintenance bool
}

// Bookable reports whether new bookings may target this resource.
func (r Resource) Bookable() bool { return !r.UnderMaintenance }

// =============================================================================
// DEMAND CLASS & PRICE HISTORY
// =============================================================================

type DemandClass struct {
	ID          DemandClassID
	Code        string // "high", "medium", "low"
	Description string
	Active      bool
}

// PriceVersion is one interval of a demand class price history.
//
// INVARIANT (per demand class):
//   - Versions with End != nil partition time with no gaps or overlaps
//   - Exactly one version has End == nil (the current one)
//
// Start is inclusive, End is exclusive.
type PriceVersion struct {
	ID            PriceVersionID
	DemandClassID DemandClassID
	Amount        decimal.Decimal
	Start         time.Time
	End           *time.Time
	Active        bool
	Description   string
	CreatedAt     time.Time
}

// Covers reports whether the version is in effect at the given instant.
func (p PriceVersion) Covers(at time.Time) bool {
	if at.Before(p.Start) {
		return false
	}
	return p.End == nil || p.End.After(at)
}

// IsCurrent reports whether this is the open-ended version.
func (p PriceVersion) IsCurrent() bool { return p.End == nil }

// =============================================================================
// WEEKLY DEMAND TEMPLATE
// =============================================================================

// ScheduleSlot maps a weekly (day, start time) pair to a demand class.
// DayOfWeek uses 0 = Monday ... 6 = Sunday.
type ScheduleSlot struct {
	DayOfWeek     int
	StartTime     string // "HH:MM" in facility time
	DemandClassID DemandClassID
}

// =============================================================================
// USER - Collaborator record (identity comes from the request layer)
// =============================================================================

type User struct {
	ID              UserID
	Name            string
	Surname         string
	Email           string
	CanRent         bool
	CanEditPrice    bool
	CanEditSchedule bool
	IsAdmin         bool
	CreatedAt       time.Time
}

func (u User) FullName() string {
	if u.Surname == "" {
		return u.Name
	}
	return u.Name + " " + u.Surname
}

// MayEditPrices reports whether the user can supersede price versions.
func (u User) MayEditPrices() bool { return u.IsAdmin || u.CanEditPrice }

// =============================================================================
// BOOKING - Reservation of one slot on one resource
// =============================================================================

type Booking struct {
	ID             BookingID
	Reference      string // public confirmation code
	UserID         UserID
	ResourceID     ResourceID
	Start          time.Time
	End            time.Time
	PriceVersionID PriceVersionID
	PriceAmount    decimal.Decimal // snapshot, never recomputed
	Cancelled      bool
	CancelledAt    *time.Time
	CreatedAt      time.Time
}

// Active reports whether the booking still holds its slot.
func (b Booking) Active() bool { return !b.Cancelled }

// =============================================================================
// SCHEDULED TASK - Durable future-dated side effect
// =============================================================================

type TaskType string

const (
	TaskReminder     TaskType = "reminder_24h"
	TaskConfirmation TaskType = "booking_confirmation"
	TaskCancellation TaskType = "booking_cancellation"
	TaskPriceUpdate  TaskType = "price_update"
)

// TaskOutcome records how an executed task ended.
type TaskOutcome string

const (
	OutcomeNone      TaskOutcome = ""
	OutcomeSucceeded TaskOutcome = "succeeded"
	OutcomeFailed    TaskOutcome = "failed"
	OutcomeCancelled TaskOutcome = "cancelled"
)

// TaskState is the derived lifecycle state of a task at a given instant.
type TaskState string

const (
	StatePendingFuture     TaskState = "PENDING_FUTURE"
	StatePendingDue        TaskState = "PENDING_DUE"
	StateExecutedSuccess   TaskState = "EXECUTED_SUCCESS"
	StateExecutedFailed    TaskState = "EXECUTED_FAILED_FINAL"
	StateExecutedCancelled TaskState = "EXECUTED_CANCELLED"
)

type ScheduledTask struct {
	ID         TaskID
	UserID     UserID
	BookingID  *BookingID
	Type       TaskType
	FireAt     time.Time
	Payload    []byte // JSON, opaque to the queue
	Executed   bool
	ExecutedAt *time.Time
	RetryCount int
	LastError  *string
	Outcome    TaskOutcome
	CreatedAt  time.Time
}

// State derives the lifecycle state from the persisted fields.
func (t ScheduledTask) State(now time.Time) TaskState {
	if t.Executed {
		switch t.Outcome {
		case OutcomeSucceeded:
			return StateExecutedSuccess
		case OutcomeCancelled:
			return StateExecutedCancelled
		default:
			return StateExecutedFailed
		}
	}
	if t.FireAt.After(now) {
		return StatePendingFuture
	}
	return StatePendingDue
}

// TaskStats summarizes the task table for operational tooling.
type TaskStats struct {
	Total          int
	Executed       int
	PendingOverdue int
	PendingFuture  int
	Failed         int
	Cancelled      int
}

// =============================================================================
// NOTIFICATION - One delivery attempt, recorded whether or not it was sent
// =============================================================================

type Notification struct {
	ID        NotificationID
	UserID    UserID
	BookingID *BookingID
	TaskID    *TaskID
	Type      TaskType
	Recipient string
	Subject   string
	Content   string
	Sent      bool
	SentAt    *time.Time
	Error     string
	CreatedAt time.Time
}

/*
errors.go - Centralized error types for the reservation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores translate driver errors (unique violations, no rows) into these
  sentinels so callers never inspect SQL error strings.

ERROR CATEGORIES:
  1. Client errors - Slot taken, bad input, missing permission
  2. Not found - Booking/price/resource/task absent or not owned by caller
  3. Configuration gaps - No demand class or no price for a slot. These are
     operator-fixable and surface as server errors, never as a default price.
  4. Transient - Email transport failures, absorbed by task retries

USAGE:
    if errors.Is(err, generic.ErrSlotConflict) {
        // offer another slot
    }

SEE ALSO:
  - booking.go: Returns SlotConflictError
  - store/sqlite/sqlite.go: Maps constraint violations
  - api/handlers.go: Maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSlotConflict is returned when the (resource, start) pair already has
	// an active booking. User-recoverable: pick another slot.
	ErrSlotConflict = errors.New("slot already booked")

	// ErrUnschedulableSlot is returned when no demand class is configured for
	// the requested day and time.
	ErrUnschedulableSlot = errors.New("no demand class configured for slot")

	// ErrNoPriceConfigured is returned when the slot's demand class has no
	// price version in effect at the slot start.
	ErrNoPriceConfigured = errors.New("no price configured for slot")

	ErrBookingNotFound     = errors.New("booking not found")
	ErrPriceNotFound       = errors.New("price version not found")
	ErrDemandNotFound      = errors.New("demand class not found")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrTaskNotFound        = errors.New("scheduled task not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user with this email already exists")
	ErrResourceUnavailable = errors.New("resource under maintenance")
	ErrPermissionDenied    = errors.New("permission denied")

	// ErrInvalidSlot is returned when date or time_slot cannot be parsed.
	ErrInvalidSlot = errors.New("invalid date or time slot")

	// ErrInvalidEffectiveFrom is returned when a price update would not start
	// strictly after the current version.
	ErrInvalidEffectiveFrom = errors.New("effective_from must be after the current price start")

	ErrInvalidAmount = errors.New("amount must not be negative")

	// ErrFireTimePassed is returned when a task would fire in the past.
	ErrFireTimePassed = errors.New("task fire time already passed")

	// ErrConcurrentModification is returned when a guarded row changed
	// between read and write (e.g. two price updates racing).
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrTransientSend is returned when the email transport fails.
	ErrTransientSend = errors.New("email transport failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SlotConflictError provides details about a taken slot.
type SlotConflictError struct {
	ResourceID ResourceID
	Start      time.Time
	ExistingID BookingID // zero when detected by the store constraint
}

func (e *SlotConflictError) Error() string {
	if e.ExistingID != 0 {
		return fmt.Sprintf("slot already booked: resource %d at %s (booking %d)",
			e.ResourceID, e.Start.Format(time.RFC3339), e.ExistingID)
	}
	return fmt.Sprintf("slot already booked: resource %d at %s",
		e.ResourceID, e.Start.Format(time.RFC3339))
}

func (e *SlotConflictError) Unwrap() error {
	return ErrSlotConflict
}

// TransientSendError wraps a transport failure for one recipient.
type TransientSendError struct {
	Recipient string
	Err       error
}

func (e *TransientSendError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.Recipient, e.Err)
}

func (e *TransientSendError) Unwrap() []error {
	return []error{ErrTransientSend, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrSlotConflict) ||
		errors.Is(err, ErrInvalidSlot) ||
		errors.Is(err, ErrInvalidEffectiveFrom) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrResourceUnavailable) ||
		errors.Is(err, ErrUserExists)
}

// IsNotFound returns true if the error indicates a missing or foreign record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrPriceNotFound) ||
		errors.Is(err, ErrDemandNotFound) ||
		errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsConfigurationError returns true for demand/price configuration gaps.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnschedulableSlot) ||
		errors.Is(err, ErrNoPriceConfigured)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrTransientSend)
}

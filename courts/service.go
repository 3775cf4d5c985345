/*
service.go - Request-facing facade of the facility

PURPOSE:
  Composes the generic ledgers into the operations the HTTP layer exposes.
  Permission checks and notification tasks live here; the ledgers stay
  ignorant of users' roles and of email.

ATOMICITY:
  Each mutating operation is ONE store transaction:

    Book:         booking + confirmation task + reminder task
    Cancel:       cancel flag + pending tasks cancelled + cancellation task
    UpdatePrice:  close current + open new version + price update task

  Inside the transaction only the tx-bound store is used (ledger.In(tx)).
  Touching the outer store there would wait on the transaction itself.

PERMISSIONS:
  Book:           CanRent
  UpdatePrice:    CanEditPrice or IsAdmin
  SetMaintenance: IsAdmin
  Unknown users get generic.ErrUserNotFound.

SEE ALSO:
  - generic/booking.go, generic/pricing.go, generic/tasks.go
  - api/handlers.go: HTTP mapping
*/
package courts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/court-engine/generic"
	"github.com/warp/court-engine/notify"
)

// Options tune a Service. Zero values pick defaults.
type Options struct {
	Clock        generic.Clock
	Location     *time.Location
	MaxRetries   int
	ReminderLead time.Duration
	Logger       *zap.Logger
}

// Service is the facility's application layer.
type Service struct {
	store        generic.Store
	schedule     *generic.DemandSchedule
	bookings     *generic.BookingLedger
	prices       *generic.PriceLedger
	tasks        *generic.TaskQueue
	availability *generic.Availability
	clock        generic.Clock
	location     *time.Location
	logger       *zap.Logger
}

func NewService(store generic.Store, schedule *generic.DemandSchedule, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = generic.SystemClock
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	tasks := generic.NewTaskQueue(store, opts.Clock)
	if opts.MaxRetries > 0 {
		tasks.MaxRetries = opts.MaxRetries
	}
	if opts.ReminderLead > 0 {
		tasks.ReminderLead = opts.ReminderLead
	}

	return &Service{
		store:        store,
		schedule:     schedule,
		bookings:     generic.NewBookingLedger(store, schedule, opts.Clock, opts.Location),
		prices:       generic.NewPriceLedger(store, opts.Clock),
		tasks:        tasks,
		availability: generic.NewAvailability(store, schedule, opts.Location),
		clock:        opts.Clock,
		location:     opts.Location,
		logger:       opts.Logger,
	}
}

// Tasks exposes the queue the worker drains.
func (s *Service) Tasks() *generic.TaskQueue { return s.tasks }

// Location is the facility time zone.
func (s *Service) Location() *time.Location { return s.location }

// =============================================================================
// BOOKINGS
// =============================================================================

// Book reserves a slot for the user and enqueues its notifications.
func (s *Service) Book(ctx context.Context, userID generic.UserID, resourceID generic.ResourceID, date, timeSlot string) (generic.Booking, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return generic.Booking{}, err
	}
	if !user.CanRent {
		return generic.Booking{}, fmt.Errorf("%w: user %d may not rent courts", generic.ErrPermissionDenied, userID)
	}

	var (
		booking  generic.Booking
		reminder bool
	)
	err = s.store.WithTx(ctx, func(tx generic.Store) error {
		b, err := s.bookings.In(tx).Reserve(ctx, generic.BookingRequest{
			ResourceID: resourceID,
			Date:       date,
			TimeSlot:   timeSlot,
			UserID:     userID,
		})
		if err != nil {
			return err
		}
		court, err := tx.GetResource(ctx, b.ResourceID)
		if err != nil {
			return err
		}
		payload, err := notify.BookingPayload(user, court, b).Encode()
		if err != nil {
			return err
		}

		queue := s.tasks.In(tx)
		bookingID := b.ID
		if _, err := queue.EnqueueNow(ctx, generic.ScheduledTask{
			UserID:    userID,
			BookingID: &bookingID,
			Type:      generic.TaskConfirmation,
			Payload:   payload,
		}); err != nil {
			return fmt.Errorf("enqueue confirmation: %w", err)
		}
		if _, reminder, err = queue.ScheduleReminder(ctx, b, payload); err != nil {
			return fmt.Errorf("enqueue reminder: %w", err)
		}

		booking = b
		return nil
	})
	if err != nil {
		if errors.Is(err, generic.ErrSlotConflict) {
			s.logger.Debug("booking conflict",
				zap.Int64("court_id", int64(resourceID)),
				zap.String("date", date),
				zap.String("time_slot", timeSlot),
			)
		}
		return generic.Booking{}, err
	}

	s.logger.Info("booking created",
		zap.Int64("booking_id", int64(booking.ID)),
		zap.String("reference", booking.Reference),
		zap.Int64("court_id", int64(booking.ResourceID)),
		zap.Time("start", booking.Start),
		zap.String("price", booking.PriceAmount.StringFixed(2)),
		zap.Bool("reminder_scheduled", reminder),
	)
	return booking, nil
}

// Cancel cancels the user's booking. Cancelling an already cancelled
// booking succeeds without repeating any side effect.
func (s *Service) Cancel(ctx context.Context, userID generic.UserID, bookingID generic.BookingID) (bool, error) {
	var cancelledTasks int
	var changed bool
	err := s.store.WithTx(ctx, func(tx generic.Store) error {
		b, ok, err := s.bookings.In(tx).Cancel(ctx, bookingID, userID)
		if err != nil {
			return err
		}
		changed = ok
		if !ok {
			return nil
		}

		queue := s.tasks.In(tx)
		if cancelledTasks, err = queue.CancelForBooking(ctx, b.ID); err != nil {
			return err
		}

		user, err := tx.GetUser(ctx, b.UserID)
		if err != nil {
			return err
		}
		court, err := tx.GetResource(ctx, b.ResourceID)
		if err != nil {
			return err
		}
		payload, err := notify.BookingPayload(user, court, b).Encode()
		if err != nil {
			return err
		}
		id := b.ID
		if _, err := queue.EnqueueNow(ctx, generic.ScheduledTask{
			UserID:    b.UserID,
			BookingID: &id,
			Type:      generic.TaskCancellation,
			Payload:   payload,
		}); err != nil {
			return fmt.Errorf("enqueue cancellation notice: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		s.logger.Info("booking cancelled",
			zap.Int64("booking_id", int64(bookingID)),
			zap.Int64("user_id", int64(userID)),
			zap.Int("tasks_cancelled", cancelledTasks),
		)
	}
	return true, nil
}

// MyBookings lists the user's bookings with Start in [from, to), newest
// first. Zero bounds are open.
func (s *Service) MyBookings(ctx context.Context, userID generic.UserID, from, to time.Time) ([]generic.Booking, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.bookings.ForUser(ctx, userID, from, to)
}

// AvailableSlots lists free, bookable slots of the date with their prices.
func (s *Service) AvailableSlots(ctx context.Context, date string) ([]generic.SlotOffer, error) {
	return s.availability.AvailableSlots(ctx, date)
}

// =============================================================================
// PRICES & SCHEDULE
// =============================================================================

// UpdatePrice supersedes the current price of a demand class.
func (s *Service) UpdatePrice(ctx context.Context, userID generic.UserID, demand generic.DemandClassID, amount decimal.Decimal, effectiveFrom time.Time) (generic.PriceVersionID, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !user.MayEditPrices() {
		return 0, fmt.Errorf("%w: user %d may not edit prices", generic.ErrPermissionDenied, userID)
	}
	class, err := s.store.GetDemandClass(ctx, demand)
	if err != nil {
		return 0, err
	}

	var id generic.PriceVersionID
	err = s.store.WithTx(ctx, func(tx generic.Store) error {
		v, err := s.prices.In(tx).Update(ctx, demand, amount, effectiveFrom)
		if err != nil {
			return err
		}
		id = v
		payload, err := notify.PriceUpdatePayload(user, class, amount, effectiveFrom).Encode()
		if err != nil {
			return err
		}
		_, err = s.tasks.In(tx).EnqueueNow(ctx, generic.ScheduledTask{
			UserID:  userID,
			Type:    generic.TaskPriceUpdate,
			Payload: payload,
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("price updated",
		zap.String("demand_class", class.Code),
		zap.String("amount", amount.StringFixed(2)),
		zap.Time("effective_from", effectiveFrom.UTC()),
		zap.Int64("price_version_id", int64(id)),
		zap.Int64("user_id", int64(userID)),
	)
	return id, nil
}

func (s *Service) DemandClasses(ctx context.Context) ([]generic.DemandClass, error) {
	return s.store.ListDemandClasses(ctx)
}

// PriceHistory returns every price version of a demand class ordered by start.
func (s *Service) PriceHistory(ctx context.Context, demand generic.DemandClassID) ([]generic.PriceVersion, error) {
	if _, err := s.store.GetDemandClass(ctx, demand); err != nil {
		return nil, err
	}
	return s.prices.History(ctx, demand)
}

// Schedule returns the weekly demand template.
func (s *Service) Schedule() []generic.ScheduleSlot {
	return s.schedule.Entries()
}

// =============================================================================
// COURTS
// =============================================================================

func (s *Service) Courts(ctx context.Context) ([]generic.Resource, error) {
	return s.store.ListResources(ctx)
}

// SetMaintenance flags a court. Existing bookings are kept; new ones are refused.
func (s *Service) SetMaintenance(ctx context.Context, userID generic.UserID, resourceID generic.ResourceID, underMaintenance bool) (generic.Resource, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return generic.Resource{}, err
	}
	if !user.IsAdmin {
		return generic.Resource{}, fmt.Errorf("%w: user %d is not an admin", generic.ErrPermissionDenied, userID)
	}

	var court generic.Resource
	err = s.store.WithTx(ctx, func(tx generic.Store) error {
		r, err := tx.GetResource(ctx, resourceID)
		if err != nil {
			return err
		}
		r.UnderMaintenance = underMaintenance
		court = r
		return tx.SaveResource(ctx, r)
	})
	if err != nil {
		return generic.Resource{}, err
	}

	s.logger.Info("court maintenance changed",
		zap.Int64("court_id", int64(resourceID)),
		zap.Bool("under_maintenance", underMaintenance),
	)
	return court, nil
}

// =============================================================================
// USERS
// =============================================================================

// RegisterUser creates a renter. Privileged flags are never granted here.
func (s *Service) RegisterUser(ctx context.Context, name, surname, email string) (generic.User, error) {
	u := generic.User{
		Name:      name,
		Surname:   surname,
		Email:     email,
		CanRent:   true,
		CreatedAt: s.clock.Now(),
	}
	id, err := s.store.SaveUser(ctx, u)
	if err != nil {
		return generic.User{}, err
	}
	u.ID = id
	return u, nil
}

func (s *Service) User(ctx context.Context, id generic.UserID) (generic.User, error) {
	return s.store.GetUser(ctx, id)
}

// RequireAdmin returns ErrPermissionDenied unless the user is an admin.
func (s *Service) RequireAdmin(ctx context.Context, id generic.UserID) error {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !u.IsAdmin {
		return fmt.Errorf("%w: user %d is not an admin", generic.ErrPermissionDenied, id)
	}
	return nil
}

// =============================================================================
// TASKS
// =============================================================================

func (s *Service) TaskStatistics(ctx context.Context) (generic.TaskStats, error) {
	return s.tasks.Statistics(ctx)
}

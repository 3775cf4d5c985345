package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/court-engine/generic"
	"github.com/warp/court-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	jan1  = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	slotA = time.Date(2026, time.January, 15, 11, 0, 0, 0, time.UTC)
)

type fixture struct {
	store  *sqlite.Store
	user   generic.UserID
	demand generic.DemandClassID
	price  generic.PriceVersionID
}

func newTestStore(t *testing.T) *fixture {
	ctx := context.Background()
	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	user, err := store.SaveUser(ctx, generic.User{Name: "Ana", Email: "ana@example.com", CanRent: true, CreatedAt: jan1})
	require.NoError(t, err)
	require.NoError(t, store.SaveResource(ctx, generic.Resource{ID: 1, Name: "Court 1"}))

	demand, err := store.SaveDemandClass(ctx, generic.DemandClass{Code: "medium", Active: true})
	require.NoError(t, err)
	price, err := store.InsertPriceVersion(ctx, generic.PriceVersion{
		DemandClassID: demand,
		Amount:        decimal.NewFromInt(20),
		Start:         jan1,
		Active:        true,
		CreatedAt:     jan1,
	})
	require.NoError(t, err)

	return &fixture{store: store, user: user, demand: demand, price: price}
}

func (f *fixture) booking(start time.Time) generic.Booking {
	return generic.Booking{
		Reference:      uuid.NewString(),
		UserID:         f.user,
		ResourceID:     1,
		Start:          start,
		End:            start.Add(generic.SlotDuration),
		PriceVersionID: f.price,
		PriceAmount:    decimal.NewFromInt(20),
		CreatedAt:      jan1,
	}
}

// =============================================================================
// BOOKING UNIQUENESS
// =============================================================================

func TestStore_InsertBooking_ActiveSlotIsUnique(t *testing.T) {
	// GIVEN: An active booking on court 1 at 11:00
	// WHEN: Another booking for the same court and instant is inserted
	// THEN: The partial unique index rejects it as ErrSlotConflict

	f := newTestStore(t)
	ctx := context.Background()

	_, err := f.store.InsertBooking(ctx, f.booking(slotA))
	require.NoError(t, err)

	_, err = f.store.InsertBooking(ctx, f.booking(slotA))
	assert.ErrorIs(t, err, generic.ErrSlotConflict)
}

func TestStore_CancelledBookingFreesSlot(t *testing.T) {
	// GIVEN: A booking that was cancelled
	// WHEN: The same slot is booked again
	// THEN: Insert succeeds and both rows remain

	f := newTestStore(t)
	ctx := context.Background()

	first, err := f.store.InsertBooking(ctx, f.booking(slotA))
	require.NoError(t, err)
	require.NoError(t, f.store.MarkBookingCancelled(ctx, first, jan1))

	second, err := f.store.InsertBooking(ctx, f.booking(slotA))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	old, err := f.store.GetBooking(ctx, first)
	require.NoError(t, err)
	assert.True(t, old.Cancelled)
	require.NotNil(t, old.CancelledAt)

	active, err := f.store.FindActiveBooking(ctx, 1, slotA)
	require.NoError(t, err)
	assert.Equal(t, second, active.ID)
}

func TestStore_MarkBookingCancelled_Twice(t *testing.T) {
	f := newTestStore(t)
	ctx := context.Background()

	id, err := f.store.InsertBooking(ctx, f.booking(slotA))
	require.NoError(t, err)
	require.NoError(t, f.store.MarkBookingCancelled(ctx, id, jan1))

	err = f.store.MarkBookingCancelled(ctx, id, jan1)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
}

func TestStore_FindActiveBooking_Free(t *testing.T) {
	f := newTestStore(t)

	_, err := f.store.FindActiveBooking(context.Background(), 1, slotA)
	assert.ErrorIs(t, err, generic.ErrBookingNotFound)
}

func TestStore_BookingRoundTrip(t *testing.T) {
	f := newTestStore(t)
	ctx := context.Background()

	in := f.booking(slotA)
	in.PriceAmount = decimal.RequireFromString("22.50")
	id, err := f.store.InsertBooking(ctx, in)
	require.NoError(t, err)

	got, err := f.store.GetBooking(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, in.Reference, got.Reference)
	assert.True(t, in.Start.Equal(got.Start))
	assert.True(t, in.End.Equal(got.End))
	assert.True(t, in.PriceAmount.Equal(got.PriceAmount))
	assert.Equal(t, f.price, got.PriceVersionID)
	assert.False(t, got.Cancelled)
	assert.Nil(t, got.CancelledAt)
}

func TestStore_BookingsByUser_NewestFirstWithBounds(t *testing.T) {
	f := newTestStore(t)
	ctx := context.Background()

	for _, d := range []int{10, 11, 12} {
		start := time.Date(2026, time.January, d, 11, 0, 0, 0, time.UTC)
		_, err := f.store.InsertBooking(ctx, f.booking(start))
		require.NoError(t, err)
	}

	all, err := f.store.BookingsByUser(ctx, f.user, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 12, all[0].Start.Day())
	assert.Equal(t, 10, all[2].Start.Day())

	from := time.Date(2026, time.January, 11, 0, 0, 0, 0, time.UTC)
	ranged, err := f.store.BookingsByUser(ctx, f.user, from, time.Time{})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)
}

func TestStore_ActiveBookingsBetween_SkipsCancelled(t *testing.T) {
	f := newTestStore(t)
	ctx := context.Background()

	a, err := f.store.InsertBooking(ctx, f.booking(slotA))
	require.NoError(t, err)
	_, err = f.store.InsertBooking(ctx, f.booking(slotA.Add(generic.SlotDuration)))
	require.NoError(t, err)
	require.NoError(t, f.store.MarkBookingCancelled(ctx, a, jan1))

	day := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	got, err := f.store.ActiveBookingsBetween(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Start.Equal(slotA.Add(generic.SlotDuration)))
}

// =============================================================================
// PRICE VERSIONS
// =============================================================================

func TestStore_SecondOpenPriceVersionRejected(t *testing.T) {
	// GIVEN: A demand class with a current (open-ended) price
	// WHEN: Another open-ended version is inserted without closing the first
	// THEN: The single-open-version index rejects it

	f := newTestStore(t)

	_, err := f.store.InsertPriceVersion(context.Background(), generic.PriceVersion{
		DemandClassID: f.demand,
		Amount:        decimal.NewFromInt(25),
		Start:         slotA,
		Active:        true,
		CreatedAt:     jan1,
	})
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
}

func TestStore_ClosePriceVersion_OnlyOnce(t *testing.T) {
	f := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, f.store.ClosePriceVersion(ctx, f.price, slotA))

	err := f.store.ClosePriceVersion(ctx, f.price, slotA)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	_, err = f.store.CurrentPriceVersion(ctx, f.demand)
	assert.ErrorIs(t, err, generic.ErrPriceNotFound)

	closed, err := f.store.GetPriceVersion(ctx, f.price)
	require.NoError(t, err)
	assert.False(t, closed.Active)
	require.NotNil(t, closed.End)
	assert.True(t, closed.End.Equal(slotA))
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that closes the current price then fails
	// THEN: The close is rolled back and the price is still current

	f := newTestStore(t)
	ctx := context.Background()

	err := f.store.WithTx(ctx, func(tx generic.Store) error {
		require.NoError(t, tx.ClosePriceVersion(ctx, f.price, slotA))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	current, err := f.store.CurrentPriceVersion(ctx, f.demand)
	require.NoError(t, err)
	assert.Equal(t, f.price, current.ID)
	assert.Nil(t, current.End)
}

// =============================================================================
// SCHEDULED TASKS
// =============================================================================

func TestStore_DueTasks_OrderAndStatistics(t *testing.T) {
	f := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.January, 14, 12, 0, 0, 0, time.UTC)

	insert := func(fireAt time.Time) generic.TaskID {
		id, err := f.store.InsertTask(ctx, generic.ScheduledTask{
			UserID:    f.user,
			Type:      generic.TaskReminder,
			FireAt:    fireAt,
			Payload:   []byte(`{"recipient":"ana@example.com"}`),
			CreatedAt: jan1,
		})
		require.NoError(t, err)
		return id
	}
	late := insert(now.Add(-time.Minute))
	early := insert(now.Add(-time.Hour))
	insert(now.Add(time.Hour))

	due, err := f.store.DueTasks(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early, due[0].ID)
	assert.Equal(t, late, due[1].ID)
	assert.JSONEq(t, `{"recipient":"ana@example.com"}`, string(due[0].Payload))

	limited, err := f.store.DueTasks(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	task := due[0]
	executedAt := now
	task.Executed = true
	task.ExecutedAt = &executedAt
	task.Outcome = generic.OutcomeSucceeded
	require.NoError(t, f.store.UpdateTaskExecution(ctx, task))

	stats, err := f.store.TaskStatistics(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, generic.TaskStats{Total: 3, Executed: 1, PendingOverdue: 1, PendingFuture: 1}, stats)
}

func TestStore_UpdateTaskExecution_Missing(t *testing.T) {
	f := newTestStore(t)

	err := f.store.UpdateTaskExecution(context.Background(), generic.ScheduledTask{ID: 999})
	assert.ErrorIs(t, err, generic.ErrTaskNotFound)
}

func TestStore_UpdateTaskExecution_AlreadyExecuted(t *testing.T) {
	// GIVEN: A task already finalized as cancelled
	// WHEN: A stale copy is written back as succeeded
	// THEN: The write is refused and the cancellation survives

	f := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)

	id, err := f.store.InsertTask(ctx, generic.ScheduledTask{UserID: f.user, Type: generic.TaskReminder, FireAt: now, CreatedAt: now})
	require.NoError(t, err)
	stale, err := f.store.GetTask(ctx, id)
	require.NoError(t, err)

	cancelled := stale
	cancelled.Executed = true
	cancelled.ExecutedAt = &now
	cancelled.Outcome = generic.OutcomeCancelled
	require.NoError(t, f.store.UpdateTaskExecution(ctx, cancelled))

	stale.Executed = true
	stale.ExecutedAt = &now
	stale.Outcome = generic.OutcomeSucceeded
	err = f.store.UpdateTaskExecution(ctx, stale)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	stored, err := f.store.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, generic.OutcomeCancelled, stored.Outcome)
}

// =============================================================================
// USERS & SCHEMA
// =============================================================================

func TestStore_SaveUser_DuplicateEmail(t *testing.T) {
	f := newTestStore(t)

	_, err := f.store.SaveUser(context.Background(), generic.User{Name: "Other", Email: "ana@example.com", CreatedAt: jan1})
	assert.ErrorIs(t, err, generic.ErrUserExists)
}

func TestStore_MigrateIsIdempotent(t *testing.T) {
	f := newTestStore(t)
	ctx := context.Background()

	applied, err := f.store.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	version, err := f.store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

package generic_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/court-engine/generic"
	"github.com/warp/court-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	priceEpoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	testNow    = time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
)

// engine bundles a store seeded with two courts, two users and a
// low/medium/high demand setup:
//   - weekdays before 17:00 -> low (10), from 17:00 -> high (30)
//   - weekends -> medium (20)
type engine struct {
	store  *sqlite.Store
	clock  *testClock
	userA  generic.UserID
	userB  generic.UserID
	low    generic.DemandClassID
	medium generic.DemandClassID
	high   generic.DemandClassID

	schedule *generic.DemandSchedule
	bookings *generic.BookingLedger
	prices   *generic.PriceLedger
	tasks    *generic.TaskQueue
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T) *engine {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	e := &engine{store: store, clock: &testClock{now: testNow}}

	e.userA, err = store.SaveUser(ctx, generic.User{Name: "Alice", Email: "alice@example.com", CanRent: true, CreatedAt: priceEpoch})
	require.NoError(t, err)
	e.userB, err = store.SaveUser(ctx, generic.User{Name: "Bob", Email: "bob@example.com", CanRent: true, CreatedAt: priceEpoch})
	require.NoError(t, err)

	require.NoError(t, store.SaveResource(ctx, generic.Resource{ID: 1, Name: "Court 1"}))
	require.NoError(t, store.SaveResource(ctx, generic.Resource{ID: 2, Name: "Court 2", Covered: true}))

	e.low = e.demandClass(t, "low", 10)
	e.medium = e.demandClass(t, "medium", 20)
	e.high = e.demandClass(t, "high", 30)

	for day := 0; day < 7; day++ {
		for _, slot := range generic.StandardSlotTimes {
			demand := e.medium
			if day < 5 {
				demand = e.low
				if slot >= "17:00" {
					demand = e.high
				}
			}
			require.NoError(t, store.SaveScheduleSlot(ctx, generic.ScheduleSlot{DayOfWeek: day, StartTime: slot, DemandClassID: demand}))
		}
	}

	e.schedule, err = generic.LoadDemandSchedule(ctx, store)
	require.NoError(t, err)

	e.bookings = generic.NewBookingLedger(store, e.schedule, e.clock, time.UTC)
	e.prices = generic.NewPriceLedger(store, e.clock)
	e.tasks = generic.NewTaskQueue(store, e.clock)
	return e
}

func (e *engine) demandClass(t *testing.T, code string, amount int64) generic.DemandClassID {
	ctx := context.Background()
	id, err := e.store.SaveDemandClass(ctx, generic.DemandClass{Code: code, Description: code + " demand", Active: true})
	require.NoError(t, err)
	_, err = e.store.InsertPriceVersion(ctx, generic.PriceVersion{
		DemandClassID: id,
		Amount:        decimal.NewFromInt(amount),
		Start:         priceEpoch,
		Active:        true,
		Description:   code + " demand",
		CreatedAt:     priceEpoch,
	})
	require.NoError(t, err)
	return id
}

func (e *engine) book(t *testing.T, resource generic.ResourceID, date, slot string, user generic.UserID) generic.Booking {
	b, err := e.bookings.Create(context.Background(), generic.BookingRequest{
		ResourceID: resource,
		Date:       date,
		TimeSlot:   slot,
		UserID:     user,
	})
	require.NoError(t, err)
	return b
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

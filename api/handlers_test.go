/*
handlers_test.go - HTTP tests for the reservation API

Runs the full router against a seeded in-memory SQLite facility:
- Booking, conflict and cancellation round trips
- Identity header and request validation
- Price updates and permissions
- Maintenance, users and task endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/court-engine/courts"
	"github.com/warp/court-engine/generic"
	"github.com/warp/court-engine/store/sqlite"
	"github.com/warp/court-engine/worker"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)

type apiFixture struct {
	router http.Handler
	h      *Handler
	store  *sqlite.Store
	admin  generic.UserID
	sent   int
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := generic.ClockFunc(func() time.Time { return testNow })
	_, err = courts.Seed(ctx, store, courts.StandardCatalog(), clock)
	require.NoError(t, err)
	schedule, err := generic.LoadDemandSchedule(ctx, store)
	require.NoError(t, err)
	svc := courts.NewService(store, schedule, courts.Options{Clock: clock})

	f := &apiFixture{store: store}
	exec := worker.NewExecutor(svc.Tasks(), nil)
	for _, tt := range []generic.TaskType{generic.TaskConfirmation, generic.TaskReminder, generic.TaskCancellation, generic.TaskPriceUpdate} {
		exec.Register(tt, worker.HandlerFunc(func(ctx context.Context, task generic.ScheduledTask) error {
			f.sent++
			return nil
		}))
	}

	f.h = NewHandler(svc, exec, nil)
	f.router = NewRouter(f.h, nil)

	admin, err := store.GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	f.admin = admin.ID
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, user generic.UserID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != 0 {
		req.Header.Set(UserIDHeader, fmt.Sprint(user))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *apiFixture) register(t *testing.T, name, email string) generic.UserID {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/users", 0, CreateUserRequest{Name: name, Email: email})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return generic.UserID(decode[UserDTO](t, rec).ID)
}

func (f *apiFixture) demandClassID(t *testing.T, code string) int64 {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/api/demand-classes", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range decode[[]DemandClassDTO](t, rec) {
		if c.Code == code {
			return c.ID
		}
	}
	t.Fatalf("demand class %q not seeded", code)
	return 0
}

// =============================================================================
// BOOKINGS
// =============================================================================

func TestBookings_BookConflictCancel(t *testing.T) {
	// GIVEN: Two renters
	// WHEN: Both try to book court 5 on Thursday at 20:00
	// THEN: The first gets the high price, the second a 409; cancelling is repeatable

	f := newAPIFixture(t)
	alice := f.register(t, "Alice", "alice@example.com")
	bob := f.register(t, "Bob", "bob@example.com")

	book := CreateBookingRequest{CourtID: 5, Date: "2026-01-15", TimeSlot: "20:00"}
	rec := f.do(t, http.MethodPost, "/api/bookings", alice, book)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booking := decode[BookingDTO](t, rec)
	assert.Equal(t, int64(5), booking.CourtID)
	assert.Equal(t, "2026-01-15T20:00:00Z", booking.StartTime)
	assert.Equal(t, "2026-01-15T21:30:00Z", booking.EndTime)
	assert.Equal(t, "30.00", booking.PriceAmount)
	assert.NotEmpty(t, booking.Reference)

	rec = f.do(t, http.MethodPost, "/api/bookings", bob, book)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Bob cannot see or cancel Alice's booking
	cancelPath := fmt.Sprintf("/api/bookings/%d/cancel", booking.ID)
	rec = f.do(t, http.MethodPost, cancelPath, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/bookings/mine", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]BookingDTO](t, rec), 1)

	for i := 0; i < 2; i++ {
		rec = f.do(t, http.MethodPost, cancelPath, alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[CancelResponse](t, rec).Cancelled)
	}

	// The slot is free again
	rec = f.do(t, http.MethodPost, "/api/bookings", bob, book)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/tasks/stats", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[TaskStatsDTO](t, rec)
	// alice: confirmation + reminder (cancelled) + cancellation notice; bob: confirmation + reminder
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 3, stats.PendingOverdue)
	assert.Equal(t, 1, stats.PendingFuture)
}

func TestBookings_MyBookingsDateRange(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "Alice", "alice@example.com")

	for _, date := range []string{"2026-01-12", "2026-01-15", "2026-01-20"} {
		rec := f.do(t, http.MethodPost, "/api/bookings", alice, CreateBookingRequest{CourtID: 1, Date: date, TimeSlot: "09:30"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	tests := []struct {
		query string
		want  int
		code  int
	}{
		{"", 3, http.StatusOK},
		{"?date_from=2026-01-13", 2, http.StatusOK},
		{"?date_to=2026-01-15", 2, http.StatusOK},
		{"?date_from=2026-01-15&date_to=2026-01-15", 1, http.StatusOK},
		{"?date_from=2026-01-16&date_to=2026-01-15", 0, http.StatusBadRequest},
		{"?date_from=yesterday", 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/bookings/mine"+tt.query, alice, nil)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code == http.StatusOK {
				assert.Len(t, decode[[]BookingDTO](t, rec), tt.want)
			}
		})
	}
}

func TestBookings_IdentityAndValidation(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "Alice", "alice@example.com")

	valid := CreateBookingRequest{CourtID: 1, Date: "2026-01-15", TimeSlot: "08:00"}

	// No header
	rec := f.do(t, http.MethodPost, "/api/bookings", 0, valid)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Malformed header
	req := httptest.NewRequest(http.MethodPost, "/api/bookings", nil)
	req.Header.Set(UserIDHeader, "alice")
	out := httptest.NewRecorder()
	f.router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusUnauthorized, out.Code)

	// Unknown user
	rec = f.do(t, http.MethodPost, "/api/bookings", 999, valid)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing court", CreateBookingRequest{Date: "2026-01-15", TimeSlot: "08:00"}, http.StatusBadRequest},
		{"bad date format", CreateBookingRequest{CourtID: 1, Date: "15/01/2026", TimeSlot: "08:00"}, http.StatusBadRequest},
		{"bad slot format", CreateBookingRequest{CourtID: 1, Date: "2026-01-15", TimeSlot: "8am"}, http.StatusBadRequest},
		{"not json", "{", http.StatusBadRequest},
		{"unknown court", CreateBookingRequest{CourtID: 42, Date: "2026-01-15", TimeSlot: "08:00"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/bookings", alice, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

// =============================================================================
// AVAILABILITY & PRICES
// =============================================================================

func TestAvailability(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "Alice", "alice@example.com")

	rec := f.do(t, http.MethodGet, "/api/availability?date=2026-01-15", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	offers := decode[[]SlotOfferDTO](t, rec)
	require.Len(t, offers, 80)
	require.NotNil(t, offers[0].PriceAmount)
	assert.Equal(t, "10.00", *offers[0].PriceAmount) // Thursday 08:00 is low demand

	rec = f.do(t, http.MethodPost, "/api/bookings", alice, CreateBookingRequest{CourtID: 1, Date: "2026-01-15", TimeSlot: "08:00"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/availability?date=2026-01-15", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]SlotOfferDTO](t, rec), 79)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/availability", 0, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/availability?date=soon", 0, nil).Code)
}

func TestPrices_UpdateAndHistory(t *testing.T) {
	// GIVEN: A renter and the seeded admin
	// WHEN: Both try to raise the low demand price
	// THEN: Only the admin succeeds and the history grows by one version

	f := newAPIFixture(t)
	alice := f.register(t, "Alice", "alice@example.com")
	low := f.demandClassID(t, courts.DemandLow)
	path := fmt.Sprintf("/api/demand-classes/%d/prices", low)

	update := UpdatePriceRequest{Amount: "12.00", EffectiveFrom: "2026-01-16"}
	rec := f.do(t, http.MethodPost, path, alice, update)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, path, f.admin, update)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotZero(t, decode[PriceUpdateResponse](t, rec).PriceVersionID)

	rec = f.do(t, http.MethodGet, path, 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]PriceVersionDTO](t, rec)
	require.Len(t, history, 2)
	assert.Equal(t, "10.00", history[0].Amount)
	require.NotNil(t, history[0].End)
	assert.Equal(t, "2026-01-16T00:00:00Z", *history[0].End)
	assert.Equal(t, "12.00", history[1].Amount)
	assert.Nil(t, history[1].End)

	// Bookings after the switch use the new price
	rec = f.do(t, http.MethodPost, "/api/bookings", alice, CreateBookingRequest{CourtID: 1, Date: "2026-01-19", TimeSlot: "08:00"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "12.00", decode[BookingDTO](t, rec).PriceAmount)
}

func TestPrices_InvalidUpdates(t *testing.T) {
	f := newAPIFixture(t)
	low := f.demandClassID(t, courts.DemandLow)
	path := fmt.Sprintf("/api/demand-classes/%d/prices", low)

	tests := []struct {
		name string
		path string
		body UpdatePriceRequest
		want int
	}{
		{"not a number", path, UpdatePriceRequest{Amount: "ten", EffectiveFrom: "2026-02-01"}, http.StatusBadRequest},
		{"negative", path, UpdatePriceRequest{Amount: "-1", EffectiveFrom: "2026-02-01"}, http.StatusBadRequest},
		{"bad date", path, UpdatePriceRequest{Amount: "11", EffectiveFrom: "February"}, http.StatusBadRequest},
		{"before current start", path, UpdatePriceRequest{Amount: "11", EffectiveFrom: "2024-06-01T00:00:00Z"}, http.StatusBadRequest},
		{"unknown class", "/api/demand-classes/99/prices", UpdatePriceRequest{Amount: "11", EffectiveFrom: "2026-02-01"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, f.admin, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSchedule(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/schedule", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScheduleSlotDTO](t, rec), 70)
}

// =============================================================================
// COURTS & USERS
// =============================================================================

func TestCourts_Maintenance(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "Alice", "alice@example.com")

	rec := f.do(t, http.MethodGet, "/api/courts", 0, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]CourtDTO](t, rec)
	require.Len(t, list, 8)
	assert.True(t, list[7].Covered)

	on := true
	rec = f.do(t, http.MethodPut, "/api/courts/3/maintenance", alice, SetMaintenanceRequest{UnderMaintenance: &on})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/courts/3/maintenance", f.admin, SetMaintenanceRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/courts/42/maintenance", f.admin, SetMaintenanceRequest{UnderMaintenance: &on})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/courts/3/maintenance", f.admin, SetMaintenanceRequest{UnderMaintenance: &on})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[CourtDTO](t, rec).UnderMaintenance)

	rec = f.do(t, http.MethodPost, "/api/bookings", alice, CreateBookingRequest{CourtID: 3, Date: "2026-01-15", TimeSlot: "08:00"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/availability?date=2026-01-15", 0, nil)
	assert.Len(t, decode[[]SlotOfferDTO](t, rec), 70)
}

func TestUsers_RegisterAndMe(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "Alice", "Alice@Example.com")

	rec := f.do(t, http.MethodGet, "/api/users/me", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[UserDTO](t, rec)
	assert.Equal(t, "alice@example.com", me.Email)
	assert.True(t, me.CanRent)
	assert.False(t, me.IsAdmin)

	rec = f.do(t, http.MethodPost, "/api/users", 0, CreateUserRequest{Name: "Alice", Email: "alice@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/users", 0, CreateUserRequest{Name: "Eve", Email: "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/users/me", 999, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// TASKS
// =============================================================================

func TestTasks_Process(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "Alice", "alice@example.com")
	rec := f.do(t, http.MethodPost, "/api/bookings", alice, CreateBookingRequest{CourtID: 2, Date: "2026-01-15", TimeSlot: "11:00"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/tasks/process", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/tasks/process", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[CycleResultDTO](t, rec)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.Succeeded) // confirmation; the reminder is not due yet
	assert.Equal(t, 1, f.sent)

	rec = f.do(t, http.MethodPost, "/api/tasks/process", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[CycleResultDTO](t, rec).Skipped)

	f.h.Runner = nil
	rec = f.do(t, http.MethodPost, "/api/tasks/process", f.admin, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&generic.SlotConflictError{ResourceID: 1}, http.StatusConflict},
		{generic.ErrResourceUnavailable, http.StatusConflict},
		{generic.ErrUserExists, http.StatusConflict},
		{fmt.Errorf("wrap: %w", generic.ErrPermissionDenied), http.StatusForbidden},
		{generic.ErrBookingNotFound, http.StatusNotFound},
		{generic.ErrInvalidSlot, http.StatusBadRequest},
		{generic.ErrInvalidAmount, http.StatusBadRequest},
		{generic.ErrNoPriceConfigured, http.StatusInternalServerError},
		{generic.ErrUnschedulableSlot, http.StatusInternalServerError},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

/*
handlers.go - HTTP API handlers for the court reservation engine

PURPOSE:
  Exposes the reservation service via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to courts.Service.

ENDPOINTS:
  Bookings (X-User-ID required):
    POST   /api/bookings                  Book a slot
    POST   /api/bookings/{id}/cancel      Cancel own booking
    GET    /api/bookings/mine             Own bookings (?date_from&date_to)

  Availability:
    GET    /api/availability?date=        Free slots with prices

  Prices & schedule:
    GET    /api/demand-classes            List demand classes
    GET    /api/demand-classes/{id}/prices Price history
    POST   /api/demand-classes/{id}/prices Supersede price (price editors)
    GET    /api/schedule                  Weekly demand template

  Courts:
    GET    /api/courts                    List courts
    PUT    /api/courts/{id}/maintenance   Toggle maintenance (admin)

  Users:
    POST   /api/users                     Register a renter
    GET    /api/users/me                  Caller profile

  Tasks:
    GET    /api/tasks/stats               Task table statistics
    POST   /api/tasks/process             Run one executor cycle (admin)

IDENTITY:
  Authentication happens upstream. The caller's user id arrives in the
  X-User-ID header; requireUser rejects requests without a valid one.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid date/slot/amount
  - 401: Missing or malformed X-User-ID
  - 403: Permission denied
  - 404: Booking/court/demand class/user not found (foreign bookings too)
  - 409: Slot taken, court under maintenance, duplicate email
  - 500: Configuration gaps (no demand class / price) and internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/court-engine/courts"
	"github.com/warp/court-engine/generic"
	"github.com/warp/court-engine/worker"
)

// UserIDHeader carries the authenticated caller.
const UserIDHeader = "X-User-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// CycleRunner runs one task executor cycle on demand.
type CycleRunner interface {
	RunNow(ctx context.Context) (worker.CycleResult, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Service *courts.Service
	Runner  CycleRunner // nil disables POST /api/tasks/process

	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *courts.Service, runner CycleRunner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:  svc,
		Runner:   runner,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type ctxKey struct{}

// requireUser resolves X-User-ID into the request context.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header", nil)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "invalid "+UserIDHeader+" header", err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, generic.UserID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerID(r *http.Request) generic.UserID {
	id, _ := r.Context().Value(ctxKey{}).(generic.UserID)
	return id
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// CreateBooking books one slot for the caller.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	b, err := h.Service.Book(r.Context(), callerID(r), generic.ResourceID(req.CourtID), req.Date, req.TimeSlot)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(b))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	cancelled, err := h.Service.Cancel(r.Context(), callerID(r), generic.BookingID(id))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: cancelled})
}

// MyBookings lists the caller's bookings. date_to is inclusive.
func (h *Handler) MyBookings(w http.ResponseWriter, r *http.Request) {
	loc := h.Service.Location()
	var from, to time.Time

	if s := r.URL.Query().Get("date_from"); s != "" {
		d, err := generic.ParseDate(s, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date_from", err)
			return
		}
		from = d
	}
	if s := r.URL.Query().Get("date_to"); s != "" {
		d, err := generic.ParseDate(s, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date_to", err)
			return
		}
		to = d.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		writeError(w, http.StatusBadRequest, "date_from must not be after date_to", nil)
		return
	}

	bookings, err := h.Service.MyBookings(r.Context(), callerID(r), from, to)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]BookingDTO, 0, len(bookings))
	for _, b := range bookings {
		dtos = append(dtos, toBookingDTO(b))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// AVAILABILITY
// =============================================================================

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date query parameter is required", nil)
		return
	}

	offers, err := h.Service.AvailableSlots(r.Context(), date)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]SlotOfferDTO, 0, len(offers))
	for _, o := range offers {
		dtos = append(dtos, toSlotOfferDTO(o))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PRICES & SCHEDULE
// =============================================================================

func (h *Handler) ListDemandClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.Service.DemandClasses(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]DemandClassDTO, 0, len(classes))
	for _, c := range classes {
		dtos = append(dtos, DemandClassDTO{ID: int64(c.ID), Code: c.Code, Description: c.Description, Active: c.Active})
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) PriceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	versions, err := h.Service.PriceHistory(r.Context(), generic.DemandClassID(id))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]PriceVersionDTO, 0, len(versions))
	for _, v := range versions {
		dtos = append(dtos, toPriceVersionDTO(v))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdatePrice supersedes the current price of a demand class.
func (h *Handler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdatePriceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}
	effectiveFrom, err := parseEffectiveFrom(req.EffectiveFrom, h.Service.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid effective_from", err)
		return
	}

	versionID, err := h.Service.UpdatePrice(r.Context(), callerID(r), generic.DemandClassID(id), amount, effectiveFrom)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, PriceUpdateResponse{PriceVersionID: int64(versionID)})
}

func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	entries := h.Service.Schedule()
	dtos := make([]ScheduleSlotDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, ScheduleSlotDTO{DayOfWeek: e.DayOfWeek, StartTime: e.StartTime, DemandClassID: int64(e.DemandClassID)})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// parseEffectiveFrom accepts RFC 3339 or a plain date at midnight in loc.
func parseEffectiveFrom(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return generic.ParseDate(s, loc)
}

// =============================================================================
// COURTS
// =============================================================================

func (h *Handler) ListCourts(w http.ResponseWriter, r *http.Request) {
	resources, err := h.Service.Courts(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]CourtDTO, 0, len(resources))
	for _, c := range resources {
		dtos = append(dtos, toCourtDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req SetMaintenanceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	court, err := h.Service.SetMaintenance(r.Context(), callerID(r), generic.ResourceID(id), *req.UnderMaintenance)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourtDTO(court))
}

// =============================================================================
// USERS
// =============================================================================

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.Service.RegisterUser(r.Context(), req.Name, req.Surname, strings.ToLower(req.Email))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.User(r.Context(), callerID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// =============================================================================
// TASKS
// =============================================================================

func (h *Handler) TaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.TaskStatistics(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskStatsDTO(stats))
}

// ProcessTasks runs one executor cycle synchronously.
func (h *Handler) ProcessTasks(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.RequireAdmin(r.Context(), callerID(r)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	if h.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "task processing is not enabled", nil)
		return
	}

	res, err := h.Runner.RunNow(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleResultDTO(res))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrSlotConflict),
		errors.Is(err, generic.ErrResourceUnavailable),
		errors.Is(err, generic.ErrUserExists),
		errors.Is(err, generic.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, generic.ErrPermissionDenied):
		return http.StatusForbidden
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		writeError(w, status, err.Error(), nil)
		return
	}

	if generic.IsConfigurationError(err) {
		h.logger.Error("facility misconfigured", zap.Error(err))
		writeError(w, status, "facility configuration incomplete", err)
		return
	}
	h.logger.Error("request failed", zap.Error(err))
	writeError(w, status, "internal error", nil)
}

// decodeAndValidate reads the JSON body into dst and runs struct validation.
// On failure it writes a 400 and returns false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed", validationDetails(err))
		return false
	}
	return true
}

func validationDetails(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(fields, "; "))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name, err)
		return 0, false
	}
	return id, true
}

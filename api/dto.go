/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Small response wrappers

VALIDATION:
  Request types carry go-playground/validator struct tags. Handlers call
  decodeAndValidate() before touching the service, so a 400 never reaches
  the domain layer.

MONEY & TIME:
  Amounts are decimal strings ("30.00"), instants are RFC 3339 in UTC.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/court-engine/generic"
	"github.com/warp/court-engine/worker"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateBookingRequest struct {
	CourtID  int64  `json:"court_id" validate:"required,gt=0"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot string `json:"time_slot" validate:"required,datetime=15:04"`
}

// UpdatePriceRequest supersedes a demand class price. EffectiveFrom is RFC 3339
// or a plain date (midnight in the facility time zone).
type UpdatePriceRequest struct {
	Amount        string `json:"amount" validate:"required,numeric"`
	EffectiveFrom string `json:"effective_from" validate:"required"`
}

type SetMaintenanceRequest struct {
	UnderMaintenance *bool `json:"under_maintenance" validate:"required"`
}

type CreateUserRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	Surname string `json:"surname" validate:"max=100"`
	Email   string `json:"email" validate:"required,email"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type BookingDTO struct {
	ID          int64   `json:"booking_id"`
	Reference   string  `json:"reference"`
	CourtID     int64   `json:"court_id"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	PriceAmount string  `json:"price_amount"`
	Cancelled   bool    `json:"cancelled"`
	CancelledAt *string `json:"cancelled_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// SlotOfferDTO is one free slot. PriceAmount is null when no price is configured.
type SlotOfferDTO struct {
	CourtID       int64   `json:"court_id"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	PriceAmount   *string `json:"price_amount"`
	DemandClassID int64   `json:"demand_class_id,omitempty"`
}

type CourtDTO struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Covered          bool   `json:"covered"`
	UnderMaintenance bool   `json:"under_maintenance"`
}

type DemandClassDTO struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

type PriceVersionDTO struct {
	ID          int64   `json:"id"`
	Amount      string  `json:"amount"`
	Start       string  `json:"start"`
	End         *string `json:"end"`
	Active      bool    `json:"active"`
	Description string  `json:"description"`
}

type PriceUpdateResponse struct {
	PriceVersionID int64 `json:"price_version_id"`
}

type ScheduleSlotDTO struct {
	DayOfWeek     int    `json:"day_of_week"`
	StartTime     string `json:"start_time"`
	DemandClassID int64  `json:"demand_class_id"`
}

type UserDTO struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Surname         string `json:"surname"`
	Email           string `json:"email"`
	CanRent         bool   `json:"can_rent"`
	CanEditPrice    bool   `json:"can_edit_price"`
	CanEditSchedule bool   `json:"can_edit_schedule"`
	IsAdmin         bool   `json:"is_admin"`
}

type TaskStatsDTO struct {
	Total          int `json:"total"`
	Executed       int `json:"executed"`
	PendingOverdue int `json:"pending_overdue"`
	PendingFuture  int `json:"pending_future"`
	Failed         int `json:"failed"`
	Cancelled      int `json:"cancelled"`
}

type CycleResultDTO struct {
	CycleID    string `json:"cycle_id"`
	Skipped    bool   `json:"skipped"`
	Due        int    `json:"due"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Abandoned  int    `json:"abandoned"`
	Superseded int    `json:"superseded"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toBookingDTO(b generic.Booking) BookingDTO {
	dto := BookingDTO{
		ID:          int64(b.ID),
		Reference:   b.Reference,
		CourtID:     int64(b.ResourceID),
		StartTime:   formatInstant(b.Start),
		EndTime:     formatInstant(b.End),
		PriceAmount: b.PriceAmount.StringFixed(2),
		Cancelled:   b.Cancelled,
		CreatedAt:   formatInstant(b.CreatedAt),
	}
	if b.CancelledAt != nil {
		at := formatInstant(*b.CancelledAt)
		dto.CancelledAt = &at
	}
	return dto
}

func toSlotOfferDTO(o generic.SlotOffer) SlotOfferDTO {
	dto := SlotOfferDTO{
		CourtID:       int64(o.ResourceID),
		StartTime:     formatInstant(o.Start),
		EndTime:       formatInstant(o.End),
		DemandClassID: int64(o.DemandClassID),
	}
	if o.Price != nil {
		amount := o.Price.StringFixed(2)
		dto.PriceAmount = &amount
	}
	return dto
}

func toCourtDTO(r generic.Resource) CourtDTO {
	return CourtDTO{ID: int64(r.ID), Name: r.Name, Covered: r.Covered, UnderMaintenance: r.UnderMaintenance}
}

func toPriceVersionDTO(p generic.PriceVersion) PriceVersionDTO {
	dto := PriceVersionDTO{
		ID:          int64(p.ID),
		Amount:      p.Amount.StringFixed(2),
		Start:       formatInstant(p.Start),
		Active:      p.Active,
		Description: p.Description,
	}
	if p.End != nil {
		end := formatInstant(*p.End)
		dto.End = &end
	}
	return dto
}

func toUserDTO(u generic.User) UserDTO {
	return UserDTO{
		ID:              int64(u.ID),
		Name:            u.Name,
		Surname:         u.Surname,
		Email:           u.Email,
		CanRent:         u.CanRent,
		CanEditPrice:    u.CanEditPrice,
		CanEditSchedule: u.CanEditSchedule,
		IsAdmin:         u.IsAdmin,
	}
}

func toTaskStatsDTO(s generic.TaskStats) TaskStatsDTO {
	return TaskStatsDTO{
		Total:          s.Total,
		Executed:       s.Executed,
		PendingOverdue: s.PendingOverdue,
		PendingFuture:  s.PendingFuture,
		Failed:         s.Failed,
		Cancelled:      s.Cancelled,
	}
}

func toCycleResultDTO(r worker.CycleResult) CycleResultDTO {
	return CycleResultDTO{
		CycleID:    r.CycleID,
		Skipped:    r.Skipped,
		Due:        r.Due,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Abandoned:  r.Abandoned,
		Superseded: r.Superseded,
	}
}

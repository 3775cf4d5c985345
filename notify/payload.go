package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/court-engine/generic"
)

// Payload is the JSON body stored on notification tasks. It is captured
// when the task is enqueued so the email describes the booking as it was
// at that moment.
type Payload struct {
	Recipient string `json:"recipient"`
	UserName  string `json:"user_name"`

	BookingID generic.BookingID  `json:"booking_id,omitempty"`
	Reference string             `json:"reference,omitempty"`
	CourtID   generic.ResourceID `json:"court_id,omitempty"`
	CourtName string             `json:"court_name,omitempty"`
	Covered   bool               `json:"covered,omitempty"`
	Start     *time.Time         `json:"start_time,omitempty"`
	End       *time.Time         `json:"end_time,omitempty"`

	Amount decimal.Decimal `json:"amount"`

	// Price updates only
	DemandClass   string     `json:"demand_class,omitempty"`
	EffectiveFrom *time.Time `json:"effective_from,omitempty"`
}

// BookingPayload describes a booking for its owner.
func BookingPayload(user generic.User, court generic.Resource, b generic.Booking) Payload {
	start, end := b.Start, b.End
	return Payload{
		Recipient: user.Email,
		UserName:  user.FullName(),
		BookingID: b.ID,
		Reference: b.Reference,
		CourtID:   court.ID,
		CourtName: court.Name,
		Covered:   court.Covered,
		Start:     &start,
		End:       &end,
		Amount:    b.PriceAmount,
	}
}

// PriceUpdatePayload describes a superseded price for the user who made the change.
func PriceUpdatePayload(user generic.User, demand generic.DemandClass, amount decimal.Decimal, effectiveFrom time.Time) Payload {
	from := effectiveFrom.UTC()
	return Payload{
		Recipient:     user.Email,
		UserName:      user.FullName(),
		Amount:        amount,
		DemandClass:   demand.Code,
		EffectiveFrom: &from,
	}
}

func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode notification payload: %w", err)
	}
	if p.Recipient == "" {
		return Payload{}, fmt.Errorf("notification payload has no recipient")
	}
	return p, nil
}

package httpgin

import (
	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/service/scheduler"
)

type RuleRequest struct {
	RuleType              domain.RuleType  `json:"rule_type" binding:"required"`
	Frequency             domain.Frequency `json:"frequency"`
	Weekdays              []int            `json:"weekdays"`
	Date                  string           `json:"date"`
	StartTime             string           `json:"start_time" binding:"required"`
	DurationMinutes       int              `json:"duration_minutes"`
	Capacity              int              `json:"capacity"`
	BookingDeadlineHours  int              `json:"booking_deadline_hours"`
	GenerateDaysInAdvance int              `json:"generate_days_in_advance"`
	Active                *bool            `json:"active"`
}

func (r RuleRequest) toDomain(listingID, vendorID string) domain.AvailabilityRule {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return domain.AvailabilityRule{
		ListingID:             listingID,
		VendorID:              vendorID,
		Type:                  r.RuleType,
		Frequency:             r.Frequency,
		Weekdays:              r.Weekdays,
		Date:                  r.Date,
		StartTime:             r.StartTime,
		DurationMinutes:       r.DurationMinutes,
		Capacity:              r.Capacity,
		BookingDeadlineHours:  r.BookingDeadlineHours,
		GenerateDaysInAdvance: r.GenerateDaysInAdvance,
		Active:                active,
	}
}

type RuleResponse struct {
	Rule         domain.AvailabilityRule `json:"rule"`
	SlotsCreated int                     `json:"slots_created"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type GenerateResponse struct {
	SlotsCreated int `json:"slots_created"`
}

type CancelRequest struct {
	Reason  domain.CancelReason `json:"reason"`
	Message string              `json:"message"`
}

type CancelSlotResponse struct {
	Slot            SlotResponse `json:"slot"`
	Cancelled       int          `json:"bookings_cancelled"`
	RefundsQueued   int          `json:"refunds_queued"`
	WaitlistExpired int          `json:"waitlist_expired"`
}

// SlotResponse adds the derived availability to a slot.
type SlotResponse struct {
	domain.Slot
	Available int `json:"available"`
}

func toSlotResponse(s domain.Slot) SlotResponse {
	return SlotResponse{Slot: s, Available: s.Available()}
}

func toSlotResponses(slots []domain.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

type CreateBookingRequest struct {
	Guests      int   `json:"guests"`
	AmountCents int64 `json:"amount_cents"`
}

type CheckoutResponse struct {
	Booking       domain.Booking `json:"booking"`
	PaymentHandle string         `json:"payment_handle"`
	ClientSecret  string         `json:"client_secret,omitempty"`
}

type JoinWaitlistRequest struct {
	Email string `json:"email"`
}

type PaymentWebhookRequest struct {
	Handle    string `json:"handle"`
	BookingID string `json:"booking_id"`
	Status    string `json:"status" binding:"required,oneof=paid failed"`
	Reason    string `json:"reason"`
}

type RefundWebhookRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
}

type JobResponse struct {
	Job       string `json:"job"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	TookMS    int64  `json:"took_ms"`
}

func toJobResponse(s scheduler.Summary) JobResponse {
	return JobResponse{
		Job:       s.Job,
		Processed: s.Processed,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		TookMS:    s.Took.Milliseconds(),
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

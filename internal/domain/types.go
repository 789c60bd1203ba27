package domain

import (
	"time"
)

type RuleType string

const (
	RuleRecurring RuleType = "recurring"
	RuleOneTime   RuleType = "one-time"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// HorizonIndefinite marks a rule that keeps a rolling generation window.
const HorizonIndefinite = -1

type SlotStatus string

const (
	SlotActive    SlotStatus = "active"
	SlotBlocked   SlotStatus = "blocked"
	SlotCancelled SlotStatus = "cancelled"
	SlotCompleted SlotStatus = "completed"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

type WaitlistStatus string

const (
	WaitlistWaiting  WaitlistStatus = "waiting"
	WaitlistNotified WaitlistStatus = "notified"
	WaitlistExpired  WaitlistStatus = "expired"
	WaitlistBooked   WaitlistStatus = "booked"
)

type CancelReason string

const (
	ReasonCustomerRequest CancelReason = "customer_request"
	ReasonVendorCancelled CancelReason = "vendor_cancelled"
	ReasonWeather         CancelReason = "weather"
	ReasonEmergency       CancelReason = "emergency"
	ReasonPaymentFailed   CancelReason = "payment_failed"
	ReasonOther           CancelReason = "other"
)

func (r CancelReason) Valid() bool {
	switch r {
	case ReasonCustomerRequest, ReasonVendorCancelled, ReasonWeather,
		ReasonEmergency, ReasonPaymentFailed, ReasonOther:
		return true
	}
	return false
}

type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorVendor   Actor = "vendor"
	ActorSystem   Actor = "system"
)

type AvailabilityRule struct {
	ID        string   `json:"id"`
	ListingID string   `json:"listing_id"`
	VendorID  string   `json:"vendor_id"`
	Type      RuleType `json:"rule_type"`

	// Recurring pattern.
	Frequency Frequency `json:"frequency,omitempty"`
	Weekdays  []int     `json:"weekdays,omitempty"` // 1=Mon..7=Sun

	// One-time pattern.
	Date string `json:"date,omitempty"`

	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`

	Capacity              int  `json:"capacity"`
	BookingDeadlineHours  int  `json:"booking_deadline_hours"`
	GenerateDaysInAdvance int  `json:"generate_days_in_advance"`
	Active                bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Horizon returns the number of days to generate ahead, substituting
// indefiniteDays for the rolling sentinel.
func (r AvailabilityRule) Horizon(indefiniteDays int) int {
	if r.GenerateDaysInAdvance == HorizonIndefinite {
		return indefiniteDays
	}
	return r.GenerateDaysInAdvance
}

type Cancellation struct {
	At      time.Time    `json:"at"`
	Actor   Actor        `json:"actor"`
	ActorID string       `json:"actor_id,omitempty"`
	Reason  CancelReason `json:"reason"`
	Message string       `json:"message,omitempty"`
}

type Slot struct {
	ID        string `json:"id"`
	ListingID string `json:"listing_id"`
	VendorID  string `json:"vendor_id"`
	RuleID    string `json:"rule_id,omitempty"`

	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	Capacity int        `json:"capacity"`
	Booked   int        `json:"booked"`
	Status   SlotStatus `json:"status"`

	BookingDeadline time.Time     `json:"booking_deadline"`
	Cancellation    *Cancellation `json:"cancellation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Available is always derived from capacity and booked.
func (s Slot) Available() int {
	return s.Capacity - s.Booked
}

func (s Slot) Full() bool {
	return s.Available() <= 0
}

type Booking struct {
	ID         string `json:"id"`
	ListingID  string `json:"listing_id"`
	SlotID     string `json:"slot_id"`
	CustomerID string `json:"customer_id"`
	VendorID   string `json:"vendor_id"`

	Guests      int   `json:"guests"`
	AmountCents int64 `json:"amount_cents"`

	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentHandle string        `json:"payment_handle,omitempty"`

	Cancellation    *Cancellation `json:"cancellation,omitempty"`
	RefundProcessed bool          `json:"refund_processed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b Booking) Active() bool {
	return b.Status == BookingPending || b.Status == BookingConfirmed
}

type WaitlistEntry struct {
	ID         string         `json:"id"`
	SlotID     string         `json:"slot_id"`
	ListingID  string         `json:"listing_id"`
	CustomerID string         `json:"customer_id"`
	Email      string         `json:"email"`
	Status     WaitlistStatus `json:"status"`
	JoinedAt   time.Time      `json:"joined_at"`
	NotifiedAt *time.Time     `json:"notified_at,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

type NotificationType string

const (
	NotifyBookingCreated    NotificationType = "booking_created"
	NotifyBookingConfirmed  NotificationType = "booking_confirmed"
	NotifyBookingCancelled  NotificationType = "booking_cancelled"
	NotifyPaymentFailed     NotificationType = "payment_failed"
	NotifySlotCancelled     NotificationType = "slot_cancelled"
	NotifyWaitlistJoined    NotificationType = "waitlist_joined"
	NotifyWaitlistAvailable NotificationType = "waitlist_spot_available"
	NotifyWaitlistExpired   NotificationType = "waitlist_expired"
	NotifyRefundRequested   NotificationType = "refund_requested"
)

type Notification struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	Type            NotificationType `json:"type"`
	Title           string           `json:"title"`
	Message         string           `json:"message"`
	ListingID       string           `json:"listing_id,omitempty"`
	BookingID       string           `json:"booking_id,omitempty"`
	SlotID          string           `json:"slot_id,omitempty"`
	WaitlistEntryID string           `json:"waitlist_entry_id,omitempty"`
	Read            bool             `json:"read"`
	CreatedAt       time.Time        `json:"created_at"`
}

type RefundStatus string

const (
	RefundPending RefundStatus = "pending"
	RefundSent    RefundStatus = "sent"
)

// RefundRequest is an outbox row: written in the cancelling transaction and
// delivered to the payment collaborator afterwards.
type RefundRequest struct {
	ID          string       `json:"id"`
	BookingID   string       `json:"booking_id"`
	AmountCents int64        `json:"amount_cents"`
	Status      RefundStatus `json:"status"`
	Attempts    int          `json:"attempts"`
	LastError   string       `json:"last_error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

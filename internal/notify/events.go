// Package notify turns domain transitions into user-facing notifications and
// fans them out to sinks after the owning transaction commits.
package notify

import (
	"fmt"
	"time"

	"github.com/kirinyoku/tripslot/internal/domain"
)

type Event struct {
	Type            domain.NotificationType `json:"type"`
	UserID          string                  `json:"user_id"`
	Title           string                  `json:"title"`
	Message         string                  `json:"message"`
	ListingID       string                  `json:"listing_id,omitempty"`
	BookingID       string                  `json:"booking_id,omitempty"`
	SlotID          string                  `json:"slot_id,omitempty"`
	WaitlistEntryID string                  `json:"waitlist_entry_id,omitempty"`
	At              time.Time               `json:"at"`
}

func slotLabel(s domain.Slot) string {
	return fmt.Sprintf("%s %s-%s", s.Date, s.StartTime, s.EndTime)
}

func bookingEvent(t domain.NotificationType, b domain.Booking, at time.Time, userID, title, msg string) Event {
	return Event{
		Type:      t,
		UserID:    userID,
		Title:     title,
		Message:   msg,
		ListingID: b.ListingID,
		BookingID: b.ID,
		SlotID:    b.SlotID,
		At:        at,
	}
}

// BookingCreated goes to both the customer and the vendor.
func BookingCreated(b domain.Booking, s domain.Slot, at time.Time) []Event {
	return []Event{
		bookingEvent(domain.NotifyBookingCreated, b, at, b.CustomerID, "Booking received",
			fmt.Sprintf("Your booking for %d guest(s) on %s is pending payment.", b.Guests, slotLabel(s))),
		bookingEvent(domain.NotifyBookingCreated, b, at, b.VendorID, "New booking",
			fmt.Sprintf("%d guest(s) booked %s.", b.Guests, slotLabel(s))),
	}
}

func BookingConfirmed(b domain.Booking, at time.Time) Event {
	return bookingEvent(domain.NotifyBookingConfirmed, b, at, b.CustomerID, "Booking confirmed",
		"Payment received. Your booking is confirmed.")
}

func PaymentFailed(b domain.Booking, reason string, at time.Time) Event {
	msg := "Payment could not be completed and the booking was released."
	if reason != "" {
		msg = fmt.Sprintf("Payment could not be completed (%s) and the booking was released.", reason)
	}
	return bookingEvent(domain.NotifyPaymentFailed, b, at, b.CustomerID, "Payment failed", msg)
}

// BookingCancelled notifies whichever party did not cancel.
func BookingCancelled(b domain.Booking, at time.Time) Event {
	c := b.Cancellation
	userID := b.VendorID
	msg := "A customer cancelled their booking."
	if c == nil || c.Actor != domain.ActorCustomer {
		userID = b.CustomerID
		msg = "Your booking was cancelled."
	}
	if c != nil && c.Message != "" {
		msg += " " + c.Message
	}
	return bookingEvent(domain.NotifyBookingCancelled, b, at, userID, "Booking cancelled", msg)
}

func SlotCancelled(b domain.Booking, s domain.Slot, at time.Time) Event {
	msg := fmt.Sprintf("The session on %s was cancelled by the vendor.", slotLabel(s))
	if s.Cancellation != nil {
		msg = fmt.Sprintf("The session on %s was cancelled (%s).", slotLabel(s), s.Cancellation.Reason)
		if s.Cancellation.Message != "" {
			msg += " " + s.Cancellation.Message
		}
	}
	return bookingEvent(domain.NotifySlotCancelled, b, at, b.CustomerID, "Session cancelled", msg)
}

func RefundRequested(b domain.Booking, at time.Time) Event {
	return bookingEvent(domain.NotifyRefundRequested, b, at, b.CustomerID, "Refund requested",
		fmt.Sprintf("A refund of %d cents has been requested.", b.AmountCents))
}

func entryEvent(t domain.NotificationType, e domain.WaitlistEntry, at time.Time, title, msg string) Event {
	return Event{
		Type:            t,
		UserID:          e.CustomerID,
		Title:           title,
		Message:         msg,
		ListingID:       e.ListingID,
		SlotID:          e.SlotID,
		WaitlistEntryID: e.ID,
		At:              at,
	}
}

func WaitlistJoined(e domain.WaitlistEntry, at time.Time) Event {
	return entryEvent(domain.NotifyWaitlistJoined, e, at, "On the waitlist",
		"You will be notified if a spot opens up.")
}

func WaitlistSpotAvailable(e domain.WaitlistEntry, at time.Time) Event {
	msg := "A spot opened up. Book it before someone else does."
	if e.ExpiresAt != nil {
		msg = fmt.Sprintf("A spot opened up. Book by %s before it is offered to the next person.",
			e.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return entryEvent(domain.NotifyWaitlistAvailable, e, at, "Spot available", msg)
}

func WaitlistExpired(e domain.WaitlistEntry, at time.Time) Event {
	return entryEvent(domain.NotifyWaitlistExpired, e, at, "Waitlist spot expired",
		"Your waitlist offer expired. Join again to stay in line.")
}

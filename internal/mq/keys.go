package mq

// Routing keys on the booking exchange.
const (
	RKBookingCreated   = "booking.created"
	RKBookingConfirmed = "booking.confirmed"
	RKBookingCancelled = "booking.cancelled"
	RKPaymentFailed    = "booking.payment_failed"
	RKSlotCancelled    = "slot.cancelled"
	RKWaitlistJoined   = "waitlist.joined"
	RKWaitlistNotified = "waitlist.notified"
	RKWaitlistExpired  = "waitlist.expired"
	RKRefundRequested  = "refund.requested"
)

// Routing keys on the payment exchange.
const (
	RKPaymentPaid     = "payment.paid"
	RKPaymentDeclined = "payment.failed"
)

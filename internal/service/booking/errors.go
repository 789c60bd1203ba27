package booking

import "errors"

var (
	ErrBookingNotFound    = errors.New("booking not found")
	ErrForbidden          = errors.New("booking belongs to another user")
	ErrNotCancellable     = errors.New("booking is already cancelled or completed")
	ErrPaymentUnavailable = errors.New("payment could not be initiated")
	ErrSlotNotFound       = errors.New("slot not found")
	ErrSlotForbidden      = errors.New("slot belongs to another vendor")
	ErrSlotNotCancellable = errors.New("slot is not active")
)

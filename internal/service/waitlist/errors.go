package waitlist

import "errors"

var (
	ErrSlotNotFound    = errors.New("slot not found")
	ErrSlotNotFull     = errors.New("slot still has availability")
	ErrSlotUnavailable = errors.New("slot is not open for booking")
	ErrAlreadyJoined   = errors.New("customer is already on the waitlist for this slot")
	ErrEntryNotFound   = errors.New("waitlist entry not found")
)

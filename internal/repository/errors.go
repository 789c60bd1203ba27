package repository

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrSlotClosed        = errors.New("booking deadline passed")
	ErrSlotUnavailable   = errors.New("slot not active")
	ErrSlotHasBookings   = errors.New("slot has bookings")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrCapacityUnderflow = errors.New("release exceeds booked count")
	// ErrContention means a transaction kept losing serialization races
	// and the caller may retry later.
	ErrContention        = errors.New("transaction contention")
)

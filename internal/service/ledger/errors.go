package ledger

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/tripslot/internal/repository"
)

var (
	ErrSlotNotFound      = errors.New("slot not found")
	ErrCapacityExceeded  = errors.New("slot is full")
	ErrSlotClosed        = errors.New("booking deadline has passed")
	ErrSlotUnavailable   = errors.New("slot is not open for booking")
	ErrSlotHasBookings   = errors.New("slot has bookings")
	ErrInvalidTransition = errors.New("slot status does not allow this change")
	ErrInvalidCount      = errors.New("count must be positive")
	ErrForbidden         = errors.New("slot belongs to another vendor")
)

// translate maps storage sentinels onto ledger errors.
func translate(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s:%w", op, ErrSlotNotFound)
	case errors.Is(err, repository.ErrCapacityExceeded):
		return fmt.Errorf("%s:%w", op, ErrCapacityExceeded)
	case errors.Is(err, repository.ErrSlotClosed):
		return fmt.Errorf("%s:%w", op, ErrSlotClosed)
	case errors.Is(err, repository.ErrSlotUnavailable):
		return fmt.Errorf("%s:%w", op, ErrSlotUnavailable)
	case errors.Is(err, repository.ErrSlotHasBookings):
		return fmt.Errorf("%s:%w", op, ErrSlotHasBookings)
	case errors.Is(err, repository.ErrInvalidTransition):
		return fmt.Errorf("%s:%w", op, ErrInvalidTransition)
	}
	return fmt.Errorf("%s:%w", op, err)
}

// Outcome names a reservation result for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCapacityExceeded):
		return "slot_full"
	case errors.Is(err, ErrSlotClosed):
		return "slot_closed"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrSlotNotFound):
		return "not_found"
	}
	return "error"
}

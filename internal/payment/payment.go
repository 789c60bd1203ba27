// Package payment holds the contract the booking engine expects from the
// payment processor and the adapters that speak to it.
package payment

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("payment processor unavailable")

// Intent is a client-confirmable payment handle.
type Intent struct {
	Handle       string `json:"handle"`
	ClientSecret string `json:"client_secret,omitempty"`
}

type Gateway interface {
	CreateIntent(ctx context.Context, bookingID string, amountCents int64) (Intent, error)
}

// Refunder is fire-and-forget: a nil error means the request was accepted,
// completion arrives later through the refund callback.
type Refunder interface {
	RequestRefund(ctx context.Context, bookingID string, amountCents int64) error
}

// Result is an asynchronous charge outcome keyed by the intent handle.
type Result struct {
	Handle    string `json:"handle"`
	BookingID string `json:"booking_id,omitempty"`
	Succeeded bool   `json:"succeeded"`
	Reason    string `json:"reason,omitempty"`
}

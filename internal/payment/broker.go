package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/tripslot/internal/mq"
)

type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// BrokerRefunder requests refunds by publishing refund.requested on the
// payment exchange.
type BrokerRefunder struct {
	pub Publisher
}

func NewBrokerRefunder(pub Publisher) *BrokerRefunder {
	return &BrokerRefunder{pub: pub}
}

type refundRequested struct {
	Event   string `json:"event"`
	Version int    `json:"version"`
	Data    struct {
		BookingID   string `json:"booking_id"`
		AmountCents int64  `json:"amount_cents"`
		RequestedAt int64  `json:"requested_at"`
	} `json:"data"`
}

func (r *BrokerRefunder) RequestRefund(ctx context.Context, bookingID string, amountCents int64) error {
	const op = "payment.BrokerRefunder.RequestRefund"

	msg := refundRequested{Event: mq.RKRefundRequested, Version: 1}
	msg.Data.BookingID = bookingID
	msg.Data.AmountCents = amountCents
	msg.Data.RequestedAt = time.Now().Unix()

	if err := r.pub.PublishJSON(ctx, mq.RKRefundRequested, msg); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	return nil
}

// Package consumer drains broker queues into the booking services.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/mq"
	"github.com/kirinyoku/tripslot/internal/payment"
	"github.com/kirinyoku/tripslot/internal/service/booking"
)

type PaymentHandler interface {
	HandlePaymentResult(ctx context.Context, res payment.Result) (*domain.Booking, error)
}

// Payments applies payment.paid / payment.failed events. Deliveries are
// acked once applied; a transient failure is requeued once and then
// dropped to the dead-letter policy of the queue.
type Payments struct {
	handler PaymentHandler
	logger  *slog.Logger
}

func NewPayments(handler PaymentHandler, logger *slog.Logger) *Payments {
	return &Payments{
		handler: handler,
		logger:  logger.With(slog.String("component", "payment-consumer")),
	}
}

// Keys are the routing keys the payment queue binds to.
func (p *Payments) Keys() []string {
	return []string{mq.RKPaymentPaid, mq.RKPaymentDeclined}
}

// Run consumes until ctx is done or the delivery channel closes.
func (p *Payments) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	p.logger.Info("consuming payment events")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("consumer.Payments.Run: delivery channel closed")
			}
			p.Handle(ctx, d)
		}
	}
}

func decode(d amqp.Delivery) (payment.Result, error) {
	var res payment.Result
	if err := json.Unmarshal(d.Body, &res); err != nil {
		return res, err
	}

	switch d.RoutingKey {
	case mq.RKPaymentPaid:
		res.Succeeded = true
	case mq.RKPaymentDeclined:
		res.Succeeded = false
	default:
		return res, fmt.Errorf("unexpected routing key %q", d.RoutingKey)
	}
	if res.Handle == "" && res.BookingID == "" {
		return res, errors.New("handle or booking_id required")
	}
	return res, nil
}

func (p *Payments) Handle(ctx context.Context, d amqp.Delivery) {
	log := p.logger.With(
		slog.String("routing_key", d.RoutingKey),
		slog.String("message_id", d.MessageId),
	)

	res, err := decode(d)
	if err != nil {
		log.Warn("rejecting malformed payment event", slog.Any("error", err))
		_ = d.Reject(false)
		return
	}

	_, err = p.handler.HandlePaymentResult(ctx, res)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, booking.ErrBookingNotFound):
		log.Warn("payment event for unknown booking", slog.String("handle", res.Handle))
		_ = d.Ack(false)
	default:
		log.Error("payment event failed", slog.Bool("redelivered", d.Redelivered), slog.Any("error", err))
		_ = d.Nack(false, !d.Redelivered)
	}
}

package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Consumer struct {
	ch    *amqp.Channel
	queue string
}

// NewConsumer declares a durable queue bound to exchange under every key.
func NewConsumer(conn *amqp.Connection, exchange, queue string, keys []string, prefetch int) (*Consumer, error) {
	const op = "mq.NewConsumer"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: open channel: %w", op, err)
	}
	fail := func(step string, err error) (*Consumer, error) {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %s: %w", op, step, err)
	}

	if err := declareExchange(ch, exchange); err != nil {
		return fail("declare exchange", err)
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue", err)
	}
	for _, rk := range keys {
		if err := ch.QueueBind(q.Name, rk, exchange, false, nil); err != nil {
			return fail("bind "+rk, err)
		}
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fail("qos", err)
		}
	}
	return &Consumer{ch: ch, queue: q.Name}, nil
}

// Deliveries starts consuming with manual acks. The channel closes when
// ctx is done or the connection drops.
func (c *Consumer) Deliveries(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		return c.ch.Close()
	}
	return nil
}

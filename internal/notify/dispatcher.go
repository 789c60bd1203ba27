package notify

import (
	"context"
	"log/slog"
)

type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Dispatcher delivers every event to every sink. Sink errors are logged
// and never returned: a notification outage must not fail a booking.
type Dispatcher struct {
	logger *slog.Logger
	sinks  []Sink
}

func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		logger: logger.With(slog.String("component", "notify")),
		sinks:  sinks,
	}
}

// Dispatch is safe to call on a nil Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, events ...Event) {
	if d == nil {
		return
	}
	for _, ev := range events {
		for _, s := range d.sinks {
			if err := s.Deliver(ctx, ev); err != nil {
				d.logger.Warn("notification delivery failed",
					slog.String("sink", s.Name()),
					slog.String("type", string(ev.Type)),
					slog.String("user_id", ev.UserID),
					slog.Any("error", err),
				)
			}
		}
	}
}

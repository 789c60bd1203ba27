package postgres

import (
	"time"

	"github.com/kirinyoku/tripslot/internal/domain"
)

// cancelCols scans the nullable cancelled_* columns shared by slots and bookings.
type cancelCols struct {
	at      *time.Time
	actor   *string
	actorID *string
	reason  *string
	message *string
}

func (c *cancelCols) dest() []any {
	return []any{&c.at, &c.actor, &c.actorID, &c.reason, &c.message}
}

func (c *cancelCols) value() *domain.Cancellation {
	if c.at == nil {
		return nil
	}
	out := &domain.Cancellation{At: *c.at}
	if c.actor != nil {
		out.Actor = domain.Actor(*c.actor)
	}
	if c.actorID != nil {
		out.ActorID = *c.actorID
	}
	if c.reason != nil {
		out.Reason = domain.CancelReason(*c.reason)
	}
	if c.message != nil {
		out.Message = *c.message
	}
	return out
}

// cancelArgs flattens c into column values; nil c yields NULLs.
func cancelArgs(c *domain.Cancellation) []any {
	if c == nil {
		return []any{nil, nil, nil, nil, nil}
	}
	return []any{c.At, string(c.Actor), c.ActorID, string(c.Reason), c.Message}
}

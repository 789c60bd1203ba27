// Package memory is a single-process Store. Transactions run against a
// private copy of the state under one mutex and replace it on success, so
// every transaction is serializable and a failed one leaves no trace.
package memory

import (
	"context"
	"sync"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type state struct {
	rules         map[string]domain.AvailabilityRule
	slots         map[string]domain.Slot
	bookings      map[string]domain.Booking
	waitlist      map[string]domain.WaitlistEntry
	notifications map[string]domain.Notification
	refunds       map[string]domain.RefundRequest
	// seq orders rows that share a timestamp.
	seq   int64
	order map[string]int64
}

func newState() *state {
	return &state{
		rules:         map[string]domain.AvailabilityRule{},
		slots:         map[string]domain.Slot{},
		bookings:      map[string]domain.Booking{},
		waitlist:      map[string]domain.WaitlistEntry{},
		notifications: map[string]domain.Notification{},
		refunds:       map[string]domain.RefundRequest{},
		order:         map[string]int64{},
	}
}

func (s *state) clone() *state {
	return &state{
		rules:         cloneMap(s.rules),
		slots:         cloneMap(s.slots),
		bookings:      cloneMap(s.bookings),
		waitlist:      cloneMap(s.waitlist),
		notifications: cloneMap(s.notifications),
		refunds:       cloneMap(s.refunds),
		seq:           s.seq,
		order:         cloneMap(s.order),
	}
}

func (s *state) stamp(id string) {
	s.seq++
	s.order[id] = s.seq
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) Repos() repository.Repos {
	return &repos{store: s}
}

func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &repos{store: s, tx: work}); err != nil {
		return err
	}

	s.st = work
	return nil
}

// repos operates on tx when bound to a transaction, otherwise on the shared
// state under the store mutex.
type repos struct {
	store *Store
	tx    *state
}

func (r *repos) with(fn func(st *state) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.st)
}

func (r *repos) Rules() repository.RuleRepo                 { return ruleRepo{r} }
func (r *repos) Slots() repository.SlotRepo                 { return slotRepo{r} }
func (r *repos) Bookings() repository.BookingRepo           { return bookingRepo{r} }
func (r *repos) Waitlist() repository.WaitlistRepo          { return waitlistRepo{r} }
func (r *repos) Notifications() repository.NotificationRepo { return notificationRepo{r} }
func (r *repos) Refunds() repository.RefundRepo             { return refundRepo{r} }

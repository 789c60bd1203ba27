package memory

import (
	"context"
	"sort"
	"time"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type bookingRepo struct{ r *repos }

func (x bookingRepo) Create(_ context.Context, b *domain.Booking) error {
	return x.r.with(func(st *state) error {
		if _, ok := st.bookings[b.ID]; ok {
			return repository.ErrConflict
		}
		st.bookings[b.ID] = *b
		st.stamp(b.ID)
		return nil
	})
}

func (x bookingRepo) Get(_ context.Context, id string) (*domain.Booking, error) {
	return x.find(func(b domain.Booking) bool { return b.ID == id })
}

func (x bookingRepo) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return x.Get(ctx, id)
}

func (x bookingRepo) GetByPaymentHandle(_ context.Context, handle string) (*domain.Booking, error) {
	if handle == "" {
		return nil, repository.ErrNotFound
	}
	return x.find(func(b domain.Booking) bool { return b.PaymentHandle == handle })
}

func (x bookingRepo) find(match func(domain.Booking) bool) (*domain.Booking, error) {
	var out domain.Booking
	err := x.r.with(func(st *state) error {
		for _, b := range st.bookings {
			if match(b) {
				out = b
				return nil
			}
		}
		return repository.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (x bookingRepo) ListActiveBySlot(_ context.Context, slotID string) ([]domain.Booking, error) {
	return x.list(func(b domain.Booking) bool { return b.SlotID == slotID && b.Active() })
}

func (x bookingRepo) ListByCustomer(_ context.Context, customerID string) ([]domain.Booking, error) {
	return x.list(func(b domain.Booking) bool { return b.CustomerID == customerID })
}

func (x bookingRepo) list(keep func(domain.Booking) bool) ([]domain.Booking, error) {
	var out []domain.Booking
	err := x.r.with(func(st *state) error {
		for _, b := range st.bookings {
			if keep(b) {
				out = append(out, b)
			}
		}
		sort.Slice(out, func(i, j int) bool { return st.order[out[i].ID] < st.order[out[j].ID] })
		return nil
	})
	return out, err
}

func (x bookingRepo) Update(_ context.Context, b *domain.Booking) error {
	return x.r.with(func(st *state) error {
		if _, ok := st.bookings[b.ID]; !ok {
			return repository.ErrNotFound
		}
		st.bookings[b.ID] = *b
		return nil
	})
}

func (x bookingRepo) CompleteBefore(_ context.Context, date string) (int64, error) {
	var n int64
	err := x.r.with(func(st *state) error {
		for id, b := range st.bookings {
			s, ok := st.slots[b.SlotID]
			if !ok || b.Status != domain.BookingConfirmed || s.Date >= date {
				continue
			}
			b.Status = domain.BookingCompleted
			b.UpdatedAt = time.Now()
			st.bookings[id] = b
			n++
		}
		return nil
	})
	return n, err
}

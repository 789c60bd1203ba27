package memory

import (
	"context"
	"sort"
	"time"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type slotRepo struct{ r *repos }

func slotKey(s domain.Slot) string {
	return s.ListingID + "|" + s.Date + "|" + s.StartTime
}

func (x slotRepo) InsertMissing(_ context.Context, slots []domain.Slot) (int, error) {
	var inserted int
	err := x.r.with(func(st *state) error {
		taken := make(map[string]struct{}, len(st.slots))
		for _, s := range st.slots {
			taken[slotKey(s)] = struct{}{}
		}
		for _, s := range slots {
			k := slotKey(s)
			if _, ok := taken[k]; ok {
				continue
			}
			if _, ok := st.slots[s.ID]; ok {
				return repository.ErrConflict
			}
			st.slots[s.ID] = s
			st.stamp(s.ID)
			taken[k] = struct{}{}
			inserted++
		}
		return nil
	})
	return inserted, err
}

func (x slotRepo) Get(_ context.Context, id string) (*domain.Slot, error) {
	var out domain.Slot
	err := x.r.with(func(st *state) error {
		s, ok := st.slots[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate needs no extra locking: transactions already hold the store mutex.
func (x slotRepo) GetForUpdate(ctx context.Context, id string) (*domain.Slot, error) {
	return x.Get(ctx, id)
}

func (x slotRepo) ListByListing(_ context.Context, listingID, from, to string) ([]domain.Slot, error) {
	var out []domain.Slot
	err := x.r.with(func(st *state) error {
		for _, s := range st.slots {
			if s.ListingID != listingID {
				continue
			}
			if from != "" && s.Date < from {
				continue
			}
			if to != "" && s.Date > to {
				continue
			}
			out = append(out, s)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, err
}

// mutate applies fn to the slot and stores the result when fn succeeds.
func (x slotRepo) mutate(id string, fn func(s *domain.Slot) error) (*domain.Slot, error) {
	var out domain.Slot
	err := x.r.with(func(st *state) error {
		s, ok := st.slots[id]
		if !ok {
			return repository.ErrNotFound
		}
		if err := fn(&s); err != nil {
			return err
		}
		st.slots[id] = s
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (x slotRepo) Reserve(_ context.Context, id string, n int, now time.Time) (*domain.Slot, error) {
	return x.mutate(id, func(s *domain.Slot) error {
		switch {
		case s.Status != domain.SlotActive:
			return repository.ErrSlotUnavailable
		case now.After(s.BookingDeadline):
			return repository.ErrSlotClosed
		case s.Booked+n > s.Capacity:
			return repository.ErrCapacityExceeded
		}
		s.Booked += n
		s.UpdatedAt = now
		return nil
	})
}

func (x slotRepo) Release(_ context.Context, id string, n int) (*domain.Slot, error) {
	return x.mutate(id, func(s *domain.Slot) error {
		if s.Booked < n {
			return repository.ErrCapacityUnderflow
		}
		s.Booked -= n
		s.UpdatedAt = time.Now()
		return nil
	})
}

func (x slotRepo) Block(_ context.Context, id string) (*domain.Slot, error) {
	return x.mutate(id, func(s *domain.Slot) error {
		if s.Status != domain.SlotActive {
			return repository.ErrInvalidTransition
		}
		if s.Booked > 0 {
			return repository.ErrSlotHasBookings
		}
		s.Status = domain.SlotBlocked
		s.UpdatedAt = time.Now()
		return nil
	})
}

func (x slotRepo) Unblock(_ context.Context, id string) (*domain.Slot, error) {
	return x.mutate(id, func(s *domain.Slot) error {
		if s.Status != domain.SlotBlocked {
			return repository.ErrInvalidTransition
		}
		s.Status = domain.SlotActive
		s.UpdatedAt = time.Now()
		return nil
	})
}

func (x slotRepo) Cancel(_ context.Context, id string, c domain.Cancellation) (*domain.Slot, error) {
	return x.mutate(id, func(s *domain.Slot) error {
		if s.Status != domain.SlotActive {
			return repository.ErrInvalidTransition
		}
		if s.Booked > 0 {
			return repository.ErrSlotHasBookings
		}
		s.Status = domain.SlotCancelled
		s.Cancellation = &c
		s.UpdatedAt = c.At
		return nil
	})
}

func (x slotRepo) MarkCompletedBefore(_ context.Context, date string) (int64, error) {
	var n int64
	err := x.r.with(func(st *state) error {
		for id, s := range st.slots {
			if s.Status == domain.SlotActive && s.Date < date {
				s.Status = domain.SlotCompleted
				s.UpdatedAt = time.Now()
				st.slots[id] = s
				n++
			}
		}
		return nil
	})
	return n, err
}

func (x slotRepo) DeleteByRule(_ context.Context, ruleID string) (int64, error) {
	var n int64
	err := x.r.with(func(st *state) error {
		for id, s := range st.slots {
			if s.RuleID == ruleID {
				delete(st.slots, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

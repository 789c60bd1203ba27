package memory

import (
	"context"
	"sort"
	"time"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type waitlistRepo struct{ r *repos }

func open(e domain.WaitlistEntry) bool {
	return e.Status == domain.WaitlistWaiting || e.Status == domain.WaitlistNotified
}

func (x waitlistRepo) Create(_ context.Context, e *domain.WaitlistEntry) error {
	return x.r.with(func(st *state) error {
		for _, other := range st.waitlist {
			if other.SlotID == e.SlotID && other.CustomerID == e.CustomerID && open(other) {
				return repository.ErrConflict
			}
		}
		st.waitlist[e.ID] = *e
		st.stamp(e.ID)
		return nil
	})
}

func (x waitlistRepo) Get(_ context.Context, id string) (*domain.WaitlistEntry, error) {
	var out domain.WaitlistEntry
	err := x.r.with(func(st *state) error {
		e, ok := st.waitlist[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// fifo returns the slot's entries ordered by join time, insertion breaking ties.
func fifo(st *state, slotID string) []domain.WaitlistEntry {
	var out []domain.WaitlistEntry
	for _, e := range st.waitlist {
		if e.SlotID == slotID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return st.order[out[i].ID] < st.order[out[j].ID]
	})
	return out
}

func (x waitlistRepo) ListBySlot(_ context.Context, slotID string) ([]domain.WaitlistEntry, error) {
	var out []domain.WaitlistEntry
	err := x.r.with(func(st *state) error {
		out = fifo(st, slotID)
		return nil
	})
	return out, err
}

func (x waitlistRepo) NotifyNext(_ context.Context, slotID string, now, expiresAt time.Time) (*domain.WaitlistEntry, error) {
	var out domain.WaitlistEntry
	err := x.r.with(func(st *state) error {
		for _, e := range fifo(st, slotID) {
			if e.Status != domain.WaitlistWaiting {
				continue
			}
			notifiedAt, exp := now, expiresAt
			e.Status = domain.WaitlistNotified
			e.NotifiedAt = &notifiedAt
			e.ExpiresAt = &exp
			st.waitlist[e.ID] = e
			out = e
			return nil
		}
		return repository.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (x waitlistRepo) Claim(_ context.Context, slotID, customerID string) (*domain.WaitlistEntry, error) {
	var out domain.WaitlistEntry
	err := x.r.with(func(st *state) error {
		for _, e := range fifo(st, slotID) {
			if e.CustomerID != customerID || !open(e) {
				continue
			}
			e.Status = domain.WaitlistBooked
			st.waitlist[e.ID] = e
			out = e
			return nil
		}
		return repository.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (x waitlistRepo) ExpireStale(_ context.Context, now time.Time) ([]domain.WaitlistEntry, error) {
	return x.expire(func(e domain.WaitlistEntry) bool {
		return e.Status == domain.WaitlistNotified && e.ExpiresAt != nil && e.ExpiresAt.Before(now)
	})
}

func (x waitlistRepo) ExpireBySlot(_ context.Context, slotID string) ([]domain.WaitlistEntry, error) {
	return x.expire(func(e domain.WaitlistEntry) bool { return e.SlotID == slotID && open(e) })
}

func (x waitlistRepo) expire(match func(domain.WaitlistEntry) bool) ([]domain.WaitlistEntry, error) {
	var out []domain.WaitlistEntry
	err := x.r.with(func(st *state) error {
		for id, e := range st.waitlist {
			if !match(e) {
				continue
			}
			e.Status = domain.WaitlistExpired
			st.waitlist[id] = e
			out = append(out, e)
		}
		sort.Slice(out, func(i, j int) bool { return st.order[out[i].ID] < st.order[out[j].ID] })
		return nil
	})
	return out, err
}

func (x waitlistRepo) SlotsAwaitingPromotion(_ context.Context, now time.Time) ([]string, error) {
	var out []string
	err := x.r.with(func(st *state) error {
		waiting := map[string]bool{}
		notified := map[string]int{}
		for _, e := range st.waitlist {
			switch e.Status {
			case domain.WaitlistWaiting:
				waiting[e.SlotID] = true
			case domain.WaitlistNotified:
				notified[e.SlotID]++
			}
		}
		for id := range waiting {
			s, ok := st.slots[id]
			if !ok || notified[id] >= s.Available() {
				continue
			}
			if s.Status == domain.SlotActive && !now.After(s.BookingDeadline) {
				out = append(out, id)
			}
		}
		sort.Strings(out)
		return nil
	})
	return out, err
}

package memory

import (
	"context"
	"sort"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type ruleRepo struct{ r *repos }

func (x ruleRepo) Create(_ context.Context, rule *domain.AvailabilityRule) error {
	return x.r.with(func(st *state) error {
		if _, ok := st.rules[rule.ID]; ok {
			return repository.ErrConflict
		}
		st.rules[rule.ID] = copyRule(*rule)
		st.stamp(rule.ID)
		return nil
	})
}

func (x ruleRepo) Get(_ context.Context, id string) (*domain.AvailabilityRule, error) {
	var out domain.AvailabilityRule
	err := x.r.with(func(st *state) error {
		rule, ok := st.rules[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = copyRule(rule)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (x ruleRepo) Update(_ context.Context, rule *domain.AvailabilityRule) error {
	return x.r.with(func(st *state) error {
		if _, ok := st.rules[rule.ID]; !ok {
			return repository.ErrNotFound
		}
		st.rules[rule.ID] = copyRule(*rule)
		return nil
	})
}

func (x ruleRepo) Delete(_ context.Context, id string) error {
	return x.r.with(func(st *state) error {
		if _, ok := st.rules[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.rules, id)
		return nil
	})
}

func (x ruleRepo) ListByListing(_ context.Context, listingID string) ([]domain.AvailabilityRule, error) {
	return x.list(func(rule domain.AvailabilityRule) bool { return rule.ListingID == listingID })
}

func (x ruleRepo) ListActive(_ context.Context) ([]domain.AvailabilityRule, error) {
	return x.list(func(rule domain.AvailabilityRule) bool { return rule.Active })
}

func (x ruleRepo) list(keep func(domain.AvailabilityRule) bool) ([]domain.AvailabilityRule, error) {
	var out []domain.AvailabilityRule
	err := x.r.with(func(st *state) error {
		for _, rule := range st.rules {
			if keep(rule) {
				out = append(out, copyRule(rule))
			}
		}
		sort.Slice(out, func(i, j int) bool { return st.order[out[i].ID] < st.order[out[j].ID] })
		return nil
	})
	return out, err
}

func (x ruleRepo) HasBookings(_ context.Context, ruleID string) (bool, error) {
	var found bool
	err := x.r.with(func(st *state) error {
		for _, b := range st.bookings {
			if s, ok := st.slots[b.SlotID]; ok && s.RuleID == ruleID {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func copyRule(r domain.AvailabilityRule) domain.AvailabilityRule {
	r.Weekdays = append([]int(nil), r.Weekdays...)
	return r
}

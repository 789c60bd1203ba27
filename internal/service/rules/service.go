// Package rules manages vendor availability rules and keeps their slots
// generated.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kirinyoku/tripslot/internal/clock"
	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
	redisrepo "github.com/kirinyoku/tripslot/internal/repository/redis"
	"github.com/kirinyoku/tripslot/internal/service/generator"
	"github.com/kirinyoku/tripslot/internal/uow"
)

type Service struct {
	uow       *uow.UoW
	generator *generator.Service
	cache     *redisrepo.Cache
	clock     clock.Clock
	logger    *slog.Logger
}

func New(
	u *uow.UoW,
	gen *generator.Service,
	cache *redisrepo.Cache,
	clk clock.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		uow:       u,
		generator: gen,
		cache:     cache,
		clock:     clk,
		logger:    logger.With(slog.String("component", "rules")),
	}
}

type Result struct {
	Rule         *domain.AvailabilityRule
	SlotsCreated int
}

// Create validates and stores a rule, then generates its slots for the
// current window. A generation failure is logged and left to the daily
// generation job; the rule itself is kept.
//
// Parameters:
//   - ctx: request context
//   - rule: the rule definition; ID and timestamps are assigned here
//
// Returns:
//   - *Result: the stored rule and the number of slots created
//   - error: domain.ValidationError or a storage error
func (s *Service) Create(ctx context.Context, rule domain.AvailabilityRule) (*Result, error) {
	const op = "service.rules.Create"

	if err := domain.ValidateRule(rule); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	now := s.clock.Now()
	rule.ID = uuid.NewString()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.uow.Repos().Rules().Create(ctx, &rule); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.logger.Info("rule created",
		slog.String("rule_id", rule.ID),
		slog.String("listing_id", rule.ListingID),
		slog.String("type", string(rule.Type)),
	)

	return &Result{Rule: &rule, SlotsCreated: s.generate(ctx, rule)}, nil
}

func (s *Service) generate(ctx context.Context, rule domain.AvailabilityRule) int {
	created, err := s.generator.Generate(ctx, rule)
	if err != nil {
		s.logger.Error("slot generation failed", slog.String("rule_id", rule.ID), slog.Any("error", err))
		return 0
	}
	return created
}

func (s *Service) owned(ctx context.Context, tx repository.Repos, op, id, vendorID string) (*domain.AvailabilityRule, error) {
	rule, err := tx.Rules().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrRuleNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if vendorID != "" && rule.VendorID != vendorID {
		return nil, fmt.Errorf("%s:%w", op, ErrForbidden)
	}
	return rule, nil
}

// Update replaces the rule definition. Slots generated earlier keep their
// capacity, times and deadline; only future generation uses the new shape.
func (s *Service) Update(ctx context.Context, id, vendorID string, next domain.AvailabilityRule) (*Result, error) {
	const op = "service.rules.Update"

	var out domain.AvailabilityRule

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		cur, err := s.owned(ctx, tx, op, id, vendorID)
		if err != nil {
			return err
		}

		next.ID = cur.ID
		next.ListingID = cur.ListingID
		next.VendorID = cur.VendorID
		next.CreatedAt = cur.CreatedAt
		next.UpdatedAt = s.clock.Now()
		if err := domain.ValidateRule(next); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := tx.Rules().Update(ctx, &next); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{Rule: &out, SlotsCreated: s.generate(ctx, out)}, nil
}

// SetActive toggles generation for the rule. Reactivating generates the
// current window right away.
func (s *Service) SetActive(ctx context.Context, id, vendorID string, active bool) (*Result, error) {
	const op = "service.rules.SetActive"

	var out domain.AvailabilityRule

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		cur, err := s.owned(ctx, tx, op, id, vendorID)
		if err != nil {
			return err
		}
		cur.Active = active
		cur.UpdatedAt = s.clock.Now()
		if err := tx.Rules().Update(ctx, cur); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		out = *cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Rule: &out}
	if active {
		res.SlotsCreated = s.generate(ctx, out)
	}
	return res, nil
}

// Delete removes the rule and its slots. Rules whose slots were ever
// booked are kept for the booking history and rejected with ErrRuleInUse.
func (s *Service) Delete(ctx context.Context, id, vendorID string) error {
	const op = "service.rules.Delete"

	return s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		rule, err := s.owned(ctx, tx, op, id, vendorID)
		if err != nil {
			return err
		}

		used, err := tx.Rules().HasBookings(ctx, id)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if used {
			return fmt.Errorf("%s:%w", op, ErrRuleInUse)
		}

		removed, err := tx.Slots().DeleteByRule(ctx, id)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := tx.Rules().Delete(ctx, id); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		listingID := rule.ListingID
		after(func(ctx context.Context) {
			if err := s.cache.InvalidateListing(ctx, listingID); err != nil {
				s.logger.Warn("cache invalidation failed", slog.String("listing_id", listingID), slog.Any("error", err))
			}
			s.logger.Info("rule deleted", slog.String("rule_id", id), slog.Int64("slots_removed", removed))
		})
		return nil
	})
}

// GenerateNow runs generation for one rule and reports the slots created.
// Unlike Create it returns generation errors to the caller.
func (s *Service) GenerateNow(ctx context.Context, id, vendorID string) (int, error) {
	const op = "service.rules.GenerateNow"

	rule, err := s.owned(ctx, s.uow.Repos(), op, id, vendorID)
	if err != nil {
		return 0, err
	}

	created, err := s.generator.Generate(ctx, *rule)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}
	return created, nil
}

// Get returns the rule when vendorID owns it. An empty vendorID skips the
// ownership check.
func (s *Service) Get(ctx context.Context, id, vendorID string) (*domain.AvailabilityRule, error) {
	const op = "service.rules.Get"
	return s.owned(ctx, s.uow.Repos(), op, id, vendorID)
}

func (s *Service) ListByListing(ctx context.Context, listingID string) ([]domain.AvailabilityRule, error) {
	const op = "service.rules.ListByListing"

	list, err := s.uow.Repos().Rules().ListByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	return list, nil
}

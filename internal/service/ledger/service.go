package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/tripslot/internal/clock"
	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/metrics"
	"github.com/kirinyoku/tripslot/internal/repository"
	redisrepo "github.com/kirinyoku/tripslot/internal/repository/redis"
	"github.com/kirinyoku/tripslot/internal/uow"
)

type Config struct {
	Location *time.Location
	CacheTTL time.Duration
}

// Service owns slot capacity and status. Every committed change
// invalidates the availability cache and is broadcast to watchers.
type Service struct {
	uow     *uow.UoW
	clock   clock.Clock
	cache   *redisrepo.Cache
	events  *redisrepo.SlotEvents
	hub     *Hub
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
}

func New(
	u *uow.UoW,
	clk clock.Clock,
	cache *redisrepo.Cache,
	events *redisrepo.SlotEvents,
	hub *Hub,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if hub == nil {
		hub = NewHub()
	}

	return &Service{
		uow:     u,
		clock:   clk,
		cache:   cache,
		events:  events,
		hub:     hub,
		metrics: m,
		logger:  logger.With(slog.String("component", "ledger")),
		cfg:     cfg,
	}
}

func (s *Service) Hub() *Hub { return s.hub }

// Changed registers the after-commit side effects of a slot mutation.
func (s *Service) Changed(after func(uow.AfterCommit), slot domain.Slot) {
	after(func(ctx context.Context) {
		if err := s.cache.InvalidateSlot(ctx, slot.ListingID, slot.ID); err != nil {
			s.logger.Warn("cache invalidation failed", slog.String("slot_id", slot.ID), slog.Any("error", err))
		}

		change := redisrepo.NewSlotChange(slot, s.clock.Now().Unix())
		if s.events == nil {
			s.hub.Broadcast(change)
			return
		}
		if err := s.events.Publish(ctx, change); err != nil {
			s.logger.Warn("slot change publish failed", slog.String("slot_id", slot.ID), slog.Any("error", err))
			s.hub.Broadcast(change)
		}
	})
}

// ReserveTx is the admission-control step of a booking: one atomic
// conditional increment of booked inside the caller's transaction.
func (s *Service) ReserveTx(
	ctx context.Context,
	tx repository.Repos,
	after func(uow.AfterCommit),
	slotID string,
	n int,
) (*domain.Slot, error) {
	const op = "service.ledger.ReserveTx"

	if n < 1 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidCount)
	}

	slot, err := tx.Slots().Reserve(ctx, slotID, n, s.clock.Now())
	if err != nil {
		err = translate(op, err)
		s.metrics.Reservation(Outcome(err))
		return nil, err
	}

	s.metrics.Reservation(Outcome(nil))
	s.Changed(after, *slot)
	return slot, nil
}

func (s *Service) ReleaseTx(
	ctx context.Context,
	tx repository.Repos,
	after func(uow.AfterCommit),
	slotID string,
	n int,
) (*domain.Slot, error) {
	const op = "service.ledger.ReleaseTx"

	if n < 1 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidCount)
	}

	slot, err := tx.Slots().Release(ctx, slotID, n)
	if err != nil {
		return nil, translate(op, err)
	}

	s.Changed(after, *slot)
	return slot, nil
}

// Reserve runs ReserveTx in its own transaction.
func (s *Service) Reserve(ctx context.Context, slotID string, n int) (*domain.Slot, error) {
	var out *domain.Slot
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		var err error
		out, err = s.ReserveTx(ctx, tx, after, slotID, n)
		return err
	})
	return out, err
}

// Release runs ReleaseTx in its own transaction.
func (s *Service) Release(ctx context.Context, slotID string, n int) (*domain.Slot, error) {
	var out *domain.Slot
	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		var err error
		out, err = s.ReleaseTx(ctx, tx, after, slotID, n)
		return err
	})
	return out, err
}

// Block closes an empty slot to new bookings. An empty vendorID skips the
// ownership check.
func (s *Service) Block(ctx context.Context, slotID, vendorID string) (*domain.Slot, error) {
	const op = "service.ledger.Block"
	return s.transition(ctx, op, slotID, vendorID, repository.SlotRepo.Block)
}

func (s *Service) Unblock(ctx context.Context, slotID, vendorID string) (*domain.Slot, error) {
	const op = "service.ledger.Unblock"
	return s.transition(ctx, op, slotID, vendorID, repository.SlotRepo.Unblock)
}

func (s *Service) transition(
	ctx context.Context,
	op string,
	slotID string,
	vendorID string,
	apply func(repository.SlotRepo, context.Context, string) (*domain.Slot, error),
) (*domain.Slot, error) {
	var out *domain.Slot

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		cur, err := tx.Slots().GetForUpdate(ctx, slotID)
		if err != nil {
			return translate(op, err)
		}
		if vendorID != "" && cur.VendorID != vendorID {
			return fmt.Errorf("%s:%w", op, ErrForbidden)
		}

		slot, err := apply(tx.Slots(), ctx, slotID)
		if err != nil {
			return translate(op, err)
		}

		out = slot
		s.Changed(after, *slot)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("slot status changed",
		slog.String("slot_id", out.ID),
		slog.String("status", string(out.Status)),
	)
	return out, nil
}

// CompletionCutoff returns the date before which active slots are
// completed: yesterday in the platform time zone.
func (s *Service) CompletionCutoff() string {
	today := s.clock.Now().In(s.cfg.Location)
	return domain.FormatDate(today.AddDate(0, 0, -1))
}

// MarkCompleted retires active slots dated strictly before yesterday and
// completes their confirmed bookings. Already completed or cancelled slots
// are left alone, so the sweep is idempotent.
func (s *Service) MarkCompleted(ctx context.Context) (slots, bookings int64, err error) {
	const op = "service.ledger.MarkCompleted"

	cutoff := s.CompletionCutoff()

	err = s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		var err error
		if bookings, err = tx.Bookings().CompleteBefore(ctx, cutoff); err != nil {
			return err
		}
		if slots, err = tx.Slots().MarkCompletedBefore(ctx, cutoff); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%s:%w", op, err)
	}
	return slots, bookings, nil
}

func (s *Service) GetSlot(ctx context.Context, slotID string) (*domain.Slot, error) {
	const op = "service.ledger.GetSlot"

	slot, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeySlot(slotID), "", s.cfg.CacheTTL,
		func(ctx context.Context) (domain.Slot, error) {
			slot, err := s.uow.Repos().Slots().Get(ctx, slotID)
			if err != nil {
				return domain.Slot{}, err
			}
			return *slot, nil
		})
	if err != nil {
		return nil, translate(op, err)
	}
	return &slot, nil
}

// ListSlots returns the listing's slots dated within [from, to], either
// bound may be empty.
func (s *Service) ListSlots(ctx context.Context, listingID, from, to string) ([]domain.Slot, error) {
	const op = "service.ledger.ListSlots"

	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := domain.ParseDate(d); err != nil {
			return nil, fmt.Errorf("%s:%w", op, domain.ValidationError{Field: "date", Reason: err.Error()})
		}
	}

	slots, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyListingSlots(listingID), from+".."+to, s.cfg.CacheTTL,
		func(ctx context.Context) ([]domain.Slot, error) {
			return s.uow.Repos().Slots().ListByListing(ctx, listingID, from, to)
		})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	return slots, nil
}

package waitlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/tripslot/internal/clock"
	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/metrics"
	"github.com/kirinyoku/tripslot/internal/notify"
	"github.com/kirinyoku/tripslot/internal/repository"
	"github.com/kirinyoku/tripslot/internal/uow"
)

type Config struct {
	// Window is how long a notified customer has to book.
	Window time.Duration
}

type Service struct {
	uow        *uow.UoW
	clock      clock.Clock
	dispatcher *notify.Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	cfg        Config
}

func New(
	u *uow.UoW,
	clk clock.Clock,
	dispatcher *notify.Dispatcher,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}

	return &Service{
		uow:        u,
		clock:      clk,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With(slog.String("component", "waitlist")),
		cfg:        cfg,
	}
}

// Join queues the customer on a full, active slot.
func (s *Service) Join(ctx context.Context, slotID, customerID, email string) (*domain.WaitlistEntry, error) {
	const op = "service.waitlist.Join"

	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("%s:%w", op, domain.ValidationError{Field: "customer_id", Reason: "required"})
	}

	var entry domain.WaitlistEntry

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		slot, err := tx.Slots().Get(ctx, slotID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrSlotNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}
		if slot.Status != domain.SlotActive {
			return fmt.Errorf("%s:%w", op, ErrSlotUnavailable)
		}
		if !slot.Full() {
			return fmt.Errorf("%s:%w", op, ErrSlotNotFull)
		}

		now := s.clock.Now()
		entry = domain.WaitlistEntry{
			ID:         uuid.NewString(),
			SlotID:     slot.ID,
			ListingID:  slot.ListingID,
			CustomerID: customerID,
			Email:      email,
			Status:     domain.WaitlistWaiting,
			JoinedAt:   now,
		}
		if err := tx.Waitlist().Create(ctx, &entry); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s:%w", op, ErrAlreadyJoined)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		ev := notify.WaitlistJoined(entry, now)
		after(func(ctx context.Context) {
			s.metrics.Waitlist(string(domain.WaitlistWaiting), 1)
			s.dispatcher.Dispatch(ctx, ev)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

// NotifyNextTx promotes the oldest waiting entry of the slot inside the
// caller's transaction. It returns nil when nobody is waiting.
func (s *Service) NotifyNextTx(
	ctx context.Context,
	tx repository.Repos,
	after func(uow.AfterCommit),
	slotID string,
) (*domain.WaitlistEntry, error) {
	const op = "service.waitlist.NotifyNextTx"

	now := s.clock.Now()
	entry, err := tx.Waitlist().NotifyNext(ctx, slotID, now, now.Add(s.cfg.Window))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	ev := notify.WaitlistSpotAvailable(*entry, now)
	after(func(ctx context.Context) {
		s.metrics.Waitlist(string(domain.WaitlistNotified), 1)
		s.dispatcher.Dispatch(ctx, ev)
	})
	return entry, nil
}

// NotifyNext promotes the head of the queue when the slot is active and
// has availability. It is a no-op otherwise.
func (s *Service) NotifyNext(ctx context.Context, slotID string) (*domain.WaitlistEntry, error) {
	const op = "service.waitlist.NotifyNext"

	var out *domain.WaitlistEntry

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		slot, err := tx.Slots().GetForUpdate(ctx, slotID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrSlotNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}
		if !open(*slot, s.clock.Now()) {
			return nil
		}

		out, err = s.NotifyNextTx(ctx, tx, after, slotID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func open(slot domain.Slot, now time.Time) bool {
	return slot.Status == domain.SlotActive && !slot.Full() && !now.After(slot.BookingDeadline)
}

// ClaimTx marks the customer's open entry as booked. It reports false when
// the customer was not on the waitlist.
func (s *Service) ClaimTx(
	ctx context.Context,
	tx repository.Repos,
	after func(uow.AfterCommit),
	slotID, customerID string,
) (bool, error) {
	const op = "service.waitlist.ClaimTx"

	_, err := tx.Waitlist().Claim(ctx, slotID, customerID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, err)
	}

	after(func(context.Context) { s.metrics.Waitlist(string(domain.WaitlistBooked), 1) })
	return true, nil
}

// ExpireSlotTx closes every open entry of a slot that is going away.
func (s *Service) ExpireSlotTx(
	ctx context.Context,
	tx repository.Repos,
	after func(uow.AfterCommit),
	slotID string,
) (int, error) {
	const op = "service.waitlist.ExpireSlotTx"

	expired, err := tx.Waitlist().ExpireBySlot(ctx, slotID)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	s.afterExpired(after, expired)
	return len(expired), nil
}

func (s *Service) afterExpired(after func(uow.AfterCommit), expired []domain.WaitlistEntry) {
	if len(expired) == 0 {
		return
	}
	now := s.clock.Now()
	events := make([]notify.Event, 0, len(expired))
	for _, e := range expired {
		events = append(events, notify.WaitlistExpired(e, now))
	}
	after(func(ctx context.Context) {
		s.metrics.Waitlist(string(domain.WaitlistExpired), len(events))
		s.dispatcher.Dispatch(ctx, events...)
	})
}

type ExpireResult struct {
	Expired int
	// Slots to offer freed capacity on, sorted.
	Slots []string
}

// ExpireStale expires notified entries whose window has closed and returns
// the slots that need a follow-up notification: every slot an expired entry
// belonged to, plus any slot holding fewer notified entries than free units
// after an earlier interrupted sweep. Promotion is left to Cascade so one
// failing slot cannot block the sweep.
func (s *Service) ExpireStale(ctx context.Context) (ExpireResult, error) {
	const op = "service.waitlist.ExpireStale"

	var res ExpireResult

	err := s.uow.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		now := s.clock.Now()

		expired, err := tx.Waitlist().ExpireStale(ctx, now)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		s.afterExpired(after, expired)

		pending, err := tx.Waitlist().SlotsAwaitingPromotion(ctx, now)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		seen := make(map[string]struct{}, len(expired)+len(pending))
		for _, e := range expired {
			seen[e.SlotID] = struct{}{}
		}
		for _, id := range pending {
			seen[id] = struct{}{}
		}
		res.Expired = len(expired)
		for id := range seen {
			res.Slots = append(res.Slots, id)
		}
		return nil
	})
	if err != nil {
		return ExpireResult{}, err
	}

	sort.Strings(res.Slots)
	return res, nil
}

type CascadeResult struct {
	Processed int
	Notified  int
	Failed    int
}

// Cascade runs NotifyNext once per slot, isolating failures.
func (s *Service) Cascade(ctx context.Context, slotIDs []string) CascadeResult {
	var res CascadeResult
	for _, id := range slotIDs {
		res.Processed++
		entry, err := s.NotifyNext(ctx, id)
		if err != nil {
			res.Failed++
			s.logger.Warn("waitlist promotion failed", slog.String("slot_id", id), slog.Any("error", err))
			continue
		}
		if entry != nil {
			res.Notified++
		}
	}
	return res
}

func (s *Service) ListBySlot(ctx context.Context, slotID string) ([]domain.WaitlistEntry, error) {
	const op = "service.waitlist.ListBySlot"

	entries, err := s.uow.Repos().Waitlist().ListBySlot(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	return entries, nil
}

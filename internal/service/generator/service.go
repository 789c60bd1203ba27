package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/tripslot/internal/clock"
	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/metrics"
	"github.com/kirinyoku/tripslot/internal/repository"
	redisrepo "github.com/kirinyoku/tripslot/internal/repository/redis"
)

type Config struct {
	Location *time.Location
	// IndefiniteHorizonDays replaces the rolling horizon sentinel.
	IndefiniteHorizonDays int
}

type Service struct {
	slots   repository.SlotRepo
	cache   *redisrepo.Cache
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
}

func New(
	slots repository.SlotRepo,
	cache *redisrepo.Cache,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.IndefiniteHorizonDays <= 0 {
		cfg.IndefiniteHorizonDays = 90
	}

	return &Service{
		slots:   slots,
		cache:   cache,
		clock:   clk,
		metrics: m,
		logger:  logger.With(slog.String("component", "generator")),
		cfg:     cfg,
	}
}

// Window returns the generation window for rule as of now: today through
// today+horizon in the platform time zone. One-time rules reach out to
// their own date so they are visible as soon as they are created.
func (s *Service) Window(rule domain.AvailabilityRule) (from, to string) {
	today := s.clock.Now().In(s.cfg.Location)
	from = domain.FormatDate(today)
	to = domain.FormatDate(today.AddDate(0, 0, rule.Horizon(s.cfg.IndefiniteHorizonDays)))

	if rule.Type == domain.RuleOneTime && rule.Date > to {
		to = rule.Date
	}
	return from, to
}

// Generate expands rule over its current window.
func (s *Service) Generate(ctx context.Context, rule domain.AvailabilityRule) (int, error) {
	from, to := s.Window(rule)
	return s.GenerateWindow(ctx, rule, from, to)
}

// GenerateWindow inserts the missing slots of rule in [from, to] and
// returns how many were created. Existing slots, booked or not, are never
// touched. Inactive rules are a no-op.
func (s *Service) GenerateWindow(ctx context.Context, rule domain.AvailabilityRule, from, to string) (int, error) {
	const op = "service.generator.GenerateWindow"

	if !rule.Active {
		return 0, nil
	}

	slots, err := Expand(rule, from, to, s.cfg.Location)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	now := s.clock.Now()
	fresh := slots[:0]
	for _, slot := range slots {
		startsAt, err := domain.SlotStart(slot.Date, slot.StartTime, s.cfg.Location)
		if err != nil {
			return 0, fmt.Errorf("%s:%w", op, err)
		}
		if startsAt.Before(now) {
			continue
		}
		slot.ID = uuid.NewString()
		slot.CreatedAt = now
		slot.UpdatedAt = now
		fresh = append(fresh, slot)
	}

	created, err := s.slots.InsertMissing(ctx, fresh)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if created > 0 {
		s.metrics.SlotsGenerated(created)
		if err := s.cache.InvalidateListing(ctx, rule.ListingID); err != nil {
			s.logger.Warn("cache invalidation failed", slog.String("listing_id", rule.ListingID), slog.Any("error", err))
		}
		s.logger.Debug("slots generated",
			slog.String("rule_id", rule.ID),
			slog.String("from", from),
			slog.String("to", to),
			slog.Int("created", created),
		)
	}

	return created, nil
}

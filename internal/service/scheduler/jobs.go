// Package scheduler holds the periodic maintenance jobs. Every job is
// idempotent and may be triggered by the in-process cron runner, by the
// admin HTTP endpoint or by an external cron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirinyoku/tripslot/internal/clock"
	"github.com/kirinyoku/tripslot/internal/metrics"
	"github.com/kirinyoku/tripslot/internal/obs"
	"github.com/kirinyoku/tripslot/internal/repository"
	"github.com/kirinyoku/tripslot/internal/service/booking"
	"github.com/kirinyoku/tripslot/internal/service/generator"
	"github.com/kirinyoku/tripslot/internal/service/ledger"
	"github.com/kirinyoku/tripslot/internal/service/waitlist"
)

const (
	JobGenerateSlots  = "generate-slots"
	JobExpireWaitlist = "expire-waitlist"
	JobCompleteSlots  = "complete-slots"
	JobRetryRefunds   = "retry-refunds"
)

var ErrUnknownJob = errors.New("unknown job")

// Names lists every job in a stable order.
func Names() []string {
	return []string{JobGenerateSlots, JobExpireWaitlist, JobCompleteSlots, JobRetryRefunds}
}

type Summary struct {
	Job       string        `json:"job"`
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Took      time.Duration `json:"took_ns"`
}

type Config struct {
	RefundBatch int
}

type Jobs struct {
	rules     repository.RuleRepo
	generator *generator.Service
	ledger    *ledger.Service
	waitlist  *waitlist.Service
	booking   *booking.Service
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	cfg       Config
}

func NewJobs(
	rules repository.RuleRepo,
	gen *generator.Service,
	led *ledger.Service,
	wl *waitlist.Service,
	bk *booking.Service,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Jobs {
	if cfg.RefundBatch <= 0 {
		cfg.RefundBatch = 100
	}

	return &Jobs{
		rules:     rules,
		generator: gen,
		ledger:    led,
		waitlist:  wl,
		booking:   bk,
		clock:     clk,
		metrics:   m,
		logger:    logger.With(slog.String("component", "scheduler")),
		tracer:    obs.Tracer(),
		cfg:       cfg,
	}
}

// Run executes the named job and logs its summary.
func (j *Jobs) Run(ctx context.Context, name string) (Summary, error) {
	const op = "service.scheduler.Run"

	var fn func(context.Context) (Summary, error)
	switch name {
	case JobGenerateSlots:
		fn = j.GenerateSlots
	case JobExpireWaitlist:
		fn = j.ExpireWaitlist
	case JobCompleteSlots:
		fn = j.CompleteSlots
	case JobRetryRefunds:
		fn = j.RetryRefunds
	default:
		return Summary{}, fmt.Errorf("%s:%w: %q", op, ErrUnknownJob, name)
	}

	ctx, span := j.tracer.Start(ctx, "job."+name)
	defer span.End()

	began := j.clock.Now()
	sum, err := fn(ctx)
	sum.Job = name
	sum.Took = j.clock.Now().Sub(began)

	span.SetAttributes(
		attribute.Int("job.processed", sum.Processed),
		attribute.Int("job.failed", sum.Failed),
	)
	j.metrics.Job(name, err != nil || sum.Failed > 0, sum.Took)

	if err != nil {
		span.RecordError(err)
		j.logger.Error("job failed", slog.String("job", name), slog.Any("error", err))
		return sum, fmt.Errorf("%s:%w", op, err)
	}

	j.logger.Info("job finished",
		slog.String("job", name),
		slog.Int("processed", sum.Processed),
		slog.Int("succeeded", sum.Succeeded),
		slog.Int("failed", sum.Failed),
		slog.Duration("took", sum.Took),
	)
	return sum, nil
}

// GenerateSlots extends every active rule's window. A failing rule is
// logged and skipped.
func (j *Jobs) GenerateSlots(ctx context.Context) (Summary, error) {
	rules, err := j.rules.ListActive(ctx)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, rule := range rules {
		sum.Processed++
		if _, err := j.generator.Generate(ctx, rule); err != nil {
			sum.Failed++
			j.logger.Warn("rule generation failed", slog.String("rule_id", rule.ID), slog.Any("error", err))
			continue
		}
		sum.Succeeded++
	}
	return sum, nil
}

// ExpireWaitlist expires stale notifications, then promotes the next entry
// on each affected slot.
func (j *Jobs) ExpireWaitlist(ctx context.Context) (Summary, error) {
	res, err := j.waitlist.ExpireStale(ctx)
	if err != nil {
		return Summary{}, err
	}

	cascade := j.waitlist.Cascade(ctx, res.Slots)
	return Summary{
		Processed: res.Expired + cascade.Processed,
		Succeeded: res.Expired + cascade.Processed - cascade.Failed,
		Failed:    cascade.Failed,
	}, nil
}

func (j *Jobs) CompleteSlots(ctx context.Context) (Summary, error) {
	slots, bookings, err := j.ledger.MarkCompleted(ctx)
	if err != nil {
		return Summary{}, err
	}
	n := int(slots + bookings)
	return Summary{Processed: n, Succeeded: n}, nil
}

func (j *Jobs) RetryRefunds(ctx context.Context) (Summary, error) {
	res, err := j.booking.RetryRefunds(ctx, j.cfg.RefundBatch)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Processed: res.Processed, Succeeded: res.Sent, Failed: res.Failed}, nil
}

package scheduler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tripslot/internal/clock"
	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/metrics"
	"github.com/kirinyoku/tripslot/internal/notify"
	"github.com/kirinyoku/tripslot/internal/repository/memory"
	redisrepo "github.com/kirinyoku/tripslot/internal/repository/redis"
	"github.com/kirinyoku/tripslot/internal/service/booking"
	"github.com/kirinyoku/tripslot/internal/service/generator"
	"github.com/kirinyoku/tripslot/internal/service/ledger"
	"github.com/kirinyoku/tripslot/internal/service/waitlist"
	"github.com/kirinyoku/tripslot/internal/uow"
)

// Sunday.
var start = time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	clock    *clock.FakeClock
	rec      *notify.Recorder
	waitlist *waitlist.Service
	jobs     *Jobs
	logger   *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	u := uow.New(store)
	clk := clock.Fake(start)
	rec := &notify.Recorder{}
	dispatcher := notify.NewDispatcher(logger, rec)
	m := metrics.New()

	gen := generator.New(store.Repos().Slots(), nil, clk, m, logger, generator.Config{Location: time.UTC})
	led := ledger.New(u, clk, nil, nil, nil, m, logger, ledger.Config{Location: time.UTC})
	wl := waitlist.New(u, clk, dispatcher, m, logger, waitlist.Config{})
	bk := booking.New(u, clk, led, wl, nil, nil, dispatcher, m, logger)

	return &fixture{
		store:    store,
		clock:    clk,
		rec:      rec,
		waitlist: wl,
		jobs:     NewJobs(store.Repos().Rules(), gen, led, wl, bk, clk, m, logger, Config{}),
		logger:   logger,
	}
}

func rule(id, start string) domain.AvailabilityRule {
	return domain.AvailabilityRule{
		ID:                    id,
		ListingID:             "listing-1",
		VendorID:              "vendor-1",
		Type:                  domain.RuleRecurring,
		Frequency:             domain.FrequencyWeekly,
		Weekdays:              []int{1, 3, 5},
		StartTime:             start,
		DurationMinutes:       60,
		Capacity:              5,
		BookingDeadlineHours:  2,
		GenerateDaysInAdvance: 14,
		Active:                true,
	}
}

func (f *fixture) slots(t *testing.T) []domain.Slot {
	t.Helper()
	out, err := f.store.Repos().Slots().ListByListing(context.Background(), "listing-1", "", "")
	require.NoError(t, err)
	return out
}

func TestGenerateSlotsIsolatesBadRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rules := f.store.Repos().Rules()

	good := rule("good", "09:00")
	bad := rule("bad", "25:00")
	inactive := rule("inactive", "12:00")
	inactive.Active = false
	for _, r := range []domain.AvailabilityRule{good, bad, inactive} {
		r := r
		require.NoError(t, rules.Create(ctx, &r))
	}

	sum, err := f.jobs.Run(ctx, JobGenerateSlots)
	require.NoError(t, err)
	assert.Equal(t, JobGenerateSlots, sum.Job)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.Len(t, f.slots(t), 6)

	// A second run creates nothing new.
	_, err = f.jobs.Run(ctx, JobGenerateSlots)
	require.NoError(t, err)
	assert.Len(t, f.slots(t), 6)
}

func TestExpireWaitlistCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Repos().Slots().InsertMissing(ctx, []domain.Slot{{
		ID:              "s1",
		ListingID:       "listing-1",
		VendorID:        "vendor-1",
		Date:            "2026-10-25",
		StartTime:       "09:00",
		EndTime:         "10:00",
		Capacity:        1,
		Booked:          1,
		Status:          domain.SlotActive,
		BookingDeadline: time.Date(2026, 10, 25, 7, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)

	for _, c := range []string{"cust-a", "cust-b"} {
		_, err := f.waitlist.Join(ctx, "s1", c, c+"@example.com")
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	_, err = f.store.Repos().Slots().Release(ctx, "s1", 1)
	require.NoError(t, err)
	_, err = f.waitlist.NotifyNext(ctx, "s1")
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)
	sum, err := f.jobs.Run(ctx, JobExpireWaitlist)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Zero(t, sum.Failed)

	spots := f.rec.OfType(domain.NotifyWaitlistAvailable)
	require.Len(t, spots, 2)
	assert.Equal(t, "cust-a", spots[0].UserID)
	assert.Equal(t, "cust-b", spots[1].UserID)

	// Nothing stale is left on a re-run.
	sum, err = f.jobs.Run(ctx, JobExpireWaitlist)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)
}

func TestCompleteSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := domain.Slot{
		ID:        "past",
		ListingID: "listing-1",
		Date:      "2026-10-10",
		StartTime: "09:00",
		Capacity:  2,
		Booked:    1,
		Status:    domain.SlotActive,
	}
	yesterday := past
	yesterday.ID, yesterday.Date = "yesterday", "2026-10-17"
	_, err := f.store.Repos().Slots().InsertMissing(ctx, []domain.Slot{past, yesterday})
	require.NoError(t, err)
	require.NoError(t, f.store.Repos().Bookings().Create(ctx, &domain.Booking{
		ID:     "b1",
		SlotID: "past",
		Guests: 1,
		Status: domain.BookingConfirmed,
	}))

	sum, err := f.jobs.Run(ctx, JobCompleteSlots)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)

	got := map[string]domain.SlotStatus{}
	for _, s := range f.slots(t) {
		got[s.ID] = s.Status
	}
	assert.Equal(t, domain.SlotCompleted, got["past"])
	assert.Equal(t, domain.SlotActive, got["yesterday"])

	b, err := f.store.Repos().Bookings().Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCompleted, b.Status)

	sum, err = f.jobs.Run(ctx, JobCompleteSlots)
	require.NoError(t, err)
	assert.Zero(t, sum.Processed)
}

func TestRetryRefundsWithoutRefunder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Repos().Refunds().Enqueue(ctx, &domain.RefundRequest{
		ID:        "r1",
		BookingID: "b1",
		Status:    domain.RefundPending,
	}))

	sum, err := f.jobs.Run(ctx, JobRetryRefunds)
	require.NoError(t, err)
	assert.Equal(t, Summary{Job: JobRetryRefunds, Processed: 1, Failed: 1}, sum)
}

func TestRunUnknownJob(t *testing.T) {
	f := newFixture(t)
	_, err := f.jobs.Run(context.Background(), "reindex")
	require.ErrorIs(t, err, ErrUnknownJob)
}

func TestNewRunnerRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	_, err := NewRunner(f.jobs, Schedules{JobGenerateSlots: "not a cron"}, time.UTC, nil, f.logger)
	require.Error(t, err)

	r, err := NewRunner(f.jobs, Schedules{JobGenerateSlots: "0 2 * * *", JobCompleteSlots: ""}, time.UTC, nil, f.logger)
	require.NoError(t, err)
	assert.Len(t, r.cron.Entries(), 1)
}

func TestRunnerSkipsJobLockedElsewhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	lock := redisrepo.NewJobLock(rdb)

	r := rule("good", "09:00")
	require.NoError(t, f.store.Repos().Rules().Create(ctx, &r))

	runner, err := NewRunner(f.jobs, Schedules{JobGenerateSlots: "0 2 * * *"}, time.UTC, lock, f.logger)
	require.NoError(t, err)

	unlock, err := lock.TryLock(ctx, JobGenerateSlots, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, unlock)

	runner.fire(JobGenerateSlots)
	assert.Empty(t, f.slots(t))

	require.NoError(t, unlock(ctx))
	runner.fire(JobGenerateSlots)
	assert.Len(t, f.slots(t), 6)
}

func TestCronPanicsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	job := cron.Recover(cronLogger{logger})(cron.FuncJob(func() { panic("refund batch exploded") }))
	require.NotPanics(t, job.Run)

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "refund batch exploded")
}

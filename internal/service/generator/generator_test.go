package generator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tripslot/internal/clock"
	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository/memory"
)

func weeklyRule() domain.AvailabilityRule {
	return domain.AvailabilityRule{
		ID:                    "rule-1",
		ListingID:             "listing-1",
		VendorID:              "vendor-1",
		Type:                  domain.RuleRecurring,
		Frequency:             domain.FrequencyWeekly,
		Weekdays:              []int{1, 3, 5},
		StartTime:             "09:00",
		DurationMinutes:       60,
		Capacity:              5,
		BookingDeadlineHours:  2,
		GenerateDaysInAdvance: 14,
		Active:                true,
	}
}

func newService(t *testing.T, now time.Time) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(store.Repos().Slots(), nil, clock.Fake(now), nil, logger, Config{Location: time.UTC})
	return svc, store
}

// 2026-10-18 is a Sunday.
var sunday = time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)

func TestGenerateWeeklyScenario(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, sunday)

	created, err := svc.Generate(ctx, weeklyRule())
	require.NoError(t, err)
	assert.Equal(t, 6, created)

	slots, err := store.Repos().Slots().ListByListing(ctx, "listing-1", "", "")
	require.NoError(t, err)
	require.Len(t, slots, 6)

	wantDates := []string{"2026-10-19", "2026-10-21", "2026-10-23", "2026-10-26", "2026-10-28", "2026-10-30"}
	for i, s := range slots {
		assert.Equal(t, wantDates[i], s.Date)
		assert.Equal(t, "09:00", s.StartTime)
		assert.Equal(t, "10:00", s.EndTime)
		assert.Equal(t, 5, s.Capacity)
		assert.Equal(t, 0, s.Booked)
		assert.Equal(t, domain.SlotActive, s.Status)
		assert.Equal(t, "rule-1", s.RuleID)
	}
	assert.Equal(t, time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC), slots[0].BookingDeadline)
}

func TestGenerateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, sunday)
	rule := weeklyRule()

	_, err := svc.Generate(ctx, rule)
	require.NoError(t, err)

	slots, err := store.Repos().Slots().ListByListing(ctx, "listing-1", "", "")
	require.NoError(t, err)
	booked, err := store.Repos().Slots().Reserve(ctx, slots[0].ID, 2, sunday)
	require.NoError(t, err)

	// A rule edit must not alter slots that already exist.
	rule.Capacity = 10
	rule.BookingDeadlineHours = 0
	created, err := svc.Generate(ctx, rule)
	require.NoError(t, err)
	assert.Zero(t, created)

	again, err := store.Repos().Slots().ListByListing(ctx, "listing-1", "", "")
	require.NoError(t, err)
	require.Len(t, again, 6)
	assert.Equal(t, booked.Booked, again[0].Booked)
	assert.Equal(t, 5, again[0].Capacity)
	assert.Equal(t, slots[0].BookingDeadline, again[0].BookingDeadline)
}

func TestGenerateInactiveRuleIsNoop(t *testing.T) {
	svc, _ := newService(t, sunday)
	rule := weeklyRule()
	rule.Active = false

	created, err := svc.Generate(context.Background(), rule)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestGenerateSkipsStartedSlots(t *testing.T) {
	// Monday 09:30: today's 09:00 slot has already started.
	svc, _ := newService(t, time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC))
	rule := weeklyRule()
	rule.GenerateDaysInAdvance = 2

	created, err := svc.Generate(context.Background(), rule)
	require.NoError(t, err)
	assert.Equal(t, 1, created) // Wednesday only
}

func TestWindowIndefiniteAndOneTime(t *testing.T) {
	svc, _ := newService(t, sunday)

	rule := weeklyRule()
	rule.GenerateDaysInAdvance = domain.HorizonIndefinite
	from, to := svc.Window(rule)
	assert.Equal(t, "2026-10-18", from)
	assert.Equal(t, "2027-01-16", to)

	one := weeklyRule()
	one.Type = domain.RuleOneTime
	one.Date = "2027-03-01"
	one.GenerateDaysInAdvance = 1
	_, to = svc.Window(one)
	assert.Equal(t, "2027-03-01", to)

	created, err := svc.Generate(context.Background(), one)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
}

func TestMatches(t *testing.T) {
	day := func(s string) time.Time {
		d, err := domain.ParseDate(s)
		require.NoError(t, err)
		return d
	}

	daily := weeklyRule()
	daily.Frequency = domain.FrequencyDaily
	daily.Weekdays = nil
	assert.True(t, Matches(daily, day("2026-10-18")))

	monthly := weeklyRule()
	monthly.Frequency = domain.FrequencyMonthly
	monthly.Weekdays = []int{1}
	assert.True(t, Matches(monthly, day("2026-11-02")), "first Monday of November")
	assert.False(t, Matches(monthly, day("2026-11-09")), "second Monday")
	assert.False(t, Matches(monthly, day("2026-11-03")), "first Tuesday")

	one := weeklyRule()
	one.Type = domain.RuleOneTime
	one.Date = "2026-12-24"
	assert.True(t, Matches(one, day("2026-12-24")))
	assert.False(t, Matches(one, day("2026-12-25")))
}

func TestExpandRejectsInvalidRule(t *testing.T) {
	rule := weeklyRule()
	rule.StartTime = "23:30"
	_, err := Expand(rule, "2026-10-18", "2026-10-20", time.UTC)
	var ve domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

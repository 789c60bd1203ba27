package waitlist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tripslot/internal/clock"
	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/notify"
	"github.com/kirinyoku/tripslot/internal/repository"
	"github.com/kirinyoku/tripslot/internal/repository/memory"
	"github.com/kirinyoku/tripslot/internal/uow"
)

var start = time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	clock *clock.FakeClock
	rec   *notify.Recorder
	svc   *Service
	slots int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	clk := clock.Fake(start)
	rec := &notify.Recorder{}

	return &fixture{
		store: store,
		clock: clk,
		rec:   rec,
		svc:   New(uow.New(store), clk, notify.NewDispatcher(logger, rec), nil, logger, Config{}),
	}
}

func (f *fixture) seedSlot(t *testing.T, id string, capacity, booked int) {
	t.Helper()
	hour := 9 + f.slots
	f.slots++
	n, err := f.store.Repos().Slots().InsertMissing(context.Background(), []domain.Slot{{
		ID:              id,
		ListingID:       "listing-1",
		VendorID:        "vendor-1",
		Date:            "2026-10-25",
		StartTime:       fmt.Sprintf("%02d:00", hour),
		EndTime:         fmt.Sprintf("%02d:00", hour+1),
		Capacity:        capacity,
		Booked:          booked,
		Status:          domain.SlotActive,
		BookingDeadline: time.Date(2026, 10, 25, 7, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)
	require.Equal(t, 1, n, "slot %s collides with an existing one", id)
}

func (f *fixture) free(t *testing.T, slotID string) {
	t.Helper()
	_, err := f.store.Repos().Slots().Release(context.Background(), slotID, 1)
	require.NoError(t, err)
}

func TestJoinRequiresFullActiveSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedSlot(t, "open", 3, 1)
	f.seedSlot(t, "full", 1, 1)

	_, err := f.svc.Join(ctx, "open", "cust-1", "c1@example.com")
	assert.ErrorIs(t, err, ErrSlotNotFull)

	_, err = f.svc.Join(ctx, "missing", "cust-1", "c1@example.com")
	assert.ErrorIs(t, err, ErrSlotNotFound)

	entry, err := f.svc.Join(ctx, "full", "cust-1", "c1@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistWaiting, entry.Status)
	assert.Equal(t, "listing-1", entry.ListingID)
	assert.Len(t, f.rec.OfType(domain.NotifyWaitlistJoined), 1)

	_, err = f.svc.Join(ctx, "full", "cust-1", "c1@example.com")
	assert.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestNotifyNextIsFIFO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedSlot(t, "s1", 1, 1)

	for _, c := range []string{"cust-a", "cust-b", "cust-c"} {
		_, err := f.svc.Join(ctx, "s1", c, c+"@example.com")
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	entry, err := f.svc.NotifyNext(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, entry, "full slot must not promote anyone")

	f.free(t, "s1")

	entry, err = f.svc.NotifyNext(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "cust-a", entry.CustomerID)
	assert.Equal(t, domain.WaitlistNotified, entry.Status)
	require.NotNil(t, entry.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), *entry.ExpiresAt)

	spots := f.rec.OfType(domain.NotifyWaitlistAvailable)
	require.Len(t, spots, 1)
	assert.Equal(t, "cust-a", spots[0].UserID)
}

func TestExpireStaleCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedSlot(t, "s1", 1, 1)

	for _, c := range []string{"cust-a", "cust-b"} {
		_, err := f.svc.Join(ctx, "s1", c, c+"@example.com")
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	f.free(t, "s1")

	first, err := f.svc.NotifyNext(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, first)

	// Inside the window nothing expires.
	f.clock.Advance(23 * time.Hour)
	res, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Expired)
	assert.Empty(t, res.Slots)

	f.clock.Advance(2 * time.Hour)
	res, err = f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, []string{"s1"}, res.Slots)

	cascade := f.svc.Cascade(ctx, res.Slots)
	assert.Equal(t, CascadeResult{Processed: 1, Notified: 1}, cascade)

	entries, err := f.svc.ListBySlot(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.WaitlistExpired, entries[0].Status)
	assert.Equal(t, "cust-b", entries[1].CustomerID)
	assert.Equal(t, domain.WaitlistNotified, entries[1].Status)

	expired := f.rec.OfType(domain.NotifyWaitlistExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, "cust-a", expired[0].UserID)
}

func TestExpireStaleOffersFreedUnitWhileOthersNotified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedSlot(t, "s1", 2, 2)

	for _, c := range []string{"cust-a", "cust-b", "cust-c"} {
		_, err := f.svc.Join(ctx, "s1", c, c+"@example.com")
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	f.free(t, "s1")
	_, err := f.svc.NotifyNext(ctx, "s1")
	require.NoError(t, err)

	f.clock.Advance(12 * time.Hour)
	f.free(t, "s1")
	_, err = f.svc.NotifyNext(ctx, "s1")
	require.NoError(t, err)

	// cust-a's window closes while cust-b still holds an offer.
	f.clock.Advance(13 * time.Hour)
	res, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, []string{"s1"}, res.Slots)

	cascade := f.svc.Cascade(ctx, res.Slots)
	assert.Equal(t, CascadeResult{Processed: 1, Notified: 1}, cascade)

	entries, err := f.svc.ListBySlot(ctx, "s1")
	require.NoError(t, err)
	got := map[string]domain.WaitlistStatus{}
	for _, e := range entries {
		got[e.CustomerID] = e.Status
	}
	assert.Equal(t, map[string]domain.WaitlistStatus{
		"cust-a": domain.WaitlistExpired,
		"cust-b": domain.WaitlistNotified,
		"cust-c": domain.WaitlistNotified,
	}, got)
}

func TestExpireStaleRecoversUnpromotedSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedSlot(t, "s1", 2, 2)

	for _, c := range []string{"cust-a", "cust-b"} {
		_, err := f.svc.Join(ctx, "s1", c, c+"@example.com")
		require.NoError(t, err)
	}
	_, err := f.svc.NotifyNext(ctx, "s1")
	require.NoError(t, err)

	// Two units free up but only one offer is outstanding.
	f.free(t, "s1")
	f.free(t, "s1")
	_, err = f.svc.NotifyNext(ctx, "s1")
	require.NoError(t, err)

	res, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Expired)
	assert.Equal(t, []string{"s1"}, res.Slots)
}

func TestCascadeIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedSlot(t, "s1", 1, 1)

	_, err := f.svc.Join(ctx, "s1", "cust-a", "a@example.com")
	require.NoError(t, err)
	f.free(t, "s1")

	res := f.svc.Cascade(ctx, []string{"missing", "s1"})
	assert.Equal(t, CascadeResult{Processed: 2, Notified: 1, Failed: 1}, res)
}

func TestClaimAndExpireSlotTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedSlot(t, "s1", 1, 1)

	for _, c := range []string{"cust-a", "cust-b"} {
		_, err := f.svc.Join(ctx, "s1", c, c+"@example.com")
		require.NoError(t, err)
	}

	u := uow.New(f.store)
	err := u.Do(ctx, func(ctx context.Context, tx repository.Repos, after func(uow.AfterCommit)) error {
		claimed, err := f.svc.ClaimTx(ctx, tx, after, "s1", "cust-a")
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = f.svc.ClaimTx(ctx, tx, after, "s1", "stranger")
		require.NoError(t, err)
		assert.False(t, claimed)

		n, err := f.svc.ExpireSlotTx(ctx, tx, after, "s1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	})
	require.NoError(t, err)

	entries, err := f.svc.ListBySlot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.WaitlistBooked, entries[0].Status)
	assert.Equal(t, domain.WaitlistExpired, entries[1].Status)
}

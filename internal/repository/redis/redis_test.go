package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestGetOrSetJSONCachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	c := New(rdb)

	var loads atomic.Int32
	loader := func(context.Context) ([]string, error) {
		loads.Add(1)
		return []string{"slot-1", "slot-2"}, nil
	}

	key := KeyListingSlots("listing-1")
	for i := 0; i < 3; i++ {
		v, err := GetOrSetJSON(ctx, c, key, "2026-10-01..2026-10-31", time.Minute, loader)
		require.NoError(t, err)
		assert.Equal(t, []string{"slot-1", "slot-2"}, v)
	}
	assert.EqualValues(t, 1, loads.Load())

	require.NoError(t, c.InvalidateSlot(ctx, "listing-1", "slot-1"))
	_, err := GetOrSetJSON(ctx, c, key, "2026-10-01..2026-10-31", time.Minute, loader)
	require.NoError(t, err)
	assert.EqualValues(t, 2, loads.Load())
}

func TestGetOrSetJSONLoaderError(t *testing.T) {
	_, rdb := newClient(t)
	boom := errors.New("boom")
	_, err := GetOrSetJSON(context.Background(), New(rdb), "k", "", time.Minute,
		func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestNilCacheCallsLoader(t *testing.T) {
	var c *Cache
	v, err := GetOrSetJSON(context.Background(), c, "k", "", time.Minute,
		func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.NoError(t, c.InvalidateListing(context.Background(), "l"))
}

func TestIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	s := NewIdempotencyStore(rdb, time.Hour)
	key := KeyIdemBooking("slot-1", "c-1", "abc")

	ok, err := s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.False(t, found, "a lock is not a result")

	require.NoError(t, s.SaveResult(ctx, key, []byte(`{"id":"b-1"}`)))
	got, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"id":"b-1"}`, string(got))
}

func TestSlidingWindowLimiter(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	l := NewSlidingWindowLimiter(rdb, "bookings", 2, time.Minute)
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	d, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	now = now.Add(61 * time.Second)
	d, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestJobLockSingleOwner(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	l := NewJobLock(rdb)

	var (
		wg     sync.WaitGroup
		owners atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.TryLock(ctx, "generate-slots", time.Minute)
			if err == nil && unlock != nil {
				owners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, owners.Load())

	unlock, err := l.TryLock(ctx, "complete-slots", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, unlock)
	require.NoError(t, unlock(ctx))

	again, err := l.TryLock(ctx, "complete-slots", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestSlotEventsRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, rdb := newClient(t)
	ev := NewSlotEvents(rdb)

	got := make(chan SlotChange, 1)
	ready := make(chan struct{})
	go func() {
		_ = ev.Subscribe(ctx, func(_ context.Context, ch SlotChange) { got <- ch })
	}()
	go func() {
		// Wait until the subscription is registered before publishing.
		for {
			n, _ := rdb.PubSubNumSub(ctx, ChannelSlotsChanged()).Result()
			if n[ChannelSlotsChanged()] > 0 {
				close(ready)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	<-ready
	require.NoError(t, ev.Publish(ctx, SlotChange{ListingID: "l-1", SlotID: "s-1", Available: 2}))

	select {
	case ch := <-got:
		assert.Equal(t, "s-1", ch.SlotID)
		assert.Equal(t, 2, ch.Available)
	case <-ctx.Done():
		t.Fatal("no slot change received")
	}
}

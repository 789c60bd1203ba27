package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository/memory"
)

type failingSink struct{ calls int }

func (f *failingSink) Name() string { return "failing" }

func (f *failingSink) Deliver(context.Context, Event) error {
	f.calls++
	return errors.New("sink down")
}

type capturePublisher struct {
	keys []string
}

func (c *capturePublisher) PublishJSON(_ context.Context, key string, _ any) error {
	c.keys = append(c.keys, key)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherIsolatesSinkFailures(t *testing.T) {
	failing := &failingSink{}
	rec := &Recorder{}
	d := NewDispatcher(discard(), failing, rec)

	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	b := domain.Booking{ID: "b-1", CustomerID: "c-1", VendorID: "v-1", Guests: 2}
	d.Dispatch(context.Background(), BookingCreated(b, domain.Slot{Date: "2026-10-19"}, at)...)

	assert.Equal(t, 2, failing.calls)
	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "c-1", events[0].UserID)
	assert.Equal(t, "v-1", events[1].UserID)
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() { d.Dispatch(context.Background(), Event{}) })
}

func TestStoreSinkPersists(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	sink := NewStoreSink(store.Repos().Notifications())

	e := domain.WaitlistEntry{ID: "w-1", SlotID: "s-1", CustomerID: "c-1"}
	require.NoError(t, sink.Deliver(ctx, WaitlistJoined(e, time.Now())))

	got, err := store.Repos().Notifications().ListByUser(ctx, "c-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.NotifyWaitlistJoined, got[0].Type)
	assert.Equal(t, "w-1", got[0].WaitlistEntryID)
}

func TestBrokerSinkRoutingKeys(t *testing.T) {
	pub := &capturePublisher{}
	sink := NewBrokerSink(pub)

	require.NoError(t, sink.Deliver(context.Background(), Event{Type: domain.NotifyBookingConfirmed}))
	require.NoError(t, sink.Deliver(context.Background(), Event{Type: domain.NotifyWaitlistAvailable}))
	require.NoError(t, sink.Deliver(context.Background(), Event{Type: "custom"}))

	assert.Equal(t, []string{"booking.confirmed", "waitlist.notified", "notification.custom"}, pub.keys)
}

func TestBookingCancelledNotifiesOtherParty(t *testing.T) {
	at := time.Now()
	b := domain.Booking{ID: "b-1", CustomerID: "c-1", VendorID: "v-1"}

	b.Cancellation = &domain.Cancellation{Actor: domain.ActorCustomer}
	assert.Equal(t, "v-1", BookingCancelled(b, at).UserID)

	b.Cancellation = &domain.Cancellation{Actor: domain.ActorVendor, Message: "Storm warning."}
	ev := BookingCancelled(b, at)
	assert.Equal(t, "c-1", ev.UserID)
	assert.Contains(t, ev.Message, "Storm warning.")
}

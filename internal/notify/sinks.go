package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/mq"
	"github.com/kirinyoku/tripslot/internal/repository"
)

// StoreSink persists notifications so users can list them later.
type StoreSink struct {
	repo repository.NotificationRepo
}

func NewStoreSink(repo repository.NotificationRepo) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Deliver(ctx context.Context, ev Event) error {
	return s.repo.Create(ctx, &domain.Notification{
		ID:              uuid.NewString(),
		UserID:          ev.UserID,
		Type:            ev.Type,
		Title:           ev.Title,
		Message:         ev.Message,
		ListingID:       ev.ListingID,
		BookingID:       ev.BookingID,
		SlotID:          ev.SlotID,
		WaitlistEntryID: ev.WaitlistEntryID,
		CreatedAt:       ev.At,
	})
}

type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// BrokerSink publishes events to the booking exchange for downstream
// consumers (email, push, analytics).
type BrokerSink struct {
	pub Publisher
}

func NewBrokerSink(pub Publisher) *BrokerSink {
	return &BrokerSink{pub: pub}
}

func (s *BrokerSink) Name() string { return "broker" }

func (s *BrokerSink) Deliver(ctx context.Context, ev Event) error {
	return s.pub.PublishJSON(ctx, RoutingKey(ev.Type), ev)
}

// RoutingKey maps a notification type onto a booking exchange key.
func RoutingKey(t domain.NotificationType) string {
	switch t {
	case domain.NotifyBookingCreated:
		return mq.RKBookingCreated
	case domain.NotifyBookingConfirmed:
		return mq.RKBookingConfirmed
	case domain.NotifyBookingCancelled:
		return mq.RKBookingCancelled
	case domain.NotifyPaymentFailed:
		return mq.RKPaymentFailed
	case domain.NotifySlotCancelled:
		return mq.RKSlotCancelled
	case domain.NotifyWaitlistJoined:
		return mq.RKWaitlistJoined
	case domain.NotifyWaitlistAvailable:
		return mq.RKWaitlistNotified
	case domain.NotifyWaitlistExpired:
		return mq.RKWaitlistExpired
	case domain.NotifyRefundRequested:
		return mq.RKRefundRequested
	}
	return "notification." + string(t)
}

type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, ev Event) error {
	s.logger.InfoContext(ctx, "notification",
		slog.String("type", string(ev.Type)),
		slog.String("user_id", ev.UserID),
		slog.String("booking_id", ev.BookingID),
		slog.String("slot_id", ev.SlotID),
		slog.String("title", ev.Title),
	)
	return nil
}

// Recorder keeps delivered events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Deliver(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events of type t in delivery order.
func (r *Recorder) OfType(t domain.NotificationType) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

package repository

import (
	"context"
	"time"

	"github.com/kirinyoku/tripslot/internal/domain"
)

// Store is implemented by every storage backend. RunTx executes fn against
// repos bound to one serializable transaction; fn may be invoked more than
// once when the backend retries a serialization failure.
type Store interface {
	Repos() Repos
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Repos) error) error
}

type Repos interface {
	Rules() RuleRepo
	Slots() SlotRepo
	Bookings() BookingRepo
	Waitlist() WaitlistRepo
	Notifications() NotificationRepo
	Refunds() RefundRepo
}

type RuleRepo interface {
	Create(ctx context.Context, r *domain.AvailabilityRule) error
	Get(ctx context.Context, id string) (*domain.AvailabilityRule, error)
	Update(ctx context.Context, r *domain.AvailabilityRule) error
	Delete(ctx context.Context, id string) error
	ListByListing(ctx context.Context, listingID string) ([]domain.AvailabilityRule, error)
	ListActive(ctx context.Context) ([]domain.AvailabilityRule, error)
	// HasBookings reports whether any booking references a slot of the rule.
	HasBookings(ctx context.Context, ruleID string) (bool, error)
}

type SlotRepo interface {
	// InsertMissing inserts slots whose (listing, date, start) is not taken
	// yet and returns how many were inserted. Existing slots are untouched.
	InsertMissing(ctx context.Context, slots []domain.Slot) (int, error)
	Get(ctx context.Context, id string) (*domain.Slot, error)
	// GetForUpdate locks the slot row until the enclosing transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Slot, error)
	ListByListing(ctx context.Context, listingID, from, to string) ([]domain.Slot, error)

	// Reserve atomically adds n to booked when the slot is active, the
	// deadline has not passed at now and capacity allows it.
	Reserve(ctx context.Context, id string, n int, now time.Time) (*domain.Slot, error)
	// Release atomically subtracts n from booked.
	Release(ctx context.Context, id string, n int) (*domain.Slot, error)

	Block(ctx context.Context, id string) (*domain.Slot, error)
	Unblock(ctx context.Context, id string) (*domain.Slot, error)
	Cancel(ctx context.Context, id string, c domain.Cancellation) (*domain.Slot, error)
	// MarkCompletedBefore completes every active slot dated strictly before date.
	MarkCompletedBefore(ctx context.Context, date string) (int64, error)
	DeleteByRule(ctx context.Context, ruleID string) (int64, error)
}

type BookingRepo interface {
	Create(ctx context.Context, b *domain.Booking) error
	Get(ctx context.Context, id string) (*domain.Booking, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Booking, error)
	GetByPaymentHandle(ctx context.Context, handle string) (*domain.Booking, error)
	ListActiveBySlot(ctx context.Context, slotID string) ([]domain.Booking, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Booking, error)
	Update(ctx context.Context, b *domain.Booking) error
	// CompleteBefore completes confirmed bookings on slots dated before date.
	CompleteBefore(ctx context.Context, date string) (int64, error)
}

type WaitlistRepo interface {
	// Create fails with ErrConflict when the customer already has a waiting
	// or notified entry for the slot.
	Create(ctx context.Context, e *domain.WaitlistEntry) error
	Get(ctx context.Context, id string) (*domain.WaitlistEntry, error)
	ListBySlot(ctx context.Context, slotID string) ([]domain.WaitlistEntry, error)
	// NotifyNext moves the oldest waiting entry of the slot to notified.
	// Returns ErrNotFound when nobody is waiting.
	NotifyNext(ctx context.Context, slotID string, now, expiresAt time.Time) (*domain.WaitlistEntry, error)
	// Claim marks the customer's open entry for the slot as booked.
	Claim(ctx context.Context, slotID, customerID string) (*domain.WaitlistEntry, error)
	// ExpireStale expires notified entries whose window closed before now.
	ExpireStale(ctx context.Context, now time.Time) ([]domain.WaitlistEntry, error)
	// ExpireBySlot expires every open entry of the slot.
	ExpireBySlot(ctx context.Context, slotID string) ([]domain.WaitlistEntry, error)
	// SlotsAwaitingPromotion lists active slots with waiting entries whose
	// free capacity exceeds the number of outstanding notified entries.
	SlotsAwaitingPromotion(ctx context.Context, now time.Time) ([]string, error)
}

type NotificationRepo interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type RefundRepo interface {
	// Enqueue is a no-op when a refund for the booking is already queued.
	Enqueue(ctx context.Context, r *domain.RefundRequest) error
	ListPending(ctx context.Context, limit int) ([]domain.RefundRequest, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkAttemptFailed(ctx context.Context, id string, reason string, at time.Time) error
}

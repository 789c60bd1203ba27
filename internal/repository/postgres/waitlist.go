package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type WaitlistRepo struct {
	db DB
}

const waitlistColumns = `id, slot_id, listing_id, customer_id, email, status, joined_at, notified_at, expires_at`

func scanEntry(row pgx.Row) (domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	err := row.Scan(&e.ID, &e.SlotID, &e.ListingID, &e.CustomerID, &e.Email,
		&e.Status, &e.JoinedAt, &e.NotifiedAt, &e.ExpiresAt)
	return e, err
}

func (r *WaitlistRepo) Create(ctx context.Context, e *domain.WaitlistEntry) error {
	const op = "postgres.WaitlistRepo.Create"

	_, err := r.db.Exec(ctx,
		`INSERT INTO waitlist_entries(`+waitlistColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.SlotID, e.ListingID, e.CustomerID, e.Email, e.Status,
		e.JoinedAt, e.NotifiedAt, e.ExpiresAt,
	)
	return wrapDBErr(op, err)
}

func (r *WaitlistRepo) Get(ctx context.Context, id string) (*domain.WaitlistEntry, error) {
	const op = "postgres.WaitlistRepo.Get"

	e, err := scanEntry(r.db.QueryRow(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = $1`, id))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	return &e, nil
}

func (r *WaitlistRepo) ListBySlot(ctx context.Context, slotID string) ([]domain.WaitlistEntry, error) {
	return r.list(ctx, "postgres.WaitlistRepo.ListBySlot",
		`SELECT `+waitlistColumns+` FROM waitlist_entries
		  WHERE slot_id = $1
		  ORDER BY joined_at, id`, slotID)
}

func (r *WaitlistRepo) list(ctx context.Context, op, sql string, args ...any) ([]domain.WaitlistEntry, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanEntry)
	return out, wrapDBErr(op, err)
}

// NotifyNext picks the head of the queue with SKIP LOCKED so two releases
// of the same slot never notify the same customer.
func (r *WaitlistRepo) NotifyNext(ctx context.Context, slotID string, now, expiresAt time.Time) (*domain.WaitlistEntry, error) {
	const op = "postgres.WaitlistRepo.NotifyNext"

	e, err := scanEntry(r.db.QueryRow(ctx,
		`UPDATE waitlist_entries
		    SET status = 'notified', notified_at = $2, expires_at = $3
		  WHERE id = (
		        SELECT id FROM waitlist_entries
		         WHERE slot_id = $1 AND status = 'waiting'
		         ORDER BY joined_at, id
		         LIMIT 1
		         FOR UPDATE SKIP LOCKED)
		  RETURNING `+waitlistColumns,
		slotID, now, expiresAt,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	return &e, nil
}

func (r *WaitlistRepo) Claim(ctx context.Context, slotID, customerID string) (*domain.WaitlistEntry, error) {
	const op = "postgres.WaitlistRepo.Claim"

	e, err := scanEntry(r.db.QueryRow(ctx,
		`UPDATE waitlist_entries
		    SET status = 'booked'
		  WHERE slot_id = $1 AND customer_id = $2 AND status IN ('waiting', 'notified')
		  RETURNING `+waitlistColumns,
		slotID, customerID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	return &e, nil
}

func (r *WaitlistRepo) ExpireStale(ctx context.Context, now time.Time) ([]domain.WaitlistEntry, error) {
	return r.list(ctx, "postgres.WaitlistRepo.ExpireStale",
		`UPDATE waitlist_entries
		    SET status = 'expired'
		  WHERE status = 'notified' AND expires_at < $1
		  RETURNING `+waitlistColumns, now)
}

func (r *WaitlistRepo) ExpireBySlot(ctx context.Context, slotID string) ([]domain.WaitlistEntry, error) {
	return r.list(ctx, "postgres.WaitlistRepo.ExpireBySlot",
		`UPDATE waitlist_entries
		    SET status = 'expired'
		  WHERE slot_id = $1 AND status IN ('waiting', 'notified')
		  RETURNING `+waitlistColumns, slotID)
}

func (r *WaitlistRepo) SlotsAwaitingPromotion(ctx context.Context, now time.Time) ([]string, error) {
	const op = "postgres.WaitlistRepo.SlotsAwaitingPromotion"

	rows, err := r.db.Query(ctx,
		`SELECT s.id FROM slots s
		  WHERE s.status = 'active'
		    AND s.booked < s.capacity
		    AND s.booking_deadline >= $1
		    AND EXISTS (SELECT 1 FROM waitlist_entries w
		                 WHERE w.slot_id = s.id AND w.status = 'waiting')
		    AND (SELECT count(*) FROM waitlist_entries w
		          WHERE w.slot_id = s.id AND w.status = 'notified') < s.capacity - s.booked
		  ORDER BY s.id`, now)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, func(row pgx.Row) (string, error) {
		var id string
		return id, row.Scan(&id)
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	return out, nil
}

var _ repository.WaitlistRepo = (*WaitlistRepo)(nil)

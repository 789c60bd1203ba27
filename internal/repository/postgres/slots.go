package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type SlotRepo struct {
	db DB
}

const slotColumns = `id, listing_id, vendor_id, COALESCE(rule_id, ''), date, start_time,
	end_time, capacity, booked, status, booking_deadline,
	cancelled_at, cancelled_by, cancelled_by_id, cancel_reason, cancel_message,
	created_at, updated_at`

func scanSlot(row pgx.Row) (domain.Slot, error) {
	var (
		s  domain.Slot
		cc cancelCols
	)
	dest := []any{
		&s.ID, &s.ListingID, &s.VendorID, &s.RuleID, &s.Date, &s.StartTime,
		&s.EndTime, &s.Capacity, &s.Booked, &s.Status, &s.BookingDeadline,
	}
	dest = append(dest, cc.dest()...)
	dest = append(dest, &s.CreatedAt, &s.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return domain.Slot{}, err
	}
	s.Cancellation = cc.value()
	return s, nil
}

// InsertMissing relies on the (listing_id, date, start_time) key so
// concurrent generators never create duplicates.
func (r *SlotRepo) InsertMissing(ctx context.Context, slots []domain.Slot) (int, error) {
	const op = "postgres.SlotRepo.InsertMissing"

	if len(slots) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, s := range slots {
		batch.Queue(
			`INSERT INTO slots(id, listing_id, vendor_id, rule_id, date, start_time,
			                   end_time, capacity, booked, status, booking_deadline,
			                   created_at, updated_at)
			 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 ON CONFLICT (listing_id, date, start_time) DO NOTHING`,
			s.ID, s.ListingID, s.VendorID, s.RuleID, s.Date, s.StartTime,
			s.EndTime, s.Capacity, s.Booked, s.Status, s.BookingDeadline,
			s.CreatedAt, s.UpdatedAt,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int
	for range slots {
		tag, err := br.Exec()
		if err != nil {
			return inserted, wrapDBErr(op, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *SlotRepo) Get(ctx context.Context, id string) (*domain.Slot, error) {
	return r.get(ctx, "postgres.SlotRepo.Get", `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
}

func (r *SlotRepo) GetForUpdate(ctx context.Context, id string) (*domain.Slot, error) {
	return r.get(ctx, "postgres.SlotRepo.GetForUpdate", `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id)
}

func (r *SlotRepo) get(ctx context.Context, op, sql string, args ...any) (*domain.Slot, error) {
	s, err := scanSlot(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	return &s, nil
}

func (r *SlotRepo) ListByListing(ctx context.Context, listingID, from, to string) ([]domain.Slot, error) {
	const op = "postgres.SlotRepo.ListByListing"

	rows, err := r.db.Query(ctx,
		`SELECT `+slotColumns+` FROM slots
		  WHERE listing_id = $1
		    AND ($2 = '' OR date >= $2)
		    AND ($3 = '' OR date <= $3)
		  ORDER BY date, start_time`,
		listingID, from, to,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanSlot)
	return out, wrapDBErr(op, err)
}

// Reserve is a single conditional UPDATE. When no row matches, the slot is
// re-read to tell the caller which condition failed.
func (r *SlotRepo) Reserve(ctx context.Context, id string, n int, now time.Time) (*domain.Slot, error) {
	const op = "postgres.SlotRepo.Reserve"

	s, err := scanSlot(r.db.QueryRow(ctx,
		`UPDATE slots
		    SET booked = booked + $2, updated_at = $3
		  WHERE id = $1
		    AND status = 'active'
		    AND booked + $2 <= capacity
		    AND booking_deadline >= $3
		  RETURNING `+slotColumns,
		id, n, now,
	))
	if err == nil {
		return &s, nil
	}
	if !isNoRows(err) {
		return nil, wrapDBErr(op, err)
	}

	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	switch {
	case cur.Status != domain.SlotActive:
		return nil, fmt.Errorf("%s:%w", op, repository.ErrSlotUnavailable)
	case now.After(cur.BookingDeadline):
		return nil, fmt.Errorf("%s:%w", op, repository.ErrSlotClosed)
	default:
		return nil, fmt.Errorf("%s:%w", op, repository.ErrCapacityExceeded)
	}
}

func (r *SlotRepo) Release(ctx context.Context, id string, n int) (*domain.Slot, error) {
	const op = "postgres.SlotRepo.Release"

	s, err := scanSlot(r.db.QueryRow(ctx,
		`UPDATE slots
		    SET booked = booked - $2, updated_at = now()
		  WHERE id = $1 AND booked >= $2
		  RETURNING `+slotColumns,
		id, n,
	))
	if err == nil {
		return &s, nil
	}
	if !isNoRows(err) {
		return nil, wrapDBErr(op, err)
	}
	if _, err := r.Get(ctx, id); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	return nil, fmt.Errorf("%s:%w", op, repository.ErrCapacityUnderflow)
}

// transition moves an empty slot from one status to another.
func (r *SlotRepo) transition(
	ctx context.Context,
	op string,
	id string,
	from, to domain.SlotStatus,
	requireEmpty bool,
	c *domain.Cancellation,
) (*domain.Slot, error) {
	args := []any{id, from, to, requireEmpty}
	args = append(args, cancelArgs(c)...)

	s, err := scanSlot(r.db.QueryRow(ctx,
		`UPDATE slots
		    SET status = $3,
		        cancelled_at = COALESCE($5, cancelled_at),
		        cancelled_by = COALESCE($6, cancelled_by),
		        cancelled_by_id = COALESCE($7, cancelled_by_id),
		        cancel_reason = COALESCE($8, cancel_reason),
		        cancel_message = COALESCE($9, cancel_message),
		        updated_at = now()
		  WHERE id = $1 AND status = $2 AND (NOT $4 OR booked = 0)
		  RETURNING `+slotColumns,
		args...,
	))
	if err == nil {
		return &s, nil
	}
	if !isNoRows(err) {
		return nil, wrapDBErr(op, err)
	}

	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if cur.Status != from {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrInvalidTransition)
	}
	return nil, fmt.Errorf("%s:%w", op, repository.ErrSlotHasBookings)
}

func (r *SlotRepo) Block(ctx context.Context, id string) (*domain.Slot, error) {
	return r.transition(ctx, "postgres.SlotRepo.Block", id, domain.SlotActive, domain.SlotBlocked, true, nil)
}

func (r *SlotRepo) Unblock(ctx context.Context, id string) (*domain.Slot, error) {
	return r.transition(ctx, "postgres.SlotRepo.Unblock", id, domain.SlotBlocked, domain.SlotActive, false, nil)
}

func (r *SlotRepo) Cancel(ctx context.Context, id string, c domain.Cancellation) (*domain.Slot, error) {
	return r.transition(ctx, "postgres.SlotRepo.Cancel", id, domain.SlotActive, domain.SlotCancelled, true, &c)
}

func (r *SlotRepo) MarkCompletedBefore(ctx context.Context, date string) (int64, error) {
	const op = "postgres.SlotRepo.MarkCompletedBefore"

	tag, err := r.db.Exec(ctx,
		`UPDATE slots SET status = 'completed', updated_at = now()
		  WHERE status = 'active' AND date < $1`, date)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}
	return tag.RowsAffected(), nil
}

func (r *SlotRepo) DeleteByRule(ctx context.Context, ruleID string) (int64, error) {
	const op = "postgres.SlotRepo.DeleteByRule"

	tag, err := r.db.Exec(ctx, `DELETE FROM slots WHERE rule_id = $1`, ruleID)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}
	return tag.RowsAffected(), nil
}

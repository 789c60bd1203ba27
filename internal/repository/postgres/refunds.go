package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kirinyoku/tripslot/internal/domain"
	"github.com/kirinyoku/tripslot/internal/repository"
)

type RefundRepo struct {
	db DB
}

const refundColumns = `id, booking_id, amount_cents, status, attempts, last_error, created_at, updated_at`

func scanRefund(row pgx.Row) (domain.RefundRequest, error) {
	var rr domain.RefundRequest
	err := row.Scan(&rr.ID, &rr.BookingID, &rr.AmountCents, &rr.Status,
		&rr.Attempts, &rr.LastError, &rr.CreatedAt, &rr.UpdatedAt)
	return rr, err
}

func (r *RefundRepo) Enqueue(ctx context.Context, rr *domain.RefundRequest) error {
	const op = "postgres.RefundRepo.Enqueue"

	_, err := r.db.Exec(ctx,
		`INSERT INTO refund_requests(`+refundColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (booking_id) DO NOTHING`,
		rr.ID, rr.BookingID, rr.AmountCents, rr.Status, rr.Attempts, rr.LastError,
		rr.CreatedAt, rr.UpdatedAt,
	)
	return wrapDBErr(op, err)
}

func (r *RefundRepo) ListPending(ctx context.Context, limit int) ([]domain.RefundRequest, error) {
	const op = "postgres.RefundRepo.ListPending"

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+refundColumns+` FROM refund_requests
		  WHERE status = 'pending'
		  ORDER BY created_at, id
		  LIMIT $1`, limit)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanRefund)
	return out, wrapDBErr(op, err)
}

func (r *RefundRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "postgres.RefundRepo.MarkSent",
		`UPDATE refund_requests
		    SET status = 'sent', attempts = attempts + 1, last_error = '', updated_at = $2
		  WHERE id = $1`, id, at)
}

func (r *RefundRepo) MarkAttemptFailed(ctx context.Context, id string, reason string, at time.Time) error {
	return r.exec(ctx, "postgres.RefundRepo.MarkAttemptFailed",
		`UPDATE refund_requests
		    SET attempts = attempts + 1, last_error = $2, updated_at = $3
		  WHERE id = $1`, id, reason, at)
}

func (r *RefundRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return nil
}
